package pipeline

import (
	"context"
	"fmt"

	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/retrieval"
	"github.com/contosowiki/sage/internal/types"
)

// RetrievePlugin runs the Retrieval Engine's hybrid search.
type RetrievePlugin struct {
	engine *retrieval.Engine
}

func NewRetrievePlugin(engine *retrieval.Engine) *RetrievePlugin {
	return &RetrievePlugin{engine: engine}
}

func (p *RetrievePlugin) ActivationEvents() []types.EventType {
	return []types.EventType{types.Retrieve}
}

func (p *RetrievePlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	emitStep(state, types.PhaseRetrieving, "Searching the knowledge base")
	if p.engine.Warming() {
		emitStep(state, types.PhaseRetrieving, "Loading the embedding model")
	}

	results, err := p.engine.Retrieve(ctx, state.Query, &state.Intent, state.AliasExpansions)
	if err != nil {
		pipelineError(ctx, "retrieve", "search_failed", map[string]interface{}{"err": err})
		return event.WithError(sageerrors.Wrap(sageerrors.RetrievalUnavailable, "retrieval failed", err))
	}
	state.RetrievalResults = results
	if len(results) > 0 {
		state.KeywordOnly = results[0].KeywordOnly
	}
	if state.KeywordOnly {
		emitStep(state, types.PhaseRetrieving, "Semantic search unavailable, matched sources by keywords only")
	}
	emitStep(state, types.PhaseRetrieving, fmt.Sprintf("Found %d sources", len(results)))
	pipelineInfo(ctx, "retrieve", "results_ready", map[string]interface{}{
		"count":        len(results),
		"keyword_only": state.KeywordOnly,
	})
	return next()
}
