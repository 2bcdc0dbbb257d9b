package pipeline

import (
	"context"

	"github.com/contosowiki/sage/internal/generator"
	"github.com/contosowiki/sage/internal/types"
)

// ContextPlugin assembles the Response Generator's system prompt from the
// Intent Analyzer's plan, the retrieved chunks (if any), and the detected
// conflicts.
type ContextPlugin struct{}

func NewContextPlugin() *ContextPlugin { return &ContextPlugin{} }

func (p *ContextPlugin) ActivationEvents() []types.EventType {
	return []types.EventType{types.BuildContext}
}

func (p *ContextPlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	conflicts := make([]types.Conflict, len(state.Conflicts))
	for i, c := range state.Conflicts {
		conflicts[i] = *c
	}
	state.SystemPrompt = generator.BuildSystemPrompt(generator.PromptInput{
		Intent:         state.Intent,
		ContextSummary: state.Intent.ContextSummary,
		Results:        state.RetrievalResults,
		Conflicts:      conflicts,
		AuthorsNote:    state.AuthorsNote,
	})
	state.UserContent = state.Query

	pipelineInfo(ctx, "context", "prompt_built", map[string]interface{}{"chars": len(state.SystemPrompt)})
	return next()
}
