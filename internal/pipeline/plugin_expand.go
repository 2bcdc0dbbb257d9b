package pipeline

import (
	"context"
	"strings"

	"github.com/contosowiki/sage/internal/alias"
	"github.com/contosowiki/sage/internal/types"
)

// ExpandPlugin pre-computes the alias-expansion terms for the query so the
// retrieve step searches exactly these terms, and names them in a step
// frame when there are any.
type ExpandPlugin struct {
	aliases *alias.Registry
}

func NewExpandPlugin(aliases *alias.Registry) *ExpandPlugin {
	return &ExpandPlugin{aliases: aliases}
}

func (p *ExpandPlugin) ActivationEvents() []types.EventType {
	return []types.EventType{types.ExpandQuery}
}

func (p *ExpandPlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	if p.aliases == nil {
		return next()
	}
	terms := append([]string{}, state.Intent.SearchFocus...)
	terms = append(terms, state.Query)
	expansions, err := p.aliases.Expand(ctx, terms)
	if err != nil {
		pipelineWarn(ctx, "expand", "alias_expand_failed", map[string]interface{}{"err": err})
		return next()
	}
	out := make([]string, len(expansions))
	for i, e := range expansions {
		out[i] = e.Term
	}
	state.AliasExpansions = out
	if len(out) > 0 {
		emitStep(state, types.PhaseRetrieving, "Expanding the search with related terms: "+strings.Join(out, ", "))
	}
	pipelineInfo(ctx, "expand", "aliases_expanded", map[string]interface{}{"count": len(out)})
	return next()
}
