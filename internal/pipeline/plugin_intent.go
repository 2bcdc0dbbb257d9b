package pipeline

import (
	"context"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/conversation"
	"github.com/contosowiki/sage/internal/intent"
	"github.com/contosowiki/sage/internal/types"
	"github.com/contosowiki/sage/internal/utils"
)

// IntentPlugin runs the Intent Analyzer (LLM-A) to classify the query and
// plan retrieval before any expensive work runs.
type IntentPlugin struct {
	analyzer *intent.Analyzer
	cfg      *config.Config
}

func NewIntentPlugin(analyzer *intent.Analyzer, cfg *config.Config) *IntentPlugin {
	return &IntentPlugin{analyzer: analyzer, cfg: cfg}
}

func (p *IntentPlugin) ActivationEvents() []types.EventType {
	return []types.EventType{types.AnalyzeIntent}
}

func (p *IntentPlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	emitStep(state, types.PhaseAnalyzing, "Classifying the question and planning retrieval")

	// Block only on the one field this stage needs (the conversation
	// history LoadHistory populates), not on the whole stage being
	// ordered ahead of this one. The two run as concurrent goroutines
	// spawned together by the Orchestrator.
	if state.HistoryReady != nil {
		select {
		case <-state.HistoryReady:
		case <-ctx.Done():
			return event.WithError(ctx.Err())
		}
	}

	var persisted string
	if state.Conversation != nil {
		persisted = state.Conversation.Summary
	}
	summary := conversation.BuildSummary(state.History, persisted, p.cfg)

	// LLM-A gets its own deadline; on timeout Analyze surfaces the error
	// internally and hands back the default plan.
	intentCtx, cancel := context.WithTimeout(ctx, p.cfg.IntentTimeout())
	defer cancel()
	plan, fellBack := p.analyzer.Analyze(intentCtx, state.Query, summary)
	state.Intent = plan
	state.IntentFallback = fellBack

	if fellBack {
		pipelineWarn(ctx, "intent", "fallback_plan_used", map[string]interface{}{"request_id": state.RequestID})
	} else {
		pipelineInfo(ctx, "intent", "plan_ready", map[string]interface{}{
			"intent_type":     plan.IntentType,
			"needs_retrieval": plan.NeedsRetrieval,
			"search_focus":    utils.SanitizeForLogArray(plan.SearchFocus),
			"response_style":  utils.ToJSON(plan.ResponseStyle),
		})
	}
	return next()
}
