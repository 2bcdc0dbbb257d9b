package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/contosowiki/sage/internal/alias"
	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/quality"
	"github.com/contosowiki/sage/internal/store"
	"github.com/contosowiki/sage/internal/types"
)

// PersistPlugin appends the assistant turn, refreshes the per-conversation
// summary, and computes the final post-generation confidence. The user
// turn is persisted earlier, by the
// Orchestrator itself the instant the request is accepted, so a
// failure in any stage before this one still leaves the user's query on
// record.
type PersistPlugin struct {
	messages      *store.MessageStore
	conversations *store.ConversationStore
	learner       *alias.Learner
	summaryEvery  int
}

func NewPersistPlugin(messages *store.MessageStore, conversations *store.ConversationStore, learner *alias.Learner, summaryRefreshExchanges int) *PersistPlugin {
	return &PersistPlugin{messages: messages, conversations: conversations, learner: learner, summaryEvery: summaryRefreshExchanges}
}

func (p *PersistPlugin) ActivationEvents() []types.EventType {
	return []types.EventType{types.Persist}
}

func (p *PersistPlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	state.PostConfidence = quality.PostGenerationConfidence(postGenerationFactors(state))
	// A retrieval round that came back empty at every precision floor means
	// the answer rests on conversation context alone; its confidence is
	// capped regardless of how fluent the response was.
	if state.Intent.NeedsRetrieval && len(state.RetrievalResults) == 0 && state.PostConfidence > 0.4 {
		state.PostConfidence = 0.4
	}

	now := time.Now()
	assistantMsgID := uuid.NewString()
	sources := make([]types.SourceRef, len(state.RetrievalResults))
	for i, r := range state.RetrievalResults {
		sources[i] = types.SourceRef{
			URL: r.URL, Title: r.Title, Excerpt: r.TextExcerpt,
			Authority: r.Authority, LastModified: r.LastModified, Score: r.CombinedScore,
		}
	}
	confidence := state.PostConfidence
	if err := p.messages.Append(ctx, types.Message{
		ID:               assistantMsgID,
		ConversationID:   state.ConversationID,
		Role:             types.RoleAssistant,
		Content:          state.ResponseText,
		CreatedAt:        now.Add(time.Millisecond),
		Sources:          sources,
		Confidence:       &confidence,
		PromptTokens:     state.PromptTokens,
		CompletionTokens: state.CompletionTokens,
	}); err != nil {
		pipelineError(ctx, "persist", "append_assistant_message_failed", map[string]interface{}{"err": err})
		return event.WithError(sageerrors.Wrap(sageerrors.InternalError, "failed to persist assistant message", err))
	}
	state.MessageID = assistantMsgID

	if err := p.conversations.Touch(ctx, state.ConversationID); err != nil {
		pipelineWarn(ctx, "persist", "touch_failed", map[string]interface{}{"err": err})
	}

	exchangeCount := len(state.History)/2 + 1
	if state.Intent.ContextSummary != "" && p.summaryEvery > 0 && exchangeCount%p.summaryEvery == 0 {
		if err := p.conversations.UpdateSummary(ctx, state.ConversationID, state.Intent.ContextSummary); err != nil {
			pipelineWarn(ctx, "persist", "summary_update_failed", map[string]interface{}{"err": err})
		}
	}

	p.learner.LearnFromTurn(ctx, state.Query, state.ResponseText)

	emitStep(state, types.PhaseDone, "Done")
	pipelineInfo(ctx, "persist", "completed", map[string]interface{}{"message_id": assistantMsgID, "confidence": state.PostConfidence})
	return next()
}
