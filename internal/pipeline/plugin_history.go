package pipeline

import (
	"context"

	"github.com/contosowiki/sage/internal/config"
	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/store"
	"github.com/contosowiki/sage/internal/types"
)

// HistoryPlugin loads the active Conversation and its recent Messages. It
// runs concurrently with the intent stage (see types.Modes).
type HistoryPlugin struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
	cfg           *config.Config
}

func NewHistoryPlugin(conversations *store.ConversationStore, messages *store.MessageStore, cfg *config.Config) *HistoryPlugin {
	return &HistoryPlugin{conversations: conversations, messages: messages, cfg: cfg}
}

func (p *HistoryPlugin) ActivationEvents() []types.EventType {
	return []types.EventType{types.LoadHistory}
}

func (p *HistoryPlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	// Signal HistoryReady on every exit path (success or failure) so the
	// concurrently-running AnalyzeIntent goroutine never blocks forever
	// waiting on fields this stage failed to populate.
	if state.HistoryReady != nil {
		defer close(state.HistoryReady)
	}

	conv, err := p.conversations.Get(ctx, state.ConversationID)
	if err != nil {
		pipelineError(ctx, "history", "load_conversation_failed", map[string]interface{}{"conversation_id": state.ConversationID, "err": err})
		return event.WithError(sageerrors.Wrap(sageerrors.InternalError, "failed to load conversation", err))
	}
	state.Conversation = conv

	recentCount := p.cfg.Conversation.KeepExchanges*2 + 4
	msgs, err := p.messages.Recent(ctx, state.ConversationID, recentCount)
	if err != nil {
		pipelineError(ctx, "history", "load_messages_failed", map[string]interface{}{"conversation_id": state.ConversationID, "err": err})
		return event.WithError(sageerrors.Wrap(sageerrors.InternalError, "failed to load message history", err))
	}
	history := make([]*types.Message, len(msgs))
	for i := range msgs {
		history[i] = &msgs[i]
	}
	state.History = history

	pipelineInfo(ctx, "history", "loaded", map[string]interface{}{"conversation_id": state.ConversationID, "messages": len(history)})
	return next()
}
