package store

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/contosowiki/sage/internal/types"
)

// MessageStore is the append-only Message log for a Conversation.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore { return &MessageStore{db: db} }

// Append writes one message. Ordering within a conversation is strictly
// monotonic in created_at, ties broken by id. Callers must set CreatedAt
// themselves (never defaulted here) so user and assistant turns for the
// same request_id sort deterministically.
func (s *MessageStore) Append(ctx context.Context, msg types.Message) error {
	sourcesJSON, _ := json.Marshal(msg.Sources)
	stepsJSON, _ := json.Marshal(msg.ThinkingSteps)
	row := MessageRow{
		ID:                msg.ID,
		ConversationID:    msg.ConversationID,
		Role:              string(msg.Role),
		Content:           msg.Content,
		CreatedAt:         msg.CreatedAt,
		SourcesJSON:       string(sourcesJSON),
		Confidence:        msg.Confidence,
		ThinkingStepsJSON: string(stepsJSON),
		PromptTokens:      msg.PromptTokens,
		CompletionTokens:  msg.CompletionTokens,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Recent returns the most recent n messages for a conversation, in
// chronological order, sorted by created_at then id.
func (s *MessageStore) Recent(ctx context.Context, conversationID string, n int) ([]types.Message, error) {
	var rows []MessageRow
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Message, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = toMessage(rows[i])
	}
	return out, nil
}

func toMessage(row MessageRow) types.Message {
	var sources []types.SourceRef
	_ = json.Unmarshal([]byte(row.SourcesJSON), &sources)
	var steps []string
	_ = json.Unmarshal([]byte(row.ThinkingStepsJSON), &steps)
	return types.Message{
		ID:               row.ID,
		ConversationID:   row.ConversationID,
		Role:             types.Role(row.Role),
		Content:          row.Content,
		CreatedAt:        row.CreatedAt,
		Sources:          sources,
		Confidence:       row.Confidence,
		ThinkingSteps:    steps,
		PromptTokens:     row.PromptTokens,
		CompletionTokens: row.CompletionTokens,
	}
}
