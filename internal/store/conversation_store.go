package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contosowiki/sage/internal/types"
)

// ConversationStore is the Conversation Store component.
type ConversationStore struct {
	db *gorm.DB
}

func NewConversationStore(db *gorm.DB) *ConversationStore { return &ConversationStore{db: db} }

// GetOrCreateActive returns the user's active conversation, creating one if
// none exists. At most one row per user may have Active=true at any time.
func (s *ConversationStore) GetOrCreateActive(ctx context.Context, userID string) (*types.Conversation, error) {
	var conv *types.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ConversationRow
		err := tx.Where("user_id = ? AND active = ?", userID, true).First(&row).Error
		if err == nil {
			conv = toConversation(row)
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		now := time.Now()
		row = ConversationRow{
			ID:           uuid.NewString(),
			UserID:       userID,
			Mode:         "company",
			CreatedAt:    now,
			LastActivity: now,
			Active:       true,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		conv = toConversation(row)
		return nil
	})
	return conv, err
}

// Get fetches a conversation by id.
func (s *ConversationStore) Get(ctx context.Context, id string) (*types.Conversation, error) {
	var row ConversationRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return toConversation(row), nil
}

// Close flips active=false; conversations are never deleted this way.
func (s *ConversationStore) Close(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&ConversationRow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"active": false}).Error
}

// Touch bumps last_activity, used on every accepted request.
func (s *ConversationStore) Touch(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&ConversationRow{}).
		Where("id = ?", id).
		Update("last_activity", time.Now()).Error
}

// UpdateSummary persists the refreshed context_summary used by conversation
// truncation.
func (s *ConversationStore) UpdateSummary(ctx context.Context, id, summary string) error {
	return s.db.WithContext(ctx).Model(&ConversationRow{}).
		Where("id = ?", id).
		Update("summary", summary).Error
}

// CloseIdle flips active=false for conversations whose last_activity is
// older than idleTimeout.
func (s *ConversationStore) CloseIdle(ctx context.Context, idleTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-idleTimeout)
	res := s.db.WithContext(ctx).Model(&ConversationRow{}).
		Where("active = ? AND last_activity < ?", true, cutoff).
		Update("active", false)
	return res.RowsAffected, res.Error
}

func toConversation(row ConversationRow) *types.Conversation {
	return &types.Conversation{
		ID:           row.ID,
		UserID:       row.UserID,
		Mode:         row.Mode,
		CreatedAt:    row.CreatedAt,
		LastActivity: row.LastActivity,
		Active:       row.Active,
		Summary:      row.Summary,
	}
}
