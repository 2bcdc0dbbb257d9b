// Package store persists the relational entities of the data model via
// gorm.
package store

import (
	"time"

	"gorm.io/gorm"
)

// DocumentRow is the gorm row for Document.
type DocumentRow struct {
	ID           string `gorm:"primaryKey"`
	SourceURL    string `gorm:"index"`
	SourceKind   string
	Title        string
	Text         string
	LastModified time.Time
	ContentHash  string `gorm:"index"`
	Tags         string // comma-joined; see tags.go helpers
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (DocumentRow) TableName() string { return "documents" }

// ChunkRow is the gorm row for Chunk. The vector is not stored here (it
// lives exclusively in the Vector Index); only metadata needed to
// reconstruct retrieval context is kept relationally.
type ChunkRow struct {
	ID           string `gorm:"primaryKey"`
	DocumentID   string `gorm:"index"`
	Ordinal      int
	Text         string
	SectionPath  string
	TokenCount   int
	SemanticTags string
	CreatedAt    time.Time
}

func (ChunkRow) TableName() string { return "chunks" }

// AliasEdgeRow is the gorm row for AliasEdge, stored
// canonically by the ordered (term_a, term_b) pair.
type AliasEdgeRow struct {
	TermA          string `gorm:"primaryKey"`
	TermB          string `gorm:"primaryKey"`
	Kind           string
	Confidence     float64
	FirstSeen      time.Time
	LastSeen       time.Time `gorm:"index"`
	Reinforcements int
	ProvenanceDocs string // comma-joined doc ids
	SoftDeleted    bool   `gorm:"index"`
}

func (AliasEdgeRow) TableName() string { return "alias_edges" }

// ConversationRow is the gorm row for Conversation. At most one row per
// user_id may have Active=true, enforced at the repository layer under a
// transaction and backstopped by a partial unique index.
type ConversationRow struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"index"`
	Mode         string
	CreatedAt    time.Time
	LastActivity time.Time
	Active       bool `gorm:"index"`
	Summary      string
}

func (ConversationRow) TableName() string { return "conversations" }

// MessageRow is the gorm row for Message, append-only.
type MessageRow struct {
	ID               string `gorm:"primaryKey"`
	ConversationID   string `gorm:"index"`
	Role             string
	Content          string
	CreatedAt        time.Time `gorm:"index"`
	SourcesJSON      string
	Confidence       *float64
	ThinkingStepsJSON string
	PromptTokens     int
	CompletionTokens int
}

func (MessageRow) TableName() string { return "messages" }

// LearningSessionRow tracks one alias discovery or conversational pass
// for audit.
type LearningSessionRow struct {
	ID             string `gorm:"primaryKey"`
	StartedAt      time.Time
	FinishedAt     *time.Time
	DocumentsSeen  int
	EdgesDiscovered int
	EdgesReinforced int
	Notes          string
}

func (LearningSessionRow) TableName() string { return "learning_sessions" }

// AutoMigrate creates/updates all tables. In production this is superseded
// by versioned golang-migrate migrations (see migrate.go); AutoMigrate
// remains useful for tests against an ephemeral database.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&DocumentRow{},
		&ChunkRow{},
		&AliasEdgeRow{},
		&ConversationRow{},
		&MessageRow{},
		&LearningSessionRow{},
	)
}
