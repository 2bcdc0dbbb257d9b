package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contosowiki/sage/internal/types"
)

// AliasStore persists AliasEdges. Discovery, reinforcement and decay
// semantics live in internal/alias; this is the relational CRUD beneath
// them.
type AliasStore struct {
	db *gorm.DB
}

func NewAliasStore(db *gorm.DB) *AliasStore { return &AliasStore{db: db} }

// Get fetches one edge by its canonical pair.
func (s *AliasStore) Get(ctx context.Context, termA, termB string) (*types.AliasEdge, error) {
	a, b := types.CanonicalPair(termA, termB)
	var row AliasEdgeRow
	if err := s.db.WithContext(ctx).First(&row, "term_a = ? AND term_b = ?", a, b).Error; err != nil {
		return nil, err
	}
	return toAliasEdge(row), nil
}

// Upsert inserts a new edge or, if one already exists for the pair,
// overwrites it wholesale. Callers (internal/alias) compute the merged
// confidence/reinforcement before calling this; the store does not merge.
func (s *AliasStore) Upsert(ctx context.Context, edge types.AliasEdge) error {
	a, b := types.CanonicalPair(edge.TermA, edge.TermB)
	row := AliasEdgeRow{
		TermA:          a,
		TermB:          b,
		Kind:           string(edge.Kind),
		Confidence:     edge.Confidence,
		FirstSeen:      edge.FirstSeen,
		LastSeen:       edge.LastSeen,
		Reinforcements: edge.Reinforcements,
		ProvenanceDocs: joinTags(edge.ProvenanceDocs),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "term_a"}, {Name: "term_b"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// ActiveForExpansion returns all non-soft-deleted edges at or above
// min confidence touching any of the given terms, used by query expansion.
func (s *AliasStore) ActiveForExpansion(ctx context.Context, terms []string, minConfidence float64) ([]types.AliasEdge, error) {
	var rows []AliasEdgeRow
	if err := s.db.WithContext(ctx).
		Where("soft_deleted = ? AND confidence >= ? AND (term_a IN ? OR term_b IN ?)",
			false, minConfidence, terms, terms).
		Order("confidence DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.AliasEdge, len(rows))
	for i, r := range rows {
		out[i] = *toAliasEdge(r)
	}
	return out, nil
}

// All returns every non-soft-deleted edge, used by the daily decay task.
func (s *AliasStore) All(ctx context.Context) ([]types.AliasEdge, error) {
	var rows []AliasEdgeRow
	if err := s.db.WithContext(ctx).Where("soft_deleted = ?", false).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.AliasEdge, len(rows))
	for i, r := range rows {
		out[i] = *toAliasEdge(r)
	}
	return out, nil
}

// ApplyDecay multiplies confidence by factor for every edge not reinforced
// (last_seen) within graceDays, soft-deletes edges that fall below
// softDeleteFloor.
func (s *AliasStore) ApplyDecay(ctx context.Context, factor float64, graceDays int, softDeleteFloor float64) error {
	cutoff := time.Now().AddDate(0, 0, -graceDays)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&AliasEdgeRow{}).
			Where("last_seen < ? AND soft_deleted = ?", cutoff, false).
			Update("confidence", gorm.Expr("confidence * ?", factor)).Error; err != nil {
			return err
		}
		return tx.Model(&AliasEdgeRow{}).
			Where("confidence < ? AND soft_deleted = ?", softDeleteFloor, false).
			Update("soft_deleted", true).Error
	})
}

// RecordLearningSession appends one audit row covering a discovery or
// conversational pass.
func (s *AliasStore) RecordLearningSession(ctx context.Context, startedAt, finishedAt time.Time, docsSeen, discovered, reinforced int, notes string) error {
	row := LearningSessionRow{
		ID:              uuid.NewString(),
		StartedAt:       startedAt,
		FinishedAt:      &finishedAt,
		DocumentsSeen:   docsSeen,
		EdgesDiscovered: discovered,
		EdgesReinforced: reinforced,
		Notes:           notes,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func toAliasEdge(row AliasEdgeRow) *types.AliasEdge {
	return &types.AliasEdge{
		TermA:          row.TermA,
		TermB:          row.TermB,
		Kind:           types.AliasEdgeKind(row.Kind),
		Confidence:     row.Confidence,
		FirstSeen:      row.FirstSeen,
		LastSeen:       row.LastSeen,
		Reinforcements: row.Reinforcements,
		ProvenanceDocs: splitTags(row.ProvenanceDocs),
	}
}
