package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contosowiki/sage/internal/types"
)

// DocumentStore is the Document Store component: canonical
// wiki pages with content, URL, authority, last-modified.
type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore { return &DocumentStore{db: db} }

// ChunkID derives a stable chunk id from (document_id, ordinal), so
// re-embedding an unchanged document is idempotent.
func ChunkID(documentID string, ordinal int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", documentID, ordinal)))
	return hex.EncodeToString(h[:16])
}

// Upsert writes the Document row on every call and, if the document is new
// or its content hash changed, replaces its Chunks atomically in the same
// transaction. Returns whether the
// document's content actually changed (used by the Ingest Pipeline to
// decide whether to re-embed).
func (s *DocumentStore) Upsert(ctx context.Context, doc types.Document, chunks []types.Chunk) (changed bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing DocumentRow
		found := tx.First(&existing, "id = ?", doc.ID).Error == nil
		changed = !found || existing.ContentHash != doc.ContentHash

		row := DocumentRow{
			ID:           doc.ID,
			SourceURL:    doc.SourceURL,
			SourceKind:   string(doc.SourceKind),
			Title:        doc.Title,
			Text:         doc.Text,
			LastModified: doc.LastModified,
			ContentHash:  doc.ContentHash,
			Tags:         joinTags(doc.Tags),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&row).Error; err != nil {
			return err
		}

		if !changed {
			return nil
		}

		if err := tx.Where("document_id = ?", doc.ID).Delete(&ChunkRow{}).Error; err != nil {
			return err
		}
		rows := make([]ChunkRow, len(chunks))
		for i, c := range chunks {
			rows[i] = ChunkRow{
				ID:           c.ID,
				DocumentID:   c.DocumentID,
				Ordinal:      c.Ordinal,
				Text:         c.Text,
				SectionPath:  joinTags(c.SectionPath),
				TokenCount:   c.TokenCount,
				SemanticTags: joinTags(c.SemanticTags),
			}
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return changed, err
}

// Get fetches a Document by id.
func (s *DocumentStore) Get(ctx context.Context, id string) (*types.Document, error) {
	var row DocumentRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return toDocument(row), nil
}

// Chunks returns all chunks owned by a document, ordered by Ordinal.
func (s *DocumentStore) Chunks(ctx context.Context, documentID string) ([]types.Chunk, error) {
	var rows []ChunkRow
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("ordinal ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Chunk, len(rows))
	for i, r := range rows {
		out[i] = types.Chunk{
			ID:           r.ID,
			DocumentID:   r.DocumentID,
			Ordinal:      r.Ordinal,
			Text:         r.Text,
			SectionPath:  splitTags(r.SectionPath),
			TokenCount:   r.TokenCount,
			SemanticTags: splitTags(r.SemanticTags),
		}
	}
	return out, nil
}

// AllDocuments returns every indexed document, used by Alias Discovery.
func (s *DocumentStore) AllDocuments(ctx context.Context) ([]types.Document, error) {
	var rows []DocumentRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Document, len(rows))
	for i, r := range rows {
		out[i] = *toDocument(r)
	}
	return out, nil
}

// Purge explicitly deletes a Document and its Chunks.
func (s *DocumentStore) Purge(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&ChunkRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&DocumentRow{}, "id = ?", id).Error
	})
}

func toDocument(row DocumentRow) *types.Document {
	return &types.Document{
		ID:           row.ID,
		SourceURL:    row.SourceURL,
		SourceKind:   types.SourceKind(row.SourceKind),
		Title:        row.Title,
		Text:         row.Text,
		LastModified: row.LastModified,
		ContentHash:  row.ContentHash,
		Tags:         splitTags(row.Tags),
	}
}
