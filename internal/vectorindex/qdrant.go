// Package vectorindex implements the Vector Index component:
// upsert/search/scroll over (id, vector, payload) tuples, backed by Qdrant.
package vectorindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Point mirrors the Chunk-derived payload stored alongside each vector.
type Point struct {
	ID              string
	Vector          []float32
	DocumentID      string
	ChunkID         string
	SourceURL       string
	SourceKind      string
	Title           string
	Authority       float64
	LastModifiedRFC string
	AliasTags       []string
	Text            string
}

// ScoredPoint is one k-NN search hit.
type ScoredPoint struct {
	Point
	Score float64
}

// Filter narrows a search/scroll to points matching document or alias tags.
type Filter struct {
	DocumentIDs []string
	AliasTags   []string
}

// Index is the Vector Index contract.
type Index interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]ScoredPoint, error)
	Scroll(ctx context.Context, filter *Filter, cursor string, limit int) (points []Point, nextCursor string, err error)
}

// PointID derives a deterministic id from (document_id, ordinal) so
// re-embedding is idempotent by id.
func PointID(documentID string, ordinal int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", documentID, ordinal)))
	return hex.EncodeToString(h[:16])
}

// QdrantIndex is the concrete Qdrant-backed implementation.
type QdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	dimensions     uint64
}

// NewQdrantIndex connects to Qdrant and ensures the collection exists for
// the configured embedding dimension.
func NewQdrantIndex(ctx context.Context, addr, collectionName string, dimensions int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: addr, Port: 6334})
	if err != nil {
		return nil, err
	}
	idx := &QdrantIndex{client: client, collectionName: collectionName, dimensions: uint64(dimensions)}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := idx.client.CollectionExists(ctx, idx.collectionName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     idx.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (idx *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id":   p.DocumentID,
				"chunk_id":      p.ChunkID,
				"source_url":    p.SourceURL,
				"source_kind":   p.SourceKind,
				"title":         p.Title,
				"authority":     p.Authority,
				"last_modified": p.LastModifiedRFC,
				"alias_tags":    p.AliasTags,
				"text":          p.Text,
			}),
		}
	}
	wait := true
	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collectionName,
		Points:         qpoints,
		Wait:           &wait,
	})
	return err
}

func (idx *QdrantIndex) Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]ScoredPoint, error) {
	req := &qdrant.QueryPoints{
		CollectionName: idx.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          ptrUint64(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f := buildFilter(filter); f != nil {
		req.Filter = f
	}
	resp, err := idx.client.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(resp))
	for _, r := range resp {
		out = append(out, ScoredPoint{Point: pointFromPayload(r.Id, r.Payload), Score: float64(r.Score)})
	}
	return out, nil
}

func (idx *QdrantIndex) Scroll(ctx context.Context, filter *Filter, cursor string, limit int) ([]Point, string, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: idx.collectionName,
		Limit:          ptrUint32(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f := buildFilter(filter); f != nil {
		req.Filter = f
	}
	if cursor != "" {
		req.Offset = qdrant.NewID(cursor)
	}
	resp, err := idx.client.Scroll(ctx, req)
	if err != nil {
		return nil, "", err
	}
	points := make([]Point, 0, len(resp))
	var next string
	for _, r := range resp {
		points = append(points, pointFromPayload(r.Id, r.Payload))
		if id := r.GetId(); id != nil {
			next = id.GetUuid()
			if next == "" {
				next = fmt.Sprintf("%d", id.GetNum())
			}
		}
	}
	return points, next, nil
}

func buildFilter(filter *Filter) *qdrant.Filter {
	if filter == nil || (len(filter.DocumentIDs) == 0 && len(filter.AliasTags) == 0) {
		return nil
	}
	var must []*qdrant.Condition
	if len(filter.DocumentIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("document_id", filter.DocumentIDs...))
	}
	if len(filter.AliasTags) > 0 {
		must = append(must, qdrant.NewMatchKeywords("alias_tags", filter.AliasTags...))
	}
	return &qdrant.Filter{Must: must}
}

func pointFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value) Point {
	get := func(k string) string {
		if v, ok := payload[k]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	var tags []string
	if v, ok := payload["alias_tags"]; ok {
		for _, item := range v.GetListValue().GetValues() {
			tags = append(tags, item.GetStringValue())
		}
	}
	authority := 0.0
	if v, ok := payload["authority"]; ok {
		authority = v.GetDoubleValue()
	}
	return Point{
		ID:              idString(id),
		DocumentID:      get("document_id"),
		ChunkID:         get("chunk_id"),
		SourceURL:       get("source_url"),
		SourceKind:      get("source_kind"),
		Title:           get("title"),
		Authority:       authority,
		LastModifiedRFC: get("last_modified"),
		AliasTags:       tags,
		Text:            get("text"),
	}
}

func idString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func ptrUint64(v uint64) *uint64 { return &v }
func ptrUint32(v uint32) *uint32 { return &v }
