package alias

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/store"
	"github.com/contosowiki/sage/internal/types"
)

// Task type names for the asynq-scheduled maintenance jobs.
const (
	TaskDiscoveryPass = "alias:discovery_pass"
	TaskDecayPass     = "alias:decay_pass"
)

// DiscoveryPayload names the documents a discovery pass should scan. An
// empty DocumentIDs means "scan the whole corpus".
type DiscoveryPayload struct {
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// NewDiscoveryTask builds the asynq.Task enqueued after ingest.
func NewDiscoveryTask(documentIDs ...string) (*asynq.Task, error) {
	payload, err := json.Marshal(DiscoveryPayload{DocumentIDs: documentIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDiscoveryPass, payload), nil
}

// NewDecayTask builds the daily decay task.
func NewDecayTask() *asynq.Task {
	return asynq.NewTask(TaskDecayPass, nil)
}

// DiscoveryHandler runs one discovery pass and feeds results into the
// Registry's Reinforce path: construct with the stores it needs, register
// under its task type in cmd/server's asynq.ServeMux.
type DiscoveryHandler struct {
	registry *Registry
	docs     *store.DocumentStore
}

func NewDiscoveryHandler(registry *Registry, docs *store.DocumentStore) *DiscoveryHandler {
	return &DiscoveryHandler{registry: registry, docs: docs}
}

func (h *DiscoveryHandler) Handle(ctx context.Context, t *asynq.Task) error {
	startedAt := time.Now()
	var payload DiscoveryPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("alias discovery: bad payload: %w", err)
		}
	}

	docs, err := h.targetDocuments(ctx, payload.DocumentIDs)
	if err != nil {
		return fmt.Errorf("alias discovery: load documents: %w", err)
	}

	var candidates []Candidate
	var windows [][]string
	for _, doc := range docs {
		candidates = append(candidates, DetectParenthetical(doc.ID, doc.Text)...)
		candidates = append(candidates, DetectDash(doc.ID, doc.Text)...)
		candidates = append(candidates, DetectEmailTeam(doc.ID, doc.Text, teamNameCandidates(doc))...)
		if len(doc.Tags) > 0 {
			candidates = append(candidates, DetectHeaderContent(doc.ID, doc.Tags, doc.Text)...)
		}
		windows = append(windows, tokenWindows(doc.Text, 12)...)
	}
	candidates = append(candidates, DetectCooccurrence("", windows, 0.20)...)

	created, reinforced, err := h.registry.Reinforce(ctx, candidates)
	if err != nil {
		return fmt.Errorf("alias discovery: reinforce: %w", err)
	}
	h.registry.RecordSession(ctx, startedAt, len(docs), created, reinforced, "discovery pass")
	logger.Infof(ctx, "alias discovery pass complete: docs=%d candidates=%d created=%d reinforced=%d",
		len(docs), len(candidates), created, reinforced)
	return nil
}

// teamNameCandidates gathers the names the email-team detector should try
// to pair against a "team@..." address in the same document: the page
// title and its tags, which is where team names live on wiki team pages.
func teamNameCandidates(doc types.Document) []string {
	out := make([]string, 0, len(doc.Tags)+1)
	if doc.Title != "" {
		out = append(out, doc.Title)
	}
	out = append(out, doc.Tags...)
	return out
}

func (h *DiscoveryHandler) targetDocuments(ctx context.Context, ids []string) ([]types.Document, error) {
	if len(ids) == 0 {
		return h.docs.AllDocuments(ctx)
	}
	out := make([]types.Document, 0, len(ids))
	for _, id := range ids {
		d, err := h.docs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// tokenWindows splits text into overlapping-free fixed-size token windows
// for PMI co-occurrence scoring.
func tokenWindows(text string, size int) [][]string {
	tokens := splitWords(text)
	if len(tokens) == 0 {
		return nil
	}
	var out [][]string
	for i := 0; i < len(tokens); i += size {
		end := i + size
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, tokens[i:end])
	}
	return out
}

func splitWords(text string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

// DecayHandler runs the daily decay pass.
type DecayHandler struct {
	registry *Registry
}

func NewDecayHandler(registry *Registry) *DecayHandler {
	return &DecayHandler{registry: registry}
}

func (h *DecayHandler) Handle(ctx context.Context, t *asynq.Task) error {
	if err := h.registry.Decay(ctx); err != nil {
		return fmt.Errorf("alias decay: %w", err)
	}
	logger.Infof(ctx, "alias decay pass complete")
	return nil
}
