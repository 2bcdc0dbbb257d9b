package alias

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/hibiken/asynq"

	"github.com/contosowiki/sage/internal/logger"
)

// TaskConversationalPass feeds alias pairs observed in user/assistant
// turns into the registry. Enqueued rather
// than written inline so registry writes stay serialized through the
// maintenance worker.
const TaskConversationalPass = "alias:conversational_pass"

// ConversationalPayload carries the term pairs one turn surfaced.
type ConversationalPayload struct {
	Pairs [][2]string `json:"pairs"`
}

var akaRe = regexp.MustCompile(`(?i)([A-Za-z][\w/&-]*(?:\s+[A-Za-z][\w/&-]*){0,3})(?:,? (?:also known as|a\.?k\.?a\.?|aka)) ([A-Za-z][\w/&-]*(?:\s+[A-Za-z][\w/&-]*){0,3})`)

// ConversationalPairs extracts candidate alias pairs from one turn's text:
// the same "X (Y)" shape the document detectors use, plus "X, also known
// as Y" phrasing that shows up in dialog but rarely in wiki prose.
func ConversationalPairs(text string) [][2]string {
	var out [][2]string
	for _, m := range parentheticalRe.FindAllStringSubmatch(text, -1) {
		out = append(out, [2]string{m[1], m[2]})
	}
	for _, m := range akaRe.FindAllStringSubmatch(text, -1) {
		out = append(out, [2]string{m[1], m[2]})
	}
	return out
}

// Learner is the request-side half of conversational alias discovery: it
// scans a completed turn and enqueues anything that looks like an alias
// pair. A nil Learner (or one with no queue) is a no-op, so the pipeline
// never depends on the queue being up.
type Learner struct {
	queue *asynq.Client
}

func NewLearner(queue *asynq.Client) *Learner {
	return &Learner{queue: queue}
}

// LearnFromTurn extracts pairs from the given texts (typically the user
// query and the final assistant response) and enqueues one conversational
// pass covering all of them. Failures are logged, never surfaced: alias
// learning is best-effort background enrichment.
func (l *Learner) LearnFromTurn(ctx context.Context, texts ...string) {
	if l == nil || l.queue == nil {
		return
	}
	var pairs [][2]string
	for _, t := range texts {
		pairs = append(pairs, ConversationalPairs(t)...)
	}
	if len(pairs) == 0 {
		return
	}
	payload, err := json.Marshal(ConversationalPayload{Pairs: pairs})
	if err != nil {
		return
	}
	if _, err := l.queue.EnqueueContext(ctx, asynq.NewTask(TaskConversationalPass, payload)); err != nil {
		logger.Warnf(ctx, "alias learner: failed to enqueue conversational pass: %v", err)
	}
}

// ConversationalHandler applies an enqueued conversational pass through
// the registry's reinforce path, the same way the document detectors do.
type ConversationalHandler struct {
	registry *Registry
}

func NewConversationalHandler(registry *Registry) *ConversationalHandler {
	return &ConversationalHandler{registry: registry}
}

func (h *ConversationalHandler) Handle(ctx context.Context, t *asynq.Task) error {
	startedAt := time.Now()
	var payload ConversationalPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("alias conversational: bad payload: %w", err)
	}
	var candidates []Candidate
	for _, p := range payload.Pairs {
		if c := DetectConversational(p[0], p[1]); c != nil {
			candidates = append(candidates, *c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	created, reinforced, err := h.registry.Reinforce(ctx, candidates)
	if err != nil {
		return fmt.Errorf("alias conversational: reinforce: %w", err)
	}
	h.registry.RecordSession(ctx, startedAt, 0, created, reinforced, "conversational pass")
	logger.Infof(ctx, "alias conversational pass complete: pairs=%d created=%d reinforced=%d",
		len(payload.Pairs), created, reinforced)
	return nil
}
