package alias

import (
	"context"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/store"
	"github.com/contosowiki/sage/internal/types"
)

// Registry is the Alias Registry component. Readers are
// lock-free (plain SELECTs); writers serialize through a single
// maintenance worker, so Registry never back-references the
// Orchestrator.
type Registry struct {
	store *store.AliasStore
	cfg   *config.Config
}

func NewRegistry(s *store.AliasStore, cfg *config.Config) *Registry {
	return &Registry{store: s, cfg: cfg}
}

// Reinforce applies one discovery pass's candidates: existing edges get
// confidence bumped and reinforcements incremented; new edges are created
// at their base confidence.
func (r *Registry) Reinforce(ctx context.Context, candidates []Candidate) (created, reinforced int, err error) {
	now := time.Now()
	merged := mergeCandidates(candidates)

	for key, c := range merged {
		existing, getErr := r.store.Get(ctx, key[0], key[1])
		if getErr == nil {
			existing.Confidence = min1(existing.Confidence + r.cfg.Alias.ReinforceStep)
			existing.Reinforcements++
			existing.LastSeen = now
			existing.ProvenanceDocs = appendUnique(existing.ProvenanceDocs, c.docs...)
			if uerr := r.store.Upsert(ctx, *existing); uerr != nil {
				return created, reinforced, uerr
			}
			reinforced++
			continue
		}
		if getErr != gorm.ErrRecordNotFound {
			return created, reinforced, getErr
		}
		edge := types.AliasEdge{
			TermA: key[0], TermB: key[1], Kind: c.kind, Confidence: c.confidence,
			FirstSeen: now, LastSeen: now, Reinforcements: 1, ProvenanceDocs: c.docs,
		}
		if uerr := r.store.Upsert(ctx, edge); uerr != nil {
			return created, reinforced, uerr
		}
		created++
	}
	logger.Infof(ctx, "alias registry: discovery pass created=%d reinforced=%d", created, reinforced)
	return created, reinforced, nil
}

type mergedCandidate struct {
	kind       types.AliasEdgeKind
	confidence float64
	docs       []string
}

func mergeCandidates(candidates []Candidate) map[[2]string]mergedCandidate {
	out := make(map[[2]string]mergedCandidate)
	for _, c := range candidates {
		if c.TermA == c.TermB && c.Kind != types.AliasHeaderContent {
			continue
		}
		a, b := types.CanonicalPair(c.TermA, c.TermB)
		key := [2]string{a, b}
		existing, ok := out[key]
		if !ok || c.Confidence > existing.confidence {
			docs := existing.docs
			if c.DocumentID != "" {
				docs = appendUnique(docs, c.DocumentID)
			}
			out[key] = mergedCandidate{kind: c.Kind, confidence: c.Confidence, docs: docs}
		} else if c.DocumentID != "" {
			existing.docs = appendUnique(existing.docs, c.DocumentID)
			out[key] = existing
		}
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	for _, v := range items {
		if v != "" && !set[v] {
			list = append(list, v)
			set[v] = true
		}
	}
	return list
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// RecordSession writes the learning_sessions audit row for one discovery
// or conversational pass. Best-effort: a failed audit
// write never fails the pass that produced it.
func (r *Registry) RecordSession(ctx context.Context, startedAt time.Time, docsSeen, created, reinforced int, notes string) {
	if err := r.store.RecordLearningSession(ctx, startedAt, time.Now(), docsSeen, created, reinforced, notes); err != nil {
		logger.Warnf(ctx, "alias registry: failed to record learning session: %v", err)
	}
}

// Decay applies the daily decay task: edges not reinforced within the
// grace period are multiplied by DecayFactor, and anything below
// SoftDeleteFloor is soft-deleted.
func (r *Registry) Decay(ctx context.Context) error {
	return r.store.ApplyDecay(ctx, r.cfg.Alias.DecayFactor, r.cfg.Alias.DecayIntervalDays, r.cfg.Alias.SoftDeleteFloor)
}

// Expansion is one query-expansion candidate.
type Expansion struct {
	Term       string
	Confidence float64
}

// Expand returns up to alias.expansion_cap expansions for the noun phrases
// in a query, excluding anything below alias.min_confidence and anything
// already present in the query case-insensitively.
func (r *Registry) Expand(ctx context.Context, queryTerms []string) ([]Expansion, error) {
	normalized := make([]string, 0, len(queryTerms))
	present := make(map[string]bool)
	for _, t := range queryTerms {
		n := Normalize(t)
		normalized = append(normalized, n)
		present[n] = true
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	edges, err := r.store.ActiveForExpansion(ctx, normalized, r.cfg.Alias.MinConfidence)
	if err != nil {
		return nil, err
	}

	var out []Expansion
	seen := map[string]bool{}
	for _, e := range edges {
		var candidate string
		switch {
		case present[e.TermA] && !present[e.TermB]:
			candidate = e.TermB
		case present[e.TermB] && !present[e.TermA]:
			candidate = e.TermA
		default:
			continue
		}
		if seen[candidate] || strings.TrimSpace(candidate) == "" {
			continue
		}
		seen[candidate] = true
		out = append(out, Expansion{Term: candidate, Confidence: e.Confidence})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > r.cfg.Alias.ExpansionCap {
		out = out[:r.cfg.Alias.ExpansionCap]
	}
	return out, nil
}
