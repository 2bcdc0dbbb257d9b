package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/contosowiki/sage/internal/types"
)

func TestCombinedScore(t *testing.T) {
	r := &types.RetrievalResult{
		ScoreVector: 1.0, ScoreKeyword: 1.0, Authority: 1.0, Freshness: 1.0, ScoreAliasBoost: 0.05,
	}
	// 0.50+0.20+0.15+0.10 for the unit factors, plus the 0.05 weight times the 0.05 boost.
	assert.InDelta(t, 0.9525, combinedScore(r), 0.001)
}

func TestFreshnessClampsAndHandlesBadInput(t *testing.T) {
	assert.Equal(t, 0.2, freshness("not-a-date"))
	recent := time.Now().Format(time.RFC3339)
	assert.InDelta(t, 1.0, freshness(recent), 0.01)
	old := time.Now().AddDate(0, 0, -365).Format(time.RFC3339)
	assert.Equal(t, 0.2, freshness(old))
}

func TestJaccard(t *testing.T) {
	a := []string{"one two three", "two three four"}
	b := []string{"one two three", "five six seven"}
	assert.InDelta(t, 0.333, jaccard(a, b), 0.01)
	assert.Equal(t, 0.0, jaccard(nil, b))
}

func TestDedupCapsPerDocumentAndDropsNearDuplicates(t *testing.T) {
	e := &Engine{}
	e.cfg = testConfig()

	list := []*types.RetrievalResult{
		{ChunkID: "c1", DocumentID: "d1", TextExcerpt: "alpha bravo charlie delta echo", CombinedScore: 0.9},
		{ChunkID: "c2", DocumentID: "d1", TextExcerpt: "alpha bravo charlie delta echo", CombinedScore: 0.8},
		{ChunkID: "c3", DocumentID: "d1", TextExcerpt: "totally unrelated golf hotel india", CombinedScore: 0.7},
		{ChunkID: "c4", DocumentID: "d2", TextExcerpt: "another document juliet kilo lima", CombinedScore: 0.6},
	}
	out := e.dedup(list)
	// c2 is a near-duplicate of c1 and dropped; d1 caps at 2 so c3 is kept
	// (2nd distinct slot), c4 is a different document.
	var ids []string
	for _, r := range out {
		ids = append(ids, r.ChunkID)
	}
	assert.Contains(t, ids, "c1")
	assert.Contains(t, ids, "c4")
	assert.NotContains(t, ids, "c2")
}

func TestBuildQuerySetUsesPrecomputedExpansionsAndCapsAtEight(t *testing.T) {
	e := &Engine{cfg: testConfig()}
	intent := &types.IntentPlan{SearchFocus: []string{"focus one", "focus two"}}

	queries, expansions := e.buildQuerySet(context.Background(), "who manages stallions", intent,
		[]string{"sre", "Stallions", "t1", "t2", "t3", "t4", "t5", "t6"})

	assert.Equal(t, "who manages stallions", queries[0])
	assert.Contains(t, queries, "sre")
	assert.Contains(t, expansions, "sre")
	// "Stallions" is already in the query, case-insensitively.
	assert.NotContains(t, expansions, "Stallions")
	assert.LessOrEqual(t, len(queries), 8)
}

func TestApplyStagedPrecisionRelaxesUntilThreeResults(t *testing.T) {
	e := &Engine{}
	e.cfg = testConfig()

	list := []*types.RetrievalResult{
		{ChunkID: "c1", CombinedScore: 0.80, ScoreVector: 0.5},
		{ChunkID: "c2", CombinedScore: 0.55, ScoreVector: 0.5},
		{ChunkID: "c3", CombinedScore: 0.35, ScoreVector: 0.5},
		{ChunkID: "c4", CombinedScore: 0.10, ScoreVector: 0.05},
	}
	out := e.applyStagedPrecision(list)
	var ids []string
	for _, r := range out {
		ids = append(ids, r.ChunkID)
	}
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, ids)
}
