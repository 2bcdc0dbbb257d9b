package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contosowiki/sage/internal/types"
)

func TestMergeCandidatesKeepsHighestConfidenceAndUnionsDocs(t *testing.T) {
	candidates := []Candidate{
		{TermA: "sso", TermB: "single sign-on", Kind: types.AliasParenthetical, Confidence: 0.70, DocumentID: "doc-1"},
		{TermA: "single sign-on", TermB: "sso", Kind: types.AliasCooccurrence, Confidence: 0.40, DocumentID: "doc-2"},
	}
	merged := mergeCandidates(candidates)
	assert.Len(t, merged, 1)

	a, b := types.CanonicalPair("sso", "single sign-on")
	m, ok := merged[[2]string{a, b}]
	assert.True(t, ok)
	assert.Equal(t, types.AliasParenthetical, m.kind)
	assert.Equal(t, 0.70, m.confidence)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, m.docs)
}

func TestMergeCandidatesDropsSelfPairsExceptHeaderContent(t *testing.T) {
	candidates := []Candidate{
		{TermA: "access platform", TermB: "access platform", Kind: types.AliasCooccurrence, Confidence: 0.5},
		{TermA: "access platform", TermB: "access platform", Kind: types.AliasHeaderContent, Confidence: 0.6},
	}
	merged := mergeCandidates(candidates)
	assert.Len(t, merged, 1)
}

func TestMin1Clamps(t *testing.T) {
	assert.Equal(t, 1.0, min1(1.2))
	assert.Equal(t, 0.5, min1(0.5))
}

func TestAppendUniqueDedupsAndSkipsEmpty(t *testing.T) {
	out := appendUnique([]string{"doc-1"}, "doc-1", "", "doc-2")
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, out)
}
