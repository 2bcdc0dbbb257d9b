package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contosowiki/sage/internal/types"
)

func TestIsTeamInquiry(t *testing.T) {
	assert.True(t, IsTeamInquiry("who is on the identity team?"))
	assert.True(t, IsTeamInquiry("who is the on-call contact"))
	assert.False(t, IsTeamInquiry("how do I reset my password"))
}

func TestExtractMembers(t *testing.T) {
	text := "The Identity Team is led by Jane Smith (jane.smith@example.com), on-call lead."
	ml := ExtractMembers(text)
	assert.Contains(t, ml.Names, "Jane Smith")
	assert.Contains(t, ml.Emails, "jane.smith@example.com")
	assert.NotEmpty(t, ml.Roles)
}

func TestDetectConflictsContradictoryWhenBothRecent(t *testing.T) {
	now := time.Now()
	results := []*types.RetrievalResult{
		{DocumentID: "d1", URL: "https://wiki/d1", TextExcerpt: "Team lead is Jane Smith.", LastModified: now.Format(time.RFC3339)},
		{DocumentID: "d2", URL: "https://wiki/d2", TextExcerpt: "Team lead is John Doe.", LastModified: now.AddDate(0, 0, -5).Format(time.RFC3339)},
	}
	a := NewAnalyzer()
	conflicts := a.DetectConflicts("who is the team lead", results)
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ConflictContradictory, conflicts[0].Kind)
	assert.Equal(t, types.SeverityHigh, conflicts[0].Severity)
}

func TestDetectConflictsOutdatedWhenFarApart(t *testing.T) {
	now := time.Now()
	results := []*types.RetrievalResult{
		{DocumentID: "d1", URL: "https://wiki/d1", TextExcerpt: "Team lead is Jane Smith.", LastModified: now.Format(time.RFC3339)},
		{DocumentID: "d2", URL: "https://wiki/d2", TextExcerpt: "Team lead is John Doe.", LastModified: now.AddDate(0, 0, -120).Format(time.RFC3339)},
	}
	a := NewAnalyzer()
	conflicts := a.DetectConflicts("who is the team lead", results)
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ConflictOutdated, conflicts[0].Kind)
	assert.Equal(t, types.SeverityMedium, conflicts[0].Severity)
}

func TestDetectConflictsNoneForNonTeamQuery(t *testing.T) {
	a := NewAnalyzer()
	conflicts := a.DetectConflicts("how do I reset my password", []*types.RetrievalResult{
		{DocumentID: "d1", TextExcerpt: "Reset via the portal."},
	})
	assert.Empty(t, conflicts)
}

func TestPreGenerationConfidenceProratesFourFactors(t *testing.T) {
	f := Factors{DocumentationCoverage: 1, SourceAuthority: 1, QueryComplexity: 1}
	assert.InDelta(t, 1.0, PreGenerationConfidence(f), 0.001)
}

func TestPostGenerationConfidenceIncludesAllSix(t *testing.T) {
	completeness, certainty := 1.0, 1.0
	f := Factors{
		DocumentationCoverage: 1, SourceAuthority: 1, QueryComplexity: 1,
		ResponseCompleteness: &completeness, AICertainty: &certainty,
	}
	assert.InDelta(t, 1.0, PostGenerationConfidence(f), 0.001)
}

func TestPostGenerationConfidenceProratesForNoRetrieval(t *testing.T) {
	completeness, certainty := 1.0, 1.0
	f := Factors{
		QueryComplexity:      0.9,
		ResponseCompleteness: &completeness,
		AICertainty:          &certainty,
		NoRetrieval:          true,
	}
	// A clean greeting-style answer is not dragged down by the absent
	// coverage/authority factors.
	assert.Greater(t, PostGenerationConfidence(f), 0.8)
}

func TestConflictPenaltyFactorNoConflicts(t *testing.T) {
	assert.Equal(t, 1.0, conflictPenaltyFactor(nil))
}

func TestDocumentationCoverage(t *testing.T) {
	results := []*types.RetrievalResult{
		{TextExcerpt: "single sign-on is configured via the identity provider"},
	}
	cov := DocumentationCoverage("how do I configure single sign-on", results)
	assert.Greater(t, cov, 0.0)
	assert.LessOrEqual(t, cov, 1.0)
}
