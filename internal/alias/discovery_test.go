package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contosowiki/sage/internal/types"
)

func TestDetectParenthetical(t *testing.T) {
	text := "Single Sign-On (SSO) is required for all internal tools."
	cands := DetectParenthetical("doc-1", text)
	require.Len(t, cands, 1)
	assert.Equal(t, "single sign-on", cands[0].TermA)
	assert.Equal(t, "sso", cands[0].TermB)
	assert.Equal(t, types.AliasParenthetical, cands[0].Kind)
	assert.Equal(t, types.AliasParenthetical.BaseConfidence(), cands[0].Confidence)
}

func TestDetectDash(t *testing.T) {
	text := "Identity Team — Access Platform."
	cands := DetectDash("doc-1", text)
	require.NotEmpty(t, cands)
	assert.Equal(t, "identity team", cands[0].TermA)
	assert.Equal(t, "access platform", cands[0].TermB)
}

func TestDetectHeaderContent(t *testing.T) {
	body := "Access Platform handles provisioning. Access Platform also owns deprovisioning. " +
		"See Access Platform runbooks for details."
	cands := DetectHeaderContent("doc-1", []string{"Access Platform"}, body)
	require.Len(t, cands, 1)
	assert.Equal(t, types.AliasHeaderContent, cands[0].Kind)
}

func TestDetectEmailTeam(t *testing.T) {
	text := "Reach the Identity Team at identity-team@example.com for access requests."
	cands := DetectEmailTeam("doc-1", text, []string{"Identity Team"})
	require.Len(t, cands, 1)
	assert.Equal(t, "identity team", cands[0].TermA)
	assert.Equal(t, "identity-team", cands[0].TermB)
}

func TestDetectCooccurrence(t *testing.T) {
	windows := [][]string{
		{"identity", "team", "single", "sign-on"},
		{"identity", "team", "single", "sign-on"},
		{"identity", "team", "single", "sign-on"},
		{"unrelated", "topic", "here"},
	}
	cands := DetectCooccurrence("", windows, 0.0)
	assert.NotEmpty(t, cands)
	for _, c := range cands {
		assert.Equal(t, types.AliasCooccurrence, c.Kind)
		assert.GreaterOrEqual(t, c.Confidence, 0.35)
	}
}

func TestDetectConversational(t *testing.T) {
	c := DetectConversational("Access Platform", "AP")
	require.NotNil(t, c)
	assert.Equal(t, "access platform", c.TermA)
	assert.Equal(t, "ap", c.TermB)

	assert.Nil(t, DetectConversational("same", "same"))
}
