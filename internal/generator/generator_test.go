package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contosowiki/sage/internal/types"
)

func TestBuildSystemPromptOrdersSectionsAndSkipsEmptyOnes(t *testing.T) {
	prompt := BuildSystemPrompt(PromptInput{
		Intent:         types.IntentPlan{ResponseStyle: types.ResponseStyle{Format: types.FormatSteps, Depth: types.DepthBrief}},
		ContextSummary: "user wants SSO setup steps",
		Results: []*types.RetrievalResult{
			{URL: "https://wiki/sso", SourceKind: types.SourceWiki, Authority: 0.9, TextExcerpt: "Configure SSO via the IdP."},
		},
	})

	identityPos := strings.Index(prompt, identitySection)
	priorityPos := strings.Index(prompt, "Priority protocol")
	formatPos := strings.Index(prompt, "numbered steps")
	contextPos := strings.Index(prompt, "user wants SSO setup steps")
	chunksPos := strings.Index(prompt, "Retrieved context")

	require.NotEqual(t, -1, identityPos)
	require.NotEqual(t, -1, priorityPos)
	require.NotEqual(t, -1, formatPos)
	require.NotEqual(t, -1, contextPos)
	require.NotEqual(t, -1, chunksPos)
	assert.True(t, identityPos < priorityPos)
	assert.True(t, priorityPos < formatPos)
	assert.True(t, formatPos < contextPos)
	assert.True(t, contextPos < chunksPos)

	assert.NotContains(t, prompt, "Quality report")
	assert.NotContains(t, prompt, "Authors Note")
}

func TestChunksSectionDropsLowestRankedOverBudget(t *testing.T) {
	big := strings.Repeat("word ", 3000)
	results := []*types.RetrievalResult{
		{URL: "https://wiki/a", TextExcerpt: big, CombinedScore: 0.9},
		{URL: "https://wiki/b", TextExcerpt: big, CombinedScore: 0.8},
		{URL: "https://wiki/c", TextExcerpt: "small chunk", CombinedScore: 0.7},
	}
	section := chunksSection(results)
	assert.Contains(t, section, "https://wiki/a")
	assert.NotContains(t, section, "https://wiki/c")
}

func TestBuildSystemPromptFlagsEmptyRetrievalExplicitly(t *testing.T) {
	prompt := BuildSystemPrompt(PromptInput{
		Intent: types.IntentPlan{NeedsRetrieval: true},
	})
	assert.Contains(t, prompt, "no authoritative source was found")

	greeting := BuildSystemPrompt(PromptInput{
		Intent: types.IntentPlan{NeedsRetrieval: false},
	})
	assert.NotContains(t, greeting, "no authoritative source")
}

func TestAuthorsNoteSectionOmittedWhenEmpty(t *testing.T) {
	assert.Equal(t, "", authorsNoteSection(""))
	assert.Contains(t, authorsNoteSection("be extra formal"), "be extra formal")
}
