package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/llm"
	"github.com/contosowiki/sage/internal/types"
)

type fakeLLM struct {
	text string
	err  error
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, int, int, error) {
	return f.text, 10, 5, f.err
}

func (f *fakeLLM) Stream(ctx context.Context, messages []llm.Message, opts llm.Options, onToken func(string)) (int, int, error) {
	return 0, 0, nil
}

func TestAnalyzeParsesWellFormedPlan(t *testing.T) {
	body := `{
  "intent_type": "team_inquiry",
  "conversation_type": "informational",
  "needs_retrieval": true,
  "search_focus": ["identity team", "on-call"],
  "response_style": {"format": "list", "depth": "brief"},
  "mentioned_entities": {"people": [], "teams": ["Identity"], "tools": []},
  "unresolved_questions": [],
  "context_summary": "user asking about identity team roster"
}`
	a := NewAnalyzer(&fakeLLM{text: body}, config.LLMModelConfig{Model: "intent-small"})
	plan, fellBack := a.Analyze(context.Background(), "who is on the identity team", "")
	require.False(t, fellBack)
	assert.Equal(t, types.IntentTeamInquiry, plan.IntentType)
	assert.True(t, plan.NeedsRetrieval)
	assert.Equal(t, types.FormatList, plan.ResponseStyle.Format)
}

func TestAnalyzeFallsBackOnUnparsableOutput(t *testing.T) {
	a := NewAnalyzer(&fakeLLM{text: "not json at all"}, config.LLMModelConfig{Model: "intent-small"})
	plan, fellBack := a.Analyze(context.Background(), "hello", "")
	require.True(t, fellBack)
	assert.Equal(t, types.DefaultIntentPlan(), plan)
}

func TestAnalyzeFallsBackOnCompletionError(t *testing.T) {
	a := NewAnalyzer(&fakeLLM{err: assertError{"boom"}}, config.LLMModelConfig{Model: "intent-small"})
	plan, fellBack := a.Analyze(context.Background(), "hello", "")
	require.True(t, fellBack)
	assert.Equal(t, types.DefaultIntentPlan(), plan)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestParsePlanStripsCodeFence(t *testing.T) {
	body := "```json\n{\"intent_type\":\"other\",\"conversation_type\":\"casual\",\"needs_retrieval\":false}\n```"
	plan, ok := parsePlan(body)
	require.True(t, ok)
	assert.Equal(t, types.IntentOther, plan.IntentType)
	assert.False(t, plan.NeedsRetrieval)
}
