// Package intent implements the Intent Analyzer component:
// the cheap LLM-A call that classifies a query and plans retrieval before
// any expensive work runs.
package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/llm"
	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/types"
)

const systemPrompt = `You are the intent-analysis stage of a documentation assistant. ` +
	`Given the user's query and a short conversation summary, respond with ONLY a single ` +
	`JSON object matching this schema, no prose, no markdown fences:
{
  "intent_type": "greeting|team_inquiry|procedure|diagnostic|code_request|explanation|followup|other",
  "conversation_type": "casual|informational|task",
  "needs_retrieval": true|false,
  "search_focus": ["..."],
  "response_style": {"format": "prose|steps|list|code", "depth": "brief|normal|detailed"},
  "mentioned_entities": {"people": ["..."], "teams": ["..."], "tools": ["..."]},
  "unresolved_questions": ["..."],
  "context_summary": "..."
}
search_focus has at most 5 entries, unresolved_questions at most 3, context_summary at most 400 characters.`

// Analyzer wraps an llm.Client configured with the intent-analysis model.
type Analyzer struct {
	client llm.Client
	cfg    config.LLMModelConfig
}

func NewAnalyzer(client llm.Client, cfg config.LLMModelConfig) *Analyzer {
	return &Analyzer{client: client, cfg: cfg}
}

// rawPlan mirrors the wire JSON shape; decoded then validated
// into types.IntentPlan.
type rawPlan struct {
	IntentType       string   `json:"intent_type"`
	ConversationType string   `json:"conversation_type"`
	NeedsRetrieval   bool     `json:"needs_retrieval"`
	SearchFocus      []string `json:"search_focus"`
	ResponseStyle    struct {
		Format string `json:"format"`
		Depth  string `json:"depth"`
	} `json:"response_style"`
	MentionedEntities struct {
		People []string `json:"people"`
		Teams  []string `json:"teams"`
		Tools  []string `json:"tools"`
	} `json:"mentioned_entities"`
	UnresolvedQuestions []string `json:"unresolved_questions"`
	ContextSummary      string   `json:"context_summary"`
}

// Analyze runs one bounded LLM-A call. On any failure it returns the
// default plan and logs a warning, never an error, so the Orchestrator
// always has a usable plan to proceed with.
func (a *Analyzer) Analyze(ctx context.Context, query, conversationSummary string) (types.IntentPlan, bool) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "Conversation summary: " + conversationSummary + "\n\nQuery: " + query},
	}
	text, _, _, err := a.client.Complete(ctx, messages, llm.Options{
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		N:           1,
	})
	if err != nil {
		logger.Warnf(ctx, "intent analyzer: completion failed, using default plan: %v", err)
		return types.DefaultIntentPlan(), true
	}

	plan, ok := parsePlan(text)
	if !ok {
		logger.Warnf(ctx, "intent analyzer: failed to parse LLM-A output, using default plan")
		return types.DefaultIntentPlan(), true
	}
	return plan, false
}

func parsePlan(text string) (types.IntentPlan, bool) {
	text = stripCodeFence(text)
	var raw rawPlan
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return types.IntentPlan{}, false
	}

	plan := types.IntentPlan{
		IntentType:          types.IntentType(raw.IntentType),
		ConversationType:    types.ConversationType(raw.ConversationType),
		NeedsRetrieval:       raw.NeedsRetrieval,
		SearchFocus:          capStrings(raw.SearchFocus, 5),
		ResponseStyle: types.ResponseStyle{
			Format: types.ResponseFormat(raw.ResponseStyle.Format),
			Depth:  types.ResponseDepth(raw.ResponseStyle.Depth),
		},
		MentionedEntities: types.MentionedEntities{
			People: raw.MentionedEntities.People,
			Teams:  raw.MentionedEntities.Teams,
			Tools:  raw.MentionedEntities.Tools,
		},
		UnresolvedQuestions: capStrings(raw.UnresolvedQuestions, 3),
		ContextSummary:      capChars(raw.ContextSummary, 400),
	}
	if !validIntentType(plan.IntentType) || !validConversationType(plan.ConversationType) {
		return types.IntentPlan{}, false
	}
	if plan.ResponseStyle.Format == "" {
		plan.ResponseStyle.Format = types.FormatProse
	}
	if plan.ResponseStyle.Depth == "" {
		plan.ResponseStyle.Depth = types.DepthNormal
	}
	return plan, true
}

func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func capStrings(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func capChars(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func validIntentType(t types.IntentType) bool {
	switch t {
	case types.IntentGreeting, types.IntentTeamInquiry, types.IntentProcedure, types.IntentDiagnostic,
		types.IntentCodeRequest, types.IntentExplanation, types.IntentFollowup, types.IntentOther:
		return true
	}
	return false
}

func validConversationType(t types.ConversationType) bool {
	switch t {
	case types.ConversationCasual, types.ConversationInformational, types.ConversationTask:
		return true
	}
	return false
}
