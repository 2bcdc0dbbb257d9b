package generator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/llm"
	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/types"
)

const reviewerSystemPrompt = `You review a documentation assistant's answer against the sources it had ` +
	`available. Respond with ONLY a JSON object: {"needs_revision": true|false, "reason": "..."}. ` +
	`Request a revision ONLY if: (a) the answer claims no information is available while the sources below ` +
	`clearly contain keyword-overlapping content, or (b) the answer contradicts one of its own cited sources. ` +
	`Otherwise needs_revision must be false.`

// Reviewer is the optional single-pass Reviewer, using the
// same cheap model as the Intent Analyzer.
type Reviewer struct {
	client llm.Client
	cfg    config.LLMModelConfig
}

func NewReviewer(client llm.Client, cfg config.LLMModelConfig) *Reviewer {
	return &Reviewer{client: client, cfg: cfg}
}

// Verdict is the Reviewer's structured decision.
type Verdict struct {
	NeedsRevision bool
	Reason        string
}

// Review runs the single LLM-A call with (query, retrieved_chunks,
// final_response). On any failure it skips the revision rather than
// blocking the response.
func (r *Reviewer) Review(ctx context.Context, query string, results []*types.RetrievalResult, response string) Verdict {
	var b strings.Builder
	for _, res := range results {
		b.WriteString(chunkBlock(res))
		b.WriteString("\n---\n")
	}

	messages := []llm.Message{
		{Role: "system", Content: reviewerSystemPrompt},
		{Role: "user", Content: "Query: " + query + "\n\nSources:\n" + b.String() + "\n\nFinal response:\n" + response},
	}
	text, _, _, err := r.client.Complete(ctx, messages, llm.Options{
		Model:       r.cfg.Model,
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
		N:           1,
	})
	if err != nil {
		logger.Warnf(ctx, "reviewer: completion failed, skipping review: %v", err)
		return Verdict{}
	}

	var raw struct {
		NeedsRevision bool   `json:"needs_revision"`
		Reason        string `json:"reason"`
	}
	if jerr := json.Unmarshal([]byte(stripCodeFenceLocal(text)), &raw); jerr != nil {
		logger.Warnf(ctx, "reviewer: failed to parse verdict, skipping review")
		return Verdict{}
	}
	return Verdict{NeedsRevision: raw.NeedsRevision, Reason: raw.Reason}
}

func stripCodeFenceLocal(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
