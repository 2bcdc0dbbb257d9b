// Package generator implements the Response Generator (LLM-B)
// and the single-pass Reviewer.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/llm"
	"github.com/contosowiki/sage/internal/types"
)

const identitySection = "You are a documentation assistant for this organization's internal knowledge base. " +
	"Answer clearly and cite the sources you relied on."

const priorityProtocolSection = "Priority protocol: the provided context below is your primary source of truth. " +
	"The conversation summary is secondary background only. If the context conflicts with the conversation " +
	"summary, trust the context. Any conflicts listed in the quality report must be surfaced to the user, " +
	"not silently resolved."

const maxContextTokens = 6000

// Generator is the Response Generator component.
type Generator struct {
	client llm.Client
	cfg    config.LLMModelConfig
}

func NewGenerator(client llm.Client, cfg config.LLMModelConfig) *Generator {
	return &Generator{client: client, cfg: cfg}
}

// PromptInput bundles everything the system prompt's seven sections are
// assembled from.
type PromptInput struct {
	Intent         types.IntentPlan
	ContextSummary string
	Results        []*types.RetrievalResult // must already be sorted desc by CombinedScore
	Conflicts      []types.Conflict
	AuthorsNote    string
}

// BuildSystemPrompt assembles the seven fixed sections in order, dropping
// the lowest-ranked chunks first once the retrieved-chunks section would
// exceed ~6000 tokens.
func BuildSystemPrompt(in PromptInput) string {
	chunks := chunksSection(in.Results)
	if chunks == "" && in.Intent.NeedsRetrieval {
		chunks = "No documentation matched this question at any confidence level. State explicitly that " +
			"no authoritative source was found, and answer only from the conversation context, clearly " +
			"marked as such."
	}
	sections := map[types.PromptSection]string{
		types.SectionIdentity:      identitySection,
		types.SectionPriority:      priorityProtocolSection,
		types.SectionFormat:        formatSection(in.Intent.ResponseStyle),
		types.SectionContext:       contextSection(in.ContextSummary),
		types.SectionChunks:        chunks,
		types.SectionQualityReport: qualityReportSection(in.Conflicts),
		types.SectionAuthorsNote:   authorsNoteSection(in.AuthorsNote),
	}

	var b strings.Builder
	for _, name := range types.PromptSectionOrder {
		text := sections[name]
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func formatSection(style types.ResponseStyle) string {
	format := style.Format
	if format == "" {
		format = types.FormatProse
	}
	depth := style.Depth
	if depth == "" {
		depth = types.DepthNormal
	}

	var shape string
	switch format {
	case types.FormatSteps:
		shape = "numbered steps"
	case types.FormatList:
		shape = "a bulleted list"
	case types.FormatCode:
		shape = "a code block with brief surrounding explanation"
	default:
		shape = "prose paragraphs"
	}

	var verbosity string
	switch depth {
	case types.DepthBrief:
		verbosity = "Keep it brief — a few sentences or a short list."
	case types.DepthDetailed:
		verbosity = "Go into full detail, covering edge cases where relevant."
	default:
		verbosity = "Use a normal, moderate level of detail."
	}
	return fmt.Sprintf("Respond using %s. %s", shape, verbosity)
}

func contextSection(summary string) string {
	if summary == "" {
		return ""
	}
	if len(summary) > 400 {
		summary = summary[:400]
	}
	return "Conversation context summary: " + summary
}

// chunksSection renders the retrieved-chunks section, dropping the
// lowest-ranked chunks first once the section exceeds ~6000 estimated
// tokens.
func chunksSection(results []*types.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}
	var kept []string
	total := 0
	for _, r := range results {
		block := chunkBlock(r)
		t := estimateTokens(block)
		if total+t > maxContextTokens && len(kept) > 0 {
			break
		}
		kept = append(kept, block)
		total += t
	}
	return "Retrieved context:\n" + strings.Join(kept, "\n---\n")
}

func chunkBlock(r *types.RetrievalResult) string {
	return fmt.Sprintf("URL: %s\nSource kind: %s\nAuthority: %.2f\nLast modified: %s\n%s",
		r.URL, r.SourceKind, r.Authority, r.LastModified, r.TextExcerpt)
}

func qualityReportSection(conflicts []types.Conflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Quality report — detected conflicts between sources:\n")
	for _, c := range conflicts {
		b.WriteString(fmt.Sprintf("- [%s/%s] %s: %s\n", c.Kind, c.Severity, c.Topic, c.Suggestion))
	}
	return b.String()
}

func authorsNoteSection(note string) string {
	if note == "" {
		return ""
	}
	return "Behavioral override (Authors Note) — follow this unless it contradicts the priority protocol above:\n" + note
}

func estimateTokens(s string) int {
	return len(s)/4 + 1
}

// Generate runs the streaming LLM-B call, forwarding each token
// to onToken as it arrives and returning the full accumulated text for
// persistence and the optional Reviewer pass.
func (g *Generator) Generate(
	ctx context.Context, systemPrompt, query string, onToken func(string),
) (responseText string, promptTokens, completionTokens int, err error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: query},
	}
	var buf strings.Builder
	promptTokens, completionTokens, err = g.client.Stream(ctx, messages, llm.Options{
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		N:           1,
	}, func(tok string) {
		buf.WriteString(tok)
		onToken(tok)
	})
	return buf.String(), promptTokens, completionTokens, err
}
