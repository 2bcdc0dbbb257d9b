package pipeline

import (
	"context"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/generator"
	"github.com/contosowiki/sage/internal/quality"
	"github.com/contosowiki/sage/internal/types"
)

// ReviewPlugin runs the optional single-pass Reviewer and, if it requests a
// revision, regenerates the response exactly once. Regeneration is
// handled inline here rather than as a separate registered stage since it
// is at most one extra pass tightly coupled to the review verdict, not an
// independent point in the state machine.
type ReviewPlugin struct {
	reviewer  *generator.Reviewer
	generator *generator.Generator
	cfg       *config.Config
}

func NewReviewPlugin(reviewer *generator.Reviewer, gen *generator.Generator, cfg *config.Config) *ReviewPlugin {
	return &ReviewPlugin{reviewer: reviewer, generator: gen, cfg: cfg}
}

func (p *ReviewPlugin) ActivationEvents() []types.EventType {
	return []types.EventType{types.Review}
}

func (p *ReviewPlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	if p.reviewer == nil {
		return next()
	}
	emitStep(state, types.PhaseReviewing, "Checking the response against its sources")

	// The reviewer gets its own deadline; on timeout Review surfaces the
	// error internally and returns a no-revision verdict.
	reviewCtx, cancel := context.WithTimeout(ctx, p.cfg.ReviewerTimeout())
	defer cancel()
	verdict := p.reviewer.Review(reviewCtx, state.Query, state.RetrievalResults, state.ResponseText)
	state.NeedsRevision = verdict.NeedsRevision
	if !verdict.NeedsRevision {
		return next()
	}
	state.RevisionRequested = true
	pipelineInfo(ctx, "review", "revision_requested", map[string]interface{}{"reason": verdict.Reason})
	emitStep(state, types.PhaseGenerating, "Revising the response")

	revisedPrompt := state.SystemPrompt + "\n\nA reviewer flagged this draft response: " + verdict.Reason +
		". Revise the response to address this before answering again."
	text, promptTokens, completionTokens, err := p.generator.Generate(ctx, revisedPrompt, state.UserContent, func(tok string) {
		emitTokenFrame(state, tok)
	})
	if err != nil {
		pipelineWarn(ctx, "review", "regenerate_failed_keeping_original", map[string]interface{}{"err": err})
		return next()
	}
	state.ResponseText = text
	state.PromptTokens += promptTokens
	state.CompletionTokens += completionTokens
	state.Regenerated = true
	return next()
}

// postGenerationFactors gathers the six confidence factors persist uses to
// compute the final confidence once the response text is settled.
func postGenerationFactors(state *types.RequestState) quality.Factors {
	entityCount := len(state.Intent.MentionedEntities.People) +
		len(state.Intent.MentionedEntities.Teams) +
		len(state.Intent.MentionedEntities.Tools)
	conflicts := make([]types.Conflict, len(state.Conflicts))
	for i, c := range state.Conflicts {
		conflicts[i] = *c
	}
	completeness := responseCompleteness(state)
	certainty := aiCertainty(state)
	return quality.Factors{
		DocumentationCoverage: quality.DocumentationCoverage(state.Query, state.RetrievalResults),
		SourceAuthority:       quality.MeanAuthority(state.RetrievalResults),
		Conflicts:             conflicts,
		QueryComplexity:       quality.QueryComplexity(state.Query, entityCount),
		ResponseCompleteness:  &completeness,
		AICertainty:           &certainty,
		NoRetrieval:           !state.Intent.NeedsRetrieval,
	}
}

// responseCompleteness is a cheap proxy for "did the model actually answer":
// an empty response scores 0, one under 40 characters 0.5, anything longer
// 1.0. Only the length is checked; hedges and refusals are not detected.
func responseCompleteness(state *types.RequestState) float64 {
	if len(state.ResponseText) == 0 {
		return 0
	}
	if len(state.ResponseText) < 40 {
		return 0.5
	}
	return 1.0
}

// aiCertainty halves the score once a revision was requested, since that
// signals the generator's first answer was not fully grounded.
func aiCertainty(state *types.RequestState) float64 {
	if state.RevisionRequested {
		return 0.5
	}
	return 1.0
}
