package pipeline

import (
	"context"

	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/generator"
	"github.com/contosowiki/sage/internal/types"
)

// GeneratePlugin runs the Response Generator (LLM-B), streaming tokens to
// the sink as they arrive and emitting the sources/conflicts frames the
// client needs to render citations.
type GeneratePlugin struct {
	generator *generator.Generator
}

func NewGeneratePlugin(g *generator.Generator) *GeneratePlugin {
	return &GeneratePlugin{generator: g}
}

func (p *GeneratePlugin) ActivationEvents() []types.EventType {
	return []types.EventType{types.Generate}
}

func (p *GeneratePlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	emitStep(state, types.PhaseGenerating, "Writing the response")
	emitSourcesFrame(state)
	emitConflictsFrame(state)

	text, promptTokens, completionTokens, err := p.generator.Generate(ctx, state.SystemPrompt, state.UserContent, func(tok string) {
		emitTokenFrame(state, tok)
	})
	if err != nil {
		pipelineError(ctx, "generate", "stream_failed", map[string]interface{}{"err": err})
		return event.WithError(sageerrors.Wrap(sageerrors.LLMUnavailable, "response generation failed", err))
	}
	state.ResponseText = text
	state.PromptTokens = promptTokens
	state.CompletionTokens = completionTokens

	pipelineInfo(ctx, "generate", "completed", map[string]interface{}{
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
	})
	return next()
}

func emitTokenFrame(state *types.RequestState, tok string) {
	if state.Sink == nil {
		return
	}
	frame := types.TokenFrame{Type: string(types.FrameToken), Text: tok}
	b, err := types.MarshalNDJSON(frame)
	if err != nil {
		return
	}
	state.Sink.Emit(b)
}

// emitSourcesFrame always emits, even with zero items, so every stream
// carries exactly one sources frame the client can key its citation UI on.
func emitSourcesFrame(state *types.RequestState) {
	if state.Sink == nil {
		return
	}
	items := make([]types.SourceItem, len(state.RetrievalResults))
	for i, r := range state.RetrievalResults {
		items[i] = types.SourceItem{
			URL:          r.URL,
			Title:        r.Title,
			Excerpt:      r.TextExcerpt,
			Authority:    r.Authority,
			LastModified: r.LastModified,
			Score:        r.CombinedScore,
		}
	}
	frame := types.SourcesFrame{Type: string(types.FrameSources), Items: items}
	b, err := types.MarshalNDJSON(frame)
	if err != nil {
		return
	}
	state.Sink.Emit(b)
}

func emitConflictsFrame(state *types.RequestState) {
	if state.Sink == nil || len(state.Conflicts) == 0 {
		return
	}
	items := make([]types.ConflictItem, len(state.Conflicts))
	for i, c := range state.Conflicts {
		items[i] = types.ConflictItem{
			Topic:      c.Topic,
			Kind:       string(c.Kind),
			Severity:   string(c.Severity),
			Suggestion: c.Suggestion,
		}
	}
	frame := types.ConflictsFrame{Type: string(types.FrameConflicts), Items: items}
	b, err := types.MarshalNDJSON(frame)
	if err != nil {
		return
	}
	state.Sink.Emit(b)
}
