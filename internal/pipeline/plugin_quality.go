package pipeline

import (
	"context"
	"fmt"

	"github.com/contosowiki/sage/internal/quality"
	"github.com/contosowiki/sage/internal/types"
)

// QualityPlugin runs the Quality Analyzer's conflict detection and computes
// pre-generation confidence.
type QualityPlugin struct {
	analyzer *quality.Analyzer
}

func NewQualityPlugin(analyzer *quality.Analyzer) *QualityPlugin {
	return &QualityPlugin{analyzer: analyzer}
}

func (p *QualityPlugin) ActivationEvents() []types.EventType {
	return []types.EventType{types.AnalyzeQuality}
}

func (p *QualityPlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	emitStep(state, types.PhaseQuality, "Checking retrieved sources for conflicts")

	conflicts := p.analyzer.DetectConflicts(state.Query, state.RetrievalResults)
	convertible := make([]*types.Conflict, len(conflicts))
	for i := range conflicts {
		convertible[i] = &conflicts[i]
	}
	state.Conflicts = convertible

	entityCount := len(state.Intent.MentionedEntities.People) +
		len(state.Intent.MentionedEntities.Teams) +
		len(state.Intent.MentionedEntities.Tools)

	state.PreConfidence = quality.PreGenerationConfidence(quality.Factors{
		DocumentationCoverage: quality.DocumentationCoverage(state.Query, state.RetrievalResults),
		SourceAuthority:       quality.MeanAuthority(state.RetrievalResults),
		Conflicts:             conflicts,
		QueryComplexity:       quality.QueryComplexity(state.Query, entityCount),
	})

	if len(conflicts) > 0 {
		emitStep(state, types.PhaseQuality, fmt.Sprintf("%d conflicts detected between sources", len(conflicts)))
	}
	pipelineInfo(ctx, "quality", "analyzed", map[string]interface{}{
		"conflicts":      len(conflicts),
		"pre_confidence": state.PreConfidence,
	})
	return next()
}
