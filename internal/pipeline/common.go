package pipeline

import (
	"context"

	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/types"
)

// emitStep writes the next sequence-numbered reasoning step to the
// request's sink, a no-op if no sink is attached (e.g. in tests).
func emitStep(state *types.RequestState, phase types.Phase, message string) {
	state.Seq++
	frame := types.NewStepFrame(state.Seq, phase, message)
	b, err := types.MarshalNDJSON(frame)
	if err != nil || state.Sink == nil {
		return
	}
	state.Sink.Emit(b)
}

// pipelineInfo/pipelineWarn/pipelineError log a stage/action pair with
// structured fields so every plugin's OnEvent reads the same way
// regardless of stage.
func pipelineInfo(ctx context.Context, stage, action string, fields map[string]interface{}) {
	logger.Infof(ctx, "[%s] %s %+v", stage, action, fields)
}

func pipelineWarn(ctx context.Context, stage, action string, fields map[string]interface{}) {
	logger.Warnf(ctx, "[%s] %s %+v", stage, action, fields)
}

func pipelineError(ctx context.Context, stage, action string, fields map[string]interface{}) {
	logger.Errorf(ctx, "[%s] %s %+v", stage, action, fields)
}
