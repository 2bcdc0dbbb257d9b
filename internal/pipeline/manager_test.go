package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contosowiki/sage/internal/types"
)

type recordingSink struct {
	frames [][]byte
}

func (s *recordingSink) Emit(frame []byte) {
	s.frames = append(s.frames, frame)
}

type stubPlugin struct {
	events []types.EventType
	onRun  func(state *types.RequestState)
	fail   *types.PluginError
}

func (p *stubPlugin) ActivationEvents() []types.EventType { return p.events }

func (p *stubPlugin) OnEvent(ctx context.Context, event types.EventType, state *types.RequestState, next types.Next) *types.PluginError {
	if p.onRun != nil {
		p.onRun(state)
	}
	if p.fail != nil {
		return p.fail
	}
	return next()
}

func TestRunExecutesStagesInModeOrder(t *testing.T) {
	m := NewEventManager()
	var order []types.EventType
	for _, evt := range types.Modes["rag_suffix"] {
		evt := evt
		m.Register(&stubPlugin{events: []types.EventType{evt}, onRun: func(*types.RequestState) {
			order = append(order, evt)
		}})
	}

	perr := m.Run(context.Background(), "rag_suffix", &types.RequestState{})
	require.Nil(t, perr)
	assert.Equal(t, types.Modes["rag_suffix"], order)
}

func TestRunStopsChainOnPluginError(t *testing.T) {
	m := NewEventManager()
	boom := types.Retrieve.WithError(assertErr("index down"))
	m.Register(&stubPlugin{events: []types.EventType{types.Retrieve}, fail: boom})
	ran := false
	m.Register(&stubPlugin{events: []types.EventType{types.Persist}, onRun: func(*types.RequestState) { ran = true }})

	perr := m.Run(context.Background(), "rag_suffix", &types.RequestState{})
	require.NotNil(t, perr)
	assert.Equal(t, types.Retrieve, perr.Event)
	assert.False(t, ran)
}

func TestRunUnknownModeFails(t *testing.T) {
	m := NewEventManager()
	perr := m.Run(context.Background(), "no_such_mode", &types.RequestState{})
	require.NotNil(t, perr)
}

func TestRunSkipsStagesWithNoRegisteredPlugin(t *testing.T) {
	m := NewEventManager()
	ran := false
	m.Register(&stubPlugin{events: []types.EventType{types.Persist}, onRun: func(*types.RequestState) { ran = true }})

	perr := m.Run(context.Background(), "direct_suffix", &types.RequestState{})
	require.Nil(t, perr)
	assert.True(t, ran)
}

func TestEmitStepIncrementsSequence(t *testing.T) {
	sink := &recordingSink{}
	state := &types.RequestState{Sink: sink}

	emitStep(state, types.PhaseAnalyzing, "first")
	emitStep(state, types.PhaseRetrieving, "second")

	require.Len(t, sink.frames, 2)
	var first, second types.StepFrame
	require.NoError(t, json.Unmarshal(sink.frames[0], &first))
	require.NoError(t, json.Unmarshal(sink.frames[1], &second))
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, types.PhaseAnalyzing, first.Phase)
}

func TestEmitSourcesFrameAlwaysEmitsEvenWhenEmpty(t *testing.T) {
	sink := &recordingSink{}
	state := &types.RequestState{Sink: sink}

	emitSourcesFrame(state)

	require.Len(t, sink.frames, 1)
	var frame struct {
		Type  string              `json:"type"`
		Items []types.SourceItem  `json:"items"`
	}
	require.NoError(t, json.Unmarshal(sink.frames[0], &frame))
	assert.Equal(t, "sources", frame.Type)
	assert.NotNil(t, frame.Items)
	assert.Empty(t, frame.Items)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
