// Package pipeline implements the Streaming Orchestrator's state machine
// as a named, ordered sequence of events, each handled by a registered
// plugin in chain-of-responsibility style.
package pipeline

import (
	"context"
	"fmt"

	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/types"
)

// EventManager owns the registry of plugins and runs a named mode's event
// sequence against a *types.RequestState.
type EventManager struct {
	plugins map[types.EventType][]types.Plugin
}

// NewEventManager creates an empty registry.
func NewEventManager() *EventManager {
	return &EventManager{plugins: make(map[types.EventType][]types.Plugin)}
}

// Register adds a plugin under every event type it declares activation for.
func (m *EventManager) Register(p types.Plugin) {
	for _, evt := range p.ActivationEvents() {
		m.plugins[evt] = append(m.plugins[evt], p)
	}
}

// Run executes the stage sequence named by mode against state, in order.
// Each stage's plugins run as a chain of responsibility: a plugin calls
// next() to continue to the next plugin registered for the same event (or
// to the next event if none remain). A stage with no registered plugin is
// a no-op.
func (m *EventManager) Run(ctx context.Context, mode string, state *types.RequestState) *types.PluginError {
	events, ok := types.Modes[mode]
	if !ok {
		return types.EventType(mode).WithError(fmt.Errorf("unknown pipeline mode %q", mode))
	}
	return m.runEvents(ctx, events, state)
}

func (m *EventManager) runEvents(ctx context.Context, events []types.EventType, state *types.RequestState) *types.PluginError {
	if len(events) == 0 {
		return nil
	}
	event, rest := events[0], events[1:]
	chain := m.plugins[event]
	if len(chain) == 0 {
		logger.Infof(ctx, "pipeline: stage %s has no registered plugin, skipping", event)
		return m.runEvents(ctx, rest, state)
	}
	return m.runChain(ctx, event, chain, rest, state)
}

func (m *EventManager) runChain(
	ctx context.Context, event types.EventType, chain []types.Plugin, rest []types.EventType, state *types.RequestState,
) *types.PluginError {
	if len(chain) == 0 {
		return m.runEvents(ctx, rest, state)
	}
	p, remaining := chain[0], chain[1:]
	next := func() *types.PluginError {
		return m.runChain(ctx, event, remaining, rest, state)
	}
	return p.OnEvent(ctx, event, state, next)
}
