package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/contosowiki/sage/internal/config"
	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/pipeline"
	"github.com/contosowiki/sage/internal/store"
	"github.com/contosowiki/sage/internal/types"
)

// Orchestrator drives the pipeline state machine for one /answer request:
// it decides the run's mode suffix once the Intent Analyzer has spoken,
// coalesces duplicate in-flight requests, enforces the
// total-request timeout, and emits exactly one terminal frame. It persists
// the user's turn itself, before running any pipeline stage, so the query
// is recorded "the moment it is accepted" regardless of what
// happens downstream; the pipeline's PersistPlugin only ever appends the
// assistant turn.
type Orchestrator struct {
	events    *pipeline.EventManager
	coalescer *Coalescer
	cfg       *config.Config
	messages  *store.MessageStore
}

func New(events *pipeline.EventManager, coalescer *Coalescer, cfg *config.Config, messages *store.MessageStore) *Orchestrator {
	return &Orchestrator{events: events, coalescer: coalescer, cfg: cfg, messages: messages}
}

// Request bundles one /answer call's inputs.
type Request struct {
	RequestID      string
	UserID         string
	ConversationID string
	Query          string
	AuthorsNote    string
}

// disconnectGrace is how long Handle waits, after the leading caller's
// context is done, before treating the request as abandoned. Other dedup joiners
// subscribed to the same Sink get the grace window to still be present.
const disconnectGrace = 200 * time.Millisecond

// tracer emits one span per request run, covering the whole suspension
// scope from the concurrent load_history/analyze_intent fan-out through
// PERSIST.
var tracer = otel.Tracer("github.com/contosowiki/sage/internal/orchestrator")

// Handle runs (or joins) one request and returns the Sink the caller should
// subscribe to for the NDJSON frame stream. The run itself executes
// detached from ctx (so a second dedup joiner's subscription survives the
// leader's own request ending) but Handle still watches ctx: once it's
// done and no subscriber remains on the Sink, the in-flight run is
// cancelled.
func (o *Orchestrator) Handle(ctx context.Context, req Request) *Sink {
	key := Key(req.UserID, req.ConversationID, req.Query)
	sink, isLeader := o.coalescer.Join(ctx, key, o.cfg.Dedup.BufferSteps)
	if !isLeader {
		return sink
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	go o.watchDisconnect(ctx, sink, cancelRun)
	go o.run(runCtx, req, sink, key)
	return sink
}

// watchDisconnect cancels runCancel once the leading caller's context ends
// and, after disconnectGrace, no subscriber is left listening on sink.
func (o *Orchestrator) watchDisconnect(callerCtx context.Context, sink *Sink, runCancel context.CancelFunc) {
	<-callerCtx.Done()
	time.Sleep(disconnectGrace)
	if sink.SubscriberCount() == 0 {
		runCancel()
	}
}

func (o *Orchestrator) run(runCtx context.Context, req Request, sink *Sink, dedupKey string) {
	defer func() {
		// A run cancelled by watchDisconnect (client gone) must invalidate
		// the dedup entry immediately rather than let Leave's delayed
		// removal hold a dead Sink in c.active for the rest of the window.
		if runCtx.Err() != nil {
			o.coalescer.Invalidate(context.Background(), dedupKey)
			return
		}
		o.coalescer.Leave(dedupKey)
	}()
	defer sink.Close()

	ctx, cancel := context.WithTimeout(runCtx, o.cfg.TotalTimeout())
	defer cancel()
	ctx = logger.WithFields(logger.CloneContext(ctx), map[string]interface{}{
		"request_id":      req.RequestID,
		"conversation_id": req.ConversationID,
	})

	ctx, span := tracer.Start(ctx, "orchestrator.run")
	span.SetAttributes(
		attribute.String("sage.request_id", req.RequestID),
		attribute.String("sage.conversation_id", req.ConversationID),
	)
	defer span.End()

	state := &types.RequestState{
		RequestID:      req.RequestID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Query:          req.Query,
		AuthorsNote:    req.AuthorsNote,
		Sink:           sink,
		HistoryReady:   make(chan struct{}),
	}

	if err := o.persistUserTurn(ctx, state); err != nil {
		o.fail(ctx, sink, types.LoadHistory.WithError(err))
		return
	}

	if perr := o.runConcurrentPrefix(ctx, state); perr != nil {
		o.fail(ctx, sink, perr)
		return
	}

	suffix := "direct_suffix"
	if state.Intent.NeedsRetrieval {
		suffix = "rag_suffix"
	}
	if perr := o.events.Run(ctx, suffix, state); perr != nil {
		o.fail(ctx, sink, perr)
		return
	}

	o.succeed(state, sink)
}

// runConcurrentPrefix runs the LoadHistory and AnalyzeIntent stages as two
// goroutines spawned together via errgroup. AnalyzeIntent's own plugin blocks
// internally on state.HistoryReady for the one field it needs, so the two
// suspension points genuinely start together rather than being serialized
// by mode order.
func (o *Orchestrator) runConcurrentPrefix(ctx context.Context, state *types.RequestState) *types.PluginError {
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		if perr := o.events.Run(gctx, "load_history", state); perr != nil {
			return perr
		}
		return nil
	})
	grp.Go(func() error {
		if perr := o.events.Run(gctx, "analyze_intent", state); perr != nil {
			return perr
		}
		return nil
	})
	if err := grp.Wait(); err != nil {
		if perr, ok := err.(*types.PluginError); ok {
			return perr
		}
		return types.AnalyzeIntent.WithError(err)
	}
	return nil
}

// persistUserTurn records the user's message the instant the request is
// accepted. A nil messages
// store (e.g. unit tests exercising the pipeline directly) makes this a
// no-op.
func (o *Orchestrator) persistUserTurn(ctx context.Context, state *types.RequestState) error {
	if o.messages == nil {
		return nil
	}
	err := o.messages.Append(ctx, types.Message{
		ID:             uuid.NewString(),
		ConversationID: state.ConversationID,
		Role:           types.RoleUser,
		Content:        state.Query,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return sageerrors.Wrap(sageerrors.InternalError, "failed to persist user message", err)
	}
	return nil
}

func (o *Orchestrator) succeed(state *types.RequestState, sink *Sink) {
	frame := types.FinalFrame{
		Type:           string(types.FrameFinal),
		ConversationID: state.ConversationID,
		MessageID:      state.MessageID,
		Confidence:     state.PostConfidence,
		Tokens: types.TokenCounts{
			Prompt:     state.PromptTokens,
			Completion: state.CompletionTokens,
		},
	}
	b, err := types.MarshalNDJSON(frame)
	if err != nil {
		return
	}
	sink.Emit(b)
}

func (o *Orchestrator) fail(ctx context.Context, sink *Sink, perr *types.PluginError) {
	code := sageerrors.InternalError
	var sageErr *sageerrors.Error
	if ok := asSageError(perr.Unwrap(), &sageErr); ok {
		code = sageErr.Code
	}
	logger.Errorf(ctx, "orchestrator: request failed at %s: %v", perr.Event, perr.Err)

	frame := types.ErrorFrame{
		Type:    string(types.FrameError),
		Code:    string(code),
		Message: perr.Error(),
	}
	b, err := types.MarshalNDJSON(frame)
	if err != nil {
		return
	}
	sink.Emit(b)
}

func asSageError(err error, target **sageerrors.Error) bool {
	for err != nil {
		if se, ok := err.(*sageerrors.Error); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// NewRequestID generates a fresh request identifier for callers that don't
// already have one (e.g. the HTTP handler before it reads the body).
func NewRequestID() string { return uuid.NewString() }
