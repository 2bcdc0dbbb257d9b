package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/conversation"
	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/orchestrator"
	"github.com/contosowiki/sage/internal/ratelimit"
	"github.com/contosowiki/sage/internal/store"
	"github.com/contosowiki/sage/internal/types"
	"github.com/contosowiki/sage/internal/utils"
)

const (
	maxQueryChars   = 4000
	maxAuthorsNote  = 500
	estimatedTokens = 2000 // rough fixed per-request draw against the rate limiter; not adjusted to actual usage afterwards
)

// AnswerHandler binds POST /v1/conversations/answer to the
// Orchestrator: it validates the request, resolves or creates the active
// conversation, serializes concurrent writers to that conversation with a
// per-conversation lock, and streams the resulting NDJSON frames straight
// to the response body, flushing after every frame.
type AnswerHandler struct {
	orch          *orchestrator.Orchestrator
	conversations *store.ConversationStore
	lock          *conversation.Lock
	limiter       *ratelimit.Limiter
	cfg           *config.Config
}

func NewAnswerHandler(
	orch *orchestrator.Orchestrator,
	conversations *store.ConversationStore,
	lock *conversation.Lock,
	limiter *ratelimit.Limiter,
	cfg *config.Config,
) *AnswerHandler {
	return &AnswerHandler{orch: orch, conversations: conversations, lock: lock, limiter: limiter, cfg: cfg}
}

// AnswerRequest is the request body for POST /v1/conversations/answer.
type AnswerRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query" binding:"required"`
	AuthorsNote    string `json:"authors_note"`
	RequestID      string `json:"request_id"`
}

// Answer handles the request end to end: validate, resolve conversation,
// acquire the write lock, run the Orchestrator, and stream frames until
// the terminal frame or client disconnect.
func (h *AnswerHandler) Answer(c *gin.Context) {
	ctx := logger.CloneContext(c.Request.Context())

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, sageerrors.New(sageerrors.BadRequest, "invalid request body: "+err.Error()))
		return
	}

	query, ok := utils.ValidateInput(req.Query)
	if !ok || len(query) == 0 || len(query) > maxQueryChars {
		h.writeError(c, sageerrors.New(sageerrors.BadRequest, "query must be 1-4000 characters and free of control/script content"))
		return
	}

	authorsNote, ok := utils.ValidateInput(req.AuthorsNote)
	if !ok {
		h.writeError(c, sageerrors.New(sageerrors.BadRequest, "authors_note contains disallowed content"))
		return
	}
	truncatedNote := false
	if len(authorsNote) > maxAuthorsNote {
		authorsNote = authorsNote[:maxAuthorsNote]
		truncatedNote = true
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := h.conversations.GetOrCreateActive(ctx, req.UserID)
		if err != nil {
			h.writeError(c, sageerrors.Wrap(sageerrors.InternalError, "failed to resolve active conversation", err))
			return
		}
		conversationID = conv.ID
	}

	// request_id is client-generated so a retried request carries the same
	// identity through the dedup window; a missing one gets a fresh id.
	requestID := req.RequestID
	if requestID == "" {
		requestID = orchestrator.NewRequestID()
	}

	if err := h.limiter.Acquire(ctx, req.UserID, estimatedTokens, time.Duration(h.cfg.RateLimit.WaitS)*time.Second); err != nil {
		h.writeError(c, err)
		return
	}

	release, err := h.lock.Acquire(ctx, conversationID, requestID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer release()

	logger.Infof(ctx, "answer request accepted: user=%s conversation=%s query=%q",
		req.UserID, conversationID, utils.SanitizeForLog(query))

	sink := h.orch.Handle(ctx, orchestrator.Request{
		RequestID:      requestID,
		UserID:         req.UserID,
		ConversationID: conversationID,
		Query:          query,
		AuthorsNote:    authorsNote,
	})

	h.stream(c, sink, truncatedNote)
}

// stream copies frames from sink to the response body as newline-delimited
// JSON, flushing after each one, until the sink closes (terminal frame
// emitted) or the client disconnects.
func (h *AnswerHandler) stream(c *gin.Context, sink *orchestrator.Sink, truncatedNote bool) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(200)

	ch, unsubscribe := sink.Subscribe()
	defer unsubscribe()

	if truncatedNote {
		frame, err := types.MarshalNDJSON(types.StepFrame{
			Type:    types.FrameStep,
			Phase:   types.PhaseAnalyzing,
			Message: "authors_note truncated to 500 characters",
		})
		if err == nil {
			c.Writer.Write(frame)
			c.Writer.Flush()
		}
	}

	for {
		select {
		case frame, open := <-ch:
			if !open {
				return
			}
			c.Writer.Write(frame)
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *AnswerHandler) writeError(c *gin.Context, err error) {
	code := sageerrors.InternalError
	status := 500
	if se, ok := err.(*sageerrors.Error); ok {
		code = se.Code
		status = httpStatusFor(code)
	}
	c.JSON(status, gin.H{"code": string(code), "msg": err.Error()})
}

func httpStatusFor(code sageerrors.Code) int {
	switch code {
	case sageerrors.BadRequest:
		return 400
	case sageerrors.Unauthorized:
		return 401
	case sageerrors.ConversationBusy:
		return 409
	case sageerrors.RateLimited:
		return 429
	case sageerrors.RetrievalUnavailable, sageerrors.LLMUnavailable:
		return 503
	default:
		return 500
	}
}
