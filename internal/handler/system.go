// Package handler exposes the core engine over HTTP (gin). Real
// authentication, the bot adapter, and the web UI live in the gateway in
// front of this service; only their contracts are bound here. Response
// envelopes are {code, msg, data}.
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/logger"
)

// SystemHandler reports which concrete engines back this deployment,
// useful for an ops dashboard without exposing secrets.
type SystemHandler struct {
	cfg *config.Config
}

func NewSystemHandler(cfg *config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// GetSystemInfoResponse reports the engine's build and wiring.
type GetSystemInfoResponse struct {
	Version          string `json:"version"`
	CommitID         string `json:"commit_id,omitempty"`
	BuildTime        string `json:"build_time,omitempty"`
	GoVersion        string `json:"go_version,omitempty"`
	VectorIndexAddr  string `json:"vector_index_addr,omitempty"`
	IntentModel      string `json:"intent_model"`
	MainModel        string `json:"main_model"`
	EmbeddingDim     int    `json:"embedding_dim"`
	RetrievalK       int    `json:"retrieval_k"`
}

// Build-time injected version metadata.
var (
	Version   = "unknown"
	CommitID  = "unknown"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

// GetSystemInfo reports version and component configuration.
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	ctx := logger.CloneContext(c.Request.Context())

	resp := GetSystemInfoResponse{
		Version:         Version,
		CommitID:        CommitID,
		BuildTime:       BuildTime,
		GoVersion:       GoVersion,
		VectorIndexAddr: h.cfg.Qdrant,
		IntentModel:     h.cfg.LLM.Intent.Model,
		MainModel:       h.cfg.LLM.Main.Model,
		EmbeddingDim:    h.cfg.Embedding.Dim,
		RetrievalK:      h.cfg.Retrieval.K,
	}

	logger.Info(ctx, "system info retrieved")
	c.JSON(200, gin.H{"code": 0, "msg": "success", "data": resp})
}
