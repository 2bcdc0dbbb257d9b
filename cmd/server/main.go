// Command server runs the Sage conversational engine: the HTTP API, the
// asynq worker for alias discovery/decay, and the periodic decay
// scheduler, all wired by hand from one process before starting gin.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/contosowiki/sage/internal/alias"
	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/conversation"
	"github.com/contosowiki/sage/internal/embedding"
	"github.com/contosowiki/sage/internal/generator"
	"github.com/contosowiki/sage/internal/handler"
	"github.com/contosowiki/sage/internal/ingest"
	"github.com/contosowiki/sage/internal/intent"
	"github.com/contosowiki/sage/internal/llm"
	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/orchestrator"
	"github.com/contosowiki/sage/internal/pipeline"
	"github.com/contosowiki/sage/internal/quality"
	"github.com/contosowiki/sage/internal/ratelimit"
	"github.com/contosowiki/sage/internal/retrieval"
	"github.com/contosowiki/sage/internal/store"
	"github.com/contosowiki/sage/internal/vectorindex"
)

func main() {
	ctx := logger.CloneContext(context.Background())

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "config: %v", err)
		os.Exit(1)
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	if err := store.Migrate(cfg.Postgres); err != nil {
		logger.Errorf(ctx, "migrate: %v", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.Postgres)
	if err != nil {
		logger.Errorf(ctx, "db open: %v", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis})
	defer rdb.Close()

	vectorIndex, err := vectorindex.NewQdrantIndex(ctx, cfg.Qdrant, "sage_chunks", cfg.Embedding.Dim)
	if err != nil {
		logger.Errorf(ctx, "qdrant connect: %v", err)
		os.Exit(1)
	}

	embedder := embedding.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, "embedding-default", cfg.Embedding.Dim,
		time.Duration(cfg.Embedding.WarmTimeoutS)*time.Second)
	llmClient := llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey)

	documents := store.NewDocumentStore(db)
	conversations := store.NewConversationStore(db)
	messages := store.NewMessageStore(db)
	aliasStore := store.NewAliasStore(db)

	aliasRegistry := alias.NewRegistry(aliasStore, cfg)

	queueClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis})
	defer queueClient.Close()

	ingestPipeline := ingest.New(documents, vectorIndex, embedder, queueClient, cfg.AuthorityFor)
	aliasLearner := alias.NewLearner(queueClient)

	go func() {
		if err := embedder.Warm(ctx); err != nil {
			logger.Warnf(ctx, "embedding warm-up failed (will retry on first use): %v", err)
		}
	}()

	retrievalEngine := retrieval.NewEngine(embedder, vectorIndex, aliasRegistry, cfg)
	qualityAnalyzer := quality.NewAnalyzer()
	intentAnalyzer := intent.NewAnalyzer(llmClient, cfg.LLM.Intent)
	respGenerator := generator.NewGenerator(llmClient, cfg.LLM.Main)
	reviewer := generator.NewReviewer(llmClient, cfg.LLM.Intent)

	events := pipeline.NewEventManager()
	events.Register(pipeline.NewHistoryPlugin(conversations, messages, cfg))
	events.Register(pipeline.NewIntentPlugin(intentAnalyzer, cfg))
	events.Register(pipeline.NewExpandPlugin(aliasRegistry))
	events.Register(pipeline.NewRetrievePlugin(retrievalEngine))
	events.Register(pipeline.NewQualityPlugin(qualityAnalyzer))
	events.Register(pipeline.NewContextPlugin())
	events.Register(pipeline.NewGeneratePlugin(respGenerator))
	events.Register(pipeline.NewReviewPlugin(reviewer, respGenerator, cfg))
	events.Register(pipeline.NewPersistPlugin(messages, conversations, aliasLearner, cfg.Conversation.SummaryRefresh))

	coalescer := orchestrator.NewCoalescer(rdb, cfg.DedupWindow())
	orch := orchestrator.New(events, coalescer, cfg, messages)

	convLock := conversation.NewLock(rdb, 30*time.Second)
	limiter := ratelimit.New(rdb, cfg.RateLimit.TokensPerMinute, nil)

	go runWorker(ctx, cfg, aliasRegistry, documents)
	go runScheduler(ctx, cfg)
	go runIdleSweeper(ctx, cfg, conversations)

	router := newRouter(cfg, orch, conversations, convLock, limiter, ingestPipeline)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		logger.Infof(ctx, "sage listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf(ctx, "http server: %v", err)
		}
	}()

	waitForShutdown(ctx, srv)
}

func newRouter(
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	conversations *store.ConversationStore,
	convLock *conversation.Lock,
	limiter *ratelimit.Limiter,
	ingestPipeline *ingest.Pipeline,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	answerHandler := handler.NewAnswerHandler(orch, conversations, convLock, limiter, cfg)
	systemHandler := handler.NewSystemHandler(cfg)
	ingestHandler := handler.NewIngestHandler(ingestPipeline)

	v1 := r.Group("/v1")
	v1.Use(handler.AuthMiddleware(cfg))
	v1.POST("/conversations/answer", answerHandler.Answer)
	v1.POST("/documents", ingestHandler.Ingest)
	v1.DELETE("/documents/:id", ingestHandler.Purge)
	v1.GET("/system/info", systemHandler.GetSystemInfo)

	return r
}

// runWorker runs the asynq server handling the alias maintenance tasks,
// blocking until ctx is cancelled.
func runWorker(ctx context.Context, cfg *config.Config, registry *alias.Registry, documents *store.DocumentStore) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Redis},
		asynq.Config{Concurrency: 4},
	)
	mux := asynq.NewServeMux()
	discoveryHandler := alias.NewDiscoveryHandler(registry, documents)
	decayHandler := alias.NewDecayHandler(registry)
	conversationalHandler := alias.NewConversationalHandler(registry)
	mux.HandleFunc(alias.TaskDiscoveryPass, discoveryHandler.Handle)
	mux.HandleFunc(alias.TaskDecayPass, decayHandler.Handle)
	mux.HandleFunc(alias.TaskConversationalPass, conversationalHandler.Handle)

	if err := srv.Run(mux); err != nil {
		logger.Errorf(ctx, "asynq worker stopped: %v", err)
	}
}

// runScheduler enqueues the daily alias-decay pass through asynq rather
// than a separate cron binary. The not-reinforced grace window
// (alias.decay_interval_days) is applied by the task itself, not by the
// schedule.
func runScheduler(ctx context.Context, cfg *config.Config) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis})
	defer client.Close()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := client.Enqueue(alias.NewDecayTask()); err != nil {
				logger.Warnf(ctx, "scheduler: failed to enqueue decay pass: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// runIdleSweeper closes conversations that have gone quiet past the
// configured idle timeout.
func runIdleSweeper(ctx context.Context, cfg *config.Config, conversations *store.ConversationStore) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	idle := time.Duration(cfg.Conversation.IdleTimeoutMins) * time.Minute
	for {
		select {
		case <-ticker.C:
			closed, err := conversations.CloseIdle(ctx, idle)
			if err != nil {
				logger.Warnf(ctx, "idle sweeper: %v", err)
				continue
			}
			if closed > 0 {
				logger.Infof(ctx, "idle sweeper: closed %d conversations", closed)
			}
		case <-ctx.Done():
			return
		}
	}
}

func waitForShutdown(ctx context.Context, srv *http.Server) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "http server shutdown: %v", err)
	}
}
