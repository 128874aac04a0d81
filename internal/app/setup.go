package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/groundworkhq/groundwork/db"
	"github.com/groundworkhq/groundwork/internal/agent"
	"github.com/groundworkhq/groundwork/internal/config"
	"github.com/groundworkhq/groundwork/internal/database"
	"github.com/groundworkhq/groundwork/internal/expansion"
	"github.com/groundworkhq/groundwork/internal/llm"
	"github.com/groundworkhq/groundwork/internal/log"
	"github.com/groundworkhq/groundwork/internal/observability"
	"github.com/groundworkhq/groundwork/internal/pipeline"
	"github.com/groundworkhq/groundwork/internal/rerank"
	"github.com/groundworkhq/groundwork/internal/retrieval"
	"github.com/groundworkhq/groundwork/internal/telemetry"
	"github.com/groundworkhq/groundwork/internal/web"
)

// Setup builds the full service from configuration. On error everything
// already constructed is released.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	logger := newLogger(cfg)
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	otelShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		// Tracing is not worth failing startup over.
		logger.Warn("tracing setup failed, continuing without traces", "error", err)
	}
	a.otelShutdown = otelShutdown

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.GeminiAPIKey}))
	if g == nil {
		return nil, fmt.Errorf("initializing genkit")
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	cache, err := expansion.NewLRUCache(cfg.ExpansionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating expansion cache: %w", err)
	}
	expander := expansion.New(
		llm.NewGenkitGenerator(g, "googleai/"+cfg.ExpansionModel),
		cache,
		cfg.ExpansionModel,
		logger.With("component", "expansion"),
	)

	recorder := telemetry.NewRecorder(
		telemetry.NewPostgresSink(pool),
		cfg.TelemetryQueueSize,
		logger.With("component", "telemetry"),
	)
	a.recorder = recorder

	p := pipeline.New(pipeline.Deps{
		Store:    agent.NewStore(pool, logger.With("component", "agent-store")),
		Expander: expander,
		Embedder: llm.NewGenkitEmbedder(embedder),
		Retrievers: pipeline.Retrievers{
			Foundation:  retrieval.NewFoundation(pool),
			Specialized: retrieval.NewSpecialized(pool),
			Shared:      retrieval.NewShared(pool),
			Procedural:  retrieval.NewProcedural(pool),
		},
		Reranker: rerank.NewClient(cfg.RerankBaseURL, cfg.RerankAPIKey),
		Streamer: llm.NewCompletionClient(cfg.CompletionBaseURL, cfg.CompletionAPIKey),
		Recorder: recorder,
		Defaults: pipeline.Defaults{
			CompletionModel: cfg.CompletionModel,
			Temperature:     cfg.Temperature,
		},
		Logger: logger.With("component", "pipeline"),
	})

	server := web.NewServer(p,
		web.NewAuthenticator(cfg.JWTSecret),
		web.NewRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst),
		logger.With("component", "web"),
	)

	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func newLogger(cfg *config.Config) log.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
