// Package pipeline orchestrates one chat turn: load the agent, expand and
// embed the query, fan out retrieval, rerank when the candidate pool
// overflows the budget, assemble the grounded prompt, and open the completion
// stream. Retrieval quality stages degrade silently; embedding and completion
// failures are fatal.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/groundworkhq/groundwork/internal/agent"
	"github.com/groundworkhq/groundwork/internal/llm"
	"github.com/groundworkhq/groundwork/internal/log"
	"github.com/groundworkhq/groundwork/internal/prompt"
	"github.com/groundworkhq/groundwork/internal/rerank"
	"github.com/groundworkhq/groundwork/internal/retrieval"
	"github.com/groundworkhq/groundwork/internal/telemetry"
)

// embedTimeout bounds the query embedding call. Unlike expansion and rerank,
// embedding failure is fatal: without a vector the two similarity tiers
// cannot run as configured.
const embedTimeout = 15 * time.Second

// AgentStore loads agents and their retrieval tuning.
type AgentStore interface {
	GetAgent(ctx context.Context, id uuid.UUID) (*agent.Agent, error)
	GetContextConfig(ctx context.Context, agentID uuid.UUID) (agent.ContextConfig, error)
}

// QueryExpander widens the query; it never fails.
type QueryExpander interface {
	Expand(ctx context.Context, query string, maxQueries int) []string
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker reorders candidate documents by relevance to the query.
type Reranker interface {
	Rerank(ctx context.Context, model, query string, documents []string, topN int) ([]rerank.Ranked, error)
}

// Streamer opens the upstream completion stream.
type Streamer interface {
	Stream(ctx context.Context, req llm.StreamRequest) (*llm.Stream, error)
}

// TelemetryRecorder accepts audit entries without blocking.
type TelemetryRecorder interface {
	Record(e telemetry.Entry)
}

// Retrievers holds one retriever per knowledge tier.
type Retrievers struct {
	Foundation  retrieval.Retriever
	Specialized retrieval.Retriever
	Shared      retrieval.Retriever
	Procedural  retrieval.Retriever
}

// Defaults are the completion parameters applied when the agent's
// configuration does not override them.
type Defaults struct {
	CompletionModel string
	Temperature     float32
}

// Request is one chat turn.
type Request struct {
	AgentID        uuid.UUID
	CompanyID      uuid.UUID
	Message        string
	ConversationID string
	UserID         string
}

// Response carries the open completion stream plus the retrieval metadata the
// transport exposes in headers.
type Response struct {
	Stream     *llm.Stream
	Confidence float32
	ChunksUsed int
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Store      AgentStore
	Expander   QueryExpander
	Embedder   Embedder
	Retrievers Retrievers
	Reranker   Reranker
	Streamer   Streamer
	Recorder   TelemetryRecorder
	Defaults   Defaults
	Logger     log.Logger
}

// Pipeline executes chat turns.
type Pipeline struct {
	deps   Deps
	tracer trace.Tracer
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = log.NewNop()
	}
	return &Pipeline{
		deps:   deps,
		tracer: otel.Tracer("groundwork/pipeline"),
	}
}

// Respond runs the full pipeline for one request. On success the caller owns
// the returned stream body.
func (p *Pipeline) Respond(ctx context.Context, req Request) (*Response, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.respond",
		trace.WithAttributes(
			attribute.String("agent.id", req.AgentID.String()),
			attribute.String("company.id", req.CompanyID.String()),
		))
	defer span.End()

	start := time.Now()

	ag, err := p.deps.Store.GetAgent(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			return nil, &NotFoundError{Resource: "agent", ID: req.AgentID.String()}
		}
		return nil, fmt.Errorf("loading agent: %w", err)
	}
	// Cross-tenant requests look identical to missing agents.
	if ag.CompanyID != req.CompanyID {
		return nil, &NotFoundError{Resource: "agent", ID: req.AgentID.String()}
	}

	cfg, err := p.deps.Store.GetContextConfig(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("loading context config: %w", err)
	}

	queries := p.expand(ctx, req.Message, cfg)

	embedding, err := p.embed(ctx, req.Message, cfg)
	if err != nil {
		return nil, err
	}

	retrievalStart := time.Now()
	pool := retrieval.Fanout(ctx, p.deps.Logger, p.enabledRetrievers(cfg), retrieval.Query{
		CompanyID: req.CompanyID,
		AgentID:   req.AgentID,
		Text:      req.Message,
		Expanded:  queries,
		Embedding: embedding,
		Limit:     cfg.MaxChunksPerSource,
		Threshold: cfg.SimilarityThreshold,
	})
	retrievalTime := time.Since(retrievalStart)

	chunks, rerankTime := p.rerank(ctx, req.Message, pool, cfg)

	if len(chunks) > cfg.TotalMaxChunks {
		chunks = chunks[:cfg.TotalMaxChunks]
	}
	chunks = prompt.FitBudget(chunks, cfg.MaxContextTokens)

	confidence := retrieval.Confidence(chunks)
	span.SetAttributes(
		attribute.Int("retrieval.pool_size", len(pool)),
		attribute.Int("retrieval.chunks_used", len(chunks)),
		attribute.Float64("retrieval.confidence", float64(confidence)),
	)

	systemPrompt := prompt.NewAssembler(cfg.IncludeCitations).Build(ag, chunks, req.Message)

	model, temperature := p.completionParams(ag)
	stream, err := p.deps.Streamer.Stream(ctx, llm.StreamRequest{
		SystemPrompt: systemPrompt,
		UserMessage:  req.Message,
		Model:        model,
		Temperature:  temperature,
	})
	if err != nil {
		return nil, &UpstreamError{Stage: "completion", Err: err}
	}

	// The stream is open; the audit entry rides the background queue and can
	// no longer affect this request.
	p.deps.Recorder.Record(telemetry.Entry{
		ConversationID:  req.ConversationID,
		AgentID:         req.AgentID,
		CompanyID:       req.CompanyID,
		OriginalQuery:   req.Message,
		ExpandedQueries: queries[1:],
		Chunks:          telemetry.PreviewChunks(chunks),
		RetrievalTime:   retrievalTime,
		RerankTime:      rerankTime,
		TotalTime:       time.Since(start),
		Confidence:      confidence,
		ChunksUsed:      len(chunks),
	})

	return &Response{
		Stream:     stream,
		Confidence: confidence,
		ChunksUsed: len(chunks),
	}, nil
}

func validate(req Request) error {
	switch {
	case req.AgentID == uuid.Nil:
		return &ValidationError{Reason: "agent_id is required"}
	case req.CompanyID == uuid.Nil:
		return &ValidationError{Reason: "company_id is required"}
	case req.Message == "":
		return &ValidationError{Reason: "message is required"}
	}
	return nil
}

// expand returns the query list, original first. Skipped entirely when the
// agent disables expansion.
func (p *Pipeline) expand(ctx context.Context, message string, cfg agent.ContextConfig) []string {
	if !cfg.ExpansionEnabled {
		return []string{message}
	}
	ctx, span := p.tracer.Start(ctx, "pipeline.expand")
	defer span.End()
	return p.deps.Expander.Expand(ctx, message, cfg.MaxExpandedQueries)
}

// embed vectorizes the original query. Skipped when no similarity tier is
// enabled; a failure is fatal because the configured tiers cannot run.
func (p *Pipeline) embed(ctx context.Context, message string, cfg agent.ContextConfig) ([]float32, error) {
	if !cfg.SpecializedEnabled && !cfg.SharedEnabled {
		return nil, nil
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.embed")
	defer span.End()

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	embedding, err := p.deps.Embedder.Embed(embedCtx, message)
	if err != nil {
		return nil, &UpstreamError{Stage: "embedding", Err: err}
	}
	return embedding, nil
}

func (p *Pipeline) enabledRetrievers(cfg agent.ContextConfig) []retrieval.Retriever {
	var out []retrieval.Retriever
	if cfg.FoundationEnabled && p.deps.Retrievers.Foundation != nil {
		out = append(out, p.deps.Retrievers.Foundation)
	}
	if cfg.SpecializedEnabled && p.deps.Retrievers.Specialized != nil {
		out = append(out, p.deps.Retrievers.Specialized)
	}
	if cfg.SharedEnabled && p.deps.Retrievers.Shared != nil {
		out = append(out, p.deps.Retrievers.Shared)
	}
	if cfg.ProceduralEnabled && p.deps.Retrievers.Procedural != nil {
		out = append(out, p.deps.Retrievers.Procedural)
	}
	return out
}

// rerank reorders the pool when it overflows the total budget. Reranking
// always uses the original query, never the expanded variants. On failure the
// pool is returned unchanged for naive truncation.
func (p *Pipeline) rerank(ctx context.Context, query string, pool []retrieval.Chunk, cfg agent.ContextConfig) ([]retrieval.Chunk, time.Duration) {
	if !cfg.RerankEnabled || len(pool) <= cfg.TotalMaxChunks {
		return pool, 0
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.rerank")
	defer span.End()

	start := time.Now()

	documents := make([]string, len(pool))
	for i, c := range pool {
		documents[i] = c.Content
	}

	topN := cfg.RerankTopN
	if topN <= 0 || topN > cfg.TotalMaxChunks {
		topN = cfg.TotalMaxChunks
	}

	ranked, err := p.deps.Reranker.Rerank(ctx, cfg.RerankModel, query, documents, topN)
	if err != nil {
		p.deps.Logger.Warn("rerank failed, falling back to similarity order", "error", err)
		return pool, time.Since(start)
	}

	out := make([]retrieval.Chunk, 0, len(ranked))
	for _, r := range ranked {
		c := pool[r.Index]
		original := c.Score
		score := r.Score
		c.OriginalScore = &original
		c.RerankScore = &score
		c.Score = score
		out = append(out, c)
	}
	return out, time.Since(start)
}

func (p *Pipeline) completionParams(ag *agent.Agent) (string, float32) {
	model := p.deps.Defaults.CompletionModel
	if ag.Configuration.Model != "" {
		model = ag.Configuration.Model
	}
	temperature := p.deps.Defaults.Temperature
	if ag.Configuration.Temperature != nil {
		temperature = *ag.Configuration.Temperature
	}
	return model, temperature
}
