package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAgentNotFound indicates no agent exists with the requested ID.
var ErrAgentNotFound = errors.New("agent not found")

// Store loads agents and their context configuration from PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store. A nil logger falls back to slog.Default().
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

type agentRow struct {
	ID            uuid.UUID `db:"id"`
	CompanyID     uuid.UUID `db:"company_id"`
	Role          string    `db:"role"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	Configuration []byte    `db:"configuration"`
}

// GetAgent fetches an agent by ID. Returns ErrAgentNotFound when no row
// exists.
func (s *Store) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	var row agentRow
	err := pgxscan.Get(ctx, s.pool, &row, `
		SELECT id, company_id, role, name, description, configuration
		FROM agents
		WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
		}
		return nil, fmt.Errorf("fetching agent %s: %w", id, err)
	}

	var cfg Config
	if len(row.Configuration) > 0 {
		if err := json.Unmarshal(row.Configuration, &cfg); err != nil {
			// A malformed blob should not make the agent unusable.
			s.logger.Warn("unparseable agent configuration, using defaults",
				"agent_id", id, "error", err)
			cfg = Config{}
		}
	}

	return &Agent{
		ID:            row.ID,
		CompanyID:     row.CompanyID,
		Role:          row.Role,
		Name:          row.Name,
		Description:   row.Description,
		Configuration: cfg,
	}, nil
}

type contextConfigRow struct {
	FoundationEnabled   bool    `db:"foundation_enabled"`
	SpecializedEnabled  bool    `db:"specialized_enabled"`
	SharedEnabled       bool    `db:"shared_enabled"`
	ProceduralEnabled   bool    `db:"procedural_enabled"`
	MaxChunksPerSource  int     `db:"max_chunks_per_source"`
	TotalMaxChunks      int     `db:"total_max_chunks"`
	SimilarityThreshold float32 `db:"similarity_threshold"`
	ExpansionEnabled    bool    `db:"expansion_enabled"`
	MaxExpandedQueries  int     `db:"max_expanded_queries"`
	RerankEnabled       bool    `db:"rerank_enabled"`
	RerankModel         string  `db:"rerank_model"`
	RerankTopN          int     `db:"rerank_top_n"`
	IncludeCitations    bool    `db:"include_citations"`
	CitationFormat      string  `db:"citation_format"`
	MaxContextTokens    int     `db:"max_context_tokens"`
}

// GetContextConfig fetches the retrieval tuning for an agent. A missing row
// is not an error: the documented defaults apply.
func (s *Store) GetContextConfig(ctx context.Context, agentID uuid.UUID) (ContextConfig, error) {
	var row contextConfigRow
	err := pgxscan.Get(ctx, s.pool, &row, `
		SELECT foundation_enabled, specialized_enabled, shared_enabled,
		       procedural_enabled, max_chunks_per_source, total_max_chunks,
		       similarity_threshold, expansion_enabled, max_expanded_queries,
		       rerank_enabled, rerank_model, rerank_top_n, include_citations,
		       citation_format, max_context_tokens
		FROM agent_context_configs
		WHERE agent_id = $1`, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("no context config for agent, using defaults", "agent_id", agentID)
			return DefaultContextConfig(), nil
		}
		return ContextConfig{}, fmt.Errorf("fetching context config for agent %s: %w", agentID, err)
	}

	return ContextConfig{
		FoundationEnabled:   row.FoundationEnabled,
		SpecializedEnabled:  row.SpecializedEnabled,
		SharedEnabled:       row.SharedEnabled,
		ProceduralEnabled:   row.ProceduralEnabled,
		MaxChunksPerSource:  row.MaxChunksPerSource,
		TotalMaxChunks:      row.TotalMaxChunks,
		SimilarityThreshold: row.SimilarityThreshold,
		ExpansionEnabled:    row.ExpansionEnabled,
		MaxExpandedQueries:  row.MaxExpandedQueries,
		RerankEnabled:       row.RerankEnabled,
		RerankModel:         row.RerankModel,
		RerankTopN:          row.RerankTopN,
		IncludeCitations:    row.IncludeCitations,
		CitationFormat:      row.CitationFormat,
		MaxContextTokens:    row.MaxContextTokens,
	}, nil
}
