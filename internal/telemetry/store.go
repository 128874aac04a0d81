package telemetry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes audit entries to the retrieval_logs table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a sink backed by the given pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Write inserts one audit row.
func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	expanded := e.ExpandedQueries
	if expanded == nil {
		expanded = []string{}
	}
	previews := e.Chunks
	if previews == nil {
		previews = []ChunkPreview{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO retrieval_logs (
			conversation_id, agent_id, company_id,
			original_query, expanded_queries, chunk_previews,
			retrieval_time_ms, rerank_time_ms, total_time_ms,
			confidence_score, chunks_used_in_prompt
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ConversationID, e.AgentID, e.CompanyID,
		e.OriginalQuery, expanded, previews,
		e.RetrievalTime.Milliseconds(), e.RerankTime.Milliseconds(), e.TotalTime.Milliseconds(),
		e.Confidence, e.ChunksUsed,
	)
	if err != nil {
		return fmt.Errorf("inserting retrieval log: %w", err)
	}
	return nil
}
