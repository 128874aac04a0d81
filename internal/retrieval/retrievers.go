package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Retriever fetches chunks for one knowledge tier.
type Retriever interface {
	// Source identifies the tier this retriever serves.
	Source() Source

	// Retrieve returns up to q.Limit chunks. An empty slice is a valid
	// result, not an error.
	Retrieve(ctx context.Context, q Query) ([]Chunk, error)
}

// foundationScore is the placeholder relevance for foundation sections,
// which are authoritative rather than similarity-ranked.
const foundationScore = 0.9

// Foundation retrieves the fixed company-profile sections (tier 1).
type Foundation struct {
	pool *pgxpool.Pool
}

// NewFoundation creates the tier-1 retriever.
func NewFoundation(pool *pgxpool.Pool) *Foundation {
	return &Foundation{pool: pool}
}

func (*Foundation) Source() Source { return SourceFoundation }

type foundationRow struct {
	CompanyID string `db:"company_id"`
	Mission   string `db:"mission"`
	Products  string `db:"products"`
	Voice     string `db:"voice"`
	Policies  string `db:"policies"`
}

func (f *Foundation) Retrieve(ctx context.Context, q Query) ([]Chunk, error) {
	var row foundationRow
	err := pgxscan.Get(ctx, f.pool, &row, `
		SELECT company_id::text, mission, products, voice, policies
		FROM company_foundations
		WHERE company_id = $1`, q.CompanyID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching foundation record: %w", err)
	}

	sections := []struct {
		label   string
		content string
	}{
		{"mission", row.Mission},
		{"products", row.Products},
		{"brand voice", row.Voice},
		{"policies", row.Policies},
	}

	chunks := make([]Chunk, 0, q.Limit)
	for i, sec := range sections {
		if sec.content == "" {
			continue
		}
		if len(chunks) >= q.Limit {
			break
		}
		chunks = append(chunks, Chunk{
			ID:           fmt.Sprintf("foundation:%s:%d", row.CompanyID, i),
			Content:      sec.content,
			Source:       SourceFoundation,
			SourceDetail: "Company profile: " + sec.label,
			Score:        foundationScore,
		})
	}
	return chunks, nil
}

type chunkRow struct {
	ID           string  `db:"id"`
	Content      string  `db:"content"`
	SourceDetail string  `db:"source_detail"`
	Score        float32 `db:"score"`
}

// Specialized retrieves agent-scoped document chunks by vector similarity
// (tier 2).
type Specialized struct {
	pool *pgxpool.Pool
}

// NewSpecialized creates the tier-2 retriever.
func NewSpecialized(pool *pgxpool.Pool) *Specialized {
	return &Specialized{pool: pool}
}

func (*Specialized) Source() Source { return SourceSpecialized }

func (s *Specialized) Retrieve(ctx context.Context, q Query) ([]Chunk, error) {
	if len(q.Embedding) == 0 {
		return nil, nil
	}
	embedding := pgvector.NewVector(q.Embedding)

	var rows []chunkRow
	err := pgxscan.Select(ctx, s.pool, &rows, `
		SELECT id::text, content, source_detail,
		       1 - (embedding <=> $1) AS score
		FROM document_chunks
		WHERE company_id = $2
		  AND agent_id = $3
		  AND 1 - (embedding <=> $1) >= $4
		ORDER BY embedding <=> $1
		LIMIT $5`,
		embedding, q.CompanyID, q.AgentID, q.Threshold, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("searching agent documents: %w", err)
	}
	return rowsToChunks(rows, SourceSpecialized), nil
}

// Shared retrieves company-wide document chunks by vector similarity
// (tier 3). Shared chunks carry no agent binding.
type Shared struct {
	pool *pgxpool.Pool
}

// NewShared creates the tier-3 retriever.
func NewShared(pool *pgxpool.Pool) *Shared {
	return &Shared{pool: pool}
}

func (*Shared) Source() Source { return SourceShared }

func (s *Shared) Retrieve(ctx context.Context, q Query) ([]Chunk, error) {
	if len(q.Embedding) == 0 {
		return nil, nil
	}
	embedding := pgvector.NewVector(q.Embedding)

	var rows []chunkRow
	err := pgxscan.Select(ctx, s.pool, &rows, `
		SELECT id::text, content, source_detail,
		       1 - (embedding <=> $1) AS score
		FROM document_chunks
		WHERE company_id = $2
		  AND agent_id IS NULL
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`,
		embedding, q.CompanyID, q.Threshold, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("searching shared documents: %w", err)
	}
	return rowsToChunks(rows, SourceShared), nil
}

// Procedural retrieves playbook documents by keyword search (tier 4). The
// expanded query list widens recall: terms are OR-combined in websearch
// syntax.
type Procedural struct {
	pool *pgxpool.Pool
}

// NewProcedural creates the tier-4 retriever.
func NewProcedural(pool *pgxpool.Pool) *Procedural {
	return &Procedural{pool: pool}
}

func (*Procedural) Source() Source { return SourceProcedural }

func (p *Procedural) Retrieve(ctx context.Context, q Query) ([]Chunk, error) {
	search := keywordQuery(q)
	if search == "" {
		return nil, nil
	}

	var rows []chunkRow
	err := pgxscan.Select(ctx, p.pool, &rows, `
		SELECT id::text, content, title AS source_detail,
		       LEAST(ts_rank(tsv, websearch_to_tsquery('english', $1)), 1.0)::real AS score
		FROM playbooks
		WHERE company_id = $2
		  AND tsv @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $3`,
		search, q.CompanyID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("searching playbooks: %w", err)
	}
	return rowsToChunks(rows, SourceProcedural), nil
}

// keywordQuery builds a websearch expression from the expanded query list,
// falling back to the original text.
func keywordQuery(q Query) string {
	queries := q.Expanded
	if len(queries) == 0 {
		queries = []string{q.Text}
	}
	parts := make([]string, 0, len(queries))
	for _, s := range queries {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " or ")
}

func rowsToChunks(rows []chunkRow, source Source) []Chunk {
	chunks := make([]Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, Chunk{
			ID:           row.ID,
			Content:      row.Content,
			Source:       source,
			SourceDetail: row.SourceDetail,
			Score:        clamp01(row.Score),
		})
	}
	return chunks
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
