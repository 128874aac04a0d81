// Integration tests against a real PostgreSQL instance with pgvector. They
// start a container via testcontainers and skip when Docker is unavailable.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/groundworkhq/groundwork/internal/agent"
	"github.com/groundworkhq/groundwork/internal/log"
	"github.com/groundworkhq/groundwork/internal/retrieval"
	"github.com/groundworkhq/groundwork/internal/telemetry"
	"github.com/groundworkhq/groundwork/internal/testutil"
)

var (
	companyID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	agentID   = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001")
)

// unitVector builds a 768-dim unit vector pointing mostly along one axis, so
// cosine similarity between same-axis vectors is ~1 and cross-axis ~0.
func unitVector(axis int) []float32 {
	v := make([]float32, 768)
	v[axis] = 1
	return v
}

func seed(t *testing.T, tdb *testutil.TestDB) {
	t.Helper()
	ctx := context.Background()

	_, err := tdb.Pool.Exec(ctx, `
		INSERT INTO agents (id, company_id, role, name, description, configuration)
		VALUES ($1, $2, 'support assistant', 'Atlas', 'Billing helper',
		        '{"model":"gpt-4o","temperature":0.3,"routing":{"tier":"fast"}}')`,
		agentID, companyID)
	if err != nil {
		t.Fatalf("seeding agent: %v", err)
	}

	_, err = tdb.Pool.Exec(ctx, `
		INSERT INTO company_foundations (company_id, mission, products, voice, policies)
		VALUES ($1, 'Make billing painless.', 'Invoicing suite', 'Friendly and direct', '30-day refunds')`,
		companyID)
	if err != nil {
		t.Fatalf("seeding foundation: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err = tdb.Pool.Exec(ctx, `
			INSERT INTO document_chunks (company_id, agent_id, source_detail, content, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			companyID, agentID, fmt.Sprintf("billing-guide-%d", i),
			fmt.Sprintf("agent doc %d", i), pgvector.NewVector(unitVector(i)))
		if err != nil {
			t.Fatalf("seeding agent chunk: %v", err)
		}
	}
	_, err = tdb.Pool.Exec(ctx, `
		INSERT INTO document_chunks (company_id, agent_id, source_detail, content, embedding)
		VALUES ($1, NULL, 'company-handbook', 'shared doc', $2)`,
		companyID, pgvector.NewVector(unitVector(0)))
	if err != nil {
		t.Fatalf("seeding shared chunk: %v", err)
	}

	_, err = tdb.Pool.Exec(ctx, `
		INSERT INTO playbooks (company_id, title, content)
		VALUES ($1, 'Refund playbook', 'How to process a customer refund request step by step')`,
		companyID)
	if err != nil {
		t.Fatalf("seeding playbook: %v", err)
	}
}

func TestDatabaseRoundTrip(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	seed(t, tdb)
	ctx := context.Background()

	t.Run("agent store", func(t *testing.T) {
		store := agent.NewStore(tdb.Pool, log.NewNop())

		ag, err := store.GetAgent(ctx, agentID)
		if err != nil {
			t.Fatalf("GetAgent() = %v", err)
		}
		if ag.Name != "Atlas" || ag.CompanyID != companyID {
			t.Errorf("agent = %+v", ag)
		}
		if ag.Configuration.Model != "gpt-4o" {
			t.Errorf("Model = %q", ag.Configuration.Model)
		}
		if ag.Configuration.Temperature == nil || *ag.Configuration.Temperature != 0.3 {
			t.Errorf("Temperature = %v", ag.Configuration.Temperature)
		}
		if _, ok := ag.Configuration.Extra["routing"]; !ok {
			t.Error("unknown configuration keys must be preserved")
		}

		if _, err := store.GetAgent(ctx, uuid.New()); err == nil {
			t.Error("expected error for unknown agent")
		}

		cfg, err := store.GetContextConfig(ctx, agentID)
		if err != nil {
			t.Fatalf("GetContextConfig() = %v", err)
		}
		if cfg != agent.DefaultContextConfig() {
			t.Errorf("missing config row should yield defaults, got %+v", cfg)
		}
	})

	t.Run("foundation retriever", func(t *testing.T) {
		chunks, err := retrieval.NewFoundation(tdb.Pool).Retrieve(ctx, retrieval.Query{
			CompanyID: companyID, Limit: 4,
		})
		if err != nil {
			t.Fatalf("Retrieve() = %v", err)
		}
		if len(chunks) != 4 {
			t.Fatalf("got %d foundation chunks, want 4", len(chunks))
		}
		for _, c := range chunks {
			if c.Source != retrieval.SourceFoundation || c.Score != 0.9 {
				t.Errorf("chunk = %+v", c)
			}
		}
	})

	t.Run("specialized retriever", func(t *testing.T) {
		chunks, err := retrieval.NewSpecialized(tdb.Pool).Retrieve(ctx, retrieval.Query{
			CompanyID: companyID,
			AgentID:   agentID,
			Embedding: unitVector(0),
			Limit:     3,
			Threshold: 0.7,
		})
		if err != nil {
			t.Fatalf("Retrieve() = %v", err)
		}
		if len(chunks) != 1 {
			t.Fatalf("got %d chunks above threshold, want 1: %+v", len(chunks), chunks)
		}
		if chunks[0].Content != "agent doc 0" || chunks[0].Score < 0.99 {
			t.Errorf("chunk = %+v", chunks[0])
		}
	})

	t.Run("shared retriever excludes agent chunks", func(t *testing.T) {
		chunks, err := retrieval.NewShared(tdb.Pool).Retrieve(ctx, retrieval.Query{
			CompanyID: companyID,
			Embedding: unitVector(0),
			Limit:     5,
			Threshold: 0.7,
		})
		if err != nil {
			t.Fatalf("Retrieve() = %v", err)
		}
		if len(chunks) != 1 || chunks[0].Content != "shared doc" {
			t.Errorf("chunks = %+v, want only the shared doc", chunks)
		}
	})

	t.Run("procedural retriever", func(t *testing.T) {
		chunks, err := retrieval.NewProcedural(tdb.Pool).Retrieve(ctx, retrieval.Query{
			CompanyID: companyID,
			Text:      "refund",
			Expanded:  []string{"refund", "money back"},
			Limit:     3,
		})
		if err != nil {
			t.Fatalf("Retrieve() = %v", err)
		}
		if len(chunks) != 1 {
			t.Fatalf("got %d playbook chunks, want 1", len(chunks))
		}
		if chunks[0].SourceDetail != "Refund playbook" {
			t.Errorf("SourceDetail = %q", chunks[0].SourceDetail)
		}
		if chunks[0].Score <= 0 || chunks[0].Score > 1 {
			t.Errorf("Score = %v, want in (0,1]", chunks[0].Score)
		}
	})

	t.Run("tenant isolation", func(t *testing.T) {
		otherCompany := uuid.New()
		chunks, err := retrieval.NewShared(tdb.Pool).Retrieve(ctx, retrieval.Query{
			CompanyID: otherCompany,
			Embedding: unitVector(0),
			Limit:     5,
			Threshold: 0,
		})
		if err != nil {
			t.Fatalf("Retrieve() = %v", err)
		}
		if len(chunks) != 0 {
			t.Errorf("cross-tenant query returned %d chunks", len(chunks))
		}
	})

	t.Run("telemetry sink", func(t *testing.T) {
		sink := telemetry.NewPostgresSink(tdb.Pool)
		err := sink.Write(ctx, telemetry.Entry{
			ConversationID:  "conv-1",
			AgentID:         agentID,
			CompanyID:       companyID,
			OriginalQuery:   "refund?",
			ExpandedQueries: []string{"money back"},
			Chunks: []telemetry.ChunkPreview{
				{ID: "c1", Source: "shared", Score: 0.8, Preview: "shared doc"},
			},
			RetrievalTime: 120 * time.Millisecond,
			RerankTime:    40 * time.Millisecond,
			TotalTime:     300 * time.Millisecond,
			Confidence:    0.81,
			ChunksUsed:    1,
		})
		if err != nil {
			t.Fatalf("Write() = %v", err)
		}

		var (
			query       string
			retrievalMs int64
			confidence  float32
			used        int
		)
		err = tdb.Pool.QueryRow(ctx, `
			SELECT original_query, retrieval_time_ms, confidence_score, chunks_used_in_prompt
			FROM retrieval_logs WHERE agent_id = $1`, agentID).
			Scan(&query, &retrievalMs, &confidence, &used)
		if err != nil {
			t.Fatalf("reading log row: %v", err)
		}
		if query != "refund?" || retrievalMs != 120 || used != 1 {
			t.Errorf("row = %q/%d/%d", query, retrievalMs, used)
		}
		if confidence < 0.80 || confidence > 0.82 {
			t.Errorf("confidence = %v", confidence)
		}
	})
}
