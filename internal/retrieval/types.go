// Package retrieval implements the four-tier knowledge retrieval fan-out.
//
// Tiers, in fixed presentation order:
//
//	foundation  — one authoritative record per company, fixed sections
//	specialized — agent-scoped document chunks, vector similarity
//	shared      — company-wide document chunks, vector similarity
//	procedural  — playbooks and procedures, keyword search
//
// All enabled tiers are queried concurrently; a failing tier degrades to an
// empty result and never fails the request.
package retrieval

import "github.com/google/uuid"

// Source identifies the knowledge tier a chunk came from.
type Source string

const (
	SourceFoundation  Source = "foundation"
	SourceSpecialized Source = "specialized"
	SourceShared      Source = "shared"
	SourceProcedural  Source = "procedural"
)

// TierOrder is the fixed prompt presentation order.
var TierOrder = []Source{SourceFoundation, SourceSpecialized, SourceShared, SourceProcedural}

// tierRank returns the position of a source in TierOrder; unknown sources
// sort last.
func tierRank(s Source) int {
	for i, t := range TierOrder {
		if t == s {
			return i
		}
	}
	return len(TierOrder)
}

// Chunk is one retrievable knowledge unit.
type Chunk struct {
	ID           string
	Content      string
	Source       Source
	SourceDetail string

	// Score is the chunk's current relevance in [0,1]. Before reranking it
	// equals the retriever's similarity (or placeholder); after reranking it
	// is the reranker's relevance.
	Score float32

	// RerankScore is set only on chunks that survived reranking.
	RerankScore *float32

	// OriginalScore preserves the pre-rerank score once reranking runs.
	OriginalScore *float32
}

// BestScore returns the chunk's most authoritative score: rerank first, then
// original, then zero.
func (c Chunk) BestScore() float32 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	if c.OriginalScore != nil {
		return *c.OriginalScore
	}
	return c.Score
}

// Query carries everything a retriever needs for one request.
type Query struct {
	CompanyID uuid.UUID
	AgentID   uuid.UUID

	// Text is the original user message.
	Text string

	// Expanded is the full query list, original first.
	Expanded []string

	// Embedding is the vector of the original query text.
	Embedding []float32

	// Limit is the per-source chunk cap.
	Limit int

	// Threshold is the minimum similarity for vector-searched tiers.
	Threshold float32
}
