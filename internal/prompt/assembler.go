// Package prompt assembles the grounded system prompt from the final chunk
// set: token budgeting, fixed tier ordering, citation rendering, and the
// persona template.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/groundworkhq/groundwork/internal/agent"
	"github.com/groundworkhq/groundwork/internal/retrieval"
)

// tierHeadings maps each source to its prompt section heading.
var tierHeadings = map[retrieval.Source]string{
	retrieval.SourceFoundation:  "Company Foundation",
	retrieval.SourceSpecialized: "Agent Knowledge",
	retrieval.SourceShared:      "Company Knowledge",
	retrieval.SourceProcedural:  "Playbooks & Procedures",
}

// EstimateTokens approximates the token count of a text. Four characters
// per token is close enough for budget enforcement against chat models.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// FitBudget drops the lowest-scored chunks until the combined content fits
// maxTokens. A non-positive budget disables enforcement. Relative order of
// the surviving chunks is preserved.
func FitBudget(chunks []retrieval.Chunk, maxTokens int) []retrieval.Chunk {
	if maxTokens <= 0 {
		return chunks
	}

	total := 0
	for _, c := range chunks {
		total += EstimateTokens(c.Content)
	}
	if total <= maxTokens {
		return chunks
	}

	// Indices sorted worst-first by best available score.
	byScore := make([]int, len(chunks))
	for i := range byScore {
		byScore[i] = i
	}
	sort.SliceStable(byScore, func(a, b int) bool {
		return chunks[byScore[a]].BestScore() < chunks[byScore[b]].BestScore()
	})

	dropped := make(map[int]bool)
	for _, idx := range byScore {
		if total <= maxTokens {
			break
		}
		dropped[idx] = true
		total -= EstimateTokens(chunks[idx].Content)
	}

	kept := make([]retrieval.Chunk, 0, len(chunks)-len(dropped))
	for i, c := range chunks {
		if !dropped[i] {
			kept = append(kept, c)
		}
	}
	return kept
}

// Assembler renders the final system prompt.
type Assembler struct {
	includeCitations bool
}

// NewAssembler creates an Assembler honoring the agent's citation setting.
func NewAssembler(includeCitations bool) *Assembler {
	return &Assembler{includeCitations: includeCitations}
}

// BuildContext renders the chunk set grouped by tier in fixed order. Tiers
// with no chunks produce no section; an empty chunk set produces an empty
// string.
func (a *Assembler) BuildContext(chunks []retrieval.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	byTier := make(map[retrieval.Source][]retrieval.Chunk, len(retrieval.TierOrder))
	for _, c := range chunks {
		byTier[c.Source] = append(byTier[c.Source], c)
	}

	var b strings.Builder
	for _, tier := range retrieval.TierOrder {
		tierChunks := byTier[tier]
		if len(tierChunks) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", tierHeadings[tier])
		for _, c := range tierChunks {
			if a.includeCitations && c.SourceDetail != "" {
				fmt.Fprintf(&b, "[source: %s]\n", c.SourceDetail)
			}
			b.WriteString(strings.TrimSpace(c.Content))
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Build produces the complete system prompt: persona, grounded context, the
// literal user query, and the fixed behavioral instructions.
func (a *Assembler) Build(ag *agent.Agent, chunks []retrieval.Chunk, query string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, %s for this company.\n", ag.Name, ag.Role)
	if ag.Description != "" {
		b.WriteString(ag.Description)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if ctx := a.BuildContext(chunks); ctx != "" {
		b.WriteString("# Context\n\n")
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "# User Question\n\n%s\n\n", query)

	b.WriteString(`# Instructions

- Answer the question directly using the context above.
- Cite the context you relied on when it informs your answer.
- Honor the company's brand voice in every response.
- When multiple points apply, prioritize by business impact.`)

	return b.String()
}
