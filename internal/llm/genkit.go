// Package llm wraps the model providers behind small consumer interfaces:
// embeddings and query-expansion generation go through Genkit, the streamed
// chat completion goes straight to an OpenAI-compatible endpoint so the
// response body can be proxied to the caller unmodified.
package llm

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitEmbedder adapts a Genkit ai.Embedder to the pipeline's
// text-to-vector interface.
type GenkitEmbedder struct {
	embedder ai.Embedder
}

// NewGenkitEmbedder wraps an ai.Embedder.
func NewGenkitEmbedder(embedder ai.Embedder) *GenkitEmbedder {
	return &GenkitEmbedder{embedder: embedder}
}

// Embed generates the embedding vector for one text.
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText(text, nil),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}

// GenkitGenerator produces non-streamed completions for internal prompts
// (query expansion).
type GenkitGenerator struct {
	g     *genkit.Genkit
	model string
}

// NewGenkitGenerator creates a generator bound to one model. model must be
// the fully qualified Genkit name (e.g. "googleai/gemini-2.5-flash").
func NewGenkitGenerator(g *genkit.Genkit, model string) *GenkitGenerator {
	return &GenkitGenerator{g: g, model: model}
}

// Generate runs a single text completion and returns the raw model text.
func (gg *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName(gg.model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return resp.Text(), nil
}
