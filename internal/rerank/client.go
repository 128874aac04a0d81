// Package rerank provides the cross-source relevance reranking client.
//
// The service speaks the Cohere-compatible rerank API: the full candidate
// content list plus the original query go out, an ordered subset with
// relevance scores comes back. Callers decide how to apply failures; the
// pipeline degrades to naive truncation.
package rerank

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// requestTimeout bounds a rerank call. Reranking is optional quality
// improvement, so the bound is tight; on expiry the caller falls back.
const requestTimeout = 10 * time.Second

// Ranked is one reranked document: its index into the submitted document
// list and the relevance score assigned by the model.
type Ranked struct {
	Index int     `json:"index"`
	Score float32 `json:"relevance_score"`
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []Ranked `json:"results"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client calls the rerank endpoint.
type Client struct {
	http *resty.Client
}

// NewClient creates a Client for the given base URL and API key.
func NewClient(baseURL, apiKey string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient}
}

// Rerank submits documents for relevance reordering against query and
// returns the top topN results, most relevant first.
func (c *Client) Rerank(ctx context.Context, model, query string, documents []string, topN int) ([]Ranked, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if topN > len(documents) {
		topN = len(documents)
	}

	var (
		body   rerankResponse
		apiErr errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rerankRequest{
			Model:     model,
			Query:     query,
			Documents: documents,
			TopN:      topN,
		}).
		SetResult(&body).
		SetError(&apiErr).
		Post("/v1/rerank")
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rerank returned %d: %s", resp.StatusCode(), apiErr.Message)
	}

	// Guard against indices the model should never return.
	valid := body.Results[:0]
	for _, r := range body.Results {
		if r.Index >= 0 && r.Index < len(documents) {
			valid = append(valid, r)
		}
	}
	return valid, nil
}
