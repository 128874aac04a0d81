package llm

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// StreamRequest describes one streamed chat completion.
type StreamRequest struct {
	SystemPrompt string
	UserMessage  string
	Model        string
	Temperature  float32
}

// Stream is an open upstream completion stream. The caller must Close the
// body.
type Stream struct {
	Body        io.ReadCloser
	ContentType string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

// connectTimeout bounds connection establishment and request write. The
// stream itself has no deadline; the caller's context cancels it.
const connectTimeout = 30 * time.Second

// CompletionClient issues streamed chat completions against an
// OpenAI-compatible endpoint. The response body is handed to the caller
// unread so it can be proxied byte-for-byte.
type CompletionClient struct {
	http *resty.Client
}

// NewCompletionClient creates a client for the given base URL and API key.
func NewCompletionClient(baseURL, apiKey string) *CompletionClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetDoNotParseResponse(true) // hand the raw body to the caller

	return &CompletionClient{http: httpClient}
}

// Stream opens a streamed completion. A non-2xx upstream status is returned
// as an error with the body consumed and closed; on success the caller owns
// the body.
func (c *CompletionClient) Stream(ctx context.Context, req StreamRequest) (*Stream, error) {
	connectCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(connectTimeout, cancel)

	resp, err := c.http.R().
		SetContext(connectCtx).
		SetBody(chatCompletionRequest{
			Model: req.Model,
			Messages: []chatMessage{
				{Role: "system", Content: req.SystemPrompt},
				{Role: "user", Content: req.UserMessage},
			},
			Temperature: req.Temperature,
			Stream:      true,
		}).
		Post("/chat/completions")
	// Headers received: stop the connect timer so it doesn't cancel the
	// long-lived stream.
	timer.Stop()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("completion request: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		detail, _ := io.ReadAll(io.LimitReader(body, 4096))
		_ = body.Close()
		cancel()
		return nil, fmt.Errorf("completion provider returned %d: %s", resp.StatusCode(), detail)
	}

	return &Stream{
		Body:        &cancelOnClose{ReadCloser: body, cancel: cancel},
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

// cancelOnClose releases the request context when the stream is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
