package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStream_ProxiesBodyVerbatim(t *testing.T) {
	const upstream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n"

	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, upstream)
	}))
	defer srv.Close()

	c := NewCompletionClient(srv.URL, "key")
	stream, err := c.Stream(context.Background(), StreamRequest{
		SystemPrompt: "You are helpful.",
		UserMessage:  "hello",
		Model:        "gpt-4o-mini",
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("Stream() = %v", err)
	}
	defer stream.Body.Close()

	body, err := io.ReadAll(stream.Body)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if string(body) != upstream {
		t.Errorf("proxied body = %q, want upstream bytes unmodified", body)
	}
	if stream.ContentType != "text/event-stream" {
		t.Errorf("ContentType = %q", stream.ContentType)
	}

	if !got.Stream {
		t.Error("request must set stream=true")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Messages[1].Content != "hello" {
		t.Errorf("user content = %q, want raw user message", got.Messages[1].Content)
	}
	if got.Model != "gpt-4o-mini" || got.Temperature != 0.7 {
		t.Errorf("model/temperature = %q/%v", got.Model, got.Temperature)
	}
}

func TestStream_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"model overloaded"}`)
	}))
	defer srv.Close()

	c := NewCompletionClient(srv.URL, "key")
	stream, err := c.Stream(context.Background(), StreamRequest{Model: "m", UserMessage: "x"})
	if err == nil {
		stream.Body.Close()
		t.Fatal("expected error for 500 upstream")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should carry upstream status: %v", err)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("error should carry upstream detail: %v", err)
	}
}

func TestStream_ContextCancellationStopsStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewCompletionClient(srv.URL, "key")
	stream, err := c.Stream(ctx, StreamRequest{Model: "m", UserMessage: "x"})
	if err != nil {
		t.Fatalf("Stream() = %v", err)
	}
	defer stream.Body.Close()

	cancel()
	if _, err := io.ReadAll(stream.Body); err == nil {
		t.Error("expected read error after context cancellation")
	}
}
