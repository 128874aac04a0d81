package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/groundworkhq/groundwork/internal/log"
	"github.com/groundworkhq/groundwork/internal/retrieval"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type captureSink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	block   chan struct{}
}

func (s *captureSink) Write(ctx context.Context, e Entry) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *captureSink) all() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func TestRecorder_WritesQueuedEntries(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, 8, log.NewNop())

	r.Record(Entry{OriginalQuery: "first"})
	r.Record(Entry{OriginalQuery: "second"})
	r.Close()

	got := sink.all()
	if len(got) != 2 {
		t.Fatalf("wrote %d entries, want 2", len(got))
	}
	if got[0].OriginalQuery != "first" || got[1].OriginalQuery != "second" {
		t.Errorf("entries out of order: %+v", got)
	}
}

func TestRecorder_RecordNeverBlocksWhenFull(t *testing.T) {
	sink := &captureSink{block: make(chan struct{})}
	r := NewRecorder(sink, 1, log.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			r.Record(Entry{OriginalQuery: "q"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(sink.block)
	r.Close()
}

func TestRecorder_SinkFailureDoesNotPropagate(t *testing.T) {
	sink := &captureSink{err: errors.New("insert failed")}
	r := NewRecorder(sink, 4, log.NewNop())

	r.Record(Entry{OriginalQuery: "q"})
	r.Close()

	if len(sink.all()) != 1 {
		t.Error("entry should still reach the sink")
	}
}

func TestRecorder_CloseDrains(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, 16, log.NewNop())

	for i := 0; i < 10; i++ {
		r.Record(Entry{OriginalQuery: "q"})
	}
	r.Close()

	if n := len(sink.all()); n != 10 {
		t.Errorf("Close drained %d entries, want 10", n)
	}
}

func TestPreviewChunks_TruncatesContent(t *testing.T) {
	long := strings.Repeat("a", 500)
	chunks := []retrieval.Chunk{
		{ID: "c1", Content: long, Source: retrieval.SourceShared, Score: 0.8},
		{ID: "c2", Content: "short", Source: retrieval.SourceFoundation, Score: 0.9},
	}

	previews := PreviewChunks(chunks)

	if len(previews) != 2 {
		t.Fatalf("got %d previews", len(previews))
	}
	if len(previews[0].Preview) != 200 {
		t.Errorf("preview length = %d, want 200", len(previews[0].Preview))
	}
	if previews[1].Preview != "short" {
		t.Errorf("short content should pass through, got %q", previews[1].Preview)
	}
	if previews[0].Source != "shared" || previews[0].Score != 0.8 {
		t.Errorf("preview metadata = %+v", previews[0])
	}
}

func TestPreviewChunks_Empty(t *testing.T) {
	if got := PreviewChunks(nil); got != nil {
		t.Errorf("PreviewChunks(nil) = %v, want nil", got)
	}
}
