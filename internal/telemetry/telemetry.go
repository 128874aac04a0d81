// Package telemetry records per-request retrieval audit entries. Recording is
// fire-and-forget: entries go through a bounded queue to a single writer
// goroutine, and a full queue or a failed insert never surfaces to the
// request path.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/groundworkhq/groundwork/internal/log"
	"github.com/groundworkhq/groundwork/internal/retrieval"
)

// previewLen caps the chunk content stored in the audit log.
const previewLen = 200

// writeTimeout bounds one sink write.
const writeTimeout = 5 * time.Second

// ChunkPreview is the logged view of one retrieved chunk.
type ChunkPreview struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
	Preview string  `json:"preview"`
}

// Entry is one retrieval audit record.
type Entry struct {
	ConversationID  string
	AgentID         uuid.UUID
	CompanyID       uuid.UUID
	OriginalQuery   string
	ExpandedQueries []string
	Chunks          []ChunkPreview
	RetrievalTime   time.Duration
	RerankTime      time.Duration
	TotalTime       time.Duration
	Confidence      float32
	ChunksUsed      int
}

// PreviewChunks converts the final chunk set into logged previews, truncating
// content to a bounded prefix.
func PreviewChunks(chunks []retrieval.Chunk) []ChunkPreview {
	if len(chunks) == 0 {
		return nil
	}
	previews := make([]ChunkPreview, 0, len(chunks))
	for _, c := range chunks {
		content := c.Content
		if len(content) > previewLen {
			content = content[:previewLen]
		}
		previews = append(previews, ChunkPreview{
			ID:      c.ID,
			Source:  string(c.Source),
			Score:   c.BestScore(),
			Preview: content,
		})
	}
	return previews
}

// Sink persists audit entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Recorder queues entries for asynchronous persistence.
type Recorder struct {
	sink   Sink
	logger log.Logger

	queue chan Entry
	done  chan struct{}
}

// NewRecorder starts the writer goroutine. queueSize bounds how many entries
// may be pending; further entries are dropped.
func NewRecorder(sink Sink, queueSize int, logger log.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1
	}
	r := &Recorder{
		sink:   sink,
		logger: logger,
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an entry without blocking. When the queue is full the entry
// is dropped and a warning logged.
func (r *Recorder) Record(e Entry) {
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("telemetry queue full, dropping entry",
			"agent_id", e.AgentID,
			"company_id", e.CompanyID,
		)
	}
}

// Close stops accepting entries, drains the queue, and waits for the writer
// to finish.
func (r *Recorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		// Detached from any request context: the request may already be
		// streaming or finished by the time the entry is written.
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.Write(ctx, e); err != nil {
			r.logger.Warn("writing retrieval log failed",
				"error", err,
				"agent_id", e.AgentID,
			)
		}
		cancel()
	}
}
