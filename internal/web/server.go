// Package web is the HTTP surface: bearer-token auth, per-company rate
// limiting, and the streamed chat endpoint that proxies the completion
// provider's response byte-for-byte.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/groundworkhq/groundwork/internal/log"
	"github.com/groundworkhq/groundwork/internal/pipeline"
)

// Responder runs one chat turn. Satisfied by *pipeline.Pipeline.
type Responder interface {
	Respond(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// Server serves the chat API.
type Server struct {
	responder Responder
	logger    log.Logger
	handler   http.Handler
}

// NewServer wires routes and middleware. Auth runs before rate limiting so
// the limiter can key on the authenticated company.
func NewServer(responder Responder, auth *Authenticator, limiter *RateLimiter, logger log.Logger) *Server {
	s := &Server{responder: responder, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("POST /v1/chat", Chain(
		http.HandlerFunc(s.handleChat),
		auth.Middleware,
		limiter.Middleware,
	))

	s.handler = Chain(mux,
		Recovery(logger),
		Logging(logger),
	)
	return s
}

// Handler returns the root handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type chatRequest struct {
	AgentID        string `json:"agent_id"`
	CompanyID      string `json:"company_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.AgentID == "":
		writeJSONError(w, http.StatusBadRequest, "invalid request: agent_id is required")
		return
	case req.CompanyID == "":
		writeJSONError(w, http.StatusBadRequest, "invalid request: company_id is required")
		return
	case req.Message == "":
		writeJSONError(w, http.StatusBadRequest, "invalid request: message is required")
		return
	case req.UserID == "":
		writeJSONError(w, http.StatusBadRequest, "invalid request: user_id is required")
		return
	}

	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request: agent_id must be a UUID")
		return
	}
	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request: company_id must be a UUID")
		return
	}
	// The body's tenant must be the token's tenant; a contradiction is an
	// identity problem, not a lookup miss.
	if companyID != identity.CompanyID {
		writeJSONError(w, http.StatusUnauthorized, "company_id does not match credential")
		return
	}

	resp, err := s.responder.Respond(r.Context(), pipeline.Request{
		AgentID:        agentID,
		CompanyID:      companyID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
	})
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	defer resp.Stream.Body.Close()

	contentType := resp.Stream.ContentType
	if contentType == "" {
		contentType = "text/event-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Confidence-Score", fmt.Sprintf("%.3f", resp.Confidence))
	w.Header().Set("X-Chunks-Used", fmt.Sprintf("%d", resp.ChunksUsed))
	w.WriteHeader(http.StatusOK)

	s.copyStream(w, resp.Stream.Body)
}

// copyStream relays the upstream body unmodified, flushing after every read
// so tokens reach the client as they arrive.
func (s *Server) copyStream(w http.ResponseWriter, body io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("upstream stream ended abnormally", "error", err)
			}
			return
		}
	}
}

func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var (
		verr *pipeline.ValidationError
		aerr *pipeline.AuthError
		nfe  *pipeline.NotFoundError
		ue   *pipeline.UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &aerr):
		writeJSONError(w, http.StatusUnauthorized, aerr.Error())
	case errors.As(err, &nfe):
		writeJSONError(w, http.StatusNotFound, nfe.Error())
	case errors.As(err, &ue):
		s.logger.Error("upstream provider failure", "stage", ue.Stage, "error", ue.Err)
		writeJSONError(w, http.StatusInternalServerError, "upstream provider failure")
	default:
		s.logger.Error("chat request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
