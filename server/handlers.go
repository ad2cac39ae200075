package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chat-moderator/backend/pipeline"
)

// StatusProvider exposes the pipeline's live counters. *pipeline.Pipeline implements it.
type StatusProvider interface {
	Status() pipeline.Status
	Offenders() []pipeline.OffenderCount
}

// QueueDepth reports buffered events. *pipeline.Queue implements it.
type QueueDepth interface {
	Depth() int
}

// Pinger checks an optional backing store. *db.Journal implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP surface reads from.
type Deps struct {
	Pipeline StatusProvider
	Queue    QueueDepth
	// Journal and Users are nil when no database is configured.
	Journal Pinger
	Users   UserLists
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps    Deps
	started time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps, started: time.Now()}
}

// HandleHealthz responds to liveness probes. The process is alive if it can answer.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the chat stream is connected and the
// journal (when configured) is reachable.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"stream", func() error {
			if !h.deps.Pipeline.Status().Connected {
				return errors.New("chat stream not connected")
			}
			return nil
		}},
		{"journal", func() error {
			if h.deps.Journal == nil {
				return nil
			}
			return h.deps.Journal.Ping(r.Context())
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	pipeline.Status
	QueueDepth    int     `json:"queue_depth"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// HandleStatus returns history size and capacity, processed and flagged
// counts, queue depth and the connected flag.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{
		Status:        h.deps.Pipeline.Status(),
		UptimeSeconds: time.Since(h.started).Seconds(),
	}
	if h.deps.Queue != nil {
		resp.QueueDepth = h.deps.Queue.Depth()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleAdminOffenders returns the offender ledger sorted by count, highest first.
func (h *Handlers) HandleAdminOffenders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	offenders := h.deps.Pipeline.Offenders()
	if offenders == nil {
		offenders = []pipeline.OffenderCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"offenders": offenders})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response", slog.Any("err", err))
	}
}
