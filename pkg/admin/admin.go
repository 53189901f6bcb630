// Package admin provides the /admin/* control plane: health, request
// inspection, state snapshots, notification flushing and clock control.
package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/loyaltypay/pkg/server"
	"github.com/wondertwin-ai/loyaltypay/pkg/store"
)

// StateStore is implemented by backends that can dump and replace their
// whole state. Only the in-memory repository does.
type StateStore interface {
	// Snapshot returns the full state as a JSON-serializable value.
	Snapshot() any
	// LoadState replaces the full state from a JSON body.
	LoadState(data []byte) error
	// Reset clears all state.
	Reset()
}

// WebhookFlusher is implemented by notification sinks with queued deliveries.
type WebhookFlusher interface {
	FlushWebhooks() error
}

// Handler provides the admin endpoints.
type Handler struct {
	state   StateStore
	flusher WebhookFlusher
	mw      *server.Middleware
	clock   *store.Clock
}

// NewHandler creates an admin handler. state and clock may be nil; the
// endpoints that need them then report that they are unavailable.
func NewHandler(state StateStore, mw *server.Middleware, clock *store.Clock) *Handler {
	return &Handler{
		state: state,
		mw:    mw,
		clock: clock,
	}
}

// SetFlusher sets the webhook flusher (optional).
func (h *Handler) SetFlusher(f WebhookFlusher) {
	h.flusher = f
}

// Routes mounts the admin endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reset", h.handleReset)
		r.Get("/state", h.handleGetState)
		r.Post("/state", h.handleLoadState)
		r.Get("/requests", h.handleGetRequests)
		r.Post("/webhooks/flush", h.handleFlushWebhooks)
		r.Post("/time/advance", h.handleTimeAdvance)
		r.Get("/time", h.handleGetTime)
		r.Get("/health", h.handleHealth)
	})
}

func (h *Handler) stateUnavailable(w http.ResponseWriter) bool {
	if h.state != nil {
		return false
	}
	server.Error(w, http.StatusNotImplemented, "not_supported", "state management requires the memory store")
	return true
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if h.stateUnavailable(w) {
		return
	}
	h.state.Reset()
	h.mw.ReqLog.Clear()
	if h.clock != nil {
		h.clock.Reset()
	}
	server.JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	if h.stateUnavailable(w) {
		return
	}
	server.JSON(w, http.StatusOK, h.state.Snapshot())
}

func (h *Handler) handleLoadState(w http.ResponseWriter, r *http.Request) {
	if h.stateUnavailable(w) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		server.Error(w, http.StatusBadRequest, "bad_request", "failed to read body: "+err.Error())
		return
	}
	if err := h.state.LoadState(body); err != nil {
		server.Error(w, http.StatusBadRequest, "bad_request", "failed to load state: "+err.Error())
		return
	}
	server.JSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func (h *Handler) handleGetRequests(w http.ResponseWriter, r *http.Request) {
	server.JSON(w, http.StatusOK, h.mw.ReqLog.Entries())
}

func (h *Handler) handleFlushWebhooks(w http.ResponseWriter, r *http.Request) {
	if h.flusher == nil {
		server.JSON(w, http.StatusOK, map[string]string{"status": "no webhooks configured"})
		return
	}
	if err := h.flusher.FlushWebhooks(); err != nil {
		server.Error(w, http.StatusInternalServerError, "internal", "flush failed: "+err.Error())
		return
	}
	server.JSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (h *Handler) handleTimeAdvance(w http.ResponseWriter, r *http.Request) {
	if h.clock == nil {
		server.Error(w, http.StatusBadRequest, "bad_request", "simulated clock not configured")
		return
	}

	var req struct {
		Duration string `json:"duration"` // Go duration string, e.g., "24h", "30m"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.Error(w, http.StatusBadRequest, "bad_request", "invalid request: "+err.Error())
		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		server.Error(w, http.StatusBadRequest, "bad_request", "invalid duration: "+err.Error())
		return
	}
	if d < 0 {
		server.Error(w, http.StatusBadRequest, "bad_request", "duration must not be negative")
		return
	}

	h.clock.Advance(d)
	server.JSON(w, http.StatusOK, map[string]any{
		"status":    "advanced",
		"duration":  d.String(),
		"offset":    h.clock.Offset().String(),
		"simulated": h.clock.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleGetTime(w http.ResponseWriter, r *http.Request) {
	if h.clock == nil {
		server.JSON(w, http.StatusOK, map[string]any{
			"real": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	server.JSON(w, http.StatusOK, map[string]any{
		"real":      time.Now().UTC().Format(time.RFC3339),
		"simulated": h.clock.Now().Format(time.RFC3339),
		"offset":    h.clock.Offset().String(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	server.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
