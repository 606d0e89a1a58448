package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lyallcooper/barscan/internal/services"
)

const maxBodySize = 64 << 10

// CopyRequest is the body of POST /api/clipboard. Exactly one of ID or
// Text is set.
type CopyRequest struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// State handles GET /api/state
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.ctrl.Stats()
	if !ok {
		writeError(w, http.StatusNotFound, "no scanning session has run yet")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RequestPermission handles POST /api/permission. A denial is part of the
// returned state, not an HTTP error.
func (h *Handler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.RequestPermission(r.Context()); err != nil {
		slog.Debug("permission request denied", "error", err)
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// StartScanning handles POST /api/scanning/start
func (h *Handler) StartScanning(w http.ResponseWriter, r *http.Request) {
	h.scanningResult(w, h.ctrl.StartScanning(r.Context()))
}

// StopScanning handles POST /api/scanning/stop
func (h *Handler) StopScanning(w http.ResponseWriter, r *http.Request) {
	h.ctrl.StopScanning()
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// ToggleScanning handles POST /api/scanning/toggle
func (h *Handler) ToggleScanning(w http.ResponseWriter, r *http.Request) {
	h.scanningResult(w, h.ctrl.ToggleScanning(r.Context()))
}

// scanningResult answers a start or toggle. Permission problems are shown
// through the state; only a failed camera start is an error response.
func (h *Handler) scanningResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil, errors.Is(err, services.ErrPermissionDenied):
		writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
	case errors.Is(err, services.ErrSessionStart):
		writeJSON(w, http.StatusServiceUnavailable, h.ctrl.Snapshot())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ClearHistory handles POST /api/history/clear
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ClearHistory()
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// Copy handles POST /api/clipboard. The write happens in the background;
// the response only confirms it was accepted.
func (h *Handler) Copy(w http.ResponseWriter, r *http.Request) {
	var req CopyRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.ID != "" && req.Text != "":
		writeError(w, http.StatusBadRequest, "set either id or text, not both")
	case req.ID != "":
		if _, err := h.ctrl.CopyResult(req.ID); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	case strings.TrimSpace(req.Text) != "":
		h.ctrl.CopyToClipboard(req.Text)
		w.WriteHeader(http.StatusAccepted)
	default:
		writeError(w, http.StatusBadRequest, "id or text is required")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
