package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lyallcooper/barscan/internal/types"
)

const sseKeepAlive = 30 * time.Second

// StateSSE streams scanner state. Every change is sent as a "state" event;
// a successful decode additionally sends a "scan" event carrying the
// result, which the page uses for haptic feedback.
func (h *Handler) StateSSE(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the snapshot so no change falls in between
	updates := h.ctrl.Subscribe()
	defer h.ctrl.Unsubscribe(updates)

	// Send initial state
	h.sendState(w, flusher, h.ctrl.Snapshot())

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	// Listen for updates
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case update, ok := <-updates:
			if !ok {
				// Controller shut down
				h.sendEvent(w, flusher, "close", `{}`)
				return
			}
			if update.Scanned != nil {
				data, _ := json.Marshal(update.Scanned)
				h.sendEvent(w, flusher, "scan", string(data))
			}
			h.sendState(w, flusher, update.State)
		}
	}
}

func (h *Handler) sendState(w http.ResponseWriter, flusher http.Flusher, state types.ScanState) {
	data, _ := json.Marshal(state)
	h.sendEvent(w, flusher, "state", string(data))
}

func (h *Handler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
