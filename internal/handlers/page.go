package handlers

import (
	"net/http"
)

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := IndexData{
		Title:     "Barcode Scanner",
		CSRFToken: h.getOrCreateCSRFToken(w, r),
		Version:   h.version,
		Device:    h.ctrl.DeviceName(),
		Formats:   h.cfg.Decoder.Formats,
		State:     toStateView(h.ctrl.Snapshot()),
	}
	h.render(w, "index.html", data)
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}
