package handlers

import (
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/lyallcooper/barscan/internal/config"
	"github.com/lyallcooper/barscan/internal/services"
)

// Handler holds all HTTP handlers
type Handler struct {
	ctrl        *services.Controller
	cfg         *config.Config
	version     string
	disableCSRF bool
	webFS       fs.FS
	funcMap     template.FuncMap
	staticFS    fs.FS
}

// New creates a new Handler. webFS must contain templates/ and static/.
func New(ctrl *services.Controller, cfg *config.Config, webFS fs.FS, version string, disableCSRF bool) (*Handler, error) {
	// Template functions
	funcMap := template.FuncMap{
		"formatTime": formatTime,
		"timeAgo":    timeAgo,
		"truncate":   truncate,
	}

	// Get static files
	staticFS, err := fs.Sub(webFS, "static")
	if err != nil {
		return nil, err
	}

	return &Handler{
		ctrl:        ctrl,
		cfg:         cfg,
		version:     version,
		disableCSRF: disableCSRF,
		webFS:       webFS,
		funcMap:     funcMap,
		staticFS:    staticFS,
	}, nil
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Static files
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))

	// Page
	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)

	// SSE
	r.HandleFunc("/sse/state", h.StateSSE).Methods(http.MethodGet)

	// API. Registered on the root router so a wrong method is a 405.
	api := func(path string, fn http.HandlerFunc, method string) {
		r.Handle("/api"+path, h.csrfProtect(fn)).Methods(method)
	}
	api("/state", h.State, http.MethodGet)
	api("/stats", h.Stats, http.MethodGet)
	api("/permission", h.RequestPermission, http.MethodPost)
	api("/scanning/start", h.StartScanning, http.MethodPost)
	api("/scanning/stop", h.StopScanning, http.MethodPost)
	api("/scanning/toggle", h.ToggleScanning, http.MethodPost)
	api("/history/clear", h.ClearHistory, http.MethodPost)
	api("/clipboard", h.Copy, http.MethodPost)
}

// render executes a page template with the base layout
func (h *Handler) render(w http.ResponseWriter, pageName string, data any) {
	tmpl, err := template.New("base.html").Funcs(h.funcMap).ParseFS(h.webFS, "templates/base.html", "templates/"+pageName)
	if err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Template functions

func formatTime(t time.Time) string {
	return t.Local().Format("15:04")
}

func timeAgo(t time.Time) string {
	return humanize.Time(t)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
