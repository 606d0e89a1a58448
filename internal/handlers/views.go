package handlers

import (
	"net/url"
	"time"

	"github.com/lyallcooper/barscan/internal/types"
)

// View model structs for templates.

// IndexData holds data for the scanner page
type IndexData struct {
	Title     string
	CSRFToken string
	Version   string
	Device    string
	Formats   []string
	State     StateView
}

// StateView is the scanner state prepared for display
type StateView struct {
	Phase           string
	IsScanning      bool
	HasPermission   bool
	PermissionError string
	PermissionHint  string
	Current         *ResultView
	History         []ResultView
}

// ResultView is a scan result prepared for display
type ResultView struct {
	ID        string
	Text      string
	Format    string
	Timestamp time.Time
	IsURL     bool
}

func toResultView(r types.ScanResult) ResultView {
	return ResultView{
		ID:        r.ID,
		Text:      r.Text,
		Format:    r.Format,
		Timestamp: r.Timestamp,
		IsURL:     IsWebURL(r.Text),
	}
}

func toStateView(s types.ScanState) StateView {
	view := StateView{
		Phase:           string(s.Phase),
		IsScanning:      s.IsScanning,
		HasPermission:   s.HasPermission,
		PermissionError: s.PermissionError,
		PermissionHint:  permissionHints[s.PermissionCause],
		History:         make([]ResultView, 0, len(s.History)),
	}
	if s.CurrentResult != nil {
		current := toResultView(*s.CurrentResult)
		view.Current = &current
	}
	for _, r := range s.History {
		view.History = append(view.History, toResultView(r))
	}
	return view
}

// permissionHints explain a camera failure cause in the page. Kept in step
// with causeHints in static/app.js.
var permissionHints = map[string]string{
	"permission_denied": "Allow camera access for this application in your system settings.",
	"device_busy":       "The camera is in use by another application.",
	"device_not_found":  "No camera was found. Check that it is connected.",
	"not_installed":     "ffmpeg is not installed or not on PATH.",
	"no_frames":         "The camera opened but delivered no frames.",
	"stream_ended":      "The camera stopped delivering frames.",
}

// IsWebURL reports whether a decoded text is an http(s) link worth opening
func IsWebURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
