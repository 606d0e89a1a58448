package types

import "time"

// Phase is the controller's position in the permission/capture state machine
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhasePermissionPending Phase = "permission_pending"
	PhasePermissionDenied  Phase = "permission_denied"
	PhaseScanning          Phase = "scanning"
)

// ScanResult is a single decoded barcode. Treat as immutable once created.
type ScanResult struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Format    string    `json:"format"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanState is the full UI-visible state of the scanner
type ScanState struct {
	Phase           Phase        `json:"phase"`
	IsScanning      bool         `json:"is_scanning"`
	HasPermission   bool         `json:"has_permission"`
	PermissionError string       `json:"permission_error,omitempty"`
	PermissionCause string       `json:"permission_cause,omitempty"` // e.g. "device_busy"
	CurrentResult   *ScanResult  `json:"current_result,omitempty"`
	History         []ScanResult `json:"history"` // most recent first
}
