package camera

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceNotFound   = errors.New("camera device not found")
	ErrDeviceBusy       = errors.New("camera device busy")
	ErrNoFrames         = errors.New("camera produced no frames")
	ErrStreamEnded      = errors.New("camera stream ended")
	ErrNotInstalled     = errors.New("capture tool not installed")
)

// CaptureError describes a failed capture process.
type CaptureError struct {
	// Kind is one of the sentinel errors above, or nil if unclassified
	Kind error
	// Detail is the tail of the capture tool's diagnostic output
	Detail string
	Err    error
}

func (e *CaptureError) Error() string {
	var b strings.Builder
	b.WriteString("capture failed")
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, " (%s)", e.Detail)
	}
	return b.String()
}

func (e *CaptureError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Cause names the kind of capture failure in err for display and API
// clients: "permission_denied", "device_busy", "device_not_found",
// "not_installed", "no_frames", "stream_ended" or "unknown".
// Returns "" for a nil error.
func Cause(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrDeviceBusy):
		return "device_busy"
	case errors.Is(err, ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, ErrNotInstalled):
		return "not_installed"
	case errors.Is(err, ErrNoFrames):
		return "no_frames"
	case errors.Is(err, ErrStreamEnded):
		return "stream_ended"
	}
	return "unknown"
}

// Classify maps capture tool output to a sentinel error.
// Returns nil when nothing recognizable is found.
//
// Permission is checked first: a device that exists but cannot be opened
// usually reports both "cannot open" and the errno text.
func Classify(output string) error {
	msg := strings.ToLower(output)
	switch {
	case containsAny(msg, permissionKeywords):
		return ErrPermissionDenied
	case containsAny(msg, busyKeywords):
		return ErrDeviceBusy
	case containsAny(msg, notFoundKeywords):
		return ErrDeviceNotFound
	}
	return nil
}

var (
	permissionKeywords = []string{
		"permission denied",
		"operation not permitted",
		"not authorized",
		"access is denied",
		"access denied",
	}
	busyKeywords = []string{
		"device or resource busy",
		"resource busy",
		"device is busy",
		"already in use",
	}
	notFoundKeywords = []string{
		"no such file or directory",
		"no such device",
		"could not find video device",
		"video device not found",
		"could not enumerate video devices",
		"input/output error",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
