// Package services holds the scanner controller: camera permission,
// capture+decode session lifecycle, and the aggregated scan state.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyallcooper/barscan/internal/camera"
	"github.com/lyallcooper/barscan/internal/clipboard"
	"github.com/lyallcooper/barscan/internal/decoder"
	"github.com/lyallcooper/barscan/internal/scan"
	"github.com/lyallcooper/barscan/internal/types"
)

// User-facing messages stored in ScanState.PermissionError
const (
	MsgPermissionDenied = "Camera permission denied. Please allow camera access to scan barcodes."
	MsgStartFailed      = "Failed to start camera. Please check permissions."
	MsgStreamLost       = "Camera stream ended unexpectedly."
)

// probeTimeout bounds a single permission probe
const probeTimeout = 15 * time.Second

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrSessionStart     = errors.New("failed to start scanning session")
	ErrResultNotFound   = errors.New("scan result not found")
)

// Controller drives the permission/capture state machine and aggregates
// decoded results. All state changes are serialized on mu; each one runs
// to completion before the next is applied.
type Controller struct {
	device    camera.Device
	decoder   decoder.Decoder
	clipboard clipboard.Writer
	now       func() time.Time

	// Sessions run under ctx, not under the request that started them
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     types.ScanState
	session   *session
	lastStats *SessionStats
	// starts is bumped by every start and stop. A start whose camera open
	// finishes after a newer start or stop discards its session.
	starts uint64

	// Subscribers
	subMu       sync.RWMutex
	subscribers []*subscriber
	closed      bool
}

// NewController creates a controller in the idle phase. Call Init to run
// the initial permission probe and Close when done.
func NewController(device camera.Device, dec decoder.Decoder, clip clipboard.Writer) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		device:    device,
		decoder:   dec,
		clipboard: clip,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     scan.NewState(),
	}
}

// Init is component activation: it probes the camera once.
// A denied probe is reflected in the state, not returned.
func (c *Controller) Init(ctx context.Context) {
	if err := c.RequestPermission(ctx); err != nil {
		slog.Warn("scanner: camera not available at startup", "device", c.device.Name(), "error", err)
	}
}

// Close stops scanning, releasing the camera, and closes all subscribers.
func (c *Controller) Close() {
	c.StopScanning()
	c.cancel()
	c.closeSubscribers()
}

// DeviceName identifies the camera in use.
func (c *Controller) DeviceName() string {
	return c.device.Name()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() types.ScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return scan.Clone(c.state)
}

// Stats returns counters for the running session, or for the last one
// if scanning is stopped. ok is false if no session ever ran.
func (c *Controller) Stats() (stats SessionStats, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session.stats(), true
	}
	if c.lastStats != nil {
		return *c.lastStats, true
	}
	return SessionStats{}, false
}

// publishLocked sends the current state to subscribers. Caller holds mu.
func (c *Controller) publishLocked(scanned *types.ScanResult) {
	c.broadcast(Update{State: scan.Clone(c.state), Scanned: scanned})
}

// RequestPermission probes the camera: acquire, read one frame, release.
// The camera is not kept open. While scanning, access is evidently granted
// and no probe runs.
//
// Probes are not cancelled by later probes; whichever resolves last
// determines the state. A probe outlives ctx: it is bounded by
// probeTimeout and by Close, so a caller that gives up early cannot turn
// into a denied permission.
func (c *Controller) RequestPermission(ctx context.Context) error {
	c.mu.Lock()
	if c.state.IsScanning {
		c.mu.Unlock()
		return nil
	}
	c.state.Phase = types.PhasePermissionPending
	c.publishLocked(nil)
	c.mu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	err := c.device.Probe(pctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		slog.Error("scanner: permission denied", "device", c.device.Name(), "error", err)
		c.state.HasPermission = false
		c.state.PermissionError = MsgPermissionDenied
		c.state.PermissionCause = camera.Cause(err)
		if !c.state.IsScanning {
			c.state.Phase = types.PhasePermissionDenied
		}
		c.publishLocked(nil)
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	c.state.HasPermission = true
	c.state.PermissionError = ""
	c.state.PermissionCause = ""
	if !c.state.IsScanning {
		c.state.Phase = types.PhaseIdle
	}
	c.publishLocked(nil)
	return nil
}

// StartScanning opens a decode session. Without permission it re-requests
// permission instead and does not start. Starting while already scanning
// is a no-op.
//
// The camera is opened without holding the state lock, so snapshots and
// StopScanning stay responsive while it warms up. A stop that lands during
// the open wins: the late session is released and nil is returned.
func (c *Controller) StartScanning(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.HasPermission {
		c.mu.Unlock()
		return c.RequestPermission(ctx)
	}
	if c.state.IsScanning {
		c.mu.Unlock()
		return nil
	}

	c.state.IsScanning = true
	c.state.Phase = types.PhaseScanning
	c.publishLocked(nil)
	c.starts++
	start := c.starts
	c.mu.Unlock()

	s, err := startSession(c.ctx, uuid.NewString(), c.device, c.decoder)

	c.mu.Lock()
	defer c.mu.Unlock()

	if start != c.starts {
		if s != nil {
			s.stop()
		}
		return nil
	}

	if err != nil {
		slog.Error("scanner: failed to start scanning", "device", c.device.Name(), "error", err)
		c.state.IsScanning = false
		c.state.Phase = types.PhaseIdle
		c.state.PermissionError = MsgStartFailed
		c.state.PermissionCause = camera.Cause(err)
		c.publishLocked(nil)
		return fmt.Errorf("%w: %w", ErrSessionStart, err)
	}

	c.session = s
	go c.consume(s)
	return nil
}

// StopScanning ends the session and releases the camera. Idempotent.
func (c *Controller) StopScanning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	c.starts++
	s := c.session
	c.session = nil
	if s != nil {
		s.stop()
		stats := s.stats()
		c.lastStats = &stats
	}

	if !c.state.IsScanning {
		return
	}
	c.state.IsScanning = false
	c.state.Phase = types.PhaseIdle
	c.publishLocked(nil)
}

// ToggleScanning stops a running session or starts a new one.
func (c *Controller) ToggleScanning(ctx context.Context) error {
	c.mu.Lock()
	scanning := c.state.IsScanning
	c.mu.Unlock()

	if scanning {
		c.StopScanning()
		return nil
	}
	return c.StartScanning(ctx)
}

// ClearHistory empties the history; the current result stays.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = scan.ClearHistory(c.state)
	c.publishLocked(nil)
}

// consume applies a session's events in order, then handles its end.
func (c *Controller) consume(s *session) {
	for ev := range s.events {
		c.applyEvent(s, ev)
	}
	if err := s.Err(); err != nil {
		c.sessionFailed(s, err)
	}
}

// applyEvent is the decode callback. Events from a session that is no
// longer current are dropped.
func (c *Controller) applyEvent(s *session, ev decodeEvent) {
	if ev.Err != nil {
		if decoder.IsNotFound(ev.Err) {
			return
		}
		slog.Warn("scanner: decode error", "session_id", s.id, "error", ev.Err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}

	result := types.ScanResult{
		ID:        uuid.NewString(),
		Text:      ev.Result.Text,
		Format:    ev.Result.Format,
		Timestamp: c.now(),
	}
	c.state = scan.OnDecoded(c.state, result)
	slog.Info("scanner: decoded", "session_id", s.id, "format", result.Format, "length", len(result.Text))

	c.publishLocked(&result)
}

// sessionFailed rolls back to idle after the capture died on its own.
func (c *Controller) sessionFailed(s *session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}

	slog.Error("scanner: camera stream lost", "session_id", s.id, "error", err)
	c.session = nil
	stats := s.stats()
	c.lastStats = &stats

	c.state.IsScanning = false
	c.state.Phase = types.PhaseIdle
	c.state.PermissionError = MsgStreamLost
	c.state.PermissionCause = camera.Cause(err)
	c.publishLocked(nil)
}

// CopyToClipboard writes text to the clipboard asynchronously. The channel
// receives the single outcome. Failures are logged and never retried.
func (c *Controller) CopyToClipboard(text string) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := c.clipboard.WriteAll(text)
		if err != nil {
			slog.Error("scanner: failed to copy", "error", err)
		} else {
			slog.Debug("scanner: copied to clipboard", "text", text)
		}
		done <- err
	}()
	return done
}

// CopyResult copies the text of the current result or a history entry.
func (c *Controller) CopyResult(id string) (<-chan error, error) {
	c.mu.Lock()
	result, ok := scan.Find(c.state, id)
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	return c.CopyToClipboard(result.Text), nil
}
