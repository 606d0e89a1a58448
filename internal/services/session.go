package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lyallcooper/barscan/internal/camera"
	"github.com/lyallcooper/barscan/internal/decoder"
)

const eventBuffer = 16

// decodeEvent is one decode outcome worth reporting. Frames without a
// barcode never become events.
type decodeEvent struct {
	Result decoder.Result
	Err    error
}

// SessionStats describes the running (or last) decode session
type SessionStats struct {
	SessionID     string    `json:"session_id"`
	Device        string    `json:"device"`
	StartedAt     time.Time `json:"started_at"`
	FramesRead    uint64    `json:"frames_read"`
	FramesDropped uint64    `json:"frames_dropped"`
	Decoded       uint64    `json:"decoded"`
	NotFound      uint64    `json:"not_found"`
	DecodeErrors  uint64    `json:"decode_errors"`
}

// session is one capture+decode run. It owns the camera stream from Open
// until stop returns or the capture fails.
type session struct {
	id        string
	device    string
	startedAt time.Time
	stream    camera.Stream
	cancel    context.CancelFunc
	events    chan decodeEvent
	done      chan struct{}

	stopping     atomic.Bool
	decoded      atomic.Uint64
	notFound     atomic.Uint64
	decodeErrors atomic.Uint64

	mu  sync.Mutex
	err error
}

// startSession opens the device and starts decoding its frames.
//
// Two goroutines run under one errgroup: the decode loop, and a closer that
// releases the stream as soon as the group's context ends. Whichever way
// the session ends (stop, capture failure, parent cancellation) the stream
// is closed before done is closed.
func startSession(ctx context.Context, id string, device camera.Device, dec decoder.Decoder) (*session, error) {
	sctx, cancel := context.WithCancel(ctx)

	stream, err := device.Open(sctx)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &session{
		id:        id,
		device:    device.Name(),
		startedAt: time.Now(),
		stream:    stream,
		cancel:    cancel,
		events:    make(chan decodeEvent, eventBuffer),
		done:      make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		return s.decodeLoop(gctx, dec)
	})
	g.Go(func() error {
		<-gctx.Done()
		return stream.Close()
	})

	go func() {
		err := g.Wait()
		if s.stopping.Load() || errors.Is(err, context.Canceled) {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		close(s.events)
		close(s.done)
		slog.Info("scanner: session ended", "session_id", s.id, "error", err,
			"decoded", s.decoded.Load(), "frames_read", s.stream.Stats().FramesRead)
	}()

	slog.Info("scanner: session started", "session_id", id, "device", s.device)
	return s, nil
}

// decodeLoop decodes frames until the stream ends. A not-found result is
// counted and dropped; every other outcome is forwarded as an event.
func (s *session) decodeLoop(ctx context.Context, dec decoder.Decoder) error {
	frames := s.stream.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				if err := s.stream.Err(); err != nil {
					return err
				}
				return camera.ErrStreamEnded
			}

			res, err := dec.Decode(frame.Image)
			var ev decodeEvent
			switch {
			case err == nil:
				s.decoded.Add(1)
				ev = decodeEvent{Result: res}
			case decoder.IsNotFound(err):
				s.notFound.Add(1)
				continue
			default:
				s.decodeErrors.Add(1)
				ev = decodeEvent{Err: err}
			}

			select {
			case s.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// stop ends the session and waits until the camera is released.
// Safe to call more than once.
func (s *session) stop() {
	s.stopping.Store(true)
	s.cancel()
	<-s.done
}

// Err is the reason the session ended on its own; nil after stop.
// Valid once the events channel is closed.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) stats() SessionStats {
	st := s.stream.Stats()
	return SessionStats{
		SessionID:     s.id,
		Device:        s.device,
		StartedAt:     s.startedAt,
		FramesRead:    st.FramesRead,
		FramesDropped: st.FramesDropped,
		Decoded:       s.decoded.Load(),
		NotFound:      s.notFound.Load(),
		DecodeErrors:  s.decodeErrors.Load(),
	}
}
