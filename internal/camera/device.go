// Package camera acquires video frames for the decoder.
//
// A Device is probed once to learn whether the camera can be opened at all
// and opened for the length of a scanning session. Every Stream returned by
// Open must be closed; closing releases the underlying hardware.
package camera

import (
	"context"
	"image"
	"time"
)

// Frame is one captured video frame.
type Frame struct {
	// Seq is the monotonic sequence number within a stream, starting at 1
	Seq uint64
	// Timestamp is when the frame finished reading
	Timestamp time.Time
	// Image holds the pixels. FFmpeg streams deliver *image.Gray.
	Image image.Image
}

// Stats are counters for a running stream.
type Stats struct {
	FramesRead    uint64
	FramesDropped uint64
}

// Device is a camera that can be probed and opened.
type Device interface {
	// Name identifies the device in logs
	Name() string

	// Probe acquires the camera briefly to check access, then releases it.
	Probe(ctx context.Context) error

	// Open starts capturing. It returns once the first frame is available,
	// or with the error that kept capture from starting; later frames
	// arrive asynchronously on Stream.Frames.
	Open(ctx context.Context) (Stream, error)
}

// Stream is a live capture.
//
// Implementations guarantee:
//   - Frames() is closed when capture ends, for any reason
//   - Err() is valid once Frames() is closed; nil after Close
//   - Close() is idempotent and waits for the capture to be released
//   - frames are dropped, not queued, when the consumer falls behind
type Stream interface {
	Frames() <-chan Frame
	Err() error
	Stats() Stats
	Close() error
}
