package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// ImageDirDevice replays still images from a directory as if they were
// camera frames. Files are read in name order; only .png, .jpg and .jpeg
// files are used.
type ImageDirDevice struct {
	dir      string
	interval time.Duration
	loop     bool
}

// NewImageDirDevice creates a replay device emitting fps frames per second.
// With loop set, playback restarts at the first file instead of ending.
func NewImageDirDevice(dir string, fps float64, loop bool) (*ImageDirDevice, error) {
	if dir == "" {
		return nil, fmt.Errorf("camera: image directory is required")
	}
	if fps < 0.1 || fps > 60 {
		return nil, fmt.Errorf("camera: invalid fps %.2f (must be 0.1-60)", fps)
	}
	return &ImageDirDevice{
		dir:      dir,
		interval: time.Duration(float64(time.Second) / fps),
		loop:     loop,
	}, nil
}

// Ensure ImageDirDevice implements Device
var _ Device = (*ImageDirDevice)(nil)

func (d *ImageDirDevice) Name() string {
	return "dir:" + d.dir
}

func (d *ImageDirDevice) files() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &CaptureError{Kind: ErrPermissionDenied, Err: err}
		}
		return nil, &CaptureError{Kind: ErrDeviceNotFound, Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(d.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &CaptureError{Kind: ErrNoFrames, Detail: d.dir}
	}
	slices.Sort(files)
	return files, nil
}

// Probe checks the directory holds at least one readable image.
func (d *ImageDirDevice) Probe(ctx context.Context) error {
	files, err := d.files()
	if err != nil {
		return err
	}
	_, err = loadImage(files[0])
	return err
}

// Open starts replaying. Unreadable files are logged and skipped.
func (d *ImageDirDevice) Open(ctx context.Context) (Stream, error) {
	files, err := d.files()
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &imageStream{
		frames: make(chan Frame, frameBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.run(runCtx, files, d.interval, d.loop)
	return s, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CaptureError{Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &CaptureError{Err: fmt.Errorf("decode %s: %w", filepath.Base(path), err)}
	}
	return img, nil
}

type imageStream struct {
	frames chan Frame
	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	err     error
	stats   Stats
	closing bool
}

func (s *imageStream) Frames() <-chan Frame { return s.frames }

func (s *imageStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *imageStream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *imageStream) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

func (s *imageStream) run(ctx context.Context, files []string, interval time.Duration, loop bool) {
	defer close(s.done)
	defer close(s.frames)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for i := 0; ; i++ {
		if i == len(files) {
			if !loop {
				s.finish(ErrStreamEnded)
				return
			}
			i = 0
		}

		select {
		case <-ctx.Done():
			s.finish(ctx.Err())
			return
		case <-ticker.C:
		}

		img, err := loadImage(files[i])
		if err != nil {
			slog.Warn("camera: skipping unreadable image", "file", files[i], "error", err)
			continue
		}

		seq++
		frame := Frame{Seq: seq, Timestamp: time.Now(), Image: img}
		s.mu.Lock()
		s.stats.FramesRead++
		s.mu.Unlock()

		select {
		case s.frames <- frame:
		default:
			s.mu.Lock()
			s.stats.FramesDropped++
			s.mu.Unlock()
		}
	}
}

func (s *imageStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closing {
		s.err = err
	}
}
