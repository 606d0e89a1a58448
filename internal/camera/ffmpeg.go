package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	stopTimeout  = 3 * time.Second
	openTimeout  = 10 * time.Second
	frameBuffer  = 2
	stderrTailSz = 2048
)

// FFmpegConfig configures capture through an ffmpeg subprocess.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg" on PATH.
	Binary string
	// InputFormat is the ffmpeg demuxer (v4l2, avfoundation, dshow).
	// Empty selects the platform default.
	InputFormat string
	// Device is the demuxer input (/dev/video0, "0", video=...).
	// Empty selects the platform default.
	Device string
	Width  int
	Height int
	FPS    float64
}

// DefaultInput returns the platform's default demuxer and device.
func DefaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", "0"
	case "windows":
		return "dshow", "video=Integrated Camera"
	default: // Linux
		return "v4l2", "/dev/video0"
	}
}

// FFmpegDevice captures frames by running ffmpeg and reading raw grayscale
// video from its stdout.
type FFmpegDevice struct {
	cfg FFmpegConfig
}

// NewFFmpegDevice validates cfg and fills in platform defaults.
func NewFFmpegDevice(cfg FFmpegConfig) (*FFmpegDevice, error) {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	defFormat, defDevice := DefaultInput()
	if cfg.InputFormat == "" {
		cfg.InputFormat = defFormat
	}
	if cfg.Device == "" {
		cfg.Device = defDevice
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("camera: invalid frame size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS < 0.1 || cfg.FPS > 60 {
		return nil, fmt.Errorf("camera: invalid fps %.2f (must be 0.1-60)", cfg.FPS)
	}
	return &FFmpegDevice{cfg: cfg}, nil
}

// Ensure FFmpegDevice implements Device
var _ Device = (*FFmpegDevice)(nil)

// Name returns the demuxer and device, e.g. "v4l2:/dev/video0"
func (d *FFmpegDevice) Name() string {
	return d.cfg.InputFormat + ":" + d.cfg.Device
}

// CheckInstalled verifies that ffmpeg is installed and accessible
func (d *FFmpegDevice) CheckInstalled(ctx context.Context) error {
	if _, err := d.Version(ctx); err != nil {
		return err
	}
	return nil
}

// Version returns the ffmpeg version string
func (d *FFmpegDevice) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, d.cfg.Binary, "-hide_banner", "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: ffmpeg not found or not executable: %v", ErrNotInstalled, err)
	}
	return parseVersion(string(output))
}

func parseVersion(output string) (string, error) {
	line, _, _ := strings.Cut(output, "\n")
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "ffmpeg" || fields[1] != "version" {
		return "", fmt.Errorf("unexpected output from ffmpeg -version: %q", line)
	}
	return fields[2], nil
}

// args builds the ffmpeg command line. frames > 0 stops after that many.
func (d *FFmpegDevice) args(frames int) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}

	// avfoundation refuses to open without an explicit rate
	if d.cfg.InputFormat == "avfoundation" {
		args = append(args, "-framerate", "30")
	}
	args = append(args, "-f", d.cfg.InputFormat, "-i", d.cfg.Device)

	filter := fmt.Sprintf("fps=%s,scale=%d:%d",
		strconv.FormatFloat(d.cfg.FPS, 'f', -1, 64), d.cfg.Width, d.cfg.Height)
	args = append(args, "-vf", filter, "-pix_fmt", "gray", "-f", "rawvideo")

	if frames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(frames))
	}
	return append(args, "pipe:1")
}

func (d *FFmpegDevice) frameSize() int {
	return d.cfg.Width * d.cfg.Height
}

// Probe opens the camera, reads a single frame and lets ffmpeg exit.
func (d *FFmpegDevice) Probe(ctx context.Context) error {
	var stderr tailBuffer
	cmd := exec.CommandContext(ctx, d.cfg.Binary, d.args(1)...)
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrNotInstalled, err)
		}
		return &CaptureError{Kind: Classify(stderr.String()), Detail: stderr.String(), Err: err}
	}
	if len(output) < d.frameSize() {
		return &CaptureError{Kind: ErrNoFrames, Detail: stderr.String()}
	}
	return nil
}

// Open starts ffmpeg and waits for the first frame. If ffmpeg exits before
// delivering one, its classified failure is returned instead of a stream.
// The process lives until Close is called, ctx is cancelled, or it exits.
func (d *FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, d.cfg.Binary, d.args(0)...)

	s := &ffmpegStream{
		cmd:     cmd,
		cancel:  cancel,
		frames:  make(chan Frame, frameBuffer),
		started: make(chan struct{}),
		done:    make(chan struct{}),
		width:   d.cfg.Width,
		height:  d.cfg.Height,
	}
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotInstalled, err)
		}
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	go s.readLoop(stdout)

	waitCtx, stop := context.WithTimeout(ctx, openTimeout)
	defer stop()

	select {
	case <-s.started:
	case <-s.done:
		// A short run may have produced frames before exiting
		select {
		case <-s.started:
		default:
			s.cancel()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("camera: waiting for first frame: %w", ctxErr)
			}
			err := s.Err()
			if err == nil || errors.Is(err, ErrStreamEnded) {
				err = &CaptureError{Kind: ErrNoFrames, Detail: s.stderr.String()}
			}
			return nil, err
		}
	case <-waitCtx.Done():
		s.Close()
		return nil, fmt.Errorf("camera: waiting for first frame: %w", waitCtx.Err())
	}

	slog.Info("camera: capture started",
		"device", d.Name(),
		"pid", cmd.Process.Pid,
		"resolution", fmt.Sprintf("%dx%d", d.cfg.Width, d.cfg.Height),
		"fps", d.cfg.FPS,
	)
	return s, nil
}

// ffmpegStream reads fixed-size raw frames from a running ffmpeg.
type ffmpegStream struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	frames  chan Frame
	started chan struct{}
	done    chan struct{}
	stderr  tailBuffer

	width, height int

	framesRead    atomic.Uint64
	framesDropped atomic.Uint64
	closing       atomic.Bool
	closeOnce     sync.Once
	startOnce     sync.Once

	mu  sync.Mutex
	err error
}

func (s *ffmpegStream) Frames() <-chan Frame { return s.frames }

func (s *ffmpegStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ffmpegStream) Stats() Stats {
	return Stats{
		FramesRead:    s.framesRead.Load(),
		FramesDropped: s.framesDropped.Load(),
	}
}

// Close stops ffmpeg and waits for the reader to finish.
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.cancel()
	})

	select {
	case <-s.done:
	case <-time.After(stopTimeout):
		slog.Warn("camera: stop timeout exceeded, capture process may still be running")
	}
	return nil
}

func (s *ffmpegStream) readLoop(stdout io.Reader) {
	defer close(s.done)
	defer close(s.frames)

	err := readFrames(stdout, s.width, s.height, func(f Frame) {
		s.framesRead.Add(1)
		defer s.startOnce.Do(func() { close(s.started) })
		select {
		case s.frames <- f:
		default:
			// Consumer busy; the next frame is just as good
			s.framesDropped.Add(1)
		}
	})

	waitErr := s.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return
	}
	switch {
	case waitErr != nil:
		s.err = &CaptureError{Kind: Classify(s.stderr.String()), Detail: s.stderr.String(), Err: waitErr}
	case errors.Is(err, io.EOF):
		s.err = ErrStreamEnded
	default:
		s.err = err
	}
	slog.Warn("camera: capture ended", "error", s.err, "frames_read", s.framesRead.Load())
}

// readFrames reads raw 8-bit grayscale frames of width*height bytes until r
// is exhausted. A clean end of input, including a trailing partial frame,
// returns io.EOF.
func readFrames(r io.Reader, width, height int, emit func(Frame)) error {
	size := width * height
	var seq uint64
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return err
		}
		seq++
		emit(Frame{
			Seq:       seq,
			Timestamp: time.Now(),
			Image: &image.Gray{
				Pix:    buf,
				Stride: width,
				Rect:   image.Rect(0, 0, width, height),
			},
		})
	}
}

// tailBuffer keeps the last stderrTailSz bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrTailSz {
		t.buf = t.buf[len(t.buf)-stderrTailSz:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
