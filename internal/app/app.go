// Package app provides shared application initialization logic used by both
// the server (CLI) and desktop (Wails) entry points.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/lyallcooper/barscan/internal/camera"
	"github.com/lyallcooper/barscan/internal/clipboard"
	"github.com/lyallcooper/barscan/internal/config"
	"github.com/lyallcooper/barscan/internal/decoder"
	"github.com/lyallcooper/barscan/internal/handlers"
	"github.com/lyallcooper/barscan/internal/services"
)

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// Config is the loaded application configuration. Nil loads it from
	// the environment.
	Config *config.Config

	// Version string for display.
	Version string

	// Commit hash for display.
	Commit string

	// WebFS is the embedded filesystem containing web assets.
	WebFS fs.FS

	// DisableCSRF disables CSRF protection. Use for desktop mode where
	// the server only accepts local connections and CSRF isn't a concern.
	DisableCSRF bool

	// Clipboard overrides the system clipboard.
	Clipboard clipboard.Writer
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	HTTP       *http.Server
	Config     *config.Config
	Device     camera.Device
	Controller *services.Controller

	cancel   context.CancelFunc
	initDone chan struct{}
}

// SetupLogging installs the default slog logger writing text to stderr.
func SetupLogging(level string) error {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// NewDevice builds the capture device selected by cfg.
func NewDevice(cfg config.CameraConfig) (camera.Device, error) {
	if cfg.ImageDir != "" {
		return camera.NewImageDirDevice(cfg.ImageDir, cfg.FPS, cfg.Loop)
	}
	return camera.NewFFmpegDevice(camera.FFmpegConfig{
		Binary:      cfg.FFmpeg,
		InputFormat: cfg.InputFormat,
		Device:      cfg.Device,
		Width:       cfg.Width,
		Height:      cfg.Height,
		FPS:         cfg.FPS,
	})
}

// CreateServer initializes all application components and returns a Server.
// The initial camera probe runs in the background.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	appCfg := cfg.Config
	if appCfg == nil {
		var err error
		if appCfg, err = config.Load(); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	device, err := NewDevice(appCfg.Camera)
	if err != nil {
		return nil, fmt.Errorf("failed to configure camera: %w", err)
	}

	slog.Info("barscan starting",
		"version", buildVersionString(cfg.Version, cfg.Commit),
		"addr", appCfg.Addr(),
		"device", device.Name(),
		"formats", strings.Join(appCfg.Decoder.Formats, ","))

	// Check ffmpeg is installed
	if ff, ok := device.(*camera.FFmpegDevice); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if v, err := ff.Version(ctx); err != nil {
			slog.Warn("ffmpeg not found, install it to enable scanning: https://ffmpeg.org/download.html", "error", err)
		} else {
			slog.Info("using ffmpeg", "version", v)
		}
		cancel()
	}

	dec, err := decoder.New(decoder.Options{
		Formats:   appCfg.Decoder.Formats,
		TryHarder: appCfg.Decoder.TryHarder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure decoder: %w", err)
	}

	clip := cfg.Clipboard
	if clip == nil {
		clip = clipboard.System{}
	}

	ctrl := services.NewController(device, dec, clip)

	h, err := handlers.New(ctrl, appCfg, cfg.WebFS, buildVersionString(cfg.Version, cfg.Commit), cfg.DisableCSRF)
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Start CSRF token cleanup
	handlers.StartCSRFCleanup(ctx)

	// Set up HTTP server
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	server := &http.Server{
		Addr:         appCfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}
	// Shutdown waits for active connections; closing the controller ends
	// every SSE stream and releases the camera.
	server.RegisterOnShutdown(ctrl.Close)

	s := &Server{
		HTTP:       server,
		Config:     appCfg,
		Device:     device,
		Controller: ctrl,
		cancel:     cancel,
		initDone:   make(chan struct{}),
	}

	go func() {
		defer close(s.initDone)
		ctrl.Init(ctx)
	}()

	return s, nil
}

// Cleanup stops scanning, releasing the camera, and all background work.
// Closing the controller first aborts a startup probe still in flight.
func (s *Server) Cleanup() {
	s.cancel()
	s.Controller.Close()
	<-s.initDone
}

func buildVersionString(version, commit string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
