package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"

	"github.com/lyallcooper/barscan/internal/app"
	"github.com/lyallcooper/barscan/internal/config"
	"github.com/lyallcooper/barscan/internal/webfs"
)

// Version info - injected at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("barscan desktop failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := app.SetupLogging(cfg.LogLevel); err != nil {
		return err
	}

	// Find available port for internal server
	port, err := findAvailablePort()
	if err != nil {
		return fmt.Errorf("failed to find available port: %w", err)
	}
	cfg.Port = port
	cfg.BindAddress = "127.0.0.1" // Only local connections

	// Prefer a bundled ffmpeg unless one was configured
	if os.Getenv("BARSCAN_FFMPEG") == "" {
		if ffmpeg := findBundledFFmpeg(); ffmpeg != "" {
			slog.Info("using bundled ffmpeg", "path", ffmpeg)
			cfg.Camera.FFmpeg = ffmpeg
		}
	}

	// Create the internal HTTP server
	server, err := app.CreateServer(app.ServerConfig{
		Config:      cfg,
		Version:     version,
		Commit:      commit,
		WebFS:       webfs.FS,
		DisableCSRF: true, // CSRF not needed for desktop app
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Create reverse proxy to internal server
	targetURL, _ := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	proxy := httputil.NewSingleHostReverseProxy(targetURL)
	// Keep SSE responses streaming through the proxy
	proxy.FlushInterval = -1

	desktopApp := NewApp(server.Controller)

	return wails.Run(&options.App{
		Title:     "Barscan",
		Width:     720,
		Height:    900,
		MinWidth:  420,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Handler: proxy,
		},
		OnStartup: func(ctx context.Context) {
			desktopApp.startup(ctx)
			// Start HTTP server in background
			go func() {
				slog.Info("internal server listening", "url", targetURL.String())
				if err := server.HTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					slog.Error("HTTP server error", "error", err)
				}
			}()
		},
		OnShutdown: func(ctx context.Context) {
			slog.Info("shutting down")
			server.HTTP.Shutdown(context.Background())
			server.Cleanup()
			slog.Info("shutdown complete")
		},
		Bind: []interface{}{
			desktopApp,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: false,
			},
			About: &mac.AboutInfo{
				Title:   "Barscan",
				Message: fmt.Sprintf("Barcode Scanner\n\nVersion: %s", buildVersionString()),
			},
		},
		Windows: &windows.Options{
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
		},
	})
}

// findAvailablePort finds an available TCP port on localhost.
func findAvailablePort() (int, error) {
	// Try preferred port first
	preferredPort := 18090
	if isPortAvailable(preferredPort) {
		return preferredPort, nil
	}

	// Otherwise find any available port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// isPortAvailable checks if a port is available on localhost.
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// findBundledFFmpeg looks for an ffmpeg binary shipped next to the app.
func findBundledFFmpeg() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	var candidates []string

	switch runtime.GOOS {
	case "darwin":
		// Inside .app bundle: Barscan.app/Contents/MacOS/Barscan
		candidates = []string{
			filepath.Join(execDir, "..", "Resources", "ffmpeg"),
			filepath.Join(execDir, "ffmpeg"),
		}
	case "windows":
		candidates = []string{
			filepath.Join(execDir, "ffmpeg.exe"),
		}
	default: // Linux
		candidates = []string{
			filepath.Join(execDir, "ffmpeg"),
			filepath.Join(execDir, "..", "lib", "barscan", "ffmpeg"),
		}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Fall back to system PATH
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path
	}

	return "" // Let the device report it missing
}

// buildVersionString creates a display version string.
func buildVersionString() string {
	if version == "dev" {
		return "Development"
	}
	return version
}
