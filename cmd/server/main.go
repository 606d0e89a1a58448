package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/barscan/internal/app"
	"github.com/lyallcooper/barscan/internal/camera"
	"github.com/lyallcooper/barscan/internal/config"
	"github.com/lyallcooper/barscan/internal/decoder"
	"github.com/lyallcooper/barscan/internal/webfs"
)

// Version info - injected at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

// serverFlags are command-line overrides. Only flags that were set on the
// command line replace config values.
type serverFlags struct {
	configPath  string
	port        int
	bind        string
	logLevel    string
	ffmpeg      string
	inputFormat string
	device      string
	fps         float64
	imageDir    string
	loop        bool
	formats     []string
	tryHarder   bool
}

func main() {
	if err := newRootCmd(serve).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the CLI. run receives the final config and serves it.
func newRootCmd(run func(context.Context, *config.Config) error) *cobra.Command {
	var flags serverFlags

	cmd := &cobra.Command{
		Use:           "barscan",
		Short:         "Scan barcodes from a local camera",
		Long:          "barscan reads frames from a camera, decodes barcodes and serves a live scanner page.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&flags.configPath, "config", "", "YAML config file (env: BARSCAN_CONFIG)")
	f.IntVarP(&flags.port, "port", "p", 0, "HTTP port")
	f.StringVar(&flags.bind, "bind", "", "address to bind to")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&flags.ffmpeg, "ffmpeg", "", "ffmpeg binary")
	f.StringVar(&flags.inputFormat, "input-format", "", "ffmpeg input format (v4l2, avfoundation, dshow)")
	f.StringVar(&flags.device, "device", "", "camera device")
	f.Float64Var(&flags.fps, "fps", 0, "frames per second to decode")
	f.StringVar(&flags.imageDir, "image-dir", "", "replay PNG/JPEG files from this directory instead of a camera")
	f.BoolVar(&flags.loop, "loop", false, "restart image-dir playback at the end")
	f.StringSliceVar(&flags.formats, "formats", nil, "barcode formats to decode")
	f.BoolVar(&flags.tryHarder, "try-harder", false, "spend more time looking for barcodes")

	cmd.AddCommand(newProbeCmd(&flags), newFormatsCmd())
	return cmd
}

func newProbeCmd(flags *serverFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the camera can be opened",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			device, err := app.NewDevice(cfg.Camera)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if ff, ok := device.(*camera.FFmpegDevice); ok {
				if err := ff.CheckInstalled(ctx); err != nil {
					return err
				}
			}
			if err := device.Probe(ctx); err != nil {
				return fmt.Errorf("%s: %w", device.Name(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", device.Name())
			return nil
		},
	}
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported barcode formats",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(decoder.SupportedFormats(), "\n"))
		},
	}
}

// loadConfig reads file and environment config, applies flag overrides and
// installs the logger.
func loadConfig(cmd *cobra.Command, flags *serverFlags) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		path = os.Getenv("BARSCAN_CONFIG")
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}

	applyFlags(cmd, flags, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := app.SetupLogging(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, flags *serverFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Port = flags.port
	}
	if changed("bind") {
		cfg.BindAddress = flags.bind
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("ffmpeg") {
		cfg.Camera.FFmpeg = flags.ffmpeg
	}
	if changed("input-format") {
		cfg.Camera.InputFormat = flags.inputFormat
	}
	if changed("device") {
		cfg.Camera.Device = flags.device
	}
	if changed("fps") {
		cfg.Camera.FPS = flags.fps
	}
	if changed("image-dir") {
		cfg.Camera.ImageDir = config.ExpandPath(flags.imageDir)
	}
	if changed("loop") {
		cfg.Camera.Loop = flags.loop
	}
	if changed("formats") {
		cfg.Decoder.Formats = flags.formats
	}
	if changed("try-harder") {
		cfg.Decoder.TryHarder = flags.tryHarder
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	server, err := app.CreateServer(app.ServerConfig{
		Config:  cfg,
		Version: version,
		Commit:  commit,
		WebFS:   webfs.FS,
	})
	if err != nil {
		return err
	}
	defer server.Cleanup()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "url", "http://"+cfg.Addr())
		errCh <- server.HTTP.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.HTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
