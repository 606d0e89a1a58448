package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lyallcooper/barscan/internal/decoder"
)

// Config holds all application configuration
type Config struct {
	Port        int           `yaml:"port"`
	BindAddress string        `yaml:"bind_address"`
	LogLevel    string        `yaml:"log_level"`
	Camera      CameraConfig  `yaml:"camera"`
	Decoder     DecoderConfig `yaml:"decoder"`
}

// CameraConfig selects and tunes the capture device. When ImageDir is set
// frames are replayed from that directory instead of a camera.
type CameraConfig struct {
	FFmpeg      string  `yaml:"ffmpeg"`
	InputFormat string  `yaml:"input_format"`
	Device      string  `yaml:"device"`
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	FPS         float64 `yaml:"fps"`
	ImageDir    string  `yaml:"image_dir"`
	Loop        bool    `yaml:"loop"`
}

// DecoderConfig lists the barcode formats to look for
type DecoderConfig struct {
	Formats   []string `yaml:"formats"`
	TryHarder bool     `yaml:"try_harder"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:        8080,
		BindAddress: "127.0.0.1",
		LogLevel:    "info",
		Camera: CameraConfig{
			FFmpeg: "ffmpeg",
			Width:  640,
			Height: 480,
			FPS:    10,
		},
		Decoder: DecoderConfig{
			Formats: decoder.SupportedFormats(),
		},
	}
}

// Load reads the optional YAML file named by BARSCAN_CONFIG, then applies
// environment variables on top.
func Load() (*Config, error) {
	return LoadFrom(getEnv("BARSCAN_CONFIG", ""))
}

// LoadFrom is Load with an explicit config file. An empty path skips the
// file. Precedence: environment > file > defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(ExpandPath(path)); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.Camera.ImageDir = ExpandPath(cfg.Camera.ImageDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvInt("BARSCAN_PORT", c.Port)
	c.BindAddress = getEnv("BARSCAN_BIND_ADDRESS", c.BindAddress)
	c.LogLevel = getEnv("BARSCAN_LOG_LEVEL", c.LogLevel)

	c.Camera.FFmpeg = getEnv("BARSCAN_FFMPEG", c.Camera.FFmpeg)
	c.Camera.InputFormat = getEnv("BARSCAN_CAMERA_FORMAT", c.Camera.InputFormat)
	c.Camera.Device = getEnv("BARSCAN_CAMERA_DEVICE", c.Camera.Device)
	c.Camera.Width = getEnvInt("BARSCAN_CAMERA_WIDTH", c.Camera.Width)
	c.Camera.Height = getEnvInt("BARSCAN_CAMERA_HEIGHT", c.Camera.Height)
	c.Camera.FPS = getEnvFloat("BARSCAN_CAMERA_FPS", c.Camera.FPS)
	c.Camera.ImageDir = getEnv("BARSCAN_IMAGE_DIR", c.Camera.ImageDir)
	c.Camera.Loop = getEnvBool("BARSCAN_IMAGE_LOOP", c.Camera.Loop)

	// Comma-separated format names
	if formats := getEnv("BARSCAN_FORMATS", ""); formats != "" {
		c.Decoder.Formats = splitList(formats)
	}
	c.Decoder.TryHarder = getEnvBool("BARSCAN_TRY_HARDER", c.Decoder.TryHarder)
}

// Validate checks values that would otherwise fail later at startup
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS < 0.1 || c.Camera.FPS > 60 {
		return fmt.Errorf("invalid fps %g (must be 0.1-60)", c.Camera.FPS)
	}
	if len(c.Decoder.Formats) == 0 {
		return errors.New("no barcode formats configured")
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// ParseLogLevel maps debug/info/warn/error to a slog level
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// ExpandPath expands ~ to the user's home directory and cleans the path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(path)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
