package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/barscan/internal/config"
)

// loadWith runs the root command with args and returns the config it
// would serve.
func loadWith(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var got *config.Config
	root := newRootCmd(func(_ context.Context, cfg *config.Config) error {
		got = cfg
		return nil
	})
	root.SetArgs(args)
	err := root.Execute()
	return got, err
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "barscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\nbind_address: 0.0.0.0\ncamera:\n  fps: 5\n"), 0o600))

	cfg, err := loadWith(t, "--config", path, "--port", "9100", "--formats", "QR_CODE,EAN_13", "--loop")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.BindAddress, "unset flags keep file values")
	assert.Equal(t, 5.0, cfg.Camera.FPS)
	assert.Equal(t, []string{"QR_CODE", "EAN_13"}, cfg.Decoder.Formats)
	assert.True(t, cfg.Camera.Loop)
}

func TestFlagValidation(t *testing.T) {
	_, err := loadWith(t, "--fps", "500")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fps")

	_, err = loadWith(t, "--log-level", "loud")
	require.Error(t, err)
}

func TestFormatsCommand(t *testing.T) {
	root := newRootCmd(serve)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"formats"})

	require.NoError(t, root.Execute())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines, "QR_CODE")
	assert.Contains(t, lines, "EAN_13")
}

func TestProbeCommand(t *testing.T) {
	root := newRootCmd(serve)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"probe", "--image-dir", t.TempDir()})

	err := root.Execute()
	require.Error(t, err, "an empty directory has no frames")
	assert.Contains(t, err.Error(), "no frames")
}
