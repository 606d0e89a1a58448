package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, shade uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestNewImageDirDevice(t *testing.T) {
	_, err := NewImageDirDevice("", 10, false)
	assert.Error(t, err)

	_, err = NewImageDirDevice(t.TempDir(), 0, false)
	assert.Error(t, err)

	d, err := NewImageDirDevice("/tmp/frames", 4, true)
	require.NoError(t, err)
	assert.Equal(t, "dir:/tmp/frames", d.Name())
	assert.Equal(t, 250*time.Millisecond, d.interval)
}

func TestImageDirProbe(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		d, err := NewImageDirDevice(filepath.Join(t.TempDir(), "nope"), 10, false)
		require.NoError(t, err)
		assert.ErrorIs(t, d.Probe(context.Background()), ErrDeviceNotFound)
	})

	t.Run("no images", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
		d, err := NewImageDirDevice(dir, 10, false)
		require.NoError(t, err)
		assert.ErrorIs(t, d.Probe(context.Background()), ErrNoFrames)
	})

	t.Run("corrupt image", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("not a png"), 0o644))
		d, err := NewImageDirDevice(dir, 10, false)
		require.NoError(t, err)
		var capErr *CaptureError
		assert.True(t, errors.As(d.Probe(context.Background()), &capErr))
	})

	t.Run("ok", func(t *testing.T) {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "a.png"), 0)
		d, err := NewImageDirDevice(dir, 10, false)
		require.NoError(t, err)
		assert.NoError(t, d.Probe(context.Background()))
	})
}

func TestImageDirStreamPlaysInOrderThenEnds(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 200)
	writePNG(t, filepath.Join(dir, "a.png"), 100)

	d, err := NewImageDirDevice(dir, 50, false)
	require.NoError(t, err)

	stream, err := d.Open(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	var shades []uint8
	for f := range stream.Frames() {
		c := color.GrayModel.Convert(f.Image.At(0, 0)).(color.Gray)
		shades = append(shades, c.Y)
	}

	assert.Equal(t, []uint8{100, 200}, shades)
	assert.ErrorIs(t, stream.Err(), ErrStreamEnded)
	assert.Equal(t, uint64(2), stream.Stats().FramesRead)
}

func TestImageDirStreamCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 0)

	d, err := NewImageDirDevice(dir, 50, true)
	require.NoError(t, err)

	stream, err := d.Open(context.Background())
	require.NoError(t, err)

	select {
	case _, ok := <-stream.Frames():
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from looping stream")
	}

	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Err(), "closing is not a stream failure")

	for range stream.Frames() {
	}
}
