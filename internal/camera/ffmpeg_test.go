package camera

import (
	"bytes"
	"image"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFFmpegDevice(t *testing.T) {
	tests := []struct {
		name    string
		cfg     FFmpegConfig
		wantErr string
	}{
		{"valid", FFmpegConfig{Width: 640, Height: 480, FPS: 10}, ""},
		{"zero width", FFmpegConfig{Width: 0, Height: 480, FPS: 10}, "invalid frame size"},
		{"negative height", FFmpegConfig{Width: 640, Height: -1, FPS: 10}, "invalid frame size"},
		{"fps too low", FFmpegConfig{Width: 640, Height: 480, FPS: 0}, "invalid fps"},
		{"fps too high", FFmpegConfig{Width: 640, Height: 480, FPS: 120}, "invalid fps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewFFmpegDevice(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ffmpeg", d.cfg.Binary)
			assert.NotEmpty(t, d.cfg.InputFormat)
			assert.NotEmpty(t, d.cfg.Device)
		})
	}
}

func TestFFmpegArgs(t *testing.T) {
	d, err := NewFFmpegDevice(FFmpegConfig{
		InputFormat: "v4l2",
		Device:      "/dev/video2",
		Width:       640,
		Height:      480,
		FPS:         7.5,
	})
	require.NoError(t, err)

	got := strings.Join(d.args(0), " ")
	assert.Equal(t,
		"-hide_banner -nostdin -loglevel error -f v4l2 -i /dev/video2 -vf fps=7.5,scale=640:480 -pix_fmt gray -f rawvideo pipe:1",
		got)

	probe := strings.Join(d.args(1), " ")
	assert.Contains(t, probe, "-frames:v 1 pipe:1")
	assert.Equal(t, "v4l2:/dev/video2", d.Name())
}

func TestFFmpegArgsAVFoundation(t *testing.T) {
	d, err := NewFFmpegDevice(FFmpegConfig{InputFormat: "avfoundation", Device: "0", Width: 320, Height: 240, FPS: 10})
	require.NoError(t, err)

	args := d.args(0)
	assert.Equal(t, []string{"-framerate", "30"}, args[4:6])
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{"release", "ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023\nbuilt with gcc", "6.1.1-3ubuntu5", false},
		{"git build", "ffmpeg version N-113000-gabcdef Copyright", "N-113000-gabcdef", false},
		{"empty", "", "", true},
		{"other tool", "ffprobe version 6.1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersion(tt.output)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFrames(t *testing.T) {
	const w, h = 4, 2
	data := make([]byte, 0, w*h*3)
	for frame := 0; frame < 3; frame++ {
		data = append(data, bytes.Repeat([]byte{byte(frame * 10)}, w*h)...)
	}

	var frames []Frame
	err := readFrames(bytes.NewReader(data), w, h, func(f Frame) {
		frames = append(frames, f)
	})

	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint64(i+1), f.Seq)
		gray, ok := f.Image.(*image.Gray)
		require.True(t, ok)
		assert.Equal(t, image.Rect(0, 0, w, h), gray.Bounds())
		assert.Equal(t, uint8(i*10), gray.GrayAt(3, 1).Y)
	}
}

func TestReadFramesPartialTrailingFrame(t *testing.T) {
	data := make([]byte, 4*2+3)

	count := 0
	err := readFrames(bytes.NewReader(data), 4, 2, func(Frame) { count++ })

	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, count)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestReadFramesReadError(t *testing.T) {
	boom := io.ErrClosedPipe
	err := readFrames(failingReader{boom}, 4, 2, func(Frame) {})
	assert.ErrorIs(t, err, boom)
}

func TestTailBuffer(t *testing.T) {
	var tb tailBuffer
	tb.Write([]byte("  first line\n"))
	assert.Equal(t, "first line", tb.String())

	tb.Write(bytes.Repeat([]byte("x"), stderrTailSz))
	assert.Len(t, tb.String(), stderrTailSz)
	assert.NotContains(t, tb.String(), "first")
}
