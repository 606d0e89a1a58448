package decoder

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qrImage(t *testing.T, text string) image.Image {
	t.Helper()
	img, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	require.NoError(t, err)
	return img
}

func blankImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 240, 240))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    []string
		wantErr string
	}{
		{"defaults to all", Options{}, SupportedFormats(), ""},
		{"normalizes names", Options{Formats: []string{" qr_code ", "ean_13"}}, []string{"QR_CODE", "EAN_13"}, ""},
		{"drops duplicates", Options{Formats: []string{"QR_CODE", "qr_code"}}, []string{"QR_CODE"}, ""},
		{"unsupported", Options{Formats: []string{"PDF_417"}}, nil, "unsupported format"},
		{"only blanks", Options{Formats: []string{" ", ""}}, nil, "no formats configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Formats())
		})
	}
}

func TestSupportedFormatsSorted(t *testing.T) {
	formats := SupportedFormats()
	assert.IsNonDecreasing(t, formats)
	assert.Contains(t, formats, "QR_CODE")
	assert.Contains(t, formats, "EAN_13")
}

func TestDecodeQRCode(t *testing.T) {
	d, err := New(Options{})
	require.NoError(t, err)

	res, err := d.Decode(qrImage(t, "https://example.com/item/42"))

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/item/42", res.Text)
	assert.Equal(t, "QR_CODE", res.Format)
}

func TestDecodeTryHarder(t *testing.T) {
	d, err := New(Options{Formats: []string{"QR_CODE"}, TryHarder: true})
	require.NoError(t, err)

	res, err := d.Decode(qrImage(t, "hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
}

func TestDecodeBlankIsNotFound(t *testing.T) {
	d, err := New(Options{})
	require.NoError(t, err)

	_, err = d.Decode(blankImage())

	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
	var decErr *DecodeError
	assert.False(t, errors.As(err, &decErr))
}

func TestDecodeRestrictedFormats(t *testing.T) {
	d, err := New(Options{Formats: []string{"EAN_13"}})
	require.NoError(t, err)

	_, err = d.Decode(qrImage(t, "not a product code"))
	assert.True(t, IsNotFound(err))
}

func TestDecodeRepeated(t *testing.T) {
	d, err := New(Options{Formats: []string{"QR_CODE"}})
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "one"} {
		res, err := d.Decode(qrImage(t, text))
		require.NoError(t, err)
		assert.Equal(t, text, res.Text)

		_, err = d.Decode(blankImage())
		require.ErrorIs(t, err, ErrNotFound)
	}
}

func TestDecodeNonGrayImage(t *testing.T) {
	src := qrImage(t, "rgba")
	b := src.Bounds()
	rgba := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x, y, color.RGBAModel.Convert(src.At(x, y)))
		}
	}

	d, err := New(Options{Formats: []string{"QR_CODE"}})
	require.NoError(t, err)

	res, err := d.Decode(rgba)
	require.NoError(t, err)
	assert.Equal(t, "rgba", res.Text)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(gozxing.NewNotFoundException()))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(&DecodeError{Format: "QR_CODE", Err: gozxing.NewChecksumException()}))
}

func TestDecodeErrorMessage(t *testing.T) {
	err := &DecodeError{Format: "EAN_13", Err: errors.New("checksum")}
	assert.Equal(t, "decode EAN_13 failed: checksum", err.Error())

	err = &DecodeError{Err: errors.New("bad image")}
	assert.Equal(t, "decode failed: bad image", err.Error())
}

func TestEverySupportedFormatBuilds(t *testing.T) {
	for _, format := range SupportedFormats() {
		t.Run(format, func(t *testing.T) {
			d, err := New(Options{Formats: []string{format}})
			require.NoError(t, err)
			assert.Equal(t, []string{format}, d.Formats())

			_, err = d.Decode(blankImage())
			assert.Error(t, err)
		})
	}
}
