// Package decoder extracts barcode payloads from images using gozxing.
package decoder

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNotFound means no barcode was found in the image. It is the expected
// outcome for most video frames and is not a failure.
var ErrNotFound = errors.New("no barcode found")

// DecodeError is a barcode that was located but could not be read,
// e.g. a checksum or format failure.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return "decode failed: " + e.Err.Error()
	}
	return fmt.Sprintf("decode %s failed: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Result is a decoded payload.
type Result struct {
	Text   string
	Format string
}

// Decoder decodes a single image.
type Decoder interface {
	Decode(img image.Image) (Result, error)
}

// readerFactories maps format names (as reported by gozxing) to readers.
var readerFactories = map[string]func() gozxing.Reader{
	"QR_CODE":     qrcode.NewQRCodeReader,
	"DATA_MATRIX": func() gozxing.Reader { return datamatrix.NewDataMatrixReader() },
	"AZTEC":       func() gozxing.Reader { return aztec.NewAztecReader() },
	"EAN_13":      oned.NewEAN13Reader,
	"EAN_8":       oned.NewEAN8Reader,
	"UPC_A":       oned.NewUPCAReader,
	"UPC_E":       oned.NewUPCEReader,
	"CODE_128":    oned.NewCode128Reader,
	"CODE_39":     oned.NewCode39Reader,
	"ITF":         oned.NewITFReader,
}

// SupportedFormats lists every format name accepted by New, sorted.
func SupportedFormats() []string {
	names := make([]string, 0, len(readerFactories))
	for name := range readerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type namedReader struct {
	format string
	reader gozxing.Reader
}

// Options configures a Multi decoder.
type Options struct {
	// Formats restricts decoding. Empty means all supported formats.
	Formats []string
	// TryHarder spends more time per frame looking for a symbol.
	TryHarder bool
}

// Multi tries each configured reader in turn and returns the first hit.
// Not safe for concurrent use; gozxing readers keep per-decode state.
type Multi struct {
	readers []namedReader
	hints   map[gozxing.DecodeHintType]interface{}
}

// New builds a decoder for the given options.
func New(opts Options) (*Multi, error) {
	formats := opts.Formats
	if len(formats) == 0 {
		formats = SupportedFormats()
	}

	m := &Multi{}
	seen := map[string]bool{}
	for _, f := range formats {
		name := strings.ToUpper(strings.TrimSpace(f))
		if name == "" || seen[name] {
			continue
		}
		factory, ok := readerFactories[name]
		if !ok {
			return nil, fmt.Errorf("decoder: unsupported format %q (supported: %s)",
				f, strings.Join(SupportedFormats(), ", "))
		}
		seen[name] = true
		m.readers = append(m.readers, namedReader{format: name, reader: factory()})
	}
	if len(m.readers) == 0 {
		return nil, fmt.Errorf("decoder: no formats configured")
	}

	if opts.TryHarder {
		m.hints = map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		}
	}
	return m, nil
}

// Ensure Multi implements Decoder
var _ Decoder = (*Multi)(nil)

// Formats returns the configured format names in try order.
func (m *Multi) Formats() []string {
	out := make([]string, len(m.readers))
	for i, r := range m.readers {
		out[i] = r.format
	}
	return out
}

// Decode returns the first successful read. If every reader reports
// "not found" the result is ErrNotFound; otherwise the first real failure
// is returned as a *DecodeError.
func (m *Multi) Decode(img image.Image) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, &DecodeError{Err: fmt.Errorf("reader panic: %v", r)}
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Result{}, &DecodeError{Err: err}
	}

	var firstErr error
	for _, nr := range m.readers {
		out, err := nr.reader.Decode(bmp, m.hints)
		nr.reader.Reset()
		if err == nil {
			return Result{
				Text:   out.GetText(),
				Format: out.GetBarcodeFormat().String(),
			}, nil
		}
		if IsNotFound(err) {
			continue
		}
		if firstErr == nil {
			firstErr = &DecodeError{Format: nr.format, Err: err}
		}
	}

	if firstErr != nil {
		return Result{}, firstErr
	}
	return Result{}, ErrNotFound
}

// IsNotFound reports whether err is the "nothing in this frame" signal,
// either ours or gozxing's.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var nf gozxing.NotFoundException
	return errors.As(err, &nf)
}
