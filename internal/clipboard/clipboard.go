// Package clipboard writes text to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"sync"

	sysclip "github.com/atotto/clipboard"
)

// ErrUnsupported is returned when the platform has no clipboard utility
// (on Linux: none of xsel, xclip, wl-copy, termux-clipboard-set).
var ErrUnsupported = errors.New("clipboard not supported on this system")

// Writer writes text to a clipboard.
type Writer interface {
	WriteAll(text string) error
}

// System is the host clipboard.
type System struct{}

// Ensure System implements Writer
var _ Writer = System{}

func (System) WriteAll(text string) error {
	if sysclip.Unsupported {
		return ErrUnsupported
	}
	if err := sysclip.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write failed: %w", err)
	}
	return nil
}

// Memory is an in-process clipboard for headless environments and tests.
type Memory struct {
	mu   sync.Mutex
	text string
}

func (m *Memory) WriteAll(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

// ReadAll returns the last text written, or "" if none.
func (m *Memory) ReadAll() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}
