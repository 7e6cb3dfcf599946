//go:build !windows

package keys

import (
	"context"
	"log/slog"
)

// HotkeySource is only available on Windows.
type HotkeySource struct {
	Bus
}

// NewHotkeySource always fails on this platform.
func NewHotkeySource(Code, *slog.Logger) (*HotkeySource, error) {
	return nil, ErrUnsupported
}

func (s *HotkeySource) Name() string                  { return "hotkey" }
func (s *HotkeySource) Alive() bool                   { return false }
func (s *HotkeySource) Run(ctx context.Context) error { return ErrUnsupported }
