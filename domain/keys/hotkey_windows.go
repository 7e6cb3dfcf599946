//go:build windows

package keys

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sys/windows"
)

const (
	pollInterval = 25 * time.Millisecond
	staleAfter   = 2 * time.Second
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetAsyncKeyState = user32.NewProc("GetAsyncKeyState")
)

// HotkeySource polls the global key state for one virtual key and emits an
// event on every press edge.
type HotkeySource struct {
	Bus
	code     Code
	logger   *slog.Logger
	running  atomic.Bool
	lastPoll atomic.Int64
}

// NewHotkeySource returns a source watching code.
func NewHotkeySource(code Code, logger *slog.Logger) (*HotkeySource, error) {
	if err := procGetAsyncKeyState.Find(); err != nil {
		return nil, ErrUnsupported
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HotkeySource{code: code, logger: logger}, nil
}

func (s *HotkeySource) Name() string { return "hotkey" }

// Alive reports whether the poll loop ran recently.
func (s *HotkeySource) Alive() bool {
	if !s.running.Load() {
		return false
	}
	return time.Since(time.Unix(0, s.lastPoll.Load())) < staleAfter
}

// Run polls until ctx is done.
func (s *HotkeySource) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	wasDown := false
	for {
		state, _, _ := procGetAsyncKeyState.Call(uintptr(s.code))
		down := state&0x8000 != 0
		now := time.Now()
		s.lastPoll.Store(now.UnixNano())
		if down && !wasDown {
			s.Dispatch(Event{Code: s.code, At: now})
		}
		wasDown = down
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
