package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FocusWindow is an optional override naming the only group whose index may
// be probed until it expires.
type FocusWindow struct {
	clock clockwork.Clock

	mu      sync.Mutex
	group   string
	expires time.Time
}

func NewFocusWindow(clock clockwork.Clock) *FocusWindow {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FocusWindow{clock: clock}
}

// Set installs a window for group lasting ttl from now.
func (w *FocusWindow) Set(group string, ttl time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.group = group
	w.expires = w.clock.Now().Add(ttl)
}

// Active returns the focused group while the window is open and clears it
// once expired.
func (w *FocusWindow) Active() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.group == "" {
		return "", false
	}
	if !w.clock.Now().Before(w.expires) {
		w.group = ""
		return "", false
	}
	return w.group, true
}

// Clear drops any installed window.
func (w *FocusWindow) Clear() {
	w.mu.Lock()
	w.group = ""
	w.mu.Unlock()
}
