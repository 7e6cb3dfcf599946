// Package keys delivers discrete key-press events from one or more sources.
package keys

import (
	"strings"
	"sync"
	"time"

	"go.trai.ch/zerr"
)

var (
	// ErrUnsupported is returned by sources that cannot run on this platform.
	ErrUnsupported = zerr.New("key source unsupported on this platform")

	// ErrUnknownKey is returned for key names that have no code.
	ErrUnknownKey = zerr.New("unknown key name")
)

// Code identifies a key. Values are Windows virtual-key codes.
type Code int

const (
	CodeVolumeDown Code = 0xAE
	CodeVolumeUp   Code = 0xAF
	CodeEnter      Code = 0x0D
	CodeSpace      Code = 0x20
)

// Event is one key press.
type Event struct {
	Code Code
	At   time.Time
}

// Handler receives events. It must not block.
type Handler func(Event)

// Handle identifies one subscription for exact removal.
type Handle uint64

// Source is a subscribable stream of key events.
type Source interface {
	Name() string
	Subscribe(h Handler) (Handle, error)
	// Unsubscribe removes exactly the subscription h and reports whether it
	// was present.
	Unsubscribe(h Handle) bool
	// Alive reports whether the underlying capability is currently delivering.
	Alive() bool
}

// Bus is a handler registry shared by the sources.
type Bus struct {
	mu       sync.RWMutex
	next     Handle
	handlers map[Handle]Handler
}

func (b *Bus) Subscribe(h Handler) (Handle, error) {
	if h == nil {
		return 0, zerr.New("nil key handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[Handle]Handler)
	}
	b.next++
	b.handlers[b.next] = h
	return b.next, nil
}

func (b *Bus) Unsubscribe(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[h]; !ok {
		return false
	}
	delete(b.handlers, h)
	return true
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Dispatch delivers ev to every handler.
func (b *Bus) Dispatch(ev Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
}

var namedKeys = map[string]Code{
	"VOLUME_DOWN": CodeVolumeDown,
	"VOLUMEDOWN":  CodeVolumeDown,
	"VOLUME_UP":   CodeVolumeUp,
	"VOLUMEUP":    CodeVolumeUp,
	"ENTER":       CodeEnter,
	"RETURN":      CodeEnter,
	"SPACE":       CodeSpace,
}

// ParseKey converts a key token ("VOLUME_DOWN", "F8", "R", "7") into a Code.
func ParseKey(name string) (Code, error) {
	k := strings.ToUpper(strings.TrimSpace(name))
	if c, ok := namedKeys[k]; ok {
		return c, nil
	}
	if len(k) >= 2 && len(k) <= 3 && k[0] == 'F' {
		n := 0
		for _, r := range k[1:] {
			if r < '0' || r > '9' {
				n = -1
				break
			}
			n = n*10 + int(r-'0')
		}
		if n >= 1 && n <= 24 {
			return Code(0x70 + n - 1), nil // VK_F1=0x70
		}
	}
	if len(k) == 1 && (k[0] >= 'A' && k[0] <= 'Z' || k[0] >= '0' && k[0] <= '9') {
		return Code(k[0]), nil
	}
	return 0, zerr.With(zerr.Wrap(ErrUnknownKey, "parse key"), "key", name)
}
