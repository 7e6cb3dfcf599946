//go:build windows

package action

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mouseeventfLeftDown = 0x0002
	mouseeventfLeftUp   = 0x0004
	tapHold             = 30 * time.Millisecond
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetCursorPos        = user32.NewProc("SetCursorPos")
	procMouseEvent          = user32.NewProc("mouse_event")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
)

// Win32Input moves the cursor and sends left-button events through user32.
type Win32Input struct{}

// NewInput returns the platform input injector.
func NewInput() (Input, error) {
	if err := procMouseEvent.Find(); err != nil {
		return nil, errors.Join(ErrUnsupported, err)
	}
	return Win32Input{}, nil
}

func (Win32Input) Tap(ctx context.Context, x, y int) error {
	return Win32Input{}.Press(ctx, x, y, tapHold)
}

func (Win32Input) Press(ctx context.Context, x, y int, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, _ = procSetCursorPos.Call(uintptr(x), uintptr(y))
	_, _, _ = procMouseEvent.Call(mouseeventfLeftDown, 0, 0, 0, 0)
	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		t.Stop()
	case <-t.C:
	}
	// Always release the button, even when cancelled mid-press.
	_, _, _ = procMouseEvent.Call(mouseeventfLeftUp, 0, 0, 0, 0)
	return nil
}

// ForegroundWindowTitle returns the title of the current foreground window.
func ForegroundWindowTitle() (string, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return "", errors.New("no foreground window")
	}
	const maxChars = 256
	buf := make([]uint16, maxChars)
	r, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r == 0 {
		return "", nil
	}
	end := int(r)
	for i, v := range buf[:end] {
		if v == 0 {
			end = i
			break
		}
	}
	return strings.TrimSpace(string(utf16.Decode(buf[:end]))), nil
}
