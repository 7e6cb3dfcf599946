//go:build !windows

package action

// NewInput returns the platform input injector. Only Windows is supported;
// elsewhere callers fall back to DryRun.
func NewInput() (Input, error) {
	return nil, ErrUnsupported
}

// ForegroundWindowTitle is not available on this platform.
func ForegroundWindowTitle() (string, error) {
	return "", ErrUnsupported
}
