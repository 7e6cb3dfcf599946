package capture

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vova616/screenshot"
	"go.trai.ch/zerr"
	"golang.org/x/time/rate"
)

const captureStatsLogInterval = 30 * time.Second

// GrabFunc captures the primary screen.
type GrabFunc func() (*image.RGBA, error)

// ScreenGrabber captures the full screen through the screenshot library and
// keeps capture counters.
type ScreenGrabber struct {
	grab   GrabFunc
	logger *slog.Logger

	captures     atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
	lastNanos    atomic.Int64
	lastLog      atomic.Int64
}

// NewScreenGrabber returns a grabber backed by screenshot.CaptureScreen.
func NewScreenGrabber(logger *slog.Logger) *ScreenGrabber {
	return NewGrabber(screenshot.CaptureScreen, logger)
}

// NewGrabber returns a grabber backed by fn.
func NewGrabber(fn GrabFunc, logger *slog.Logger) *ScreenGrabber {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScreenGrabber{grab: fn, logger: logger}
}

// Capture grabs one frame. Failures are counted and wrapped with
// ErrCaptureUnavailable.
func (s *ScreenGrabber) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	img, err := s.grab()
	if err != nil || img == nil {
		s.failures.Add(1)
		out := zerr.Wrap(ErrCaptureUnavailable, "capture screen")
		if err != nil {
			out = zerr.With(out, "cause", err.Error())
		}
		return nil, out
	}
	elapsed := time.Since(start)
	s.captureNanos.Add(uint64(elapsed.Nanoseconds()))
	s.captures.Add(1)
	now := time.Now()
	s.lastNanos.Store(now.UnixNano())

	f := NewFrame(img)
	f.CapturedAt = now
	f.Sequence = s.sequence.Add(1)
	s.maybeLogStats(now)
	return f, nil
}

func (s *ScreenGrabber) maybeLogStats(now time.Time) {
	last := s.lastLog.Load()
	if now.UnixNano()-last < int64(captureStatsLogInterval) {
		return
	}
	if !s.lastLog.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
	)
}

func (s *ScreenGrabber) Stats() CaptureStats {
	captures := s.captures.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	var last time.Time
	if n := s.lastNanos.Load(); n > 0 {
		last = time.Unix(0, n)
	}
	return CaptureStats{
		Captures:         captures,
		Failures:         s.failures.Load(),
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      last,
		Sequence:         s.sequence.Load(),
	}
}

// ThrottledGrabber limits how often the wrapped capturer is invoked.
type ThrottledGrabber struct {
	next      Capturer
	limiter   *rate.Limiter
	throttled atomic.Uint64
}

// NewThrottledGrabber allows at most fps captures per second. fps <= 0
// disables the limit.
func NewThrottledGrabber(next Capturer, fps float64) *ThrottledGrabber {
	limit := rate.Inf
	if fps > 0 {
		limit = rate.Limit(fps)
	}
	return &ThrottledGrabber{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (t *ThrottledGrabber) Capture(ctx context.Context) (*Frame, error) {
	if !t.limiter.Allow() {
		t.throttled.Add(1)
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return t.next.Capture(ctx)
}

// Throttled reports how many captures had to wait for the limiter.
func (t *ThrottledGrabber) Throttled() uint64 { return t.throttled.Load() }

// EnsureCapture probes the capturer once and, on failure, re-requests it up
// to attempts more times with backoff between tries. The probe frame is released.
func EnsureCapture(ctx context.Context, c Capturer, attempts int, backoff time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	tries := 1 + max(0, attempts)
	var lastErr error
	for i := 1; i <= tries; i++ {
		f, err := c.Capture(ctx)
		if err == nil {
			f.Release()
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("capture not ready", "try", i, "of", tries, "error", err)
		if i == tries {
			break
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	out := zerr.With(zerr.Wrap(ErrCaptureUnavailable, "capture not ready"), "tries", tries)
	if lastErr != nil {
		out = zerr.With(out, "cause", lastErr.Error())
	}
	return out
}
