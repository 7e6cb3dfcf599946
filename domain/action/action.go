// Package action injects taps and presses at screen coordinates.
package action

import (
	"context"
	"image"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.trai.ch/zerr"
)

// ErrUnsupported is returned when input injection is not available on this
// platform.
var ErrUnsupported = zerr.New("input injection unsupported on this platform")

// Input injects pointer input.
type Input interface {
	Tap(ctx context.Context, x, y int) error
	Press(ctx context.Context, x, y int, d time.Duration) error
}

// Jitter offsets pt by up to ±px on each axis.
func Jitter(pt image.Point, px int, rng *rand.Rand) image.Point {
	if px <= 0 || rng == nil {
		return pt
	}
	return image.Pt(pt.X+rng.IntN(2*px+1)-px, pt.Y+rng.IntN(2*px+1)-px)
}

// DryRun logs input instead of injecting it.
type DryRun struct {
	Logger *slog.Logger
}

func (d DryRun) Tap(ctx context.Context, x, y int) error {
	d.logger().DebugContext(ctx, "tap (dry run)", "x", x, "y", y)
	return nil
}

func (d DryRun) Press(ctx context.Context, x, y int, dur time.Duration) error {
	d.logger().DebugContext(ctx, "press (dry run)", "x", x, "y", y, "duration", dur)
	return nil
}

func (d DryRun) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
