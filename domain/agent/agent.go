// Package agent bundles the capture, match and input capabilities used by the
// worker, with interruption-aware sleeps on an injectable clock.
package agent

import (
	"context"
	"image"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/zerr"

	"github.com/soocke/pixel-scheduler-go/domain/action"
	"github.com/soocke/pixel-scheduler-go/domain/capture"
)

// ErrInterrupted is returned by every blocking worker call once the run has
// been asked to stop.
var ErrInterrupted = zerr.New("run interrupted")

// Matcher locates templates inside a frame.
type Matcher interface {
	Match(ctx context.Context, f *capture.Frame, name string) (capture.MatchResult, bool)
	MatchAll(ctx context.Context, f *capture.Frame, name string) []capture.MatchResult
}

// Outcome classifies one look at the screen.
type Outcome int

const (
	Miss Outcome = iota
	Hit
	// Blind means the frame could not be captured; it counts as a miss.
	Blind
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Blind:
		return "blind"
	default:
		return "miss"
	}
}

// Options configures an Agent.
type Options struct {
	Capturer capture.Capturer
	Matcher  Matcher
	Input    action.Input
	Clock    clockwork.Clock
	JitterPx int
	// Seed makes tap jitter reproducible. Zero seeds from the clock.
	Seed   uint64
	Logger *slog.Logger
}

// Agent is owned by a single worker goroutine.
type Agent struct {
	capturer capture.Capturer
	matcher  Matcher
	input    action.Input
	clock    clockwork.Clock
	jitter   int
	rng      *rand.Rand
	logger   *slog.Logger

	mu        sync.Mutex
	frameSize image.Point
}

func New(o Options) *Agent {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	seed := o.Seed
	if seed == 0 {
		seed = uint64(o.Clock.Now().UnixNano())
	}
	return &Agent{
		capturer: o.Capturer,
		matcher:  o.Matcher,
		input:    o.Input,
		clock:    o.Clock,
		jitter:   o.JitterPx,
		rng:      rand.New(rand.NewPCG(seed, seed>>1|1)),
		logger:   o.Logger,
	}
}

func (a *Agent) Clock() clockwork.Clock { return a.clock }
func (a *Agent) Logger() *slog.Logger   { return a.logger }

// Rand returns the agent's random source.
func (a *Agent) Rand() *rand.Rand { return a.rng }

// FrameSize returns the dimensions of the most recent frame, or zero before
// the first capture.
func (a *Agent) FrameSize() image.Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frameSize
}

// Interrupted converts a done context into ErrInterrupted.
func Interrupted(ctx context.Context) error {
	err := zerr.Wrap(ErrInterrupted, "worker stopped")
	if cause := context.Cause(ctx); cause != nil {
		err = zerr.With(err, "cause", cause.Error())
	}
	return err
}

// Checkpoint returns ErrInterrupted if ctx is done.
func (a *Agent) Checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return Interrupted(ctx)
	}
	return nil
}

// Sleep waits d on the agent clock or until ctx is done.
func (a *Agent) Sleep(ctx context.Context, d time.Duration) error {
	if err := a.Checkpoint(ctx); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := a.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return Interrupted(ctx)
	case <-t.Chan():
		return nil
	}
}

// Capture grabs one frame. A failed capture is logged and reported as nil
// with a nil error; only interruption is an error.
func (a *Agent) Capture(ctx context.Context) (*capture.Frame, error) {
	if err := a.Checkpoint(ctx); err != nil {
		return nil, err
	}
	f, err := a.capturer.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Interrupted(ctx)
		}
		a.logger.ErrorContext(ctx, "capture failed", "error", err)
		return nil, nil
	}
	a.mu.Lock()
	a.frameSize = image.Pt(f.Width(), f.Height())
	a.mu.Unlock()
	return f, nil
}

// Match looks for name in an already captured frame.
func (a *Agent) Match(ctx context.Context, f *capture.Frame, name string) (capture.MatchResult, bool) {
	return a.matcher.Match(ctx, f, name)
}

// Find captures a frame and looks for name.
func (a *Agent) Find(ctx context.Context, name string) (capture.MatchResult, Outcome, error) {
	f, err := a.Capture(ctx)
	if err != nil || f == nil {
		return capture.MatchResult{}, Blind, err
	}
	defer f.Release()
	r, ok := a.matcher.Match(ctx, f, name)
	if !ok {
		return capture.MatchResult{}, Miss, nil
	}
	return r, Hit, nil
}

// FindAll captures a frame and returns every deduplicated occurrence of name,
// ordered by x.
func (a *Agent) FindAll(ctx context.Context, name string) ([]capture.MatchResult, Outcome, error) {
	f, err := a.Capture(ctx)
	if err != nil || f == nil {
		return nil, Blind, err
	}
	defer f.Release()
	rs := a.matcher.MatchAll(ctx, f, name)
	if len(rs) == 0 {
		return nil, Miss, nil
	}
	return rs, Hit, nil
}

// TapResult taps the jittered center of r.
func (a *Agent) TapResult(ctx context.Context, r capture.MatchResult) (image.Point, error) {
	pt := action.Jitter(r.Center(), a.jitter, a.rng)
	return pt, a.Tap(ctx, pt.X, pt.Y)
}

// Tap injects a tap at (x, y).
func (a *Agent) Tap(ctx context.Context, x, y int) error {
	if err := a.Checkpoint(ctx); err != nil {
		return err
	}
	return a.input.Tap(ctx, x, y)
}

// Press injects a press of duration d at (x, y).
func (a *Agent) Press(ctx context.Context, x, y int, d time.Duration) error {
	if err := a.Checkpoint(ctx); err != nil {
		return err
	}
	return a.input.Press(ctx, x, y, d)
}

// Click finds name and taps it. With leftmost set, every occurrence is
// located and the left-most one is tapped. A failed tap counts as a miss.
func (a *Agent) Click(ctx context.Context, name string, leftmost bool) (Outcome, error) {
	var (
		r   capture.MatchResult
		out Outcome
		err error
	)
	if leftmost {
		var rs []capture.MatchResult
		rs, out, err = a.FindAll(ctx, name)
		if out == Hit {
			r, _ = capture.Leftmost(rs)
		}
	} else {
		r, out, err = a.Find(ctx, name)
	}
	if err != nil || out != Hit {
		return out, err
	}
	pt, err := a.TapResult(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return Miss, Interrupted(ctx)
		}
		a.logger.WarnContext(ctx, "tap failed", "template", name, "error", err)
		return Miss, nil
	}
	a.logger.InfoContext(ctx, "clicked",
		"template", name,
		"similarity", round3(r.Similarity),
		"scale", r.Scale,
		"x", pt.X, "y", pt.Y)
	return Hit, nil
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
