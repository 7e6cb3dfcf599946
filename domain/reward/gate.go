// Package reward implements the reward gate that runs ahead of group
// detection and may pin detection to one group for a short window.
package reward

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soocke/pixel-scheduler-go/config"
	"github.com/soocke/pixel-scheduler-go/domain/agent"
)

// Focus receives the focus window installed after a proceed tap.
type Focus interface {
	Set(group string, ttl time.Duration)
}

// Gate is the reward state machine. It is owned by the worker goroutine;
// Counter may be read from anywhere.
type Gate struct {
	agent  *agent.Agent
	cfg    config.RewardConfig
	focus  Focus
	logger *slog.Logger

	counter atomic.Int64
	skip    bool
}

func New(a *agent.Agent, cfg config.RewardConfig, focus Focus, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{agent: a, cfg: cfg, focus: focus, logger: logger.With("component", "reward")}
}

// PickOrdinal returns the 1-based candidate to tap for counter. The sequence
// wraps at its length and the ordinal is clamped to the candidates found.
func PickOrdinal(seq []int, counter, candidates int) int {
	if candidates <= 0 {
		return 0
	}
	pick := 1
	if len(seq) > 0 {
		pick = seq[wrap(counter, len(seq))]
	}
	return max(1, min(pick, candidates))
}

// FocusTarget returns the group to focus for counter.
func FocusTarget(seq []string, counter int) (string, bool) {
	if len(seq) == 0 {
		return "", false
	}
	return seq[wrap(counter, len(seq))], true
}

func wrap(counter, n int) int {
	i := counter % n
	if i < 0 {
		i += n
	}
	return i
}

// Counter is the number of successful proceed taps.
func (g *Gate) Counter() int { return int(g.counter.Load()) }

// Check runs one gated claim. The first call after a successful claim only
// clears the skip flag.
func (g *Gate) Check(ctx context.Context) (bool, error) {
	if !g.cfg.Enabled {
		return false, nil
	}
	if g.skip {
		g.skip = false
		g.logger.DebugContext(ctx, "skipping reward check after proceed")
		return false, nil
	}
	return g.Claim(ctx)
}

// Claim taps the reward icon and then one of the proceed landmarks.
// It reports whether an action was taken that changed the screen.
func (g *Gate) Claim(ctx context.Context) (bool, error) {
	if !g.cfg.Enabled {
		return false, nil
	}
	out, err := g.agent.Click(ctx, g.cfg.PrimaryTemplate, false)
	if err != nil || out != agent.Hit {
		return false, err
	}
	if err := g.agent.Sleep(ctx, ms(g.cfg.SettleMs)); err != nil {
		return false, err
	}

	matches, out, err := g.agent.FindAll(ctx, g.cfg.ProceedTemplate)
	switch {
	case err != nil:
		return false, err
	case out == agent.Blind:
		// The reward tap already landed; treat the screen as changed.
		return true, nil
	case out == agent.Miss:
		g.logger.InfoContext(ctx, "no proceed target after reward tap", "template", g.cfg.ProceedTemplate)
		return false, nil
	}

	n := g.Counter()
	ordinal := PickOrdinal(g.cfg.PickSequence, n, len(matches))
	pt, err := g.agent.TapResult(ctx, matches[ordinal-1])
	if err != nil {
		if ctx.Err() != nil {
			return false, agent.Interrupted(ctx)
		}
		g.logger.WarnContext(ctx, "proceed tap failed", "error", err)
		return true, nil
	}
	g.counter.Add(1)
	g.logger.InfoContext(ctx, "proceed tapped",
		"ordinal", ordinal, "candidates", len(matches), "counter", n+1, "x", pt.X, "y", pt.Y)

	if group, ok := FocusTarget(g.cfg.FocusSequence, n); ok && g.focus != nil {
		ttl := ms(g.cfg.FocusTTLMs)
		g.focus.Set(group, ttl)
		g.logger.InfoContext(ctx, "focus window installed", "group", group, "ttl", ttl)
	}
	g.skip = true
	if err := g.agent.Sleep(ctx, ms(g.cfg.AfterProceedMs)); err != nil {
		return true, err
	}
	return true, nil
}

// ClaimN tries Claim up to times, returning on the first success.
func (g *Gate) ClaimN(ctx context.Context, times int) (bool, error) {
	for i := 0; i < times; i++ {
		ok, err := g.Claim(ctx)
		if err != nil || ok {
			return ok, err
		}
		if i < times-1 {
			if err := g.agent.Sleep(ctx, ms(g.cfg.RetryMs)); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
