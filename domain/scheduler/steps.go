package scheduler

import (
	"context"
	"time"

	"github.com/soocke/pixel-scheduler-go/config"
	"github.com/soocke/pixel-scheduler-go/domain/agent"
)

// Fixed pacing of the retrying step kinds.
const (
	requiredMissPause  = 650 * time.Millisecond
	requiredBlindPause = 500 * time.Millisecond
	requiredHitPause   = 900 * time.Millisecond

	// ExhaustiveAttempts caps the clicks of a last-in-group step.
	ExhaustiveAttempts   = 50
	exhaustiveHitPause   = 1500 * time.Millisecond
	exhaustiveBlindPause = 1000 * time.Millisecond

	countdownTick = 5 * time.Second

	cornerPresses     = 3
	cornerPressLength = 120 * time.Millisecond
	cornerPressGap    = 120 * time.Millisecond
	cornerRoundGap    = 3000 * time.Millisecond
	cornerJitterPx    = 12
	cornerMinPx       = 15
)

func (s *Scheduler) runStep(ctx context.Context, groupName string, idx int, st config.Step) error {
	log := s.logger.With("group", groupName, "step", idx, "template", st.Template, "kind", st.Kind.String())
	switch st.Kind {
	case config.StepRequiredClick:
		return s.requiredClick(ctx, st)
	case config.StepLastInGroup:
		return s.exhaustiveClear(ctx, st)
	case config.StepCustomWait:
		out, err := s.agent.Click(ctx, st.Template, st.PickLeftmost)
		if err != nil {
			return err
		}
		if out != agent.Hit {
			log.InfoContext(ctx, "step missed", "outcome", out.String())
			if !st.WaitOnMiss {
				return nil
			}
		}
		return s.countdown(ctx, st)
	default:
		out, err := s.agent.Click(ctx, st.Template, st.PickLeftmost)
		if err != nil {
			return err
		}
		if out != agent.Hit {
			log.InfoContext(ctx, "step missed", "outcome", out.String())
		}
		return s.agent.Sleep(ctx, s.opts.StepInterval)
	}
}

// requiredClick retries until the template is tapped. There is no attempt
// ceiling; only interruption ends it early.
func (s *Scheduler) requiredClick(ctx context.Context, st config.Step) error {
	for attempt := 1; ; attempt++ {
		out, err := s.agent.Click(ctx, st.Template, st.PickLeftmost)
		if err != nil {
			return err
		}
		switch out {
		case agent.Hit:
			if err := s.agent.Sleep(ctx, requiredHitPause); err != nil {
				return err
			}
			if st.CornerTaps > 0 {
				return s.cornerTaps(ctx, st.CornerTaps)
			}
			return nil
		case agent.Blind:
			err = s.agent.Sleep(ctx, requiredBlindPause)
		default:
			if attempt%10 == 0 {
				s.logger.InfoContext(ctx, "still waiting for required step", "template", st.Template, "attempts", attempt)
			}
			err = s.agent.Sleep(ctx, requiredMissPause)
		}
		if err != nil {
			return err
		}
	}
}

// exhaustiveClear taps the template until it is gone or the attempt ceiling
// is reached.
func (s *Scheduler) exhaustiveClear(ctx context.Context, st config.Step) error {
	clicks := 0
	for attempt := 1; attempt <= ExhaustiveAttempts; attempt++ {
		out, err := s.agent.Click(ctx, st.Template, st.PickLeftmost)
		if err != nil {
			return err
		}
		switch out {
		case agent.Hit:
			clicks++
			err = s.agent.Sleep(ctx, exhaustiveHitPause)
		case agent.Blind:
			err = s.agent.Sleep(ctx, exhaustiveBlindPause)
		default:
			s.logger.InfoContext(ctx, "last step cleared", "template", st.Template, "clicks", clicks)
			return nil
		}
		if err != nil {
			return err
		}
	}
	s.logger.WarnContext(ctx, "last step still visible after attempt ceiling",
		"template", st.Template, "attempts", ExhaustiveAttempts, "clicks", clicks)
	return nil
}

// countdown waits st.Wait, logging the remaining time every tick.
func (s *Scheduler) countdown(ctx context.Context, st config.Step) error {
	remaining := st.Wait
	s.notify("waiting " + remaining.String())
	for remaining > 0 {
		d := min(countdownTick, remaining)
		if err := s.agent.Sleep(ctx, d); err != nil {
			return err
		}
		remaining -= d
		if remaining > 0 {
			s.logger.InfoContext(ctx, "waiting", "template", st.Template, "remaining", remaining)
		}
	}
	return nil
}

// cornerTaps presses near the top-left corner to dismiss overlays.
func (s *Scheduler) cornerTaps(ctx context.Context, rounds int) error {
	size := s.agent.FrameSize()
	safeX := max(cornerMinPx, size.X*2/100)
	safeY := max(cornerMinPx, size.Y*2/100)
	rng := s.agent.Rand()
	for r := 0; r < rounds; r++ {
		for p := 0; p < cornerPresses; p++ {
			x := safeX + rng.IntN(cornerJitterPx+1)
			y := safeY + rng.IntN(cornerJitterPx+1)
			if err := s.agent.Press(ctx, x, y, cornerPressLength); err != nil {
				if ctx.Err() != nil {
					return agent.Interrupted(ctx)
				}
				s.logger.WarnContext(ctx, "corner press failed", "error", err)
			}
			if p < cornerPresses-1 {
				if err := s.agent.Sleep(ctx, cornerPressGap); err != nil {
					return err
				}
			}
		}
		if r < rounds-1 {
			if err := s.agent.Sleep(ctx, cornerRoundGap); err != nil {
				return err
			}
		}
	}
	return nil
}
