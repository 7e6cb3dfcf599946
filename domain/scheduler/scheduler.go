// Package scheduler runs prioritized task groups gated by on-screen index
// templates.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/soocke/pixel-scheduler-go/config"
	"github.com/soocke/pixel-scheduler-go/domain/agent"
)

// Reward is the gate consulted before group detection.
type Reward interface {
	// Check runs the gated claim once.
	Check(ctx context.Context) (bool, error)
	// Claim runs the claim regardless of the skip flag.
	Claim(ctx context.Context) (bool, error)
	// ClaimN retries Claim up to n times.
	ClaimN(ctx context.Context, n int) (bool, error)
}

// Options holds run pacing. Zero durations mean no pause.
type Options struct {
	StepInterval    time.Duration
	CycleDelay      time.Duration
	PhaseTimeout    time.Duration
	StartupClaims   int
	PostGroupClaims int
	// Notify receives short status lines. It must not block.
	Notify func(string)
}

// OptionsFromConfig maps the scheduling part of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StepInterval:    cfg.StepInterval(),
		CycleDelay:      cfg.CycleDelay(),
		PhaseTimeout:    cfg.PhaseTimeout(),
		StartupClaims:   cfg.StartupRewardClaims,
		PostGroupClaims: cfg.Reward.PostGroupClaims,
	}
}

type group struct {
	def     config.GroupDef
	enabled bool
}

// Scheduler owns the group state of one run. Run must be called from a
// single goroutine; Summary is safe from any goroutine.
type Scheduler struct {
	agent  *agent.Agent
	reward Reward
	focus  *FocusWindow
	groups []*group
	byName map[string]int
	queue  *Queue
	opts   Options
	logger *slog.Logger

	sumMu   sync.Mutex
	summary Summary
}

func New(a *agent.Agent, defs []config.GroupDef, reward Reward, focus *FocusWindow, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if focus == nil {
		focus = NewFocusWindow(a.Clock())
	}
	s := &Scheduler{
		agent:  a,
		reward: reward,
		focus:  focus,
		byName: make(map[string]int, len(defs)),
		queue:  NewQueue(len(defs)),
		opts:   opts,
		logger: logger.With("component", "scheduler"),
	}
	for i, d := range defs {
		s.groups = append(s.groups, &group{def: d})
		s.byName[d.Name] = i
	}
	s.refreshSummary()
	return s
}

// Focus returns the window shared with the reward gate.
func (s *Scheduler) Focus() *FocusWindow { return s.focus }

// QueueNames returns the detection order by group name.
func (s *Scheduler) QueueNames() []string {
	order := s.queue.Order()
	out := make([]string, len(order))
	for i, gi := range order {
		out[i] = s.groups[gi].def.Name
	}
	return out
}

// Enabled reports whether the named group is currently enabled.
func (s *Scheduler) Enabled(name string) bool {
	i, ok := s.byName[name]
	return ok && s.groups[i].enabled
}

func (s *Scheduler) notify(msg string) {
	if s.opts.Notify != nil {
		s.opts.Notify(msg)
	}
}

// Run claims startup rewards and then cycles until the phase timeout or an
// interruption. Interruption is returned as agent.ErrInterrupted.
func (s *Scheduler) Run(ctx context.Context) error {
	clock := s.agent.Clock()
	start := clock.Now()
	s.publish(func(sum *Summary) { sum.StartedAt = start })

	if s.opts.StartupClaims > 0 && s.reward != nil {
		if _, err := s.reward.ClaimN(ctx, s.opts.StartupClaims); err != nil {
			return err
		}
	}
	s.notify("running")
	for {
		if s.opts.PhaseTimeout > 0 && clock.Since(start) >= s.opts.PhaseTimeout {
			s.logger.InfoContext(ctx, "phase timeout reached", "elapsed", clock.Since(start))
			s.notify("phase complete")
			return nil
		}
		if err := s.Cycle(ctx); err != nil {
			return err
		}
	}
}

// Cycle runs the reward gate, index detection and every enabled group once.
func (s *Scheduler) Cycle(ctx context.Context) error {
	s.publish(func(sum *Summary) { sum.Cycles++ })
	if s.reward != nil {
		acted, err := s.reward.Check(ctx)
		if err != nil {
			return err
		}
		if acted {
			return nil
		}
	}
	if err := s.detect(ctx); err != nil {
		return err
	}
	ran, err := s.runEnabled(ctx)
	if err != nil {
		return err
	}
	if !ran && s.reward != nil {
		if _, err := s.reward.Claim(ctx); err != nil {
			return err
		}
	}
	return s.agent.Sleep(ctx, s.opts.CycleDelay)
}

// detect captures one frame and enables at most one group whose index
// template is visible.
func (s *Scheduler) detect(ctx context.Context) error {
	defer s.refreshSummary()
	f, err := s.agent.Capture(ctx)
	if err != nil || f == nil {
		return err
	}
	defer f.Release()

	if name, ok := s.focus.Active(); ok {
		if i, known := s.byName[name]; known {
			g := s.groups[i]
			if !g.enabled {
				if _, hit := s.agent.Match(ctx, f, g.def.IndexTemplate); hit {
					s.enable(ctx, g, true)
				}
			}
			return nil
		}
		s.logger.WarnContext(ctx, "focus names unknown group, using queue", "group", name)
	}

	for _, i := range s.queue.Order() {
		if err := s.agent.Checkpoint(ctx); err != nil {
			return err
		}
		g := s.groups[i]
		if g.enabled {
			continue
		}
		if _, hit := s.agent.Match(ctx, f, g.def.IndexTemplate); hit {
			s.enable(ctx, g, false)
			return nil
		}
	}
	return nil
}

func (s *Scheduler) enable(ctx context.Context, g *group, focused bool) {
	g.enabled = true
	s.logger.InfoContext(ctx, "group enabled", "group", g.def.Name, "index", g.def.IndexTemplate, "focused", focused)
}

// runEnabled executes every enabled group in priority order. It reports
// whether any group ran.
func (s *Scheduler) runEnabled(ctx context.Context) (bool, error) {
	var ready []int
	for i, g := range s.groups {
		if g.enabled && len(g.def.Steps) > 0 {
			ready = append(ready, i)
		}
	}
	if len(ready) == 0 {
		return false, nil
	}
	sort.SliceStable(ready, func(a, b int) bool {
		return s.groups[ready[a]].def.Priority < s.groups[ready[b]].def.Priority
	})
	for _, i := range ready {
		if err := s.runGroup(ctx, i); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (s *Scheduler) runGroup(ctx context.Context, i int) error {
	g := s.groups[i]
	s.notify("group " + g.def.Name)
	s.publish(func(sum *Summary) { sum.ActiveGroup = g.def.Name })
	s.logger.InfoContext(ctx, "group started", "group", g.def.Name, "priority", g.def.Priority, "steps", len(g.def.Steps))

	for si, st := range g.def.Steps {
		if err := s.agent.Checkpoint(ctx); err != nil {
			g.enabled = false
			return err
		}
		s.publish(func(sum *Summary) { sum.ActiveStep = st.Template })
		if err := s.runStep(ctx, g.def.Name, si, st); err != nil {
			g.enabled = false
			s.publish(func(sum *Summary) { sum.ActiveGroup, sum.ActiveStep = "", "" })
			return err
		}
	}

	g.enabled = false
	s.queue.MoveToBack(i)
	s.publish(func(sum *Summary) {
		sum.Completed++
		sum.ActiveGroup, sum.ActiveStep = "", ""
	})
	s.refreshSummary()
	s.logger.InfoContext(ctx, "group completed", "group", g.def.Name, "queue", s.QueueNames())

	if s.reward != nil && s.opts.PostGroupClaims > 0 {
		if _, err := s.reward.ClaimN(ctx, s.opts.PostGroupClaims); err != nil {
			return err
		}
	}
	return nil
}
