package scheduler

import "time"

// Summary is a read-only snapshot of a run for the control loop.
type Summary struct {
	Cycles      int
	Completed   int
	ActiveGroup string
	ActiveStep  string
	Focus       string
	Enabled     []string
	Queue       []string
	StartedAt   time.Time
}

func (s *Scheduler) publish(mut func(*Summary)) {
	s.sumMu.Lock()
	mut(&s.summary)
	s.sumMu.Unlock()
}

// Summary returns the latest snapshot. Safe for concurrent use.
func (s *Scheduler) Summary() Summary {
	s.sumMu.Lock()
	defer s.sumMu.Unlock()
	out := s.summary
	out.Enabled = append([]string(nil), s.summary.Enabled...)
	out.Queue = append([]string(nil), s.summary.Queue...)
	return out
}

func (s *Scheduler) refreshSummary() {
	enabled := make([]string, 0, len(s.groups))
	for _, g := range s.groups {
		if g.enabled {
			enabled = append(enabled, g.def.Name)
		}
	}
	order := s.queue.Order()
	queue := make([]string, len(order))
	for i, gi := range order {
		queue[i] = s.groups[gi].def.Name
	}
	focus, _ := s.focus.Active()
	s.publish(func(sum *Summary) {
		sum.Enabled = enabled
		sum.Queue = queue
		sum.Focus = focus
	})
}
