package presenter

import (
	"context"
	"time"
)

// Loop aggregates feature presenters and drives periodic updates. The zero
// value is usable (methods are nil-safe).
type Loop struct {
	Status   *StatusPresenter
	Run      *RunPresenter
	Schedule func()
}

func NewLoop(status *StatusPresenter, run *RunPresenter, schedule func()) *Loop {
	return &Loop{Status: status, Run: run, Schedule: schedule}
}

func (l *Loop) Tick(now time.Time) {
	if l == nil {
		return
	}
	if l.Status != nil {
		l.Status.Tick(now)
	}
	if l.Run != nil {
		l.Run.Tick(now)
	}
	if l.Schedule != nil {
		l.Schedule()
	}
}

// Drive ticks every interval until ctx is done, then ticks once more so the
// final status is shown.
func (l *Loop) Drive(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Tick(time.Now())
			return nil
		case now := <-t.C:
			l.Tick(now)
		}
	}
}
