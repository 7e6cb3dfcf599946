package presenter

import (
	"time"

	"github.com/soocke/pixel-scheduler-go/domain/scheduler"
	"github.com/soocke/pixel-scheduler-go/ui/model"
)

// RunningSource reports whether a worker is running.
type RunningSource interface{ Running() bool }

// SummarySource returns the snapshot of the current run, if any.
type SummarySource func() (scheduler.Summary, bool)

// RunView displays run durations and scheduler progress.
type RunView interface {
	SetRun(run, total time.Duration)
	SetSummary(scheduler.Summary)
}

// RunPresenter advances the run model and pushes values to the view.
type RunPresenter struct {
	run     *model.RunModel
	src     RunningSource
	summary SummarySource
	view    RunView
	last    scheduler.Summary
}

func NewRunPresenter(run *model.RunModel, src RunningSource, summary SummarySource, view RunView) *RunPresenter {
	return &RunPresenter{run: run, src: src, summary: summary, view: view}
}

// Tick updates the model and view.
func (p *RunPresenter) Tick(now time.Time) {
	if p == nil || p.run == nil || p.src == nil || p.view == nil {
		return
	}
	p.run.OnTick(p.src.Running(), now)
	r, t := p.run.Values()
	p.view.SetRun(r, t)
	if p.summary == nil {
		return
	}
	sum, ok := p.summary()
	if !ok {
		return
	}
	p.run.SetSummary(sum)
	if sum.Cycles != p.last.Cycles || sum.Completed != p.last.Completed || sum.ActiveGroup != p.last.ActiveGroup {
		p.last = sum
		p.view.SetSummary(sum)
	}
}
