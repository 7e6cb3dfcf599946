// Package view renders control-loop state. The console build writes it to
// the structured log.
package view

import (
	"log/slog"
	"time"

	"github.com/soocke/pixel-scheduler-go/domain/scheduler"
)

// LogView implements the presenter views on top of a logger. Run durations
// are logged at most once per ReportEvery.
type LogView struct {
	logger      *slog.Logger
	reportEvery time.Duration
	lastReport  time.Time
	now         func() time.Time
}

func NewLogView(logger *slog.Logger, reportEvery time.Duration) *LogView {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogView{logger: logger.With("component", "view"), reportEvery: reportEvery, now: time.Now}
}

func (v *LogView) SetStatus(s string) {
	v.logger.Info("status", "status", s)
}

func (v *LogView) SetArmed(armed bool) {
	v.logger.Info("trigger", "armed", armed)
}

func (v *LogView) SetRun(run, total time.Duration) {
	if run == 0 || v.reportEvery <= 0 {
		return
	}
	now := v.now()
	if now.Sub(v.lastReport) < v.reportEvery {
		return
	}
	v.lastReport = now
	v.logger.Info("run time", "run", run.Round(time.Second), "total", total.Round(time.Second))
}

func (v *LogView) SetSummary(s scheduler.Summary) {
	v.logger.Info("progress",
		"cycles", s.Cycles,
		"completed", s.Completed,
		"active", s.ActiveGroup,
		"focus", s.Focus,
		"enabled", s.Enabled)
}
