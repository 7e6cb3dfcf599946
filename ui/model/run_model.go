package model

import (
	"sync"
	"time"

	"github.com/soocke/pixel-scheduler-go/domain/scheduler"
)

// RunModel tracks worker run time, the latest status line and the latest
// scheduler snapshot. Presenters poll it; it never touches the worker.
// The zero value is ready to use.
type RunModel struct {
	mu          sync.Mutex
	active      bool
	runStart    time.Time
	lastRun     time.Duration
	accumulated time.Duration
	runs        int
	status      string
	summary     scheduler.Summary
}

// NewRunModel returns a ready-to-use RunModel.
func NewRunModel() *RunModel { return &RunModel{status: "idle"} }

// OnTick advances the run clock from the worker running flag.
func (m *RunModel) OnTick(running bool, now time.Time) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if running {
		if !m.active { // off -> on
			m.active = true
			m.runStart = now
			m.lastRun = 0
			m.runs++
		}
		m.lastRun = now.Sub(m.runStart)
	} else if m.active { // on -> off
		m.lastRun = now.Sub(m.runStart)
		m.accumulated += m.lastRun
		m.active = false
	}
}

// Values returns the current run duration and the total including it.
func (m *RunModel) Values() (run, total time.Duration) {
	if m == nil {
		return 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run = m.lastRun
	total = m.accumulated
	if m.active {
		total += run
	}
	return
}

// Runs counts worker starts observed by OnTick.
func (m *RunModel) Runs() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}

func (m *RunModel) SetStatus(s string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *RunModel) Status() string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *RunModel) SetSummary(s scheduler.Summary) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.summary = s
	m.mu.Unlock()
}

func (m *RunModel) Summary() scheduler.Summary {
	if m == nil {
		return scheduler.Summary{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}
