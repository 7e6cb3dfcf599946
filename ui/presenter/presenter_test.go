package presenter

import (
	"errors"
	"testing"
	"time"

	"github.com/soocke/pixel-scheduler-go/domain/scheduler"
	"github.com/soocke/pixel-scheduler-go/ui/model"
)

type mockTrigger struct {
	enabled          bool
	enables, toggles int
	failEnable       bool
}

func (m *mockTrigger) Enable() error {
	if m.failEnable {
		return errors.New("no listener")
	}
	m.enables++
	m.enabled = true
	return nil
}
func (m *mockTrigger) Disable()      { m.enabled = false }
func (m *mockTrigger) Enabled() bool { return m.enabled }
func (m *mockTrigger) Toggle() bool  { m.toggles++; return true }

type mockView struct {
	armed     []bool
	status    []string
	runs      int
	summaries []scheduler.Summary
	lastRun   time.Duration
	lastTotal time.Duration
}

func (v *mockView) SetArmed(b bool)                 { v.armed = append(v.armed, b) }
func (v *mockView) SetStatus(s string)              { v.status = append(v.status, s) }
func (v *mockView) SetRun(run, total time.Duration) { v.runs++; v.lastRun, v.lastTotal = run, total }
func (v *mockView) SetSummary(s scheduler.Summary)  { v.summaries = append(v.summaries, s) }

type running bool

func (r *running) Running() bool { return bool(*r) }

func TestControlPresenter_EnableDisable_Idempotent(t *testing.T) {
	trig := &mockTrigger{}
	view := &mockView{}
	p := NewControlPresenter(trig, view)

	if err := p.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := p.Enable(); err != nil || trig.enables != 1 {
		t.Fatalf("enable not idempotent: enables=%d err=%v", trig.enables, err)
	}
	p.Disable()
	p.Disable()
	if trig.enabled || len(view.armed) != 2 || view.armed[0] != true || view.armed[1] != false {
		t.Fatalf("unexpected armed history %v enabled=%v", view.armed, trig.enabled)
	}
	if !p.Toggle() || trig.toggles != 1 {
		t.Fatalf("toggle not forwarded")
	}
}

func TestControlPresenter_EnableFailure(t *testing.T) {
	trig := &mockTrigger{failEnable: true}
	view := &mockView{}
	if err := NewControlPresenter(trig, view).Enable(); err == nil {
		t.Fatalf("expected error")
	}
	if len(view.armed) != 1 || view.armed[0] {
		t.Fatalf("view should show disarmed, got %v", view.armed)
	}
}

func TestStatusPresenter_ShowsLatestOnly(t *testing.T) {
	ch := make(chan string, 8)
	m := model.NewRunModel()
	view := &mockView{}
	p := NewStatusPresenter(ch, m, view)

	ch <- "preparing"
	ch <- "running"
	p.Tick(time.Now())
	p.Tick(time.Now())
	if len(view.status) != 1 || view.status[0] != "running" || m.Status() != "running" {
		t.Fatalf("expected single running update, got %v model=%q", view.status, m.Status())
	}
	p.OnStatus("running")
	p.Tick(time.Now())
	if len(view.status) != 1 {
		t.Fatalf("unchanged status should not update view: %v", view.status)
	}
	close(ch)
	p.OnStatus("stopped")
	p.Tick(time.Now())
	if view.status[len(view.status)-1] != "stopped" {
		t.Fatalf("expected stopped, got %v", view.status)
	}
}

func TestRunPresenter_TicksModelAndSummary(t *testing.T) {
	m := model.NewRunModel()
	r := running(true)
	view := &mockView{}
	sum := scheduler.Summary{Cycles: 1}
	p := NewRunPresenter(m, &r, func() (scheduler.Summary, bool) { return sum, true }, view)

	base := time.Unix(0, 0)
	p.Tick(base)
	p.Tick(base.Add(2 * time.Second))
	if view.lastRun != 2*time.Second || view.runs != 2 {
		t.Fatalf("run duration not pushed: %v runs=%d", view.lastRun, view.runs)
	}
	if len(view.summaries) != 1 {
		t.Fatalf("unchanged summary pushed again: %d", len(view.summaries))
	}
	sum.Completed = 1
	p.Tick(base.Add(3 * time.Second))
	if len(view.summaries) != 2 || m.Summary().Completed != 1 {
		t.Fatalf("changed summary not pushed")
	}
}
