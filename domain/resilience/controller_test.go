package resilience

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/pixel-scheduler-go/config"
	"github.com/soocke/pixel-scheduler-go/domain/agent"
	"github.com/soocke/pixel-scheduler-go/domain/capture"
	"github.com/soocke/pixel-scheduler-go/domain/keys"
	"github.com/soocke/pixel-scheduler-go/store"
)

type fakeSource struct {
	keys.Bus
	name   string
	alive  atomic.Bool
	subErr error
}

func newSource(name string) *fakeSource {
	s := &fakeSource{name: name}
	s.alive.Store(true)
	return s
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Alive() bool  { return s.alive.Load() }

func (s *fakeSource) Subscribe(h keys.Handler) (keys.Handle, error) {
	if s.subErr != nil {
		return 0, s.subErr
	}
	return s.Bus.Subscribe(h)
}

type okCapture struct{ fail bool }

func (c okCapture) Capture(context.Context) (*capture.Frame, error) {
	if c.fail {
		return nil, errors.New("permission denied")
	}
	return capture.NewFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))), nil
}

// blockingRun runs until interrupted.
type blockingRun struct{}

func (r blockingRun) Run(ctx context.Context) error {
	<-ctx.Done()
	return agent.Interrupted(ctx)
}

type panicRun struct{}

func (panicRun) Run(context.Context) error { panic("boom") }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type harness struct {
	c        *Controller
	primary  *fakeSource
	fallback *fakeSource
	clock    clockwork.FakeClock
	starts   atomic.Int32
	store    *store.MemoryStore
}

func newHarness(t *testing.T, opts Options, capFail bool, run func() Runner) *harness {
	t.Helper()
	h := &harness{
		primary:  newSource("hotkey"),
		fallback: newSource("line"),
		clock:    clockwork.NewFakeClock(),
		store:    store.NewMemory(),
	}
	if run == nil {
		run = func() Runner { return blockingRun{} }
	}
	h.c = New(opts, Deps{
		Primary:  h.primary,
		Fallback: h.fallback,
		Capturer: okCapture{fail: capFail},
		NewRun: func(context.Context, string) (Runner, error) {
			h.starts.Add(1)
			return run(), nil
		},
		Store:    h.store,
		Clock:    h.clock,
		Logger:   quiet(),
		SdNotify: func(string) {},
	})
	t.Cleanup(h.c.Close)
	return h
}

func defaultOpts() Options {
	return Options{
		Trigger:         keys.CodeVolumeDown,
		Debounce:        350 * time.Millisecond,
		HealthInterval:  30 * time.Second,
		Idle:            60 * time.Second,
		CaptureAttempts: 1,
	}
}

func TestEnable_RegistersOncePerPath(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)
	require.NoError(t, h.c.Enable())
	require.NoError(t, h.c.Enable())
	require.NoError(t, h.c.Register())
	assert.Equal(t, 1, h.primary.Len())
	assert.Equal(t, 1, h.fallback.Len())
	assert.NotZero(t, h.c.HealthEntry())
}

func TestRegister_ReplacesStaleHandlerExactly(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)
	var other atomic.Int32
	_, err := h.primary.Subscribe(func(keys.Event) { other.Add(1) })
	require.NoError(t, err)

	require.NoError(t, h.c.Enable())
	before := h.c.primary.handle
	h.primary.alive.Store(false)
	require.NoError(t, h.c.Register())

	assert.NotEqual(t, before, h.c.primary.handle)
	assert.Equal(t, 2, h.primary.Len(), "unrelated listener survives")
	h.primary.Dispatch(keys.Event{Code: keys.CodeSpace})
	assert.Equal(t, int32(1), other.Load())
}

func TestEnable_BothPathsFail(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)
	h.primary.subErr = errors.New("service not running")
	h.fallback.subErr = errors.New("stdin closed")
	err := h.c.Enable()
	assert.ErrorIs(t, err, ErrNoListener)
	assert.False(t, h.c.Enabled())
}

func TestSafeMode_UsesFallbackOnly(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)
	require.NoError(t, h.c.Enable())
	require.Equal(t, 1, h.primary.Len())

	require.NoError(t, h.c.SetSafeMode(true))
	assert.Equal(t, 0, h.primary.Len())
	assert.Equal(t, 1, h.fallback.Len())

	require.NoError(t, h.c.SetSafeMode(false))
	assert.Equal(t, 1, h.primary.Len())
}

func TestDebounce(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)
	require.NoError(t, h.c.Enable())
	t0 := time.Unix(1000, 0)

	h.fallback.Dispatch(keys.Event{Code: keys.CodeVolumeDown, At: t0})
	h.fallback.Dispatch(keys.Event{Code: keys.CodeVolumeDown, At: t0.Add(100 * time.Millisecond)})
	assert.Equal(t, uint64(1), h.c.Accepted())

	h.fallback.Dispatch(keys.Event{Code: keys.CodeVolumeDown, At: t0.Add(500 * time.Millisecond)})
	h.fallback.Dispatch(keys.Event{Code: keys.CodeVolumeDown, At: t0.Add(900 * time.Millisecond)})
	assert.Equal(t, uint64(3), h.c.Accepted())

	h.fallback.Dispatch(keys.Event{Code: keys.CodeEnter, At: t0.Add(5 * time.Second)})
	assert.Equal(t, uint64(3), h.c.Accepted(), "other keys are ignored")
}

func TestToggle_StartStopRestart(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)

	assert.True(t, h.c.Toggle())
	assert.True(t, h.c.Running(), "slot is claimed synchronously")
	first := h.c.WorkerID()
	require.NotEmpty(t, first)
	require.Eventually(t, func() bool { return h.starts.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.False(t, h.c.Toggle())
	require.Eventually(t, func() bool { return !h.c.Running() }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, h.c.Toggle())
	require.Eventually(t, func() bool { return h.starts.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, first, h.c.WorkerID())
	require.NoError(t, h.c.Stop(context.Background()))
	assert.False(t, h.c.Running())
}

func TestToggle_CaptureUnavailable(t *testing.T) {
	h := newHarness(t, defaultOpts(), true, nil)
	h.c.Toggle()
	require.Eventually(t, func() bool { return !h.c.Running() }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, h.starts.Load())

	var got []string
	for len(h.c.Status()) > 0 {
		got = append(got, <-h.c.Status())
	}
	assert.Equal(t, []string{"preparing", "capture unavailable"}, got)
}

func TestToggle_PanicDegradesToStopped(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, func() Runner { return panicRun{} })
	h.c.Toggle()
	require.Eventually(t, func() bool { return !h.c.Running() && h.starts.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	var last string
	for len(h.c.Status()) > 0 {
		last = <-h.c.Status()
	}
	assert.Equal(t, "stopped: internal error", last)
	assert.True(t, h.c.Toggle(), "slot is free after a panic")
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)
	require.NoError(t, h.c.Enable())
	before := h.c.primary.handle

	h.primary.alive.Store(false)
	h.clock.Advance(30 * time.Second)
	h.c.HealthCheck()
	assert.Equal(t, before, h.c.primary.handle, "not idle long enough")

	h.primary.alive.Store(true)
	h.clock.Advance(31 * time.Second)
	h.c.HealthCheck()
	assert.Equal(t, before, h.c.primary.handle, "alive capability is left alone")

	h.primary.alive.Store(false)
	h.c.HealthCheck()
	assert.NotEqual(t, before, h.c.primary.handle)
	assert.Equal(t, 1, h.primary.Len())
}

func TestHealthCheck_FailedReregisterTurnsFeatureOff(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)
	require.NoError(t, h.c.Enable())
	require.NotZero(t, h.c.HealthEntry())

	h.primary.alive.Store(false)
	h.primary.subErr = errors.New("service gone")
	h.fallback.subErr = errors.New("stdin closed")
	h.clock.Advance(61 * time.Second)
	h.c.HealthCheck()

	assert.False(t, h.c.Enabled())
	assert.Equal(t, 0, h.primary.Len())
	assert.Equal(t, 0, h.fallback.Len())
	var last string
	for len(h.c.Status()) > 0 {
		last = <-h.c.Status()
	}
	assert.Equal(t, "key trigger off: no listener", last)

	h.c.HealthCheck()
	assert.Zero(t, h.c.HealthEntry(), "next tick unschedules the check")

	h.primary.subErr = nil
	require.NoError(t, h.c.Enable(), "explicit enable re-arms")
	assert.True(t, h.c.Enabled())
}

func TestSafeMode_WithoutFallbackTurnsFeatureOff(t *testing.T) {
	primary := newSource("hotkey")
	c := New(defaultOpts(), Deps{
		Primary:  primary,
		Capturer: okCapture{},
		NewRun:   func(context.Context, string) (Runner, error) { return blockingRun{}, nil },
		Store:    store.NewMemory(),
		Clock:    clockwork.NewFakeClock(),
		Logger:   quiet(),
		SdNotify: func(string) {},
	})
	t.Cleanup(c.Close)
	require.NoError(t, c.Enable())

	err := c.SetSafeMode(true)
	assert.ErrorIs(t, err, ErrNoListener)
	assert.False(t, c.Enabled())
	assert.Equal(t, 0, primary.Len())
}

func TestHealthCheck_SelfDisables(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)
	require.NoError(t, h.c.Enable())
	require.NotZero(t, h.c.HealthEntry())
	h.c.Disable()
	assert.Equal(t, 0, h.primary.Len())
	assert.Equal(t, 0, h.fallback.Len())
	h.c.HealthCheck()
	assert.Zero(t, h.c.HealthEntry())
}

func TestLastEventPersisted(t *testing.T) {
	h := newHarness(t, defaultOpts(), false, nil)
	require.NoError(t, h.c.Enable())
	at := time.Unix(4242, 0).UTC()
	h.fallback.Dispatch(keys.Event{Code: keys.CodeVolumeDown, At: at})

	require.Eventually(t, func() bool {
		var got time.Time
		ok, err := h.store.Get(context.Background(), store.NSResilience, KeyLastEvent, &got)
		return err == nil && ok && got.Equal(at)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(configKeys("F8"))
	require.NoError(t, err)
	assert.Equal(t, keys.Code(0x77), opts.Trigger)
	assert.Equal(t, 350*time.Millisecond, opts.Debounce)

	_, err = OptionsFromConfig(configKeys("nope"))
	assert.ErrorIs(t, err, keys.ErrUnknownKey)
}

func configKeys(trigger string) config.KeyConfig {
	k := config.DefaultConfig().Keys
	k.TriggerKey = trigger
	return k
}
