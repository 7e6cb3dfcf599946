// Package resilience keeps the start/stop key trigger alive across long
// unattended runs and owns the single worker slot.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.trai.ch/zerr"

	"github.com/soocke/pixel-scheduler-go/config"
	"github.com/soocke/pixel-scheduler-go/domain/agent"
	"github.com/soocke/pixel-scheduler-go/domain/capture"
	"github.com/soocke/pixel-scheduler-go/domain/keys"
	"github.com/soocke/pixel-scheduler-go/store"
)

// ErrNoListener is returned when neither key path could be registered.
var ErrNoListener = zerr.New("no key listener registered")

// KeyLastEvent is the store key of the last accepted trigger time.
const KeyLastEvent = "last_event"

// Runner is one worker run.
type Runner interface {
	Run(ctx context.Context) error
}

// RunFactory builds a fresh Runner for every worker start.
type RunFactory func(ctx context.Context, workerID string) (Runner, error)

// Options tunes the controller.
type Options struct {
	Trigger         keys.Code
	Debounce        time.Duration
	HealthInterval  time.Duration
	Idle            time.Duration
	SafeMode        bool
	CaptureAttempts int
	CaptureBackoff  time.Duration
}

// OptionsFromConfig maps the key block of the configuration.
func OptionsFromConfig(k config.KeyConfig) (Options, error) {
	code, err := keys.ParseKey(k.TriggerKey)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Trigger:         code,
		Debounce:        time.Duration(k.DebounceMs) * time.Millisecond,
		HealthInterval:  time.Duration(k.HealthIntervalMs) * time.Millisecond,
		Idle:            time.Duration(k.IdleMs) * time.Millisecond,
		SafeMode:        k.SafeMode,
		CaptureAttempts: k.CaptureAttempts,
		CaptureBackoff:  time.Duration(k.CaptureBackoffMs) * time.Millisecond,
	}, nil
}

// Deps are the collaborators of a Controller. Primary is the low-level key
// path; Fallback is the generic one. Either may be nil.
type Deps struct {
	Primary  keys.Source
	Fallback keys.Source
	Capturer capture.Capturer
	NewRun   RunFactory
	Store    store.Store
	Clock    clockwork.Clock
	Logger   *slog.Logger
	// SdNotify defaults to daemon.SdNotify.
	SdNotify func(state string)
}

type path struct {
	src        keys.Source
	handle     keys.Handle
	registered bool
}

type workerSlot struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller is safe for concurrent use. Key handlers and Toggle never block
// on worker activity.
type Controller struct {
	opts     Options
	capturer capture.Capturer
	newRun   RunFactory
	store    store.Store
	clock    clockwork.Clock
	logger   *slog.Logger
	sdnotify func(string)

	base   context.Context
	cancel context.CancelFunc
	cron   *cron.Cron
	status chan string
	wg     sync.WaitGroup

	accepted atomic.Uint64

	mu           sync.Mutex
	enabled      bool
	primary      path
	fallback     path
	lastEvent    time.Time
	lastAccepted time.Time
	healthID     cron.EntryID
	worker       *workerSlot
}

func New(opts Options, d Deps) *Controller {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.SdNotify == nil {
		d.SdNotify = func(state string) { _, _ = daemon.SdNotify(false, state) }
	}
	base, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:     opts,
		capturer: d.Capturer,
		newRun:   d.NewRun,
		store:    d.Store,
		clock:    d.Clock,
		logger:   d.Logger.With("component", "resilience"),
		sdnotify: d.SdNotify,
		base:     base,
		cancel:   cancel,
		cron:     cron.New(),
		status:   make(chan string, 32),
		primary:  path{src: d.Primary},
		fallback: path{src: d.Fallback},
	}
	c.cron.Start()
	return c
}

// Status delivers worker status lines. Old lines are dropped when the reader
// falls behind.
func (c *Controller) Status() <-chan string { return c.status }

// Post queues a status line without blocking.
func (c *Controller) Post(msg string) {
	for {
		select {
		case c.status <- msg:
			return
		default:
		}
		select {
		case <-c.status:
		default:
		}
	}
}

// Accepted counts trigger events that passed the debounce.
func (c *Controller) Accepted() uint64 { return c.accepted.Load() }

// Enabled reports whether the key trigger feature is on.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Running reports whether a worker occupies the slot.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worker != nil
}

// WorkerID returns the id of the running worker, or "".
func (c *Controller) WorkerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker == nil {
		return ""
	}
	return c.worker.id
}

// HealthEntry is the cron entry of the health check, zero when unscheduled.
func (c *Controller) HealthEntry() cron.EntryID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthID
}

// Enable registers the key listener and schedules the health check. When
// both paths fail the feature stays off and ErrNoListener is returned.
func (c *Controller) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		c.lastEvent = c.clock.Now()
	}
	if err := c.registerOrDisableLocked(false); err != nil {
		return err
	}
	c.enabled = true
	if c.healthID == 0 && c.opts.HealthInterval > 0 {
		id, err := c.cron.AddFunc("@every "+c.opts.HealthInterval.String(), c.HealthCheck)
		if err != nil {
			c.logger.Error("health check not scheduled", "error", err)
		} else {
			c.healthID = id
		}
	}
	return nil
}

// Disable removes this controller's key handlers and stops any worker. The
// health check unschedules itself on its next tick.
func (c *Controller) Disable() {
	c.mu.Lock()
	c.enabled = false
	c.dropLocked(&c.primary)
	c.dropLocked(&c.fallback)
	w := c.worker
	c.mu.Unlock()
	if w != nil {
		w.cancel()
	}
}

// Register installs the handler on each usable path. A path whose
// subscription is recorded and alive is left untouched.
func (c *Controller) Register() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return c.registerOrDisableLocked(false)
	}
	return c.registerLocked(false)
}

func (c *Controller) registerLocked(force bool) error {
	ok := false
	if c.opts.SafeMode {
		c.dropLocked(&c.primary)
	} else if c.registerPathLocked(&c.primary, force) {
		ok = true
	}
	if c.registerPathLocked(&c.fallback, force) {
		ok = true
	}
	if !ok {
		return zerr.With(zerr.Wrap(ErrNoListener, "register key listener"), "safe_mode", c.opts.SafeMode)
	}
	return nil
}

// registerOrDisableLocked registers and, when no path could be installed,
// turns the feature off until the next explicit Enable.
func (c *Controller) registerOrDisableLocked(force bool) error {
	err := c.registerLocked(force)
	if err == nil {
		return nil
	}
	c.enabled = false
	c.logger.Error("key trigger disabled", "error", err)
	c.Post("key trigger off: no listener")
	return err
}

func (c *Controller) registerPathLocked(p *path, force bool) bool {
	if p.src == nil {
		return false
	}
	if p.registered && !force && p.src.Alive() {
		return true
	}
	c.dropLocked(p)
	h, err := p.src.Subscribe(c.onKey)
	if err != nil {
		c.logger.Warn("key path registration failed", "path", p.src.Name(), "error", err)
		return false
	}
	p.handle, p.registered = h, true
	c.logger.Info("key path registered", "path", p.src.Name())
	return true
}

// dropLocked removes exactly this controller's subscription from p.
func (c *Controller) dropLocked(p *path) {
	if p.src == nil || !p.registered {
		return
	}
	p.src.Unsubscribe(p.handle)
	p.registered = false
}

// SetSafeMode switches between both key paths and the fallback path only.
func (c *Controller) SetSafeMode(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.SafeMode == on {
		return nil
	}
	c.opts.SafeMode = on
	c.logger.Info("safe mode changed", "safe_mode", on)
	if !c.enabled {
		return nil
	}
	return c.registerOrDisableLocked(false)
}

// HealthCheck re-registers the listener when no trigger was seen for the
// idle period and the listening capability fails its liveness probe.
func (c *Controller) HealthCheck() {
	c.mu.Lock()
	if !c.enabled {
		id := c.healthID
		c.healthID = 0
		c.mu.Unlock()
		if id != 0 {
			c.cron.Remove(id)
			c.logger.Info("health check unscheduled")
		}
		return
	}
	defer c.mu.Unlock()
	c.sdnotify(daemon.SdNotifyWatchdog)

	idleFor := c.clock.Since(c.lastEvent)
	if idleFor < c.opts.Idle {
		return
	}
	if c.probeLocked() {
		return
	}
	c.logger.Warn("key listener idle and not alive, re-registering", "idle", idleFor)
	_ = c.registerOrDisableLocked(true)
}

// probeLocked checks the capability backing the active path.
func (c *Controller) probeLocked() bool {
	if !c.opts.SafeMode && c.primary.src != nil {
		return c.primary.registered && c.primary.src.Alive()
	}
	return c.fallback.src != nil && c.fallback.registered && c.fallback.src.Alive()
}

func (c *Controller) onKey(ev keys.Event) {
	if ev.Code != c.opts.Trigger {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = c.clock.Now()
	}
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	c.lastEvent = at
	if !c.lastAccepted.IsZero() && at.Sub(c.lastAccepted) < c.opts.Debounce {
		c.mu.Unlock()
		c.logger.Debug("trigger debounced", "since_last", at.Sub(c.lastAccepted))
		return
	}
	c.lastAccepted = at
	c.mu.Unlock()

	c.accepted.Add(1)
	c.persistEvent(at)
	c.Toggle()
}

func (c *Controller) persistEvent(at time.Time) {
	if c.store == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.base, 2*time.Second)
		defer cancel()
		if err := c.store.Put(ctx, store.NSResilience, KeyLastEvent, at); err != nil {
			c.logger.Warn("last event not persisted", "error", err)
		}
	}()
}

// Toggle starts a worker when the slot is empty and interrupts the running
// one otherwise. The slot is claimed before Toggle returns. It reports
// whether a worker was started.
func (c *Controller) Toggle() bool {
	c.mu.Lock()
	if w := c.worker; w != nil {
		c.mu.Unlock()
		c.logger.Info("stopping worker", "worker", w.id)
		c.Post("stopping")
		w.cancel()
		return false
	}
	ctx, cancel := context.WithCancel(c.base)
	w := &workerSlot{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	c.worker = w
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runWorker(ctx, w)
	return true
}

// Stop interrupts the running worker and waits for it or for ctx.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	if w == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) runWorker(ctx context.Context, w *workerSlot) {
	defer c.wg.Done()
	defer close(w.done)
	defer func() {
		c.mu.Lock()
		if c.worker == w {
			c.worker = nil
		}
		c.mu.Unlock()
		w.cancel()
	}()
	log := c.logger.With("worker", w.id)
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panic", "panic", r, "stack", string(debug.Stack()))
			c.Post("stopped: internal error")
		}
	}()

	c.Post("preparing")
	log.Info("worker starting")
	if err := capture.EnsureCapture(ctx, c.capturer, c.opts.CaptureAttempts, c.opts.CaptureBackoff, log); err != nil {
		if ctx.Err() != nil {
			c.Post("stopped")
			return
		}
		log.Error("capture unavailable", "error", err)
		c.Post("capture unavailable")
		return
	}
	r, err := c.newRun(ctx, w.id)
	if err != nil {
		log.Error("worker setup failed", "error", err)
		c.Post("start failed: " + err.Error())
		return
	}
	err = r.Run(ctx)
	switch {
	case errors.Is(err, agent.ErrInterrupted) || ctx.Err() != nil:
		log.Info("worker stopped")
		c.Post("stopped")
	case err != nil:
		log.Error("worker failed", "error", err)
		c.Post("stopped: " + err.Error())
	default:
		log.Info("worker finished")
		c.Post("finished")
	}
}

// Close disables the trigger, stops the worker and waits for background
// work to end.
func (c *Controller) Close() {
	c.Disable()
	c.mu.Lock()
	id := c.healthID
	c.healthID = 0
	c.mu.Unlock()
	if id != 0 {
		c.cron.Remove(id)
	}
	<-c.cron.Stop().Done()
	c.cancel()
	c.wg.Wait()
}
