package app

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.trai.ch/zerr"

	"github.com/soocke/pixel-scheduler-go/config"
	"github.com/soocke/pixel-scheduler-go/domain/action"
	"github.com/soocke/pixel-scheduler-go/domain/agent"
	"github.com/soocke/pixel-scheduler-go/domain/capture"
	"github.com/soocke/pixel-scheduler-go/domain/keys"
	"github.com/soocke/pixel-scheduler-go/domain/resilience"
	"github.com/soocke/pixel-scheduler-go/domain/reward"
	"github.com/soocke/pixel-scheduler-go/domain/scalecache"
	"github.com/soocke/pixel-scheduler-go/domain/scheduler"
	"github.com/soocke/pixel-scheduler-go/store"
	"github.com/soocke/pixel-scheduler-go/ui/model"
	"github.com/soocke/pixel-scheduler-go/ui/presenter"
	"github.com/soocke/pixel-scheduler-go/ui/view"
)

// Options are process-level choices made on the command line.
type Options struct {
	ConfigPath string
	DryRun     bool
	Stdin      io.Reader
	// Capturer, Input and Templates replace the platform defaults when set.
	Capturer  capture.Capturer
	Input     action.Input
	Templates capture.TemplateSource
	// Store replaces the SQLite store when set.
	Store store.Store
}

// run is the state of one worker start.
type run struct {
	matcher *capture.Matcher
	sched   *scheduler.Scheduler
}

// Container assembles services, the controller and the control loop.
type Container struct {
	Config    *config.Manager
	Logger    *slog.Logger
	Store     store.Store
	Scales    *scalecache.Cache
	Templates capture.TemplateSource
	Capturer  capture.Capturer
	Input     action.Input

	Hotkey *keys.HotkeySource
	Lines  *keys.LineSource

	Controller *resilience.Controller
	Run        *model.RunModel
	Control    *presenter.ControlPresenter
	Loop       *presenter.Loop

	configPath string
	current    atomic.Pointer[run]
}

// BuildContainer constructs all components. Side effects are limited to
// opening the store.
func BuildContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config:     config.NewManager(opts.ConfigPath, cfg, logger),
		Logger:     logger,
		configPath: opts.ConfigPath,
	}

	c.Store = opts.Store
	if c.Store == nil {
		s, err := store.OpenSQLite(ctx, cfg.StorePath, 5*time.Second, logger)
		if err != nil {
			return nil, err
		}
		c.Store = s
	}
	c.Scales = scalecache.New(c.Store, logger)

	c.Templates = opts.Templates
	if c.Templates == nil {
		dir := capture.DirTemplates{Dir: cfg.TemplateDir}
		c.Templates = dir
		if missing := dir.Missing(templateNames(cfg)); len(missing) > 0 {
			logger.Warn("templates missing", "dir", cfg.TemplateDir, "missing", missing)
		}
	}

	c.Capturer = opts.Capturer
	if c.Capturer == nil {
		c.Capturer = capture.NewThrottledGrabber(capture.NewScreenGrabber(logger), cfg.CaptureFPS)
	}

	c.Input = opts.Input
	if c.Input == nil {
		if opts.DryRun {
			c.Input = action.DryRun{Logger: logger}
		} else if in, err := action.NewInput(); err == nil {
			c.Input = in
		} else {
			logger.Warn("input injection unavailable, taps are logged only", "error", err)
			c.Input = action.DryRun{Logger: logger}
		}
	}

	ropts, err := resilience.OptionsFromConfig(cfg.Keys)
	if err != nil {
		return nil, err
	}
	deps := resilience.Deps{
		Capturer: c.Capturer,
		NewRun:   c.newRun,
		Store:    c.Store,
		Logger:   logger,
	}
	if hk, err := keys.NewHotkeySource(ropts.Trigger, logger); err == nil {
		c.Hotkey = hk
		deps.Primary = hk
	} else {
		logger.Info("hotkey path unavailable", "error", err)
	}
	if cfg.Keys.Stdin && opts.Stdin != nil {
		c.Lines = keys.NewLineSource(opts.Stdin, ropts.Trigger, logger)
		deps.Fallback = c.Lines
	}
	c.Controller = resilience.New(ropts, deps)

	v := view.NewLogView(logger, time.Minute)
	c.Run = model.NewRunModel()
	c.Control = presenter.NewControlPresenter(c.Controller, v)
	c.Loop = presenter.NewLoop(
		presenter.NewStatusPresenter(c.Controller.Status(), c.Run, v),
		presenter.NewRunPresenter(c.Run, c.Controller, c.summary, v),
		nil,
	)
	return c, nil
}

func templateNames(cfg *config.Config) []string {
	names := []string{cfg.Reward.PrimaryTemplate, cfg.Reward.ProceedTemplate}
	defs, err := cfg.ResolveGroups()
	if err != nil {
		return names
	}
	for _, d := range defs {
		names = append(names, d.Templates()...)
	}
	return names
}

// NewMatcher builds a matcher for cfg backed by the container's templates
// and scale cache.
func (c *Container) NewMatcher(cfg *config.Config) *capture.Matcher {
	return MatcherFor(cfg, c.Templates, c.Scales, c.Logger)
}

// MatcherFor maps the detection part of cfg onto a matcher.
func MatcherFor(cfg *config.Config, templates capture.TemplateSource, hints capture.ScaleHints, logger *slog.Logger) *capture.Matcher {
	return capture.NewMatcher(capture.MatcherOptions{
		Threshold:       cfg.Threshold,
		Scales:          cfg.Scales,
		GoodEnoughScore: cfg.GoodEnoughScore,
		MinTemplatePx:   cfg.MinTemplatePx,
		Stride:          cfg.Stride,
		Refine:          cfg.Refine,
		DedupRadiusPx:   cfg.DedupRadiusPx,
		MaxPerScale:     cfg.MaxMatchesPerScale,
		ScreenWidth:     cfg.ScreenWidth,
		ScreenHeight:    cfg.ScreenHeight,
	}, templates, hints, logger)
}

// newRun builds a fresh scheduler from the current config snapshot. The
// persisted threshold overrides the file value.
func (c *Container) newRun(ctx context.Context, workerID string) (resilience.Runner, error) {
	cfg := c.Config.Get()
	defs, err := cfg.ResolveGroups()
	if err != nil {
		return nil, zerr.Wrap(err, "resolve groups")
	}
	logger := c.Logger.With("worker", workerID)

	m := c.NewMatcher(cfg)
	th, stored, err := LoadThreshold(ctx, c.Store, cfg.Threshold)
	if err != nil {
		logger.Warn("persisted threshold unreadable", "error", err)
	}
	if stored {
		m.SetThreshold(th)
		logger.Info("using persisted threshold", "threshold", th)
	}

	if title, err := action.ForegroundWindowTitle(); err == nil {
		logger.Info("worker starting", "foreground", title)
	}

	a := agent.New(agent.Options{
		Capturer: c.Capturer,
		Matcher:  m,
		Input:    c.Input,
		JitterPx: cfg.JitterPx,
		Logger:   logger,
	})
	focus := scheduler.NewFocusWindow(a.Clock())
	gate := reward.New(a, cfg.Reward, focus, logger)
	opts := scheduler.OptionsFromConfig(cfg)
	opts.Notify = c.Controller.Post
	s := scheduler.New(a, defs, gate, focus, opts, logger)

	c.current.Store(&run{matcher: m, sched: s})
	return s, nil
}

func (c *Container) summary() (scheduler.Summary, bool) {
	r := c.current.Load()
	if r == nil {
		return scheduler.Summary{}, false
	}
	return r.sched.Summary(), true
}

// apply pushes a reloaded config into the running components.
func (c *Container) apply(cfg *config.Config) {
	if r := c.current.Load(); r != nil {
		prev := r.matcher.Threshold()
		if now := r.matcher.SetThreshold(cfg.Threshold); now != prev {
			c.Logger.Info("threshold updated", "from", prev, "to", now)
		}
	}
	if err := c.Controller.SetSafeMode(cfg.Keys.SafeMode); err != nil {
		c.Logger.Error("safe mode switch left no key listener", "error", err)
	}
}

// Close releases the controller and the store.
func (c *Container) Close() error {
	c.Controller.Close()
	return c.Store.Close()
}

// ConfigPath is the file the config manager follows, or "".
func (c *Container) ConfigPath() string { return c.configPath }
