// Package app wires the scheduler, the key trigger and the control loop into
// one process.
package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"github.com/soocke/pixel-scheduler-go/debug"
)

const controlTick = 250 * time.Millisecond

// Run arms the key trigger and drives the control loop until ctx is done.
// When start is set a worker is started immediately without a key press.
func Run(ctx context.Context, c *Container, start bool) error {
	cfg := c.Config.Get()
	g, ctx := errgroup.WithContext(ctx)

	if c.Hotkey != nil {
		g.Go(func() error { return c.Hotkey.Run(ctx) })
	}
	if c.Lines != nil {
		g.Go(func() error {
			// stdin closing is not fatal; the hotkey path may still serve.
			if err := c.Lines.Run(ctx); err != nil {
				c.Logger.Warn("line source ended", "error", err)
			}
			return nil
		})
	}

	if cfg.Keys.Enabled {
		if err := c.Control.Enable(); err != nil {
			c.Logger.Error("key trigger unavailable, use --start or restart to retry", "error", err)
		}
	}
	if start {
		c.Control.Toggle()
	}

	if path := c.ConfigPath(); path != "" {
		g.Go(func() error { return c.Config.Watch(ctx) })
		updates := c.Config.Subscribe(1)
		g.Go(func() error {
			defer c.Config.Unsubscribe(updates)
			for {
				select {
				case <-ctx.Done():
					return nil
				case next, ok := <-updates:
					if !ok {
						return nil
					}
					c.apply(next)
				}
			}
		})
	}

	if cfg.Debug {
		g.Go(func() error { return debug.RunRuntimeLogger(ctx, 30*time.Second, c.Logger) })
	}

	g.Go(func() error { return c.Loop.Drive(ctx, controlTick) })

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	c.Logger.Info("ready", "key_trigger", c.Controller.Enabled(), "trigger", cfg.Keys.TriggerKey)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Controller.Stop(stopCtx); err != nil {
		c.Logger.Warn("worker did not stop in time", "error", err)
	}
	return g.Wait()
}
