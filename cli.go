package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scheduler-go/config"
	"github.com/soocke/pixel-scheduler-go/store"
)

const defaultConfigPath = "pixel-scheduler.yaml"

type cli struct {
	root   *cobra.Command
	stdin  io.Reader
	logOut io.Writer

	configPath string
	logLevel   string
	logFormat  string
	debug      bool
}

func newCLI(stdin io.Reader, logOut io.Writer) *cli {
	c := &cli{stdin: stdin, logOut: logOut}
	c.root = &cobra.Command{
		Use:           "pixel-scheduler",
		Short:         "Screen-driven task scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := c.root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", defaultConfigPath, "JSON or YAML config file")
	pf.StringVar(&c.logLevel, "log-level", "", "debug|info|warn|error (overrides config)")
	pf.StringVar(&c.logFormat, "log-format", "", "json|text (overrides config)")
	pf.BoolVar(&c.debug, "debug", false, "log runtime metrics")

	c.root.AddCommand(
		c.newRunCmd(),
		c.newMatchCmd(),
		c.newGroupsCmd(),
		c.newScalesCmd(),
		c.newThresholdCmd(),
	)
	return c
}

func (c *cli) execute(ctx context.Context) error {
	c.root.SetContext(ctx)
	return c.root.Execute()
}

// load reads the config file and applies the flag overrides.
func (c *cli) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = c.logFormat
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = c.debug
	}
	level := ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return cfg, NewLogger(cfg.LogFormat, level, c.logOut), nil
}

func (c *cli) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	return store.OpenSQLite(ctx, cfg.StorePath, 5*time.Second, logger)
}
