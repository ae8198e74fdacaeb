package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	beam "github.com/beamguides/beam-patcher"
	"github.com/beamguides/beam-patcher/internal/config"
	"github.com/beamguides/beam-patcher/internal/logging"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

// ensureConfig loads the configuration once. Remote settings are checked
// when a Patcher is opened, so local commands work without mirrors.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.LoadUnvalidated(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.ValidateLocal(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	opts := logging.Options{Level: "info", Format: "console", Output: cmd.ErrOrStderr()}
	if c.config != nil {
		opts.Level = c.config.Logging.Level
		opts.Format = c.config.Logging.Format
	}
	if c.verbose != nil && *c.verbose {
		opts.Level = "debug"
	}
	logger, err := logging.New(opts)
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

// withPatcher opens a Patcher for the duration of fn. A progress bar is
// drawn on stderr when it is a terminal.
func (c *commandContext) withPatcher(cmd *cobra.Command, fn func(*beam.Patcher) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	opts := []beam.Option{beam.WithLogger(c.logger(cmd))}
	var bar *progressRenderer
	if isTerminal(cmd.ErrOrStderr()) {
		bar = newProgressRenderer(cmd.ErrOrStderr())
		opts = append(opts, beam.WithProgress(bar.update))
	}
	p, err := beam.Open(cfg, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	err = fn(p)
	if bar != nil {
		bar.finish()
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
