// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jeranaias/nova/internal/config"
)

// Build information, set with -ldflags at release time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// globalOptions carries the persistent flags and the state they resolve to.
// Storage is opened lazily so config commands work without it.
type globalOptions struct {
	configPath string
	logLevel   string
	dataDir    string
	backend    string

	cfg *config.Config
	log *logrus.Logger
	app *App
}

func (o *globalOptions) bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.configPath, "config", "", "config file (default ~/.nova/config.toml)")
	flags.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&o.dataDir, "data-dir", "", "directory for chats, settings and history")
	flags.StringVar(&o.backend, "storage", "", "storage backend: sqlite, file or memory")
}

// setup loads the configuration and applies flag overrides and logging.
func (o *globalOptions) setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.backend != "" {
		cfg.Storage.Backend = o.backend
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.log.SetOutput(cmd.ErrOrStderr())
	if err := cfg.Log.Apply(o.log); err != nil {
		return &ValidationError{Field: "log level", Value: cfg.Log.Level, Reason: err.Error()}
	}
	o.cfg = cfg
	return nil
}

// App opens storage on first use.
func (o *globalOptions) App(cmd *cobra.Command) (*App, error) {
	if o.app != nil {
		return o.app, nil
	}
	app, err := NewApp(cmd.Context(), o.cfg, o.log)
	if err != nil {
		return nil, err
	}
	o.app = app
	return app, nil
}

func (o *globalOptions) close() {
	if o.app == nil {
		return
	}
	if err := o.app.Close(); err != nil {
		o.log.WithError(err).Warn("Failed to close storage")
	}
	o.app = nil
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// usageError marks argument and flag mistakes.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// NewRootCommand builds the nova command tree.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *globalOptions) {
	opts := &globalOptions{log: logrus.New()}

	cmd := &cobra.Command{
		Use:   "nova",
		Short: "Chat with an OpenAI-compatible model from the terminal",
		Long: `nova keeps a list of chats and sends them to an OpenAI-compatible
chat completions endpoint of your choice. When no provider is configured,
an operator-provided hosted model is used instead.

Run without a command to open the full-screen chat.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, opts)
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("nova %s (%s, built %s)\n", Version, GitCommit, BuildDate))
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})
	opts.bindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newAskCommand(opts),
		newChatCommand(opts),
		newTUICommand(opts),
		newChatsCommand(opts),
		newSettingsCommand(opts),
		newConfigCommand(opts),
		newServeCommand(opts),
		newVersionCommand(),
	)
	return cmd, opts
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

func rangeArgs(lo, hi int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(lo, hi)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd, opts := newRootCommand()
	defer opts.close()

	if err := cmd.Execute(); err != nil {
		DisplayError(os.Stderr, err)
		return ExitCode(err)
	}
	return ExitSuccess
}
