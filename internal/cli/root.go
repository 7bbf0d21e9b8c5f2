// Package cli implements the playground command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mesh-intelligence/playground/internal/paths"
	"github.com/mesh-intelligence/playground/pkg/playground"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir     string
	dataDir       string
	iterationsDir string
	jsonMode      bool
	logLevel      string
}

// app carries the state shared by one invocation of the root command.
type app struct {
	flags    rootFlags
	config   *viper.Viper
	settings settings
	logger   *slog.Logger
	stderr   io.Writer
}

// NewRootCmd creates the top-level "playground" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{stderr: os.Stderr}
	root := &cobra.Command{
		Use:     "playground",
		Short:   "An iteration canvas for AI-generated UI components",
		Long:    "Playground keeps a canvas of component roots and their generated iterations\nin step with an iterations directory, and drives the agent that writes them.",
		Version: playground.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.playground)")
	root.PersistentFlags().StringVar(&a.flags.iterationsDir, "iterations-dir", "", "iterations directory (default: $(CWD)/src/app/playground/iterations)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newScanCmd(a))
	root.AddCommand(newTreeCmd(a))
	root.AddCommand(newDeleteCmd(a))
	root.AddCommand(newLayoutCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

// load reads config.yaml and resolves settings and the logger. The version
// command needs none of it.
func (a *app) load(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	a.config, err = loadConfig(configDir)
	if err != nil {
		return sysError(err)
	}
	a.settings, err = resolveSettings(a.config, a.flags)
	if err != nil {
		return err
	}
	a.logger, err = newLogger(a.stderr, a.settings.LogLevel)
	return err
}

// newLogger returns a text logger on w at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// cliError carries the exit code for an error.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

// sysError marks err as a system failure (exit code 2).
func sysError(err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: exitSysError, err: err}
}

// exitCode maps err to a process exit code. Unmarked errors are user errors.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitUserError
}
