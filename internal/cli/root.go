// Package cli implements the skillwave command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/skillwave/internal/config"
	"github.com/roach88/skillwave/internal/ir"
	"github.com/roach88/skillwave/internal/telemetry"
)

// RootOptions holds global flags and the state they resolve to.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Resolved in PersistentPreRunE.
	Config *config.Config
	Logger *slog.Logger

	shutdown telemetry.ShutdownFunc
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the skillwave CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "skillwave",
		Short: "skillwave - incremental execution engine",
		Long: `skillwave runs a graph of units wave by wave, skipping every unit whose
content hash already has a result in the execution cache.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewInvalidateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd, opts
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.Config = cfg

	level := cfg.Log.Level
	if o.Verbose {
		level = "debug"
	}
	o.Logger = telemetry.NewLogger(cmd.ErrOrStderr(), level, cfg.Log.Format)

	shutdown, err := telemetry.Init("skillwave", ir.EngineVersion, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		Writer:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize telemetry", err)
	}
	o.shutdown = shutdown
	return nil
}

// Execute runs the CLI with args and returns the process exit code.
// Errors not already rendered by a command are printed to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)

	if opts.shutdown != nil {
		if serr := opts.shutdown(context.Background()); serr != nil {
			fmt.Fprintf(stderr, "telemetry shutdown: %v\n", serr)
		}
	}

	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		// Flag and argument errors from cobra itself.
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}
	if !exitErr.Reported {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitErr.Code
}
