package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/skillwave/internal/cache"
)

// InvalidateOptions holds flags for the invalidate command.
type InvalidateOptions struct {
	*RootOptions
	Database string
	Unit     string
	Prefix   string
}

// InvalidateResult is the output of the invalidate command.
type InvalidateResult struct {
	Removed int    `json:"removed"`
	Unit    string `json:"unit,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvalidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Remove cache entries by unit id or hash prefix",
		Long: `Remove persisted cache entries so the affected units execute on the
next run. Select entries either by the unit that produced them or by a
content hash prefix.

Example:
  skillwave invalidate --db ./skillwave.db --unit report
  skillwave invalidate --db ./skillwave.db --prefix 3fa9`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvalidate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: cache.db from config)")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "remove entries produced by this unit")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "remove entries whose hash starts with this hex prefix")
	cmd.MarkFlagsMutuallyExclusive("unit", "prefix")
	cmd.MarkFlagsOneRequired("unit", "prefix")

	return cmd
}

func runInvalidate(cmd *cobra.Command, opts *InvalidateOptions) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	c, err := cache.New(opts.Config.Cache.Capacity, cache.WithBackend(st), cache.WithLogger(opts.Logger))
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, "failed to create cache", err)
	}

	sel := cache.Selector{UnitID: opts.Unit, HashPrefix: opts.Prefix}
	n, err := c.Invalidate(commandContext(cmd), sel)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "invalidation failed", err)
	}

	result := InvalidateResult{Removed: n, Unit: opts.Unit, Prefix: opts.Prefix}
	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "Removed %d cache entr%s\n", n, plural(n, "y", "ies"))
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
