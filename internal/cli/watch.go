package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bundlewire/internal/watch"
)

// watchCommand creates the watch command.
func (c *CLI) watchCommand() *cobra.Command {
	var (
		debounce time.Duration
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "watch <declarations>",
		Short: "Re-resolve whenever declaration files change",
		Long: `Watch resolves the declarations once and then again after every change to
them, printing the delta of each pass. The state stays in memory between
passes and is saved after each one.`,
		Example: `  bundlewire watch bundles/
  bundlewire watch bundles.toml --force --debounce 1s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context(), args[0], debounce, force)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before re-resolving")
	cmd.Flags().BoolVar(&force, "force", false, "refresh dependents of removed revisions and displace resolved singletons")

	return cmd
}

func (c *CLI) runWatch(ctx context.Context, path string, debounce time.Duration, force bool) error {
	runner, err := c.newRunner(ctx)
	if err != nil {
		return err
	}
	defer runner.Close()

	popts, err := c.pipelineOptions(path)
	if err != nil {
		return err
	}
	popts.Force = force

	res, err := runner.Execute(ctx, popts)
	if err != nil {
		return err
	}
	printSuccess("Resolved %s", StyleHighlight.Render(path))
	printStats(res.Stats.Revisions, res.Stats.Resolved, res.Delta.Len(), res.CacheInfo.Restored)
	printDelta(res.Delta)

	st := res.State
	w, err := watch.New(watch.Config{
		Path:     path,
		Debounce: debounce,
		Logger:   c.Logger,
		OnChange: func(ctx context.Context, changed []string) error {
			res, err := runner.Refresh(ctx, st, popts)
			if err != nil {
				return err
			}
			printNewline()
			printInfo("%d files changed", len(changed))
			printStats(res.Stats.Revisions, res.Stats.Resolved, res.Delta.Len(), false)
			printDelta(res.Delta)
			return nil
		},
	})
	if err != nil {
		return err
	}
	printDetail("Watching %s, press ctrl+c to stop", path)
	return w.Run(ctx)
}
