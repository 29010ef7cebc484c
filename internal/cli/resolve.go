package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/pipeline"
	"github.com/matzehuels/bundlewire/pkg/view"
)

// resolveOpts holds the flags of the resolve command.
type resolveOpts struct {
	subset []int64 // refresh only these revision ids
	force  bool    // allow unresolving dependents and displacing singletons
	dryRun bool    // do not persist the result
	fresh  bool    // ignore the persisted state
	json   bool    // print the delta as JSON
	strict bool    // fail when a revision stays unresolved
}

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var opts resolveOpts

	cmd := &cobra.Command{
		Use:   "resolve <declarations>",
		Short: "Resolve bundle declarations and report what changed",
		Long: `Resolve reads a declaration file, or every declaration file in a directory,
reconciles it with the persisted state and runs one resolve pass. The
changes since the previous pass are printed and the state is saved.`,
		Example: `  bundlewire resolve bundles/
  bundlewire resolve bundles.toml --subset 3,4 --force
  bundlewire resolve bundles/ --state-dir .bundlewire --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResolve(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().Int64SliceVar(&opts.subset, "subset", nil, "revision ids to refresh (default: all unresolved)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "refresh dependents of removed revisions and displace resolved singletons")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "do not save the resolved state")
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "start from an empty state")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the delta as JSON")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit with an error if any revision stays unresolved")

	return cmd
}

func (c *CLI) runResolve(ctx context.Context, path string, opts resolveOpts) error {
	logger := loggerFromContext(ctx)
	runner, err := c.newRunner(ctx)
	if err != nil {
		return err
	}
	defer runner.Close()

	popts, err := c.pipelineOptions(path)
	if err != nil {
		return err
	}
	popts.Subset = opts.subset
	popts.Force = opts.force
	popts.DryRun = opts.dryRun
	popts.Fresh = opts.fresh

	prog := newProgress(logger)
	spin := startSpinner(ctx, "Resolving "+path)
	popts.OnStage = spin.onStage
	res, err := runner.Execute(ctx, popts)
	spin.stop()
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Resolved %d revisions", res.Stats.Resolved))

	if opts.json {
		if err := writeJSON(view.NewDelta(res.Delta, res.State.Timestamp())); err != nil {
			return err
		}
	} else {
		printResolveResult(path, res, popts)
	}

	if opts.strict {
		if n := res.Stats.Revisions - res.Stats.Resolved; n > 0 {
			return errors.New(errors.ErrCodeInvalidDeclaration, "%d revisions are unresolved", n)
		}
	}
	return nil
}

func printResolveResult(path string, res *pipeline.Result, opts pipeline.Options) {
	printSuccess("Resolved %s", StyleHighlight.Render(path))
	printStats(res.Stats.Revisions, res.Stats.Resolved, res.Delta.Len(), res.CacheInfo.Restored)
	printNewline()
	printDelta(res.Delta)

	for _, r := range res.State.Revisions() {
		if !r.IsResolved() {
			printWarning("%s is unresolved", r)
		}
	}
	if pending := res.State.RemovalPending(); len(pending) > 0 {
		printInfo("%d revisions are waiting for removal", len(pending))
		printNextStep("Release them", "bundlewire resolve "+path+" --force")
	}

	printNewline()
	switch {
	case res.CacheInfo.Saved && opts.StateDir != "":
		printFile(opts.StateDir)
	case res.CacheInfo.Saved:
		printDetail("Saved state %q", opts.StateName)
	case !opts.DryRun:
		printDetail("State not saved (cache disabled)")
	}
	printNextStep("Inspect the wiring", "bundlewire inspect")
}

// writeJSON prints v as indented JSON.
func writeJSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
