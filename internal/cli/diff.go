package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/pipeline"
	"github.com/matzehuels/bundlewire/pkg/state"
	"github.com/matzehuels/bundlewire/pkg/store"
	"github.com/matzehuels/bundlewire/pkg/view"
)

// diffCommand creates the diff command.
func (c *CLI) diffCommand() *cobra.Command {
	var (
		baseDir string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "diff <declarations>",
		Short: "Compare a fresh resolution of declarations with a persisted state",
		Long: `Diff resolves the declarations from scratch, without touching any stored
state, and compares the result with the persisted state (or with the state
kept in --base-dir). Revisions are matched by id.`,
		Example: `  bundlewire diff bundles/
  bundlewire diff bundles/ --base-dir /srv/bundlewire/state`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDiff(cmd.Context(), args[0], baseDir, jsonOut)
		},
	}

	cmd.Flags().StringVar(&baseDir, "base-dir", "", "state directory to compare against (default: the persisted state)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the delta as JSON")

	return cmd
}

func (c *CLI) runDiff(ctx context.Context, path, baseDir string, jsonOut bool) error {
	popts, err := c.pipelineOptions(path)
	if err != nil {
		return err
	}

	var base *state.State
	if baseDir != "" {
		base, err = store.ReadDir(ctx, baseDir, popts.State)
	} else {
		var ok bool
		base, ok, err = c.restoreState(ctx)
		if !ok {
			base = nil
		}
	}
	if err != nil {
		return err
	}
	switch {
	case base == nil && baseDir != "":
		return errors.New(errors.ErrCodeNotFound, "no state stored in %s", baseDir)
	case base == nil:
		return errors.New(errors.ErrCodeNotFound, "no state stored yet")
	}

	popts.Fresh = true
	popts.DryRun = true
	res, err := pipeline.NewRunner(nil, nil, c.Logger).Execute(ctx, popts)
	if err != nil {
		return err
	}
	d := res.State.Compare(base)

	if jsonOut {
		return writeJSON(view.NewDelta(d, res.State.Timestamp()))
	}
	printInfo("Comparing %s with state %s", StyleHighlight.Render(path), base.ID())
	printDelta(d)
	return nil
}
