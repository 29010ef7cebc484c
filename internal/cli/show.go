package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/state"
	"github.com/matzehuels/bundlewire/pkg/view"
)

// showCommand creates the show command.
func (c *CLI) showCommand() *cobra.Command {
	var (
		jsonOut  bool
		resolved bool
	)

	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show the persisted state or one revision",
		Example: `  bundlewire show
  bundlewire show 3 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := c.requireState(ctx)
			if err != nil || st == nil {
				return err
			}
			if len(args) == 0 {
				return showState(st, resolved, jsonOut)
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidInput, err, "revision id %q", args[0])
			}
			r, ok := findRevision(st, id)
			if !ok {
				return errors.New(errors.ErrCodeNotFound, "no revision with id %d", id)
			}
			return showRevision(st, r, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	cmd.Flags().BoolVar(&resolved, "resolved", false, "list resolved revisions only")

	return cmd
}

// requireState restores the persisted state. When nothing is stored it
// prints a hint and returns a nil state.
func (c *CLI) requireState(ctx context.Context) (*state.State, error) {
	st, ok, err := c.restoreState(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		printWarning("No state stored yet")
		printNextStep("Resolve declarations first", "bundlewire resolve <declarations>")
		return nil, nil
	}
	return st, nil
}

// findRevision looks up id among live and removal-pending revisions.
func findRevision(st *state.State, id int64) (*model.Revision, bool) {
	if r, ok := st.Revision(id); ok {
		return r, true
	}
	for _, r := range st.RemovalPending() {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

func showState(st *state.State, resolvedOnly, jsonOut bool) error {
	revs := st.All()
	if resolvedOnly {
		revs = st.ResolvedRevisions()
	}
	if jsonOut {
		v := view.NewState(st)
		if resolvedOnly {
			v.Revisions = v.Revisions[:0]
			for _, r := range revs {
				v.Revisions = append(v.Revisions, view.NewRevision(r, st))
			}
		}
		return writeJSON(v)
	}

	fmt.Fprintln(out, StyleTitle.Render("State "+st.ID().String()))
	printKeyValue("Timestamp", strconv.FormatInt(st.Timestamp(), 10))
	printKeyValue("Resolved", fmt.Sprintf("%d of %d", len(st.ResolvedRevisions()), len(st.Revisions())))
	if n := len(st.RemovalPending()); n > 0 {
		printKeyValue("Pending", strconv.Itoa(n))
	}
	printNewline()
	fmt.Fprintln(out, revisionTable(st, revs))
	return nil
}

func showRevision(st *state.State, r *model.Revision, jsonOut bool) error {
	d := view.NewDetail(r, st)
	if jsonOut {
		return writeJSON(d)
	}

	fmt.Fprintln(out, StyleTitle.Render(r.String()))
	printKeyValue("ID", strconv.FormatInt(d.ID, 10))
	printKeyValue("Status", status(st, r))
	if d.Location != "" {
		printKeyValue("Location", d.Location)
	}
	if d.Singleton {
		printKeyValue("Singleton", "yes")
	}
	for _, info := range st.DisabledInfos(r) {
		printKeyValue("Disabled", info.Policy+": "+info.Message)
	}
	if len(d.Hosts) > 0 {
		printKeyValue("Hosts", joinIDs(d.Hosts))
	}
	if len(d.Fragments) > 0 {
		printKeyValue("Fragments", joinIDs(d.Fragments))
	}

	printNewline()
	fmt.Fprintln(out, StyleTitle.Render("Capabilities"))
	for _, cp := range d.Capabilities {
		line := cp.Namespace + " " + cp.Name
		if cp.Version != "" {
			line += " " + cp.Version
		}
		if len(cp.Uses) > 0 {
			line += StyleDim.Render(" uses " + strings.Join(cp.Uses, ","))
		}
		printDetail("%s", line)
	}

	printNewline()
	fmt.Fprintln(out, StyleTitle.Render("Requirements"))
	for _, req := range d.Requirements {
		line := req.Namespace + " " + req.Name
		if req.Range != "" {
			line += " " + req.Range
		}
		if req.Filter != "" {
			line += " " + req.Filter
		}
		if req.Resolution != model.Mandatory.String() {
			line += " (" + req.Resolution + ")"
		}
		if req.Declarer != d.ID {
			line += fmt.Sprintf(" from fragment %d", req.Declarer)
		}
		printDetail("%s", line)
	}

	if len(d.Required) > 0 {
		printNewline()
		fmt.Fprintln(out, StyleTitle.Render("Wired to"))
		for _, w := range d.Required {
			printDetail("%s %s %s %s", w.Namespace, w.Name, iconArrow, describe(st, w.Provider))
		}
	}
	if len(d.Provided) > 0 {
		printNewline()
		fmt.Fprintln(out, StyleTitle.Render("Used by"))
		for _, w := range d.Provided {
			printDetail("%s %s %s %s", describe(st, w.Requirer), iconArrow, w.Namespace, w.Name)
		}
	}
	return nil
}

func describe(st *state.State, id int64) string {
	if r, ok := findRevision(st, id); ok {
		return r.String()
	}
	return strconv.FormatInt(id, 10)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
