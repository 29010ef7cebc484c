package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/bundlewire/pkg/delta"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/state"
)

// out receives all human-readable command output.
var out io.Writer = os.Stdout

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - links
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleHighlight for emphasized values.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	// StyleError for failures.
	StyleError = lipgloss.NewStyle().Foreground(colorRed)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleCached   = lipgloss.NewStyle().Foreground(colorGreen)
	styleComputed = lipgloss.NewStyle().Foreground(colorGray)

	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
	styleHeader  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess  = "✓"
	iconError    = "✗"
	iconWarning  = "!"
	iconInfo     = "›"
	iconArrow    = "→"
	iconRestored = "restored"
	iconCached   = "cached"
	iconFresh    = "fresh"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(out, styleIconSuccess.Render(iconSuccess)+" "+msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(out, styleIconError.Render(iconError)+" "+msg)
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(out, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(out, styleIconInfo.Render(iconInfo)+" "+msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(out, "  "+StyleDim.Render(msg))
}

// printFile prints a file output line.
func printFile(path string) {
	fmt.Fprintln(out, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(12)
	fmt.Fprintln(out, keyStyle.Render(key)+" "+StyleValue.Render(value))
}

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Fprintln(out, StyleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

// printNewline prints an empty line.
func printNewline() {
	fmt.Fprintln(out)
}

// =============================================================================
// Resolve Output
// =============================================================================

// printStats prints the outcome of a resolve pass on a single line.
func printStats(revisions, resolved, changes int, restored bool) {
	parts := []string{
		fmt.Sprintf("%d revisions", revisions),
		fmt.Sprintf("%d resolved", resolved),
		fmt.Sprintf("%d changes", changes),
	}

	tag, tagStyle := iconFresh, styleComputed
	if restored {
		tag, tagStyle = iconRestored, styleCached
	}

	line := "  "
	for i, part := range parts {
		if i > 0 {
			line += StyleDim.Render(" · ")
		}
		line += StyleDim.Render(part)
	}
	line += StyleDim.Render(" · ") + tagStyle.Render(tag)
	fmt.Fprintln(out, line)
}

// printDelta lists every changed revision with its flags.
func printDelta(d delta.StateDelta) {
	if d.IsEmpty() {
		printInfo("No changes")
		return
	}
	for _, e := range d.Entries {
		fmt.Fprintln(out, "  "+flagIcon(e.Flags)+" "+StyleValue.Render(e.Revision.String())+" "+StyleDim.Render(strings.Join(e.Flags.Names(), ", ")))
	}
}

// flagIcon picks a marker for the most significant flag.
func flagIcon(f delta.Flag) string {
	switch {
	case f.Has(delta.Added), f.Has(delta.Resolved):
		return StyleSuccess.Render("+")
	case f.Has(delta.Removed), f.Has(delta.Unresolved):
		return StyleError.Render("-")
	default:
		return StyleWarning.Render("~")
	}
}

// revisionTable renders revs as a bordered table.
func revisionTable(st *state.State, revs []*model.Revision) string {
	rows := make([][]string, 0, len(revs))
	for _, r := range revs {
		rows = append(rows, revisionRow(st, r))
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Name", "Version", "Status", "Wires").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			if row >= 0 && row < len(revs) && col == 3 {
				return statusStyle(st, revs[row])
			}
			return lipgloss.NewStyle()
		}).
		Render()
}

func revisionRow(st *state.State, r *model.Revision) []string {
	wires := "-"
	if w := r.Wiring(); w != nil {
		wires = fmt.Sprintf("%d in / %d out", len(w.Provided), len(w.Required))
	}
	return []string{fmt.Sprint(r.ID()), r.SymbolicName(), r.Version().String(), status(st, r), wires}
}

// status summarizes a revision's place in the state.
func status(st *state.State, r *model.Revision) string {
	switch {
	case r.Lifecycle() == model.RemovalPending:
		return "removal pending"
	case len(st.DisabledInfos(r)) > 0 && !r.IsResolved():
		return "disabled"
	case r.IsResolved() && r.IsFragment():
		return "attached"
	case r.IsResolved():
		return "resolved"
	}
	return "unresolved"
}

func statusStyle(st *state.State, r *model.Revision) lipgloss.Style {
	switch status(st, r) {
	case "resolved", "attached":
		return StyleSuccess
	case "unresolved":
		return StyleError
	}
	return StyleWarning
}
