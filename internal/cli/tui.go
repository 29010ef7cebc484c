package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/state"
	"github.com/matzehuels/bundlewire/pkg/view"
)

// List styles
var (
	listDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	listPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Browse the persisted state interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.requireState(cmd.Context())
			if err != nil || st == nil {
				return err
			}
			_, err = tea.NewProgram(NewRevisionListModel(st), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

// =============================================================================
// RevisionListModel - Interactive revision browser
// =============================================================================

// RevisionListModel is the bubbletea model behind "bundlewire inspect".
type RevisionListModel struct {
	State      *state.State
	Revisions  []*model.Revision // rows currently listed
	Cursor     int
	Height     int
	Offset     int
	Detail     bool // show the detail panel for the cursor row
	Unresolved bool // list only unresolved revisions
}

// NewRevisionListModel creates a browser over every revision of st.
func NewRevisionListModel(st *state.State) RevisionListModel {
	m := RevisionListModel{State: st, Height: 15}
	m.Revisions = m.rows()
	return m
}

func (m RevisionListModel) rows() []*model.Revision {
	all := m.State.All()
	if !m.Unresolved {
		return all
	}
	var out []*model.Revision
	for _, r := range all {
		if !r.IsResolved() {
			out = append(out, r)
		}
	}
	return out
}

// Selected returns the revision under the cursor.
func (m RevisionListModel) Selected() (*model.Revision, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Revisions) {
		return nil, false
	}
	return m.Revisions[m.Cursor], true
}

func (m RevisionListModel) Init() tea.Cmd {
	return nil
}

func (m RevisionListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if !m.Detail {
				return m, tea.Quit
			}
			m.Detail = false
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Revisions)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Revisions) > 0 {
				m.Detail = !m.Detail
			}
		case "u":
			m.Unresolved = !m.Unresolved
			m.Revisions = m.rows()
			m.Cursor, m.Offset, m.Detail = 0, 0, false
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m RevisionListModel) View() string {
	var b strings.Builder

	title := "State " + m.State.ID().String()
	if m.Unresolved {
		title += " (unresolved only)"
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ details  u unresolved only  q quit"))
	b.WriteString("\n\n")

	if len(m.Revisions) == 0 {
		b.WriteString(listDimStyle.Render("  no revisions"))
		b.WriteString("\n")
		return b.String()
	}

	end := min(m.Offset+m.Height, len(m.Revisions))
	visible := m.Revisions[m.Offset:end]
	rows := make([][]string, 0, len(visible))
	for i, r := range visible {
		cursor := "  "
		if m.Offset+i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, append([]string{cursor}, revisionRow(m.State, r)...))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "ID", "Name", "Version", "Status", "Wires").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			idx := m.Offset + row
			if idx >= len(m.Revisions) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if col == 4 {
				base = statusStyle(m.State, m.Revisions[idx])
			}
			if idx == m.Cursor {
				return base.Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Revisions))))
	b.WriteString("\n")

	if r, ok := m.Selected(); ok && m.Detail {
		b.WriteString(listPanelStyle.Render(detailPanel(m.State, r)))
		b.WriteString("\n")
	}
	return b.String()
}

// detailPanel summarizes the wiring of r for the inspect view.
func detailPanel(st *state.State, r *model.Revision) string {
	d := view.NewDetail(r, st)
	lines := []string{StyleTitle.Render(r.String()) + "  " + statusStyle(st, r).Render(status(st, r))}
	for _, info := range st.DisabledInfos(r) {
		lines = append(lines, StyleWarning.Render("disabled by "+info.Policy+": "+info.Message))
	}
	if len(d.Hosts) > 0 {
		lines = append(lines, "attached to "+joinIDs(d.Hosts))
	}
	if len(d.Fragments) > 0 {
		lines = append(lines, "fragments "+joinIDs(d.Fragments))
	}
	for _, w := range d.Required {
		lines = append(lines, fmt.Sprintf("%s %s %s %s", iconArrow, w.Namespace, w.Name, describe(st, w.Provider)))
	}
	for _, w := range d.Provided {
		lines = append(lines, fmt.Sprintf("← %s %s %s", describe(st, w.Requirer), w.Namespace, w.Name))
	}
	if len(d.Required)+len(d.Provided) == 0 {
		lines = append(lines, listDimStyle.Render("no wires"))
	}
	return strings.Join(lines, "\n")
}
