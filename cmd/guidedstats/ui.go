package main

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/systemstart/guidedstats/pkg/api"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")

	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	mutedStyle   = lipgloss.NewStyle().Foreground(dim)
	titleStyle   = lipgloss.NewStyle().Foreground(purple).Bold(true)
)

func renderTable(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Foreground(purple).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	oddStyle := cellStyle.Foreground(dim)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return cellStyle
			default:
				return oddStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}

func mark(v bool) string {
	if v {
		return successStyle.Render("yes")
	}
	return mutedStyle.Render("no")
}

// stepTable renders the state of every step of a snapshot, marking the
// active one.
func stepTable(info *api.WorkflowInfo) string {
	rows := make([][]string, len(info.Steps))
	for i, s := range info.Steps {
		id := strconv.Itoa(s.StepID)
		if i == info.CurrentStepID {
			id = "> " + id
		}
		name := s.StepName
		if !s.IsShown {
			name = mutedStyle.Render(name + " (hidden)")
		}
		rows[i] = []string{id, name, s.StepType, mark(s.Done), warnStyle.Render(s.Message)}
	}
	return renderTable([]string{"#", "Step", "Type", "Done", "Message"}, rows)
}
