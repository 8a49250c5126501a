package db

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	borderColor = lipgloss.Color("#334155")
	headerColor = lipgloss.Color("#8B5CF6")
	nullColor   = lipgloss.Color("#64748B")

	headerStyle = lipgloss.NewStyle().Foreground(headerColor).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	nullStyle   = cellStyle.Foreground(nullColor).Italic(true)
)

// RenderTable lays out headers and rows as a bordered table. Cells for which
// isNull reports true are dimmed.
func RenderTable(headers []string, rows [][]string, isNull func(row, col int) bool) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(rows) && col < len(rows[row]) && isNull != nil && isNull(row, col) {
				return nullStyle
			}
			return cellStyle
		})
	return t.String()
}
