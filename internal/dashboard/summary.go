package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"shorteezy/internal/model"
)

// RenderSummary draws the per-kind outcome table followed by one line per
// failed segment, so the gaps a downstream assembler will meet are visible.
func RenderSummary(run *model.Run) string {
	rows := [][]string{
		summaryRow("narrations", run.Summary.Narration),
		summaryRow("images", run.Summary.Image),
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("kind", "total", "succeeded", "failed", "pending").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return s.Bold(true)
			case row < 0 || row >= len(rows):
				return s
			case col == 3 && rows[row][3] != "0":
				return s.Inherit(errorStyle)
			case col == 2:
				return s.Inherit(okStyle)
			}
			return s
		})

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("run %s", run.ID)) + "\n")
	b.WriteString(t.Render() + "\n")
	for _, seg := range run.Segments {
		if seg.Status != model.StatusFailed {
			continue
		}
		line := fmt.Sprintf("  %s %s", errorStyle.Render("gap"), seg.Label())
		if seg.Reason != "" {
			line += " (" + seg.Reason + ")"
		}
		if seg.LastError != "" {
			line += ": " + errText(fmt.Errorf("%s", seg.LastError))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func summaryRow(name string, ks model.KindSummary) []string {
	return []string{name, strconv.Itoa(ks.Total), strconv.Itoa(ks.Succeeded), strconv.Itoa(ks.Failed), strconv.Itoa(ks.Pending)}
}
