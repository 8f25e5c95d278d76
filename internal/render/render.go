// Package render draws terminal views of habit completion. Views are pure:
// they take today and the first day of the week as parameters and read
// states from the completion engine.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/beaver/internal/completion"
	"github.com/julianstephens/beaver/internal/constants"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/utils"
)

const (
	maxNameWidth = 24

	GlyphDone       = "●"
	GlyphPeriodDone = "◉"
	GlyphSkipped    = "–"
	GlyphUnknown    = "·"
	GlyphFuture     = " "
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Bold(true)

	todayStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	starStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	stateStyles = map[completion.State]lipgloss.Style{
		completion.Done:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		completion.PeriodDone: lipgloss.NewStyle().Foreground(lipgloss.Color("35")),
		completion.Skipped:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		completion.Unknown:    lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
)

// Glyph returns the single-cell symbol for a completion state.
func Glyph(s completion.State) string {
	switch s {
	case completion.Done:
		return GlyphDone
	case completion.PeriodDone:
		return GlyphPeriodDone
	case completion.Skipped:
		return GlyphSkipped
	default:
		return GlyphUnknown
	}
}

func cell(s completion.State) string {
	return stateStyles[s].Render(Glyph(s))
}

// Legend explains the glyphs.
func Legend() string {
	return strings.Join([]string{
		cell(completion.Done) + " done",
		cell(completion.PeriodDone) + " period done",
		cell(completion.Skipped) + " skipped",
		cell(completion.Unknown) + " open",
	}, "   ")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func nameColumn(habits []*models.Habit) int {
	width := len("Habit")
	for _, h := range habits {
		if n := lipgloss.Width(truncate(h.Name(), maxNameWidth)) + 2; n > width {
			width = n
		}
	}
	return width
}

// Week renders one row per habit for the seven days of the week containing
// today. Days after today are left blank.
func Week(habits []*models.Habit, engine *completion.Engine, today utils.Date, firstDay time.Weekday) string {
	days := utils.WeekDays(today, firstDay)
	start, end := days[0], days[len(days)-1]
	nameWidth := nameColumn(habits)
	label := lipgloss.NewStyle().Width(nameWidth)

	var b strings.Builder
	b.WriteString(label.Render(headerStyle.Render("Habit")))
	for _, d := range days {
		style := headerStyle
		if d == today {
			style = todayStyle
		}
		b.WriteString(" " + style.Render(fmt.Sprintf("%s %02d", d.Time().Format("Mon"), d.Day())))
	}
	b.WriteString("\n")

	if len(habits) == 0 {
		b.WriteString("No habits.\n")
		return b.String()
	}

	for _, h := range habits {
		name := nameStyle.Render(truncate(h.Name(), maxNameWidth))
		if h.Star() {
			name = starStyle.Render("★") + " " + name
		}
		b.WriteString(label.Render(name))

		states := engine.HabitDateCompletion(h, start, end, firstDay)
		for _, d := range days {
			glyph := GlyphFuture
			if !d.After(today) {
				glyph = cell(states[d])
			}
			// Center the glyph under the six-cell "Mon 01" header.
			b.WriteString("   " + glyph + "   ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Heatmap renders a calendar of the last weeks weeks up to today: one
// column per week, one row per weekday starting at firstDay, with month
// labels above the columns.
func Heatmap(h *models.Habit, engine *completion.Engine, today utils.Date, firstDay time.Weekday, weeks int) string {
	if weeks < 1 {
		weeks = 1
	}
	lastWeek := utils.PeriodStart(today, constants.PeriodWeek, firstDay)
	first := lastWeek.AddDays(-7 * (weeks - 1))
	states := engine.HabitDateCompletion(h, first, today, firstDay)

	const rowLabel = 4
	var b strings.Builder
	b.WriteString(nameStyle.Bold(true).Render(h.Name()) + "\n")

	// Month labels start above the first week of each month and never overlap.
	months := []rune(strings.Repeat(" ", rowLabel))
	prev := time.Month(0)
	for w := 0; w < weeks; w++ {
		col := first.AddDays(7 * w)
		if col.Month() == prev {
			continue
		}
		prev = col.Month()
		pos := rowLabel + 2*w
		if len(months) > rowLabel && pos <= len(months) {
			pos = len(months) + 1
		}
		for len(months) < pos {
			months = append(months, ' ')
		}
		months = append(months, []rune(col.Time().Format("Jan"))...)
	}
	b.WriteString(headerStyle.Render(strings.TrimRight(string(months), " ")) + "\n")

	for row := 0; row < 7; row++ {
		weekday := time.Weekday((int(firstDay) + row) % 7)
		b.WriteString(headerStyle.Render(fmt.Sprintf("%-*s", rowLabel, weekday.String()[:3])))
		for w := 0; w < weeks; w++ {
			d := first.AddDays(7*w + row)
			if d.After(today) {
				b.WriteString(GlyphFuture + " ")
				continue
			}
			b.WriteString(cell(states[d]) + " ")
		}
		b.WriteString("\n")
	}
	return b.String()
}
