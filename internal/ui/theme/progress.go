package theme

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
)

// ProgressBar renders a horizontal bar of the given total width, followed by
// the percentage.
func ProgressBar(label string, percent float64, width int) string {
	var result string
	if label != "" {
		result += Body.Render(label) + "  "
	}

	const percentWidth = 6 // "  100%"
	barWidth := max(width-lipgloss.Width(result)-percentWidth, 4)

	filled := min(max(int(float64(barWidth)*percent), 0), barWidth)
	result += ProgressFilled.Render(strings.Repeat(" ", filled))
	result += ProgressEmpty.Render(strings.Repeat(" ", barWidth-filled))
	result += Label.Render(fmt.Sprintf("  %d%%", int(percent*100)))
	return result
}
