package theme

import (
	"strings"
	"testing"

	"charm.land/lipgloss/v2"
)

func TestProgressBar_Width(t *testing.T) {
	tests := []struct {
		label   string
		percent float64
		width   int
	}{
		{"", 0, 30},
		{"session", 0.5, 40},
		{"x", 1.5, 20},
		{"", -1, 20},
	}
	for _, tt := range tests {
		got := ProgressBar(tt.label, tt.percent, tt.width)
		if w := lipgloss.Width(got); w > tt.width+1 {
			t.Errorf("ProgressBar(%q, %v, %d) width = %d", tt.label, tt.percent, tt.width, w)
		}
		if tt.label != "" && !strings.Contains(got, tt.label) {
			t.Errorf("ProgressBar(%q) missing label", tt.label)
		}
	}
}

func TestState_KnownAndUnknown(t *testing.T) {
	for _, s := range []string{"new", "learning", "review", "mastered", "other"} {
		if !strings.Contains(State(s), s) {
			t.Errorf("State(%q) lost the name", s)
		}
	}
}

func TestPad_MeasuresStyledText(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  int
	}{
		{State("new"), 10, 10},
		{Tier("high"), 6, 6},
		{ReviewStatus("overdue"), 10, 10},
		{"しし", 6, 6},
		{"already-wider", 4, 13},
	}
	for _, tt := range tests {
		if got := lipgloss.Width(Pad(tt.in, tt.width)); got != tt.want {
			t.Errorf("Pad(%q, %d) width = %d, want %d", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestReviewStatus_KeepsName(t *testing.T) {
	for _, s := range []string{"new", "scheduled", "due", "overdue", "mastered"} {
		if !strings.Contains(ReviewStatus(s), s) {
			t.Errorf("ReviewStatus(%q) lost the name", s)
		}
	}
}
