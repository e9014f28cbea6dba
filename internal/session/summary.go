package session

import (
	"time"

	"github.com/samber/lo"

	"github.com/abhisek/retain/internal/content"
)

// BandResult holds the results for one difficulty band.
type BandResult struct {
	Band     string
	Answered int
	Correct  int
	Accuracy float64
}

// Summary is the end-of-session report.
type Summary struct {
	SessionID    string
	Status       Status
	Duration     time.Duration
	TotalItems   int
	Answered     int
	Correct      int
	Skipped      int
	Ungradable   int
	HintsUsed    int
	Accuracy     float64
	BestStreak   int
	AverageScore float64
	// ByDifficulty lists the bands that saw answers, easiest first.
	ByDifficulty []BandResult
}

// BuildSummary creates a Summary from a session.
func BuildSummary(s Session) Summary {
	end := s.EndedAt
	if end.IsZero() {
		end = s.LastActivity
	}
	dur := end.Sub(s.StartedAt) - s.PausedFor
	if dur < 0 {
		dur = 0
	}

	sum := Summary{
		SessionID:  s.ID,
		Status:     s.Status,
		Duration:   dur,
		TotalItems: len(s.Items),
		Answered:   s.Stats.Answered,
		Correct:    s.Stats.Correct,
		Ungradable: s.Stats.Ungradable,
		HintsUsed:  s.Stats.HintsUsed,
		Accuracy:   s.Stats.Accuracy(),
		BestStreak: s.Stats.BestStreak,
		Skipped: lo.CountBy(s.Items, func(it ItemAttempt) bool {
			return !it.Resolved
		}),
	}
	if s.Stats.Answered > 0 {
		sum.AverageScore = float64(s.Stats.ScoreTotal) / float64(s.Stats.Answered)
	}

	for _, band := range []string{content.BandEasy, content.BandMedium, content.BandHard} {
		b, ok := s.Stats.ByBand[band]
		if !ok || b.Answered == 0 {
			continue
		}
		sum.ByDifficulty = append(sum.ByDifficulty, BandResult{
			Band:     band,
			Answered: b.Answered,
			Correct:  b.Correct,
			Accuracy: float64(b.Correct) / float64(b.Answered),
		})
	}
	return sum
}
