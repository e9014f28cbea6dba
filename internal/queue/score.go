// Package queue selects and orders the next batch of items to review.
package queue

import (
	"math"
	"time"

	"github.com/abhisek/retain/internal/content"
	"github.com/abhisek/retain/internal/spacedrep"
)

// Score components.
const (
	OverduePerDay    = 10.0
	MaxOverdueBonus  = 100.0
	LowSuccessBonus  = 40.0
	LowSuccessCutoff = 0.6
	LeechBonus       = 35.0
	RecencyPenalty   = 60.0

	DefaultRecencyWindow = time.Hour
)

// stateBonus is the bonus for each learning state.
var stateBonus = map[spacedrep.LearningState]float64{
	spacedrep.StateNew:      30,
	spacedrep.StateLearning: 20,
	spacedrep.StateReview:   10,
	spacedrep.StateMastered: 0,
}

// Candidate pairs an item with its schedule state for the learner.
type Candidate struct {
	Item  content.Item
	State spacedrep.ScheduleState
}

// Tier is a priority bucket.
type Tier int

const (
	TierPinned Tier = iota - 1
	TierHigh
	TierMedium
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	case TierPinned:
		return "pinned"
	}
	return "unknown"
}

// High-tier scores are strictly above HighTierFloor; medium scores are in
// [MediumTierFloor, HighTierFloor].
const (
	HighTierFloor   = 100.0
	MediumTierFloor = 50.0
)

// TierFor buckets a score.
func TierFor(score float64) Tier {
	switch {
	case score > HighTierFloor:
		return TierHigh
	case score >= MediumTierFloor:
		return TierMedium
	default:
		return TierLow
	}
}

// Score computes the deterministic priority of a candidate at now. Higher is
// more urgent. recency is the window inside which a recent review is
// penalised.
func Score(c Candidate, now time.Time, recency time.Duration) float64 {
	st := c.State
	score := math.Min(st.OverdueDays(now)*OverduePerDay, MaxOverdueBonus)
	score += stateBonus[st.State]
	if st.TotalReviews > 0 && st.SuccessRate < LowSuccessCutoff {
		score += LowSuccessBonus
	}
	if st.Leech {
		score += LeechBonus
	}
	if !st.LastReviewedAt.IsZero() && now.Sub(st.LastReviewedAt) < recency {
		score -= RecencyPenalty
	}
	return score
}
