package spacedrep

import (
	"math"
	"time"
)

// LearningState is the learning stage of a (user, item) pair.
type LearningState string

const (
	StateNew      LearningState = "new"
	StateLearning LearningState = "learning"
	StateReview   LearningState = "review"
	StateMastered LearningState = "mastered"
)

// Valid reports whether s is a known learning state.
func (s LearningState) Valid() bool {
	switch s {
	case StateNew, StateLearning, StateReview, StateMastered:
		return true
	}
	return false
}

// ScheduleState holds the spaced repetition record for a single user and item.
type ScheduleState struct {
	UserID             string        `json:"user_id"`
	ItemID             string        `json:"item_id"`
	State              LearningState `json:"state"`
	Ease               float64       `json:"ease"`
	IntervalDays       float64       `json:"interval_days"`
	NextDue            time.Time     `json:"next_due"`
	LastReviewedAt     time.Time     `json:"last_reviewed_at"`
	ConsecutiveCorrect int           `json:"consecutive_correct"`
	TotalReviews       int           `json:"total_reviews"`
	Lapses             int           `json:"lapses"`
	SuccessRate        float64       `json:"success_rate"`
	Leech              bool          `json:"leech"`
}

// NewState returns the state of an item on first exposure.
func NewState(userID, itemID string) ScheduleState {
	return ScheduleState{
		UserID: userID,
		ItemID: itemID,
		State:  StateNew,
		Ease:   DefaultEase,
	}
}

// Key returns the (user, item) fingerprint identifying the state.
func (rs *ScheduleState) Key() string {
	return Key(rs.UserID, rs.ItemID)
}

// Key builds the fingerprint for a user and item.
func Key(userID, itemID string) string {
	return userID + "/" + itemID
}

// Interval returns the current interval as a duration.
func (rs *ScheduleState) Interval() time.Duration {
	return daysToDuration(rs.IntervalDays)
}

// IsNew returns true if the item has never been reviewed.
func (rs *ScheduleState) IsNew() bool {
	return rs.State == StateNew || rs.TotalReviews == 0
}

// IsDue returns true if the item is due for review (at or past the due date).
// New items are always due.
func (rs *ScheduleState) IsDue(now time.Time) bool {
	if rs.IsNew() {
		return true
	}
	return !now.Before(rs.NextDue)
}

// OverdueDays returns how many days past due the item is. Returns 0 if not
// yet due or never scheduled.
func (rs *ScheduleState) OverdueDays(now time.Time) float64 {
	if rs.NextDue.IsZero() || now.Before(rs.NextDue) {
		return 0
	}
	return now.Sub(rs.NextDue).Hours() / 24.0
}

// IsOverdueThreshold returns true if the item has exceeded a grace period of
// half its interval past the due date.
func (rs *ScheduleState) IsOverdueThreshold(now time.Time) bool {
	if rs.IsNew() || !rs.IsDue(now) {
		return false
	}
	grace := daysToDuration(rs.IntervalDays * 0.5)
	return now.After(rs.NextDue.Add(grace))
}

// ReviewStatus describes an item's review status for display.
type ReviewStatus string

const (
	StatusNew       ReviewStatus = "new"
	StatusScheduled ReviewStatus = "scheduled"
	StatusDue       ReviewStatus = "due"
	StatusOverdue   ReviewStatus = "overdue"
	StatusMastered  ReviewStatus = "mastered"
)

// Status returns the review status for UI display.
func (rs *ScheduleState) Status(now time.Time) ReviewStatus {
	switch {
	case rs.IsNew():
		return StatusNew
	case rs.IsOverdueThreshold(now):
		return StatusOverdue
	case rs.IsDue(now):
		return StatusDue
	case rs.State == StateMastered:
		return StatusMastered
	default:
		return StatusScheduled
	}
}

// DaysUntilDue returns the number of days until the next review.
// Returns 0 if already due.
func (rs *ScheduleState) DaysUntilDue(now time.Time) int {
	if rs.IsDue(now) {
		return 0
	}
	return int(rs.NextDue.Sub(now).Hours()/24.0) + 1
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(math.Round(days * float64(24*time.Hour)))
}
