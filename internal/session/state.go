package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/retain/internal/answer"
	"github.com/abhisek/retain/internal/content"
	"github.com/abhisek/retain/internal/remote"
)

var (
	ErrInvalidSessionState = errors.New("session: operation not allowed in current state")
	ErrSessionExhausted    = errors.New("session: no current item")
	ErrSessionNotFound     = errors.New("session: not found")
	ErrEmptySession        = errors.New("session: no items")
	ErrInvalidMode         = errors.New("session: invalid presentation mode")
	ErrItemsRemaining      = errors.New("session: items remaining")
	ErrInvalidConfig       = errors.New("session: invalid config")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further mutation is accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Config tunes scoring and session lifetime.
type Config struct {
	// MaxAttempts is how many answers an item accepts before it resolves as
	// incorrect.
	MaxAttempts int `koanf:"max_attempts" validate:"gte=1"`
	// HintPenalty and AttemptPenalty are score points deducted per hint used
	// and per attempt beyond the first.
	HintPenalty    int           `koanf:"hint_penalty" validate:"gte=0,lte=100"`
	AttemptPenalty int           `koanf:"attempt_penalty" validate:"gte=0,lte=100"`
	IdleTimeout    time.Duration `koanf:"idle_timeout" validate:"gte=0"`
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    1,
		HintPenalty:    10,
		AttemptPenalty: 15,
		IdleTimeout:    30 * time.Minute,
	}
}

func (c Config) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.HintPenalty < 0 || c.AttemptPenalty < 0 {
		return fmt.Errorf("%w: negative penalty", ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout %s", ErrInvalidConfig, c.IdleTimeout)
	}
	return nil
}

// ItemAttempt is the per-item record of a session. It holds the item id
// only; schedule state lives in the store keyed by user and item.
type ItemAttempt struct {
	ItemID      string  `json:"item_id"`
	ContentType string  `json:"content_type,omitempty"`
	Difficulty  float64 `json:"difficulty"`

	PresentedAt time.Time `json:"presented_at,omitzero"`
	AnsweredAt  time.Time `json:"answered_at,omitzero"`

	Answer         string          `json:"answer,omitempty"`
	Attempts       int             `json:"attempts"`
	HintsUsed      int             `json:"hints_used"`
	Correct        bool            `json:"correct"`
	Resolved       bool            `json:"resolved"`
	Ungradable     bool            `json:"ungradable,omitempty"`
	ResponseTimeMs uint32          `json:"response_time_ms"`
	Score          int             `json:"score"`
	Strategy       answer.Strategy `json:"strategy,omitempty"`
}

// BandStats counts results within one difficulty band.
type BandStats struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
}

// Stats are the running aggregates of a session.
type Stats struct {
	// Attempts counts every submitted answer, including retries.
	Attempts int `json:"attempts"`
	// Answered counts resolved items that were graded.
	Answered   int                  `json:"answered"`
	Correct    int                  `json:"correct"`
	Ungradable int                  `json:"ungradable"`
	HintsUsed  int                  `json:"hints_used"`
	Streak     int                  `json:"streak"`
	BestStreak int                  `json:"best_streak"`
	ScoreTotal int                  `json:"score_total"`
	ByBand     map[string]BandStats `json:"by_band,omitempty"`
}

// Accuracy returns Correct / Answered, or 0 before any item is answered.
func (s Stats) Accuracy() float64 {
	if s.Answered == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Answered)
}

func (s Stats) clone() Stats {
	out := s
	if s.ByBand != nil {
		out.ByBand = make(map[string]BandStats, len(s.ByBand))
		for k, v := range s.ByBand {
			out.ByBand[k] = v
		}
	}
	return out
}

// Session is a review session. Values returned by the Manager are copies.
type Session struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	Mode         content.Mode  `json:"mode"`
	Status       Status        `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	LastActivity time.Time     `json:"last_activity"`
	PausedAt     time.Time     `json:"paused_at,omitzero"`
	PausedFor    time.Duration `json:"paused_for"`
	EndedAt      time.Time     `json:"ended_at,omitzero"`
	EndReason    string        `json:"end_reason,omitempty"`
	Items        []ItemAttempt `json:"items"`
	CurrentIndex int           `json:"current_index"`
	Stats        Stats         `json:"stats"`
}

// Current returns the item being presented, or nil when none remain.
func (s *Session) Current() *ItemAttempt {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Items) {
		return nil
	}
	return &s.Items[s.CurrentIndex]
}

// Remaining returns the number of items not yet resolved.
func (s *Session) Remaining() int {
	return max(len(s.Items)-s.CurrentIndex, 0)
}

func (s *Session) clone() Session {
	out := *s
	out.Items = append([]ItemAttempt(nil), s.Items...)
	out.Stats = s.Stats.clone()
	return out
}

// counters returns the monotonic counters merged on sync conflicts.
func (s *Session) counters() remote.SessionStats {
	return remote.SessionStats{
		Answered:   s.Stats.Attempts,
		Correct:    s.Stats.Correct,
		Completed:  s.Stats.Answered + s.Stats.Ungradable,
		HintsUsed:  s.Stats.HintsUsed,
		BestStreak: s.Stats.BestStreak,
	}
}

// Outcome is the result of submitting an answer.
type Outcome struct {
	Result answer.Result
	// Score is the awarded score in 0..100 after penalties.
	Score   int
	Attempt int
	// Retry is set when the answer was wrong and the item stays current.
	Retry        bool
	AttemptsLeft int

	// Ungradable is set when the item could not be graded; Reason says why.
	// The item is skipped and its schedule is left untouched.
	Ungradable bool
	Reason     string

	// NextDue and State describe the item's new schedule once resolved.
	NextDue time.Time
	State   string

	// Exhausted is set when no items remain.
	Exhausted bool
}
