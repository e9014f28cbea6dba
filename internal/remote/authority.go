// Package remote defines the contract with the remote authority that holds
// the canonical copy of a learner's progress, and the authorities that
// implement it.
package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/abhisek/retain/internal/spacedrep"
)

// ProtocolVersion is the version of the record format this client writes.
// Authorities reject clients whose major version differs from theirs.
const ProtocolVersion = "v1.2.0"

// Authority applies replicated mutations. Every method must be idempotent
// for a given RecordID: replaying a record that was already applied is a
// successful no-op.
type Authority interface {
	ApplyScheduleUpdate(ctx context.Context, u ScheduleUpdate) error
	ApplyAnswer(ctx context.Context, a Answer) error
	ApplySessionSnapshot(ctx context.Context, s SessionSnapshot) error

	// Ping checks that the authority is reachable without applying anything.
	Ping(ctx context.Context) error

	// Name identifies the authority in logs.
	Name() string

	Close() error
}

// ScheduleUpdate replicates a new schedule state. BaseReviewedAt is the
// LastReviewedAt of the state the local change was computed from; the
// authority reports a conflict when its copy is newer than that.
type ScheduleUpdate struct {
	RecordID       string                  `json:"record_id"`
	State          spacedrep.ScheduleState `json:"state"`
	BaseReviewedAt time.Time               `json:"base_reviewed_at"`
}

// EntityKey returns the logical entity the update touches.
func (u ScheduleUpdate) EntityKey() string {
	return "schedule:" + spacedrep.Key(u.State.UserID, u.State.ItemID)
}

// Answer replicates one graded answer. Answers are append-only.
type Answer struct {
	RecordID       string    `json:"record_id"`
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	ItemID         string    `json:"item_id"`
	Given          string    `json:"given"`
	Correct        bool      `json:"correct"`
	Score          int       `json:"score"`
	Attempt        int       `json:"attempt"`
	HintsUsed      int       `json:"hints_used"`
	ResponseTimeMs uint32    `json:"response_time_ms"`
	Strategy       string    `json:"strategy"`
	At             time.Time `json:"at"`
}

// EntityKey returns the logical entity the answer touches.
func (a Answer) EntityKey() string {
	return "answer:" + a.ID
}

// SessionStats are the monotonic counters of a session. When two copies of
// a session disagree each counter takes the larger value.
type SessionStats struct {
	Answered   int `json:"answered"`
	Correct    int `json:"correct"`
	Completed  int `json:"completed"`
	HintsUsed  int `json:"hints_used"`
	BestStreak int `json:"best_streak"`
}

// Max returns the field-wise maximum of s and o.
func (s SessionStats) Max(o SessionStats) SessionStats {
	return SessionStats{
		Answered:   max(s.Answered, o.Answered),
		Correct:    max(s.Correct, o.Correct),
		Completed:  max(s.Completed, o.Completed),
		HintsUsed:  max(s.HintsUsed, o.HintsUsed),
		BestStreak: max(s.BestStreak, o.BestStreak),
	}
}

// SessionSnapshot replicates the state of a review session. BaseUpdatedAt is
// the UpdatedAt of the last snapshot this device saw.
type SessionSnapshot struct {
	RecordID      string          `json:"record_id"`
	SessionID     string          `json:"session_id"`
	UserID        string          `json:"user_id"`
	Status        string          `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	BaseUpdatedAt time.Time       `json:"base_updated_at"`
	Stats         SessionStats    `json:"stats"`
	Body          json.RawMessage `json:"body,omitempty"`
}

// EntityKey returns the logical entity the snapshot touches.
func (s SessionSnapshot) EntityKey() string {
	return "session:" + s.SessionID
}
