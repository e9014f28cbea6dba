package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/abhisek/retain/internal/spacedrep"
)

var scheduleColumns = []string{
	"user_id", "item_id", "state", "ease", "interval_days", "next_due",
	"last_reviewed_at", "consecutive_correct", "total_reviews", "lapses",
	"success_rate", "leech", "updated_at",
}

type scheduleRow struct {
	UserID             string  `db:"user_id"`
	ItemID             string  `db:"item_id"`
	State              string  `db:"state"`
	Ease               float64 `db:"ease"`
	IntervalDays       float64 `db:"interval_days"`
	NextDue            int64   `db:"next_due"`
	LastReviewedAt     int64   `db:"last_reviewed_at"`
	ConsecutiveCorrect int     `db:"consecutive_correct"`
	TotalReviews       int     `db:"total_reviews"`
	Lapses             int     `db:"lapses"`
	SuccessRate        float64 `db:"success_rate"`
	Leech              bool    `db:"leech"`
	UpdatedAt          int64   `db:"updated_at"`
}

func (r scheduleRow) toState() spacedrep.ScheduleState {
	return spacedrep.ScheduleState{
		UserID:             r.UserID,
		ItemID:             r.ItemID,
		State:              spacedrep.LearningState(r.State),
		Ease:               r.Ease,
		IntervalDays:       r.IntervalDays,
		NextDue:            fromNanos(r.NextDue),
		LastReviewedAt:     fromNanos(r.LastReviewedAt),
		ConsecutiveCorrect: r.ConsecutiveCorrect,
		TotalReviews:       r.TotalReviews,
		Lapses:             r.Lapses,
		SuccessRate:        r.SuccessRate,
		Leech:              r.Leech,
	}
}

// PutScheduleState writes the local mirror of a schedule state.
func (r *Repo) PutScheduleState(ctx context.Context, st spacedrep.ScheduleState, now time.Time) error {
	query, args := builder().Insert(TableScheduleStates).
		Columns(scheduleColumns...).
		Values(st.UserID, st.ItemID, string(st.State), st.Ease, st.IntervalDays,
			nanos(st.NextDue), nanos(st.LastReviewedAt), st.ConsecutiveCorrect,
			st.TotalReviews, st.Lapses, st.SuccessRate, st.Leech, nanos(now)).
		OnConflict(
			entsql.ConflictColumns("user_id", "item_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("put schedule state %s: %w", st.Key(), err)
	}
	return nil
}

// GetScheduleState returns the state for (user, item). A pair that has never
// been reviewed yields a fresh NEW state and found=false.
func (r *Repo) GetScheduleState(ctx context.Context, userID, itemID string) (st spacedrep.ScheduleState, found bool, err error) {
	query, args := builder().Select(scheduleColumns...).
		From(builder().Table(TableScheduleStates)).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("item_id", itemID))).
		Query()
	var row scheduleRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spacedrep.NewState(userID, itemID), false, nil
		}
		return spacedrep.ScheduleState{}, false, fmt.Errorf("get schedule state: %w", err)
	}
	return row.toState(), true, nil
}

// ListScheduleStates returns every state for a user ordered by due date.
func (r *Repo) ListScheduleStates(ctx context.Context, userID string) ([]spacedrep.ScheduleState, error) {
	query, args := builder().Select(scheduleColumns...).
		From(builder().Table(TableScheduleStates)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy("next_due", "item_id").
		Query()
	var rows []scheduleRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list schedule states: %w", err)
	}
	out := make([]spacedrep.ScheduleState, len(rows))
	for i, row := range rows {
		out[i] = row.toState()
	}
	return out, nil
}

// StateCounts returns how many of the user's items are in each learning
// state. Items without a stored state count as new.
func (r *Repo) StateCounts(ctx context.Context, userID string) (map[spacedrep.LearningState]int, error) {
	query, args := builder().Select("state", entsql.As(entsql.Count("*"), "n")).
		From(builder().Table(TableScheduleStates)).
		Where(entsql.EQ("user_id", userID)).
		GroupBy("state").
		Query()
	var rows []struct {
		State string `db:"state"`
		N     int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count states: %w", err)
	}
	out := make(map[spacedrep.LearningState]int)
	seen := 0
	for _, row := range rows {
		out[spacedrep.LearningState(row.State)] += row.N
		seen += row.N
	}
	total, err := r.CountItems(ctx)
	if err != nil {
		return nil, err
	}
	if unseen := total - seen; unseen > 0 {
		out[spacedrep.StateNew] += unseen
	}
	return out, nil
}
