package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/abhisek/retain/internal/queue"
	"github.com/abhisek/retain/internal/spacedrep"
)

type candidateRow struct {
	itemRow
	SUserID            *string  `db:"s_user_id"`
	State              *string  `db:"s_state"`
	Ease               *float64 `db:"s_ease"`
	IntervalDays       *float64 `db:"s_interval_days"`
	NextDue            *int64   `db:"s_next_due"`
	LastReviewedAt     *int64   `db:"s_last_reviewed_at"`
	ConsecutiveCorrect *int     `db:"s_consecutive_correct"`
	TotalReviews       *int     `db:"s_total_reviews"`
	Lapses             *int     `db:"s_lapses"`
	SuccessRate        *float64 `db:"s_success_rate"`
	Leech              *bool    `db:"s_leech"`
}

func (r candidateRow) toCandidate(userID string) (queue.Candidate, error) {
	it, err := r.itemRow.toItem()
	if err != nil {
		return queue.Candidate{}, err
	}
	c := queue.Candidate{Item: it, State: spacedrep.NewState(userID, it.ID)}
	if r.SUserID == nil {
		return c, nil
	}
	c.State = scheduleRow{
		UserID:             userID,
		ItemID:             it.ID,
		State:              *r.State,
		Ease:               *r.Ease,
		IntervalDays:       *r.IntervalDays,
		NextDue:            *r.NextDue,
		LastReviewedAt:     *r.LastReviewedAt,
		ConsecutiveCorrect: *r.ConsecutiveCorrect,
		TotalReviews:       *r.TotalReviews,
		Lapses:             *r.Lapses,
		SuccessRate:        *r.SuccessRate,
		Leech:              *r.Leech,
	}.toState()
	return c, nil
}

// Candidates returns every item eligible for review by userID at now: items
// the user has never seen, items still NEW, and items whose next due time
// has passed. Items listed in include are returned regardless of
// eligibility. Callers wanting a consistent snapshot run this inside ReadTx.
func (r *Repo) Candidates(ctx context.Context, userID string, now time.Time, include ...string) ([]queue.Candidate, error) {
	b := builder()
	items := b.Table(TableItems).As("i")
	states := b.Table(TableScheduleStates).As("s")

	cols := make([]string, 0, len(itemColumns)+11)
	for _, c := range itemColumns {
		cols = append(cols, entsql.As(items.C(c), c))
	}
	for _, c := range scheduleColumns[2:12] {
		cols = append(cols, entsql.As(states.C(c), "s_"+c))
	}
	cols = append(cols, entsql.As(states.C("user_id"), "s_user_id"))

	eligible := []*entsql.Predicate{
		entsql.IsNull(states.C("user_id")),
		entsql.EQ(states.C("state"), string(spacedrep.StateNew)),
		entsql.LTE(states.C("next_due"), nanos(now)),
	}
	if len(include) > 0 {
		eligible = append(eligible, entsql.In(items.C("id"), anySlice(include)...))
	}

	query, args := b.Select(cols...).
		From(items).
		LeftJoin(states).
		OnP(entsql.And(
			entsql.ColumnsEQ(items.C("id"), states.C("item_id")),
			entsql.EQ(states.C("user_id"), userID),
		)).
		Where(entsql.Or(eligible...)).
		OrderBy(items.C("id")).
		Query()

	var rows []candidateRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	out := make([]queue.Candidate, 0, len(rows))
	for _, row := range rows {
		c, err := row.toCandidate(userID)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
