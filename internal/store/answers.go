package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
)

// AnswerRecord is the local mirror of one graded answer.
type AnswerRecord struct {
	ID        string
	SessionID string
	UserID    string
	ItemID    string
	Correct   bool
	Score     int
	CreatedAt time.Time
	Payload   json.RawMessage
}

type answerRow struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	UserID    string `db:"user_id"`
	ItemID    string `db:"item_id"`
	Correct   bool   `db:"correct"`
	Score     int    `db:"score"`
	CreatedAt int64  `db:"created_at"`
	Payload   string `db:"payload"`
}

var answerColumns = []string{"id", "session_id", "user_id", "item_id", "correct", "score", "created_at", "payload"}

// PutAnswer records an answer. Answers are append-only: writing an id twice
// keeps the first copy.
func (r *Repo) PutAnswer(ctx context.Context, rec AnswerRecord) error {
	query, args := builder().Insert(TableAnswers).
		Columns(answerColumns...).
		Values(rec.ID, rec.SessionID, rec.UserID, rec.ItemID, rec.Correct, rec.Score,
			nanos(rec.CreatedAt), string(rec.Payload)).
		OnConflict(entsql.DoNothing()).
		Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("put answer %s: %w", rec.ID, err)
	}
	return nil
}

// SessionAnswers returns a session's answers in the order they were given.
func (r *Repo) SessionAnswers(ctx context.Context, sessionID string) ([]AnswerRecord, error) {
	query, args := builder().Select(answerColumns...).
		From(builder().Table(TableAnswers)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("created_at", "id").
		Query()
	var rows []answerRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list session answers: %w", err)
	}
	out := make([]AnswerRecord, len(rows))
	for i, row := range rows {
		out[i] = AnswerRecord{
			ID:        row.ID,
			SessionID: row.SessionID,
			UserID:    row.UserID,
			ItemID:    row.ItemID,
			Correct:   row.Correct,
			Score:     row.Score,
			CreatedAt: fromNanos(row.CreatedAt),
			Payload:   json.RawMessage(row.Payload),
		}
	}
	return out, nil
}

// CountAnswersSince returns how many distinct items the user has answered
// since the given time. Used as the consumed count for daily limits.
func (r *Repo) CountAnswersSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query, args := builder().Select("COUNT(DISTINCT `item_id`)").
		From(builder().Table(TableAnswers)).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.GTE("created_at", nanos(since)))).
		Query()
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}
