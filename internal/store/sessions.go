package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
)

// SessionRecord is the local mirror of a review session. Payload is the
// serialised session.
type SessionRecord struct {
	ID        string
	UserID    string
	Status    string
	StartedAt time.Time
	UpdatedAt time.Time
	Payload   json.RawMessage
}

type sessionRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Status    string `db:"status"`
	StartedAt int64  `db:"started_at"`
	UpdatedAt int64  `db:"updated_at"`
	Payload   string `db:"payload"`
}

func (r sessionRow) toRecord() SessionRecord {
	return SessionRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		Status:    r.Status,
		StartedAt: fromNanos(r.StartedAt),
		UpdatedAt: fromNanos(r.UpdatedAt),
		Payload:   json.RawMessage(r.Payload),
	}
}

var sessionColumns = []string{"id", "user_id", "status", "started_at", "updated_at", "payload"}

// PutSession inserts or replaces the mirror of a session.
func (r *Repo) PutSession(ctx context.Context, rec SessionRecord) error {
	query, args := builder().Insert(TableSessions).
		Columns(sessionColumns...).
		Values(rec.ID, rec.UserID, rec.Status, nanos(rec.StartedAt), nanos(rec.UpdatedAt), string(rec.Payload)).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("put session %s: %w", rec.ID, err)
	}
	return nil
}

// GetSession returns the session with the given id.
func (r *Repo) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	query, args := builder().Select(sessionColumns...).
		From(builder().Table(TableSessions)).
		Where(entsql.EQ("id", id)).
		Query()
	var row sessionRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return row.toRecord(), nil
}

// LatestSession returns the user's most recently updated session, or nil if
// none exist.
func (r *Repo) LatestSession(ctx context.Context, userID string) (*SessionRecord, error) {
	query, args := builder().Select(sessionColumns...).
		From(builder().Table(TableSessions)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("updated_at")).
		Limit(1).
		Query()
	var row sessionRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest session: %w", err)
	}
	rec := row.toRecord()
	return &rec, nil
}

// PruneSessions deletes all but the keep most recently updated sessions in
// the given terminal statuses.
func (r *Repo) PruneSessions(ctx context.Context, keep int, statuses ...string) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	sts := anySlice(statuses)

	// Find the threshold: the keep-th most recent matching session.
	query, args := builder().Select("updated_at").
		From(builder().Table(TableSessions)).
		Where(entsql.In("status", sts...)).
		OrderBy(entsql.Desc("updated_at")).
		Offset(keep).
		Limit(1).
		Query()
	var threshold int64
	if err := sqlx.GetContext(ctx, r.q, &threshold, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil // fewer than keep sessions exist
		}
		return 0, fmt.Errorf("query sessions for prune: %w", err)
	}

	query, args = builder().Delete(TableSessions).
		Where(entsql.And(entsql.In("status", sts...), entsql.LTE("updated_at", threshold))).
		Query()
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}
