package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
)

// RecordKind identifies the mutation a sync record carries.
type RecordKind string

const (
	KindScheduleUpdate  RecordKind = "schedule_update"
	KindAnswer          RecordKind = "answer"
	KindSessionSnapshot RecordKind = "session_snapshot"
)

// Valid reports whether k is a known record kind.
func (k RecordKind) Valid() bool {
	switch k {
	case KindScheduleUpdate, KindAnswer, KindSessionSnapshot:
		return true
	}
	return false
}

// SyncStatus is the lifecycle state of a sync record.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncInFlight SyncStatus = "in_flight"
	SyncDone     SyncStatus = "done"
	SyncDead     SyncStatus = "dead"
)

// SyncRecord is one queued mutation awaiting replay to the remote authority.
// Seq orders records globally; EntityKey groups records touching the same
// logical entity.
type SyncRecord struct {
	ID            string
	Seq           int64
	Kind          RecordKind
	EntityKey     string
	Payload       []byte
	CreatedAt     time.Time
	RetryCount    int
	Status        SyncStatus
	NextAttemptAt time.Time
	LastError     string
	UpdatedAt     time.Time
}

type syncRow struct {
	ID            string `db:"id"`
	Seq           int64  `db:"seq"`
	Kind          string `db:"kind"`
	EntityKey     string `db:"entity_key"`
	Payload       []byte `db:"payload"`
	CreatedAt     int64  `db:"created_at"`
	RetryCount    int    `db:"retry_count"`
	Status        string `db:"status"`
	NextAttemptAt int64  `db:"next_attempt_at"`
	LastError     string `db:"last_error"`
	UpdatedAt     int64  `db:"updated_at"`
}

func (r syncRow) toRecord() SyncRecord {
	return SyncRecord{
		ID:            r.ID,
		Seq:           r.Seq,
		Kind:          RecordKind(r.Kind),
		EntityKey:     r.EntityKey,
		Payload:       r.Payload,
		CreatedAt:     fromNanos(r.CreatedAt),
		RetryCount:    r.RetryCount,
		Status:        SyncStatus(r.Status),
		NextAttemptAt: fromNanos(r.NextAttemptAt),
		LastError:     r.LastError,
		UpdatedAt:     fromNanos(r.UpdatedAt),
	}
}

var syncColumns = []string{
	"id", "seq", "kind", "entity_key", "payload", "created_at",
	"retry_count", "status", "next_attempt_at", "last_error", "updated_at",
}

func toRecords(rows []syncRow) []SyncRecord {
	out := make([]SyncRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toRecord()
	}
	return out
}

// EnqueueSync appends rec to the sync queue as PENDING and returns it with
// its assigned sequence number. Run it in the same InTx as the local write
// it replicates.
func (r *Repo) EnqueueSync(ctx context.Context, rec SyncRecord) (SyncRecord, error) {
	if !rec.Kind.Valid() {
		return SyncRecord{}, fmt.Errorf("enqueue sync: unknown kind %q", rec.Kind)
	}
	seq, err := r.nextSequence(ctx)
	if err != nil {
		return SyncRecord{}, err
	}
	rec.Seq = seq
	rec.Status = SyncPending
	rec.RetryCount = 0
	rec.LastError = ""
	rec.UpdatedAt = rec.CreatedAt

	query, args := builder().Insert(TableSyncRecords).
		Columns(syncColumns...).
		Values(rec.ID, rec.Seq, string(rec.Kind), rec.EntityKey, rec.Payload, nanos(rec.CreatedAt),
			rec.RetryCount, string(rec.Status), nanos(rec.NextAttemptAt), rec.LastError, nanos(rec.UpdatedAt)).
		Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return SyncRecord{}, fmt.Errorf("enqueue sync %s: %w", rec.ID, err)
	}
	return rec, nil
}

// PendingSync returns up to limit PENDING records in sequence order,
// regardless of their next attempt time. A non-positive limit returns all.
func (r *Repo) PendingSync(ctx context.Context, limit int) ([]SyncRecord, error) {
	sel := builder().Select(syncColumns...).
		From(builder().Table(TableSyncRecords)).
		Where(entsql.EQ("status", string(SyncPending))).
		OrderBy("seq")
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()
	var rows []syncRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query pending sync: %w", err)
	}
	return toRecords(rows), nil
}

// ListSync returns the records in the given status in sequence order.
func (r *Repo) ListSync(ctx context.Context, status SyncStatus) ([]SyncRecord, error) {
	query, args := builder().Select(syncColumns...).
		From(builder().Table(TableSyncRecords)).
		Where(entsql.EQ("status", string(status))).
		OrderBy("seq").
		Query()
	var rows []syncRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sync: %w", err)
	}
	return toRecords(rows), nil
}

// GetSync returns the record with the given id.
func (r *Repo) GetSync(ctx context.Context, id string) (SyncRecord, error) {
	query, args := builder().Select(syncColumns...).
		From(builder().Table(TableSyncRecords)).
		Where(entsql.EQ("id", id)).
		Query()
	var row syncRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SyncRecord{}, fmt.Errorf("sync record %s: %w", id, ErrNotFound)
		}
		return SyncRecord{}, fmt.Errorf("get sync: %w", err)
	}
	return row.toRecord(), nil
}

// UpdateSync persists the mutable fields of rec: status, retry count, next
// attempt time and last error.
func (r *Repo) UpdateSync(ctx context.Context, rec SyncRecord, now time.Time) error {
	query, args := builder().Update(TableSyncRecords).
		Set("status", string(rec.Status)).
		Set("retry_count", rec.RetryCount).
		Set("next_attempt_at", nanos(rec.NextAttemptAt)).
		Set("last_error", rec.LastError).
		Set("updated_at", nanos(now)).
		Where(entsql.EQ("id", rec.ID)).
		Query()
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update sync %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sync record %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// DeleteSync removes a record from the queue.
func (r *Repo) DeleteSync(ctx context.Context, id string) error {
	query, args := builder().Delete(TableSyncRecords).
		Where(entsql.EQ("id", id)).
		Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete sync %s: %w", id, err)
	}
	return nil
}

// CountSync returns the number of records in each status.
func (r *Repo) CountSync(ctx context.Context) (map[SyncStatus]int, error) {
	query, args := builder().Select("status", entsql.As(entsql.Count("*"), "n")).
		From(builder().Table(TableSyncRecords)).
		GroupBy("status").
		Query()
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count sync: %w", err)
	}
	out := make(map[SyncStatus]int, len(rows))
	for _, row := range rows {
		out[SyncStatus(row.Status)] = row.N
	}
	return out, nil
}

// ResetInFlight returns records left IN_FLIGHT by an interrupted replay to
// PENDING. Remote application is idempotent, so re-sending them is safe.
func (r *Repo) ResetInFlight(ctx context.Context, now time.Time) (int64, error) {
	query, args := builder().Update(TableSyncRecords).
		Set("status", string(SyncPending)).
		Set("updated_at", nanos(now)).
		Where(entsql.EQ("status", string(SyncInFlight))).
		Query()
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight: %w", err)
	}
	return res.RowsAffected()
}

// RequeueDead moves dead-lettered records back to PENDING with a fresh retry
// budget. With no ids every dead record is requeued.
func (r *Repo) RequeueDead(ctx context.Context, now time.Time, ids ...string) (int64, error) {
	where := entsql.EQ("status", string(SyncDead))
	if len(ids) > 0 {
		where = entsql.And(where, entsql.In("id", anySlice(ids)...))
	}
	query, args := builder().Update(TableSyncRecords).
		Set("status", string(SyncPending)).
		Set("retry_count", 0).
		Set("next_attempt_at", 0).
		Set("last_error", "").
		Set("updated_at", nanos(now)).
		Where(where).
		Query()
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue dead: %w", err)
	}
	return res.RowsAffected()
}

// PurgeDead deletes dead-lettered records. With no ids every dead record is
// deleted.
func (r *Repo) PurgeDead(ctx context.Context, ids ...string) (int64, error) {
	where := entsql.EQ("status", string(SyncDead))
	if len(ids) > 0 {
		where = entsql.And(where, entsql.In("id", anySlice(ids)...))
	}
	query, args := builder().Delete(TableSyncRecords).Where(where).Query()
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge dead: %w", err)
	}
	return res.RowsAffected()
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
