package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// The global sequence assigns every sync record a strictly increasing
// number. Replay drains records in sequence order, so FIFO holds across
// record kinds and across process restarts.
//
// The increment is raw SQL because the ent builder has no atomic
// read-and-increment; run inside a Repo transaction it is atomic with the
// insert that consumes the number.

func (r *Repo) seedSequence(ctx context.Context) error {
	query, args := builder().Insert(TableGlobalSequence).
		Columns("id", "next_val").
		Values(1, 1).
		OnConflict(entsql.DoNothing()).
		Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	return nil
}

// nextSequence atomically returns the next sequence number and increments
// the counter.
func (r *Repo) nextSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.q.QueryRowxContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
