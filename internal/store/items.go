package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/abhisek/retain/internal/content"
)

var itemColumns = []string{
	"id", "content_type", "prompt", "answer", "alternatives",
	"difficulty", "tags", "modes", "preferred_mode", "updated_at",
}

type itemRow struct {
	ID            string  `db:"id"`
	ContentType   string  `db:"content_type"`
	Prompt        string  `db:"prompt"`
	Answer        string  `db:"answer"`
	Alternatives  string  `db:"alternatives"`
	Difficulty    float64 `db:"difficulty"`
	Tags          string  `db:"tags"`
	Modes         string  `db:"modes"`
	PreferredMode string  `db:"preferred_mode"`
	UpdatedAt     int64   `db:"updated_at"`
}

func (r itemRow) toItem() (content.Item, error) {
	it := content.Item{
		ID:            r.ID,
		ContentType:   r.ContentType,
		Prompt:        r.Prompt,
		Answer:        r.Answer,
		Difficulty:    r.Difficulty,
		PreferredMode: content.Mode(r.PreferredMode),
	}
	var err error
	if it.Alternatives, err = unmarshalList[string](r.Alternatives); err != nil {
		return content.Item{}, fmt.Errorf("item %s alternatives: %w", r.ID, err)
	}
	if it.Tags, err = unmarshalList[string](r.Tags); err != nil {
		return content.Item{}, fmt.Errorf("item %s tags: %w", r.ID, err)
	}
	if it.Modes, err = unmarshalList[content.Mode](r.Modes); err != nil {
		return content.Item{}, fmt.Errorf("item %s modes: %w", r.ID, err)
	}
	return it, nil
}

// UpsertItems inserts items or refreshes their metadata.
func (r *Repo) UpsertItems(ctx context.Context, items []content.Item, now time.Time) error {
	if len(items) == 0 {
		return nil
	}
	ins := builder().Insert(TableItems).Columns(itemColumns...)
	for _, it := range items {
		alts, err := marshalList(it.Alternatives)
		if err != nil {
			return fmt.Errorf("marshal alternatives: %w", err)
		}
		tags, err := marshalList(it.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		modes, err := marshalList(it.Modes)
		if err != nil {
			return fmt.Errorf("marshal modes: %w", err)
		}
		ins.Values(it.ID, it.ContentType, it.Prompt, it.Answer, alts,
			it.Difficulty, tags, modes, string(it.PreferredMode), nanos(now))
	}
	query, args := ins.OnConflict(
		entsql.ConflictColumns("id"),
		entsql.ResolveWithNewValues(),
	).Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert items: %w", err)
	}
	return nil
}

// GetItem returns the item with the given id.
func (r *Repo) GetItem(ctx context.Context, id string) (content.Item, error) {
	query, args := builder().Select(itemColumns...).
		From(builder().Table(TableItems)).
		Where(entsql.EQ("id", id)).
		Query()
	var row itemRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return content.Item{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		return content.Item{}, fmt.Errorf("get item: %w", err)
	}
	return row.toItem()
}

// GetItems returns the items with the given ids, keyed by id. Missing ids
// are left out.
func (r *Repo) GetItems(ctx context.Context, ids []string) (map[string]content.Item, error) {
	out := make(map[string]content.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args := builder().Select(itemColumns...).
		From(builder().Table(TableItems)).
		Where(entsql.In("id", anySlice(ids)...)).
		Query()
	var rows []itemRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	for _, row := range rows {
		it, err := row.toItem()
		if err != nil {
			return nil, err
		}
		out[it.ID] = it
	}
	return out, nil
}

// CountItems returns the number of stored items.
func (r *Repo) CountItems(ctx context.Context) (int, error) {
	query, args := builder().Select(entsql.Count("*")).
		From(builder().Table(TableItems)).
		Query()
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}
