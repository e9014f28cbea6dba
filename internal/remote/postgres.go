package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/sirupsen/logrus"
	"golang.org/x/mod/semver"

	"github.com/abhisek/retain/internal/spacedrep"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS retain_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS applied_records (
	record_id  TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS schedule_states (
	user_id          TEXT NOT NULL,
	item_id          TEXT NOT NULL,
	last_reviewed_at TIMESTAMPTZ NOT NULL,
	state            JSONB NOT NULL,
	PRIMARY KEY (user_id, item_id)
);
CREATE TABLE IF NOT EXISTS answers (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	correct    BOOLEAN NOT NULL,
	score      INTEGER NOT NULL,
	answered_at TIMESTAMPTZ NOT NULL,
	body       JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	snapshot   JSONB NOT NULL
);`

// PostgresConfig configures the Postgres authority.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	LogSQL   bool
}

// Postgres is an Authority backed by a PostgreSQL database. Idempotency is
// enforced by the applied_records table: a record id is inserted in the same
// transaction as the change it carries.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database, creates the schema if needed, and
// verifies the protocol version stored there is compatible with this client.
func NewPostgres(ctx context.Context, cfg PostgresConfig, log logrus.FieldLogger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.LogSQL && log != nil {
		poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger: tracelog.LoggerFunc(func(_ context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
				log.WithFields(logrus.Fields(data)).WithField("pgx_level", lvl.String()).Trace(msg)
			}),
			LogLevel: tracelog.LogLevelTrace,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("create pool: %w", err)}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &UnavailableError{Err: fmt.Errorf("ping db: %w", err)}
	}

	p := &Postgres{pool: pool}
	if err := p.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) init(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := p.pool.Exec(ctx,
		`INSERT INTO retain_meta (key, value) VALUES ('protocol_version', $1) ON CONFLICT (key) DO NOTHING`,
		ProtocolVersion,
	); err != nil {
		return fmt.Errorf("seed protocol version: %w", err)
	}
	var version string
	if err := p.pool.QueryRow(ctx,
		`SELECT value FROM retain_meta WHERE key = 'protocol_version'`,
	).Scan(&version); err != nil {
		return fmt.Errorf("read protocol version: %w", err)
	}
	return CheckProtocol(version)
}

// CheckProtocol reports whether an authority speaking version can accept
// records from this client.
func CheckProtocol(version string) error {
	if !semver.IsValid(version) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrIncompatibleProtocol, version)
	}
	if semver.Major(version) != semver.Major(ProtocolVersion) {
		return fmt.Errorf("%w: authority %s, client %s", ErrIncompatibleProtocol, version, ProtocolVersion)
	}
	return nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return &UnavailableError{Err: err}
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// apply runs fn in a transaction that first claims recordID. A record that
// was already claimed commits nothing and succeeds.
func (p *Postgres) apply(ctx context.Context, recordID, kind string, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO applied_records (record_id, kind) VALUES ($1, $2) ON CONFLICT (record_id) DO NOTHING`,
		recordID, kind,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (p *Postgres) ApplyScheduleUpdate(ctx context.Context, u ScheduleUpdate) error {
	body, err := json.Marshal(u.State)
	if err != nil {
		return &RejectedError{Reason: "encode state", Err: err}
	}
	return p.apply(ctx, u.RecordID, "schedule_update", func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx,
			`SELECT state FROM schedule_states WHERE user_id = $1 AND item_id = $2 FOR UPDATE`,
			u.State.UserID, u.State.ItemID,
		).Scan(&raw)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		default:
			var cur spacedrep.ScheduleState
			if err := json.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("decode stored state: %w", err)
			}
			if cur.LastReviewedAt.After(u.BaseReviewedAt) {
				return &ConflictError{EntityKey: u.EntityKey(), Schedule: &cur}
			}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO schedule_states (user_id, item_id, last_reviewed_at, state)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, item_id) DO UPDATE
			 SET last_reviewed_at = EXCLUDED.last_reviewed_at, state = EXCLUDED.state`,
			u.State.UserID, u.State.ItemID, u.State.LastReviewedAt, body,
		)
		return err
	})
}

func (p *Postgres) ApplyAnswer(ctx context.Context, a Answer) error {
	body, err := json.Marshal(a)
	if err != nil {
		return &RejectedError{Reason: "encode answer", Err: err}
	}
	return p.apply(ctx, a.RecordID, "answer", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO answers (id, session_id, user_id, item_id, correct, score, answered_at, body)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO NOTHING`,
			a.ID, a.SessionID, a.UserID, a.ItemID, a.Correct, a.Score, a.At, body,
		)
		return err
	})
}

func (p *Postgres) ApplySessionSnapshot(ctx context.Context, s SessionSnapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return &RejectedError{Reason: "encode snapshot", Err: err}
	}
	return p.apply(ctx, s.RecordID, "session_snapshot", func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx,
			`SELECT snapshot FROM sessions WHERE id = $1 FOR UPDATE`, s.SessionID,
		).Scan(&raw)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		default:
			var cur SessionSnapshot
			if err := json.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("decode stored snapshot: %w", err)
			}
			if cur.UpdatedAt.After(s.BaseUpdatedAt) {
				return &ConflictError{EntityKey: s.EntityKey(), Session: &cur}
			}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO sessions (id, user_id, updated_at, snapshot)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE
			 SET updated_at = EXCLUDED.updated_at, snapshot = EXCLUDED.snapshot`,
			s.SessionID, s.UserID, s.UpdatedAt, body,
		)
		return err
	})
}

// classify maps database errors onto the authority error taxonomy. Data and
// integrity violations are permanent; everything else is treated as the
// authority being unavailable.
func classify(err error) error {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return err
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "42":
			return &RejectedError{Reason: pgErr.Code, Err: err}
		}
	}
	return &UnavailableError{Err: err}
}

var _ Authority = (*Postgres)(nil)

// pgTimeout bounds the schema setup performed by the factory.
const pgTimeout = 10 * time.Second
