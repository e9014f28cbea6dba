// Package offline keeps local progress and the remote authority in step.
// Every mutation is written to the local store together with a sync record
// in one transaction; a single replay loop later drains the records to the
// authority with retries, a circuit breaker and conflict resolution.
package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/abhisek/retain/internal/events"
	"github.com/abhisek/retain/internal/remote"
	"github.com/abhisek/retain/internal/store"
)

var (
	// ErrCircuitOpen is returned for attempts rejected by the open breaker.
	ErrCircuitOpen = errors.New("offline: circuit open")
	// ErrReplayInProgress is returned when a replay pass is already running.
	ErrReplayInProgress = errors.New("offline: replay in progress")
	// ErrInvalidPayload marks a record whose payload can never be applied.
	ErrInvalidPayload = errors.New("offline: invalid payload")
)

// Batch groups mutations that must be recorded atomically, such as an
// answer together with the schedule change and session snapshot it caused.
type Batch struct {
	Schedules []remote.ScheduleUpdate
	Answers   []remote.Answer
	Sessions  []remote.SessionSnapshot
}

// Empty reports whether the batch carries no mutations.
func (b Batch) Empty() bool {
	return len(b.Schedules) == 0 && len(b.Answers) == 0 && len(b.Sessions) == 0
}

// Status is a point-in-time view of the sync queue for display.
type Status struct {
	Online      bool
	Replaying   bool
	Pending     int
	InFlight    int
	Dead        int
	Breaker     string
	LastSuccess time.Time
	LastError   string
}

// Engine records mutations locally and replays them to the authority.
type Engine struct {
	store *store.Store
	auth  remote.Authority
	cfg   Config
	log   logrus.FieldLogger
	bus   *events.Bus
	now   func() time.Time

	breaker *gobreaker.CircuitBreaker
	schemas *validator

	running atomic.Bool
	online  atomic.Bool
	trigger chan struct{}

	mu          sync.Mutex
	rng         *rand.Rand
	lastSuccess time.Time
	lastError   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for timestamps and retry scheduling.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithBus sets the bus dead-letter events are published on.
func WithBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithJitterSeed seeds the retry jitter.
func WithJitterSeed(seed uint64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// NewEngine creates an engine over st that replays to auth. The engine
// starts online.
func NewEngine(st *store.Store, auth remote.Authority, cfg Config, opts ...Option) (*Engine, error) {
	schemas, err := newValidator()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store:   st,
		auth:    auth,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		schemas: schemas,
		trigger: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.log = l
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-" + auth.Name(),
		MaxRequests: 1,
		Timeout:     e.cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= e.cfg.BreakerThreshold
		},
		// Conflicts and rejections prove the authority is reachable.
		IsSuccessful: func(err error) bool {
			return err == nil || !remote.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
			if to == gobreaker.StateClosed {
				e.Kick()
			}
		},
	})
	e.online.Store(true)
	return e, nil
}

// Commit writes every mutation in b to the local mirror and appends one
// sync record per mutation, all in a single transaction. Record ids are
// assigned here and copied into each payload.
func (e *Engine) Commit(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}
	now := e.now()

	type pending struct {
		rec     store.SyncRecord
		persist func(r *store.Repo) error
	}
	var queued []pending

	for _, u := range b.Schedules {
		u.RecordID = uuid.NewString()
		raw, err := e.schemas.encode(store.KindScheduleUpdate, u)
		if err != nil {
			return err
		}
		state := u.State
		queued = append(queued, pending{
			rec: store.SyncRecord{ID: u.RecordID, Kind: store.KindScheduleUpdate, EntityKey: u.EntityKey(), Payload: raw, CreatedAt: now},
			persist: func(r *store.Repo) error {
				return r.PutScheduleState(ctx, state, now)
			},
		})
	}
	for _, a := range b.Answers {
		a.RecordID = uuid.NewString()
		raw, err := e.schemas.encode(store.KindAnswer, a)
		if err != nil {
			return err
		}
		ans := store.AnswerRecord{
			ID: a.ID, SessionID: a.SessionID, UserID: a.UserID, ItemID: a.ItemID,
			Correct: a.Correct, Score: a.Score, CreatedAt: a.At, Payload: raw,
		}
		queued = append(queued, pending{
			rec: store.SyncRecord{ID: a.RecordID, Kind: store.KindAnswer, EntityKey: a.EntityKey(), Payload: raw, CreatedAt: now},
			persist: func(r *store.Repo) error {
				return r.PutAnswer(ctx, ans)
			},
		})
	}
	for _, s := range b.Sessions {
		s.RecordID = uuid.NewString()
		raw, err := e.schemas.encode(store.KindSessionSnapshot, s)
		if err != nil {
			return err
		}
		sess := sessionRecord(s)
		queued = append(queued, pending{
			rec: store.SyncRecord{ID: s.RecordID, Kind: store.KindSessionSnapshot, EntityKey: s.EntityKey(), Payload: raw, CreatedAt: now},
			persist: func(r *store.Repo) error {
				return r.PutSession(ctx, sess)
			},
		})
	}

	err := e.store.InTx(ctx, func(r *store.Repo) error {
		for _, q := range queued {
			if err := q.persist(r); err != nil {
				return err
			}
			if _, err := r.EnqueueSync(ctx, q.rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	e.Kick()
	return nil
}

func sessionRecord(s remote.SessionSnapshot) store.SessionRecord {
	return store.SessionRecord{
		ID:        s.SessionID,
		UserID:    s.UserID,
		Status:    s.Status,
		StartedAt: s.StartedAt,
		UpdatedAt: s.UpdatedAt,
		Payload:   s.Body,
	}
}

// Kick requests a replay pass from Run without blocking.
func (e *Engine) Kick() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// SetOnline records connectivity. Regaining connectivity requests a replay.
func (e *Engine) SetOnline(online bool) {
	was := e.online.Swap(online)
	if online && !was {
		e.log.Info("connectivity regained")
		e.Kick()
	} else if !online && was {
		e.log.Info("connectivity lost")
	}
}

// CheckConnectivity pings the authority and records the result with
// SetOnline. Only a transient failure counts as offline; an authority that
// answers with any other error is reachable.
func (e *Engine) CheckConnectivity(ctx context.Context) error {
	err := e.auth.Ping(ctx)
	e.SetOnline(err == nil || !remote.IsTransient(err))
	return err
}

// Online reports the last connectivity recorded by SetOnline.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Run serves replay requests from Kick until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.trigger:
			if _, err := e.Replay(ctx); err != nil && !errors.Is(err, ErrReplayInProgress) {
				e.log.WithError(err).Error("replay pass failed")
			}
		}
	}
}

// Status returns the current queue counts and breaker state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	counts, err := e.store.CountSync(ctx)
	if err != nil {
		return Status{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Online:      e.online.Load(),
		Replaying:   e.running.Load(),
		Pending:     counts[store.SyncPending],
		InFlight:    counts[store.SyncInFlight],
		Dead:        counts[store.SyncDead],
		Breaker:     e.breaker.State().String(),
		LastSuccess: e.lastSuccess,
		LastError:   e.lastError,
	}, nil
}

// BreakerState returns the circuit breaker state.
func (e *Engine) BreakerState() gobreaker.State {
	return e.breaker.State()
}

// DeadLetters lists dead-lettered records.
func (e *Engine) DeadLetters(ctx context.Context) ([]store.SyncRecord, error) {
	return e.store.ListSync(ctx, store.SyncDead)
}

// Requeue returns dead-lettered records to the queue with a fresh retry
// budget. With no ids every dead record is requeued.
func (e *Engine) Requeue(ctx context.Context, ids ...string) (int64, error) {
	n, err := e.store.RequeueDead(ctx, e.now(), ids...)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.WithField("count", n).Info("dead-lettered records requeued")
		e.Kick()
	}
	return n, nil
}

// Purge deletes dead-lettered records. With no ids every dead record is
// deleted.
func (e *Engine) Purge(ctx context.Context, ids ...string) (int64, error) {
	n, err := e.store.PurgeDead(ctx, ids...)
	if err != nil {
		return 0, err
	}
	e.log.WithField("count", n).Warn("dead-lettered records purged")
	return n, nil
}

func (e *Engine) jitter(d time.Duration) time.Duration {
	e.mu.Lock()
	r := e.rng.Float64()
	e.mu.Unlock()
	return e.cfg.jittered(d, r)
}
