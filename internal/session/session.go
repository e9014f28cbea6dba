// Package session sequences a bounded list of items for one sitting. It
// grades answers, advances schedules and hands every mutation to the sync
// engine.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/retain/internal/answer"
	"github.com/abhisek/retain/internal/content"
	"github.com/abhisek/retain/internal/events"
	"github.com/abhisek/retain/internal/offline"
	"github.com/abhisek/retain/internal/remote"
	"github.com/abhisek/retain/internal/spacedrep"
	"github.com/abhisek/retain/internal/store"
)

// Grader grades an answer for an item.
type Grader interface {
	Validate(userAnswer string, item content.Item) (answer.Result, error)
}

// StateReader loads the current schedule state of a user and item.
type StateReader interface {
	GetScheduleState(ctx context.Context, userID, itemID string) (spacedrep.ScheduleState, bool, error)
}

// Committer durably records a batch of mutations.
type Committer interface {
	Commit(ctx context.Context, b offline.Batch) error
}

// SessionReader loads the persisted copy of a session.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (store.SessionRecord, error)
}

// Manager owns live sessions. Operations on one session are serialized;
// different sessions proceed in parallel.
type Manager struct {
	grader Grader
	sched  *spacedrep.Scheduler
	states StateReader
	sink   Committer
	cfg    Config
	bus    *events.Bus
	log    logrus.FieldLogger
	now    func() time.Time

	// archive answers for sessions no longer held in memory.
	archive SessionReader

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	// lock is a one-slot semaphore so waiters can give up on ctx.
	lock  chan struct{}
	s     Session
	items []content.Item
	// synced is the UpdatedAt of the last snapshot handed to the sink.
	synced time.Time
}

func (e *entry) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) tryAcquire() bool {
	select {
	case e.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *entry) release() { <-e.lock }

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log }
}

// WithArchive lets the Manager recognise ended sessions after the idle sweep
// has dropped them from memory.
func WithArchive(r SessionReader) Option {
	return func(m *Manager) { m.archive = r }
}

// WithBus sets the bus that receives session events.
func WithBus(bus *events.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// NewManager creates a Manager.
func NewManager(g Grader, sched *spacedrep.Scheduler, states StateReader, sink Committer, cfg Config, opts ...Option) (*Manager, error) {
	if g == nil || sched == nil || states == nil || sink == nil {
		return nil, fmt.Errorf("%w: grader, scheduler, state reader and sink are required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		grader:   g,
		sched:    sched,
		states:   states,
		sink:     sink,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		l := logrus.New()
		l.Out = io.Discard
		m.log = l
	}
	return m, nil
}

// Start opens an ACTIVE session over items, which are presented in the
// given order.
func (m *Manager) Start(ctx context.Context, userID string, items []content.Item, mode content.Mode) (Session, error) {
	if len(items) == 0 {
		return Session{}, ErrEmptySession
	}
	if !mode.Valid() {
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user id is required", ErrInvalidSessionState)
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return Session{}, err
		}
		if seen[it.ID] {
			return Session{}, fmt.Errorf("%w %q: listed twice", content.ErrInvalidItem, it.ID)
		}
		seen[it.ID] = true
		if !it.Supports(mode) {
			return Session{}, fmt.Errorf("%w: item %q does not support %s", ErrInvalidMode, it.ID, mode)
		}
	}

	now := m.now()
	s := Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Mode:         mode,
		Status:       StatusActive,
		StartedAt:    now,
		LastActivity: now,
		Items:        make([]ItemAttempt, len(items)),
	}
	for i, it := range items {
		s.Items[i] = ItemAttempt{ItemID: it.ID, ContentType: it.Type(), Difficulty: it.Difficulty}
	}
	s.Items[0].PresentedAt = now

	e := &entry{lock: make(chan struct{}, 1), items: append([]content.Item(nil), items...)}
	if err := m.persist(ctx, e, s, offline.Batch{}); err != nil {
		return Session{}, err
	}
	e.s = s

	m.mu.Lock()
	m.sessions[s.ID] = e
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"user_id":    userID,
		"items":      len(items),
		"mode":       mode,
	}).Info("session started")
	return s.clone(), nil
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.lock <- struct{}{}
	defer e.release()
	return e.s.clone(), nil
}

// CurrentItem returns the item being presented.
func (m *Manager) CurrentItem(id string) (content.Item, error) {
	e, err := m.lookup(id)
	if err != nil {
		return content.Item{}, err
	}
	e.lock <- struct{}{}
	defer e.release()
	if e.s.Current() == nil {
		return content.Item{}, ErrSessionExhausted
	}
	return e.items[e.s.CurrentIndex], nil
}

// SubmitAnswer grades given for the current item. An answer that resolves
// the item advances its schedule and moves to the next item. confidence is
// the learner's 1..5 self-rating, or 0 when not given.
func (m *Manager) SubmitAnswer(ctx context.Context, id, given string, confidence int) (Outcome, error) {
	var (
		out       Outcome
		published []events.Event
	)
	err := m.mutate(ctx, id, func(e *entry, s *Session, now time.Time) (offline.Batch, error) {
		if s.Status != StatusActive {
			return offline.Batch{}, fmt.Errorf("%w: cannot answer in %s session", ErrInvalidSessionState, s.Status)
		}
		cur := s.Current()
		if cur == nil {
			return offline.Batch{}, ErrSessionExhausted
		}
		item := e.items[s.CurrentIndex]

		res, gerr := m.grader.Validate(given, item)
		if gerr != nil {
			// A grading failure skips the item without touching its schedule.
			m.log.WithFields(logrus.Fields{"session_id": s.ID, "item_id": item.ID}).
				WithError(gerr).Warn("item could not be graded")
			cur.Answer = given
			cur.AnsweredAt = now
			cur.Resolved = true
			cur.Ungradable = true
			s.Stats.Ungradable++
			m.advance(s, now)
			out = Outcome{Ungradable: true, Reason: gerr.Error(), Exhausted: s.Current() == nil}
			return offline.Batch{}, nil
		}

		cur.Attempts++
		cur.Answer = given
		cur.AnsweredAt = now
		cur.ResponseTimeMs = elapsedMs(cur.PresentedAt, now)
		cur.Strategy = res.Strategy
		score := m.score(res, cur)

		s.Stats.Attempts++
		ans := remote.Answer{
			ID:             uuid.NewString(),
			SessionID:      s.ID,
			UserID:         s.UserID,
			ItemID:         item.ID,
			Given:          given,
			Correct:        res.Correct,
			Score:          score,
			Attempt:        cur.Attempts,
			HintsUsed:      cur.HintsUsed,
			ResponseTimeMs: cur.ResponseTimeMs,
			Strategy:       string(res.Strategy),
			At:             now,
		}
		batch := offline.Batch{Answers: []remote.Answer{ans}}
		out = Outcome{Result: res, Score: score, Attempt: cur.Attempts}
		published = []events.Event{events.AnswerGraded{
			SessionID: s.ID,
			UserID:    s.UserID,
			ItemID:    item.ID,
			Correct:   res.Correct,
			Score:     score,
			Attempt:   cur.Attempts,
			At:        now,
		}}

		if !res.Correct && cur.Attempts < m.cfg.MaxAttempts {
			out.Retry = true
			out.AttemptsLeft = m.cfg.MaxAttempts - cur.Attempts
			return batch, nil
		}

		prev, found, err := m.states.GetScheduleState(ctx, s.UserID, item.ID)
		if err != nil {
			return offline.Batch{}, fmt.Errorf("load schedule for %s: %w", item.ID, err)
		}
		if !found {
			prev = spacedrep.NewState(s.UserID, item.ID)
		}
		next, err := m.sched.Advance(prev, spacedrep.Response{
			// Needing a retry counts as a lapse for scheduling.
			Correct:        res.Correct && cur.Attempts == 1,
			ResponseTimeMs: cur.ResponseTimeMs,
			Confidence:     confidence,
			At:             now,
		})
		if err != nil {
			return offline.Batch{}, err
		}
		batch.Schedules = []remote.ScheduleUpdate{{State: next, BaseReviewedAt: prev.LastReviewedAt}}

		cur.Resolved = true
		cur.Correct = res.Correct
		cur.Score = score
		m.record(s, item, res.Correct, score)
		m.advance(s, now)

		out.NextDue = next.NextDue
		out.State = string(next.State)
		out.Exhausted = s.Current() == nil
		published = append(published, events.ItemScheduled{
			UserID:  s.UserID,
			ItemID:  item.ID,
			State:   string(next.State),
			NextDue: next.NextDue,
			Leech:   next.Leech,
		})
		return batch, nil
	})
	if err != nil {
		return Outcome{}, err
	}

	for _, ev := range published {
		m.bus.Publish(ev)
	}
	return out, nil
}

// score turns a grading result into points: the validator score scaled to
// 100, less penalties for hints and extra attempts. A wrong answer keeps the
// partial credit of its similarity.
func (m *Manager) score(res answer.Result, cur *ItemAttempt) int {
	pts := int(math.Round(res.Score * 100))
	pts -= cur.HintsUsed * m.cfg.HintPenalty
	pts -= (cur.Attempts - 1) * m.cfg.AttemptPenalty
	return min(max(pts, 0), 100)
}

func (m *Manager) record(s *Session, item content.Item, correct bool, score int) {
	st := &s.Stats
	st.Answered++
	st.ScoreTotal += score
	if st.ByBand == nil {
		st.ByBand = make(map[string]BandStats)
	}
	b := st.ByBand[item.Band()]
	b.Answered++
	if correct {
		st.Correct++
		st.Streak++
		st.BestStreak = max(st.BestStreak, st.Streak)
		b.Correct++
	} else {
		st.Streak = 0
	}
	st.ByBand[item.Band()] = b
}

func (m *Manager) advance(s *Session, now time.Time) {
	s.CurrentIndex++
	if cur := s.Current(); cur != nil {
		cur.PresentedAt = now
	}
}

// Hint reveals part of the current item's answer. Level 1 shows the first
// letter; each further level shows one more. Hints cost points but never
// touch the schedule.
func (m *Manager) Hint(ctx context.Context, id string, level int) (string, error) {
	var hint string
	err := m.mutate(ctx, id, func(e *entry, s *Session, _ time.Time) (offline.Batch, error) {
		if s.Status != StatusActive {
			return offline.Batch{}, fmt.Errorf("%w: cannot hint in %s session", ErrInvalidSessionState, s.Status)
		}
		cur := s.Current()
		if cur == nil {
			return offline.Batch{}, ErrSessionExhausted
		}
		cur.HintsUsed++
		s.Stats.HintsUsed++
		hint = Reveal(e.items[s.CurrentIndex].Answer, level)
		return offline.Batch{}, nil
	})
	return hint, err
}

// Reveal masks answer, leaving the first level letters visible. Spaces and
// punctuation are always shown.
func Reveal(answer string, level int) string {
	level = max(level, 1)
	var b strings.Builder
	shown := 0
	for _, r := range answer {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			b.WriteRune(r)
		case shown < level:
			b.WriteRune(r)
			shown++
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Pause suspends an ACTIVE session.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.mutate(ctx, id, func(_ *entry, s *Session, now time.Time) (offline.Batch, error) {
		if s.Status != StatusActive {
			return offline.Batch{}, fmt.Errorf("%w: cannot pause %s session", ErrInvalidSessionState, s.Status)
		}
		s.Status = StatusPaused
		s.PausedAt = now
		return offline.Batch{}, nil
	})
}

// Resume reactivates a PAUSED session. Time spent paused does not count
// towards the current item's response time.
func (m *Manager) Resume(ctx context.Context, id string) error {
	return m.mutate(ctx, id, func(_ *entry, s *Session, now time.Time) (offline.Batch, error) {
		if s.Status != StatusPaused {
			return offline.Batch{}, fmt.Errorf("%w: cannot resume %s session", ErrInvalidSessionState, s.Status)
		}
		paused := now.Sub(s.PausedAt)
		s.PausedFor += paused
		if cur := s.Current(); cur != nil && !cur.PresentedAt.IsZero() {
			cur.PresentedAt = cur.PresentedAt.Add(paused)
		}
		s.Status = StatusActive
		s.PausedAt = time.Time{}
		return offline.Batch{}, nil
	})
}

// Complete finishes the session. Unless early is set every item must have
// been resolved.
func (m *Manager) Complete(ctx context.Context, id string, early bool) (Summary, error) {
	err := m.mutate(ctx, id, func(_ *entry, s *Session, now time.Time) (offline.Batch, error) {
		if s.Status != StatusActive && s.Status != StatusPaused {
			return offline.Batch{}, fmt.Errorf("%w: cannot complete %s session", ErrInvalidSessionState, s.Status)
		}
		if n := s.Remaining(); n > 0 && !early {
			return offline.Batch{}, fmt.Errorf("%w: %d unanswered", ErrItemsRemaining, n)
		}
		m.end(s, StatusCompleted, now, "")
		return offline.Batch{}, nil
	})
	if err != nil {
		return Summary{}, err
	}

	s, err := m.Get(id)
	if err != nil {
		return Summary{}, err
	}
	sum := BuildSummary(s)
	m.bus.Publish(events.SessionCompleted{
		SessionID:  s.ID,
		UserID:     s.UserID,
		Answered:   sum.Answered,
		Correct:    sum.Correct,
		Accuracy:   sum.Accuracy,
		BestStreak: sum.BestStreak,
		At:         s.EndedAt,
	})
	m.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"answered":   sum.Answered,
		"accuracy":   sum.Accuracy,
	}).Info("session completed")
	return sum, nil
}

// Abandon cancels the session. Answers already recorded are kept and still
// replicate; unanswered items are dropped.
func (m *Manager) Abandon(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "cancelled"
	}
	return m.mutate(ctx, id, func(_ *entry, s *Session, now time.Time) (offline.Batch, error) {
		if s.Status != StatusActive && s.Status != StatusPaused {
			return offline.Batch{}, fmt.Errorf("%w: cannot abandon %s session", ErrInvalidSessionState, s.Status)
		}
		m.end(s, StatusAbandoned, now, reason)
		return offline.Batch{}, nil
	})
}

func (m *Manager) end(s *Session, status Status, now time.Time, reason string) {
	if s.Status == StatusPaused {
		s.PausedFor += now.Sub(s.PausedAt)
		s.PausedAt = time.Time{}
	}
	s.Status = status
	s.EndedAt = now
	s.EndReason = reason
}

// SweepIdle abandons active sessions idle for longer than the idle timeout and
// forgets terminal sessions past it. Sessions busy with another operation
// are left for the next sweep. It returns the number abandoned.
func (m *Manager) SweepIdle(ctx context.Context) (int, error) {
	if m.cfg.IdleTimeout == 0 {
		return 0, nil
	}
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var errs []error
	abandoned := 0
	for _, id := range ids {
		e, err := m.lookup(id)
		if err != nil {
			continue
		}
		if !e.tryAcquire() {
			continue
		}
		now := m.now()
		if e.s.Status.Terminal() {
			stale := now.Sub(e.s.LastActivity) > m.cfg.IdleTimeout
			e.release()
			if stale {
				m.mu.Lock()
				delete(m.sessions, id)
				m.mu.Unlock()
			}
			continue
		}
		expired, err := m.expireLocked(ctx, e, now)
		e.release()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if expired {
			abandoned++
		}
	}
	return abandoned, errors.Join(errs...)
}

// expireLocked abandons an ACTIVE session idle for too long. Paused
// sessions never expire. The caller holds the entry lock.
func (m *Manager) expireLocked(ctx context.Context, e *entry, now time.Time) (bool, error) {
	if m.cfg.IdleTimeout == 0 || e.s.Status != StatusActive || now.Sub(e.s.LastActivity) <= m.cfg.IdleTimeout {
		return false, nil
	}
	next := e.s.clone()
	m.end(&next, StatusAbandoned, now, "idle")
	if err := m.persist(ctx, e, next, offline.Batch{}); err != nil {
		return false, err
	}
	e.s = next
	m.log.WithField("session_id", next.ID).Info("idle session abandoned")
	m.bus.Publish(events.SessionAbandoned{
		SessionID: next.ID,
		UserID:    next.UserID,
		Answered:  next.Stats.Answered,
		Reason:    "idle",
		At:        now,
	})
	return true, nil
}

type mutation func(e *entry, s *Session, now time.Time) (offline.Batch, error)

// mutate applies fn to a copy of the session and commits the copy together
// with a snapshot. The live session changes only if the commit succeeds.
func (m *Manager) mutate(ctx context.Context, id string, fn mutation) error {
	e, err := m.lookup(id)
	if errors.Is(err, ErrSessionNotFound) {
		return m.archived(ctx, id, err)
	}
	if err != nil {
		return err
	}
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	now := m.now()
	if expired, err := m.expireLocked(ctx, e, now); err != nil {
		return err
	} else if expired {
		return fmt.Errorf("%w: session expired after %s idle", ErrInvalidSessionState, m.cfg.IdleTimeout)
	}

	prevStatus := e.s.Status
	next := e.s.clone()
	batch, err := fn(e, &next, now)
	if err != nil {
		return err
	}
	next.LastActivity = now
	if err := m.persist(ctx, e, next, batch); err != nil {
		return err
	}
	e.s = next

	if next.Status == StatusAbandoned && prevStatus != StatusAbandoned {
		m.log.WithFields(logrus.Fields{"session_id": next.ID, "reason": next.EndReason}).Info("session abandoned")
		m.bus.Publish(events.SessionAbandoned{
			SessionID: next.ID,
			UserID:    next.UserID,
			Answered:  next.Stats.Answered,
			Reason:    next.EndReason,
			At:        now,
		})
	}
	return nil
}

// persist commits batch plus a snapshot of s.
func (m *Manager) persist(ctx context.Context, e *entry, s Session, batch offline.Batch) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	updated := s.LastActivity
	if !s.EndedAt.IsZero() {
		updated = s.EndedAt
	}
	batch.Sessions = append(batch.Sessions, remote.SessionSnapshot{
		SessionID:     s.ID,
		UserID:        s.UserID,
		Status:        string(s.Status),
		StartedAt:     s.StartedAt,
		UpdatedAt:     updated,
		BaseUpdatedAt: e.synced,
		Stats:         s.counters(),
		Body:          body,
	})
	if err := m.sink.Commit(ctx, batch); err != nil {
		return fmt.Errorf("commit session %s: %w", s.ID, err)
	}
	e.synced = updated
	return nil
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// archived explains a session missing from memory. One that ended before
// it was swept is still terminal; anything else stays not found.
func (m *Manager) archived(ctx context.Context, id string, miss error) error {
	if m.archive == nil {
		return miss
	}
	rec, err := m.archive.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return miss
	}
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	if st := Status(rec.Status); st.Terminal() {
		return fmt.Errorf("%w: session %s is %s", ErrInvalidSessionState, id, st)
	}
	return miss
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func elapsedMs(from, to time.Time) uint32 {
	if from.IsZero() || !to.After(from) {
		return 0
	}
	ms := to.Sub(from).Milliseconds()
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}
