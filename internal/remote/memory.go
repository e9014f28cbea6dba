package remote

import (
	"context"
	"sync"

	"github.com/abhisek/retain/internal/spacedrep"
)

// Memory is an in-process authority. It keeps the same idempotency and
// conflict rules as the Postgres authority and backs tests and dry runs.
type Memory struct {
	mu       sync.RWMutex
	applied  map[string]struct{}
	states   map[string]spacedrep.ScheduleState
	answers  map[string]Answer
	order    []string
	sessions map[string]SessionSnapshot
}

// NewMemory creates an empty in-memory authority.
func NewMemory() *Memory {
	return &Memory{
		applied:  make(map[string]struct{}),
		states:   make(map[string]spacedrep.ScheduleState),
		answers:  make(map[string]Answer),
		sessions: make(map[string]SessionSnapshot),
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Close() error { return nil }

func (m *Memory) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &UnavailableError{Err: err}
	}
	return nil
}

func (m *Memory) seen(recordID string) bool {
	_, ok := m.applied[recordID]
	return ok
}

func (m *Memory) ApplyScheduleUpdate(ctx context.Context, u ScheduleUpdate) error {
	if err := ctx.Err(); err != nil {
		return &UnavailableError{Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen(u.RecordID) {
		return nil
	}
	key := u.State.Key()
	if cur, ok := m.states[key]; ok && cur.LastReviewedAt.After(u.BaseReviewedAt) {
		remote := cur
		return &ConflictError{EntityKey: u.EntityKey(), Schedule: &remote}
	}
	m.states[key] = u.State
	m.applied[u.RecordID] = struct{}{}
	return nil
}

func (m *Memory) ApplyAnswer(ctx context.Context, a Answer) error {
	if err := ctx.Err(); err != nil {
		return &UnavailableError{Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen(a.RecordID) {
		return nil
	}
	if _, ok := m.answers[a.ID]; !ok {
		m.answers[a.ID] = a
		m.order = append(m.order, a.ID)
	}
	m.applied[a.RecordID] = struct{}{}
	return nil
}

func (m *Memory) ApplySessionSnapshot(ctx context.Context, s SessionSnapshot) error {
	if err := ctx.Err(); err != nil {
		return &UnavailableError{Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen(s.RecordID) {
		return nil
	}
	if cur, ok := m.sessions[s.SessionID]; ok && cur.UpdatedAt.After(s.BaseUpdatedAt) {
		remote := cur
		return &ConflictError{EntityKey: s.EntityKey(), Session: &remote}
	}
	m.sessions[s.SessionID] = s
	m.applied[s.RecordID] = struct{}{}
	return nil
}

// ScheduleState returns the authority's copy of a schedule state.
func (m *Memory) ScheduleState(userID, itemID string) (spacedrep.ScheduleState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[spacedrep.Key(userID, itemID)]
	return st, ok
}

// PutScheduleState overwrites the authority's copy, as another device would.
func (m *Memory) PutScheduleState(st spacedrep.ScheduleState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Key()] = st
}

// Session returns the authority's copy of a session.
func (m *Memory) Session(id string) (SessionSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// PutSession overwrites the authority's copy of a session.
func (m *Memory) PutSession(s SessionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = s
}

// Answers returns applied answers in the order they were first applied.
func (m *Memory) Answers() []Answer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Answer, len(m.order))
	for i, id := range m.order {
		out[i] = m.answers[id]
	}
	return out
}

// AppliedCount returns the number of distinct records applied.
func (m *Memory) AppliedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.applied)
}
