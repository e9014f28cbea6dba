package remote

import (
	"context"
	"sync"
)

// Call records one request made to a MockAuthority.
type Call struct {
	Method   string
	RecordID string
}

// MockAuthority is a deterministic Authority for testing. Canned errors are
// returned in FIFO order; once the queue is empty, or when the next canned
// value is nil, the call is applied to an embedded Memory authority.
type MockAuthority struct {
	*Memory

	mu       sync.Mutex
	results  []error
	byRecord map[string][]error
	pingErr  error
	Calls    []Call
}

// NewMockAuthority creates a MockAuthority with the given canned results.
func NewMockAuthority(results ...error) *MockAuthority {
	return &MockAuthority{
		Memory:   NewMemory(),
		results:  results,
		byRecord: make(map[string][]error),
	}
}

func (m *MockAuthority) Name() string { return "mock" }

// SetPingError makes Ping return err until changed. Pings are not recorded
// in Calls.
func (m *MockAuthority) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

func (m *MockAuthority) Ping(ctx context.Context) error {
	m.mu.Lock()
	err := m.pingErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.Memory.Ping(ctx)
}

// AddResult appends a canned result to the queue.
func (m *MockAuthority) AddResult(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, err)
}

// FailRecord makes the next len(errs) calls carrying recordID return errs in
// order. Record failures take precedence over the shared queue.
func (m *MockAuthority) FailRecord(recordID string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRecord[recordID] = append(m.byRecord[recordID], errs...)
}

// CallCount returns the number of apply calls made.
func (m *MockAuthority) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// RecordIDs returns the record ids of all calls in call order.
func (m *MockAuthority) RecordIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.RecordID
	}
	return out
}

func (m *MockAuthority) next(method, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, Call{Method: method, RecordID: recordID})

	if errs := m.byRecord[recordID]; len(errs) > 0 {
		m.byRecord[recordID] = errs[1:]
		return errs[0]
	}
	if len(m.results) == 0 {
		return nil
	}
	err := m.results[0]
	m.results = m.results[1:]
	return err
}

func (m *MockAuthority) ApplyScheduleUpdate(ctx context.Context, u ScheduleUpdate) error {
	if err := m.next("ApplyScheduleUpdate", u.RecordID); err != nil {
		return err
	}
	return m.Memory.ApplyScheduleUpdate(ctx, u)
}

func (m *MockAuthority) ApplyAnswer(ctx context.Context, a Answer) error {
	if err := m.next("ApplyAnswer", a.RecordID); err != nil {
		return err
	}
	return m.Memory.ApplyAnswer(ctx, a)
}

func (m *MockAuthority) ApplySessionSnapshot(ctx context.Context, s SessionSnapshot) error {
	if err := m.next("ApplySessionSnapshot", s.RecordID); err != nil {
		return err
	}
	return m.Memory.ApplySessionSnapshot(ctx, s)
}
