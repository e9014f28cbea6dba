package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/retain/internal/spacedrep"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func reviewed(at time.Time) spacedrep.ScheduleState {
	st := spacedrep.NewState("u1", "a")
	st.State = spacedrep.StateLearning
	st.LastReviewedAt = at
	st.TotalReviews = 1
	return st
}

func TestMemoryScheduleIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u := ScheduleUpdate{RecordID: "r1", State: reviewed(t0)}

	require.NoError(t, m.ApplyScheduleUpdate(ctx, u))
	require.NoError(t, m.ApplyScheduleUpdate(ctx, u))

	st, ok := m.ScheduleState("u1", "a")
	require.True(t, ok)
	assert.Equal(t, u.State, st)
	assert.Equal(t, 1, m.AppliedCount())
}

func TestMemoryScheduleConflict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Another device reviewed the item later than our base.
	m.PutScheduleState(reviewed(t0.Add(time.Hour)))

	err := m.ApplyScheduleUpdate(ctx, ScheduleUpdate{RecordID: "r1", State: reviewed(t0.Add(time.Minute)), BaseReviewedAt: t0})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.NotNil(t, conflict.Schedule)
	assert.Equal(t, t0.Add(time.Hour), conflict.Schedule.LastReviewedAt)
	assert.Equal(t, "schedule:u1/a", conflict.EntityKey)
	assert.False(t, IsTransient(err))

	// Re-sent against the authority's copy it applies.
	require.NoError(t, m.ApplyScheduleUpdate(ctx, ScheduleUpdate{
		RecordID: "r1", State: reviewed(t0.Add(2 * time.Hour)), BaseReviewedAt: t0.Add(time.Hour),
	}))
}

func TestMemoryAnswersAppendOnly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, rec := range []string{"r1", "r2", "r1"} {
		require.NoError(t, m.ApplyAnswer(ctx, Answer{RecordID: rec, ID: "ans-" + rec, At: t0}))
	}
	// Same answer under a different record id is still stored once.
	require.NoError(t, m.ApplyAnswer(ctx, Answer{RecordID: "r3", ID: "ans-r1", Score: 5}))

	answers := m.Answers()
	require.Len(t, answers, 2)
	assert.Equal(t, "ans-r1", answers[0].ID)
	assert.Zero(t, answers[0].Score)
}

func TestMemorySessionConflict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.PutSession(SessionSnapshot{SessionID: "s1", UpdatedAt: t0.Add(time.Hour), Stats: SessionStats{Answered: 5}})

	err := m.ApplySessionSnapshot(ctx, SessionSnapshot{RecordID: "r1", SessionID: "s1", UpdatedAt: t0.Add(time.Minute), BaseUpdatedAt: t0})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.NotNil(t, conflict.Session)
	assert.Equal(t, 5, conflict.Session.Stats.Answered)
}

func TestMemoryCanceledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.ApplyAnswer(ctx, Answer{RecordID: "r1", ID: "a"})
	var unavail *UnavailableError
	assert.ErrorAs(t, err, &unavail)
	assert.Empty(t, m.Answers())
}

func TestSessionStatsMax(t *testing.T) {
	a := SessionStats{Answered: 3, Correct: 1, Completed: 3, HintsUsed: 0, BestStreak: 1}
	b := SessionStats{Answered: 2, Correct: 2, Completed: 4, HintsUsed: 1, BestStreak: 0}
	assert.Equal(t, SessionStats{Answered: 3, Correct: 2, Completed: 4, HintsUsed: 1, BestStreak: 1}, a.Max(b))
}

func TestMockFIFO(t *testing.T) {
	boom := &UnavailableError{Err: errors.New("boom")}
	m := NewMockAuthority(boom, nil)
	ctx := context.Background()

	assert.ErrorIs(t, m.ApplyAnswer(ctx, Answer{RecordID: "r1", ID: "a1"}), boom)
	assert.NoError(t, m.ApplyAnswer(ctx, Answer{RecordID: "r1", ID: "a1"}))
	// Queue exhausted: calls succeed against the embedded authority.
	assert.NoError(t, m.ApplyAnswer(ctx, Answer{RecordID: "r2", ID: "a2"}))

	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, []string{"r1", "r1", "r2"}, m.RecordIDs())
	assert.Len(t, m.Answers(), 2)
}

func TestMockFailRecord(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockAuthority()
	m.FailRecord("r2", boom, boom)
	ctx := context.Background()

	for i, want := range []error{boom, boom, nil} {
		err := m.ApplyScheduleUpdate(ctx, ScheduleUpdate{RecordID: "r2", State: reviewed(t0)})
		if want == nil {
			assert.NoError(t, err, "call %d", i)
		} else {
			assert.ErrorIs(t, err, want, "call %d", i)
		}
	}
	assert.NoError(t, m.ApplyScheduleUpdate(ctx, ScheduleUpdate{RecordID: "r3", State: reviewed(t0)}))
}

// blockingAuthority never answers until released and ignores its context.
type blockingAuthority struct {
	*Memory
	release chan struct{}
}

func (b *blockingAuthority) ApplyAnswer(ctx context.Context, a Answer) error {
	<-b.release
	return nil
}

func (b *blockingAuthority) Ping(ctx context.Context) error {
	<-b.release
	return nil
}

func TestTimeoutAuthority(t *testing.T) {
	inner := &blockingAuthority{Memory: NewMemory(), release: make(chan struct{})}
	defer close(inner.release)

	a := WithTimeout(inner, 20*time.Millisecond)
	start := time.Now()
	err := a.ApplyAnswer(context.Background(), Answer{RecordID: "r1"})
	var unavail *UnavailableError
	require.ErrorAs(t, err, &unavail)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, IsTransient(err))

	// Fast calls pass through.
	assert.NoError(t, a.ApplyScheduleUpdate(context.Background(), ScheduleUpdate{RecordID: "r2", State: reviewed(t0)}))

	err = a.Ping(context.Background())
	require.ErrorAs(t, err, &unavail)
	assert.True(t, IsTransient(err))
}

func TestMockPing(t *testing.T) {
	m := NewMockAuthority()
	ctx := context.Background()
	require.NoError(t, m.Ping(ctx))

	down := &UnavailableError{Err: errors.New("no route")}
	m.SetPingError(down)
	assert.ErrorIs(t, m.Ping(ctx), down)

	m.SetPingError(nil)
	assert.NoError(t, m.Ping(ctx))
	assert.Zero(t, m.CallCount())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	var unavail *UnavailableError
	assert.ErrorAs(t, m.Ping(canceled), &unavail)
}

func TestLoggingAuthority(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.JSONFormatter{})

	mock := NewMockAuthority(&UnavailableError{Err: errors.New("down")})
	a := WithLogging(mock, log)

	require.Error(t, a.ApplyAnswer(context.Background(), Answer{RecordID: "r1", ID: "x"}))
	require.NoError(t, a.ApplyAnswer(context.Background(), Answer{RecordID: "r1", ID: "x"}))

	out := buf.String()
	assert.Contains(t, out, `"msg":"remote apply failed"`)
	assert.Contains(t, out, `"msg":"remote apply succeeded"`)
	assert.Contains(t, out, `"entity":"answer:x"`)
	assert.Equal(t, "mock", a.Name())

	mock.SetPingError(&UnavailableError{Err: errors.New("down")})
	require.Error(t, a.Ping(context.Background()))
	assert.Contains(t, buf.String(), `"msg":"remote unreachable"`)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", &UnavailableError{Err: errors.New("x")}, true},
		{"plain", errors.New("network"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"conflict", &ConflictError{EntityKey: "k"}, false},
		{"wrapped conflict", fmt.Errorf("apply: %w", &ConflictError{}), false},
		{"rejected", &RejectedError{Reason: "bad"}, false},
		{"protocol", fmt.Errorf("x: %w", ErrIncompatibleProtocol), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestCheckProtocol(t *testing.T) {
	assert.NoError(t, CheckProtocol(ProtocolVersion))
	assert.NoError(t, CheckProtocol("v1.0.0"))
	assert.NoError(t, CheckProtocol("v1.9.3"))
	assert.ErrorIs(t, CheckProtocol("v2.0.0"), ErrIncompatibleProtocol)
	assert.ErrorIs(t, CheckProtocol("1.0"), ErrIncompatibleProtocol)
}

func TestClassify(t *testing.T) {
	var rejected *RejectedError
	assert.ErrorAs(t, classify(&pgconn.PgError{Code: "23505"}), &rejected)

	var unavail *UnavailableError
	assert.ErrorAs(t, classify(&pgconn.PgError{Code: "57P01"}), &unavail)
	assert.ErrorAs(t, classify(errors.New("conn reset")), &unavail)

	var conflict *ConflictError
	assert.ErrorAs(t, classify(&ConflictError{EntityKey: "k"}), &conflict)
}

func TestNewFactory(t *testing.T) {
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	a, err := New(context.Background(), DefaultConfig(), log)
	require.NoError(t, err)
	assert.Equal(t, "memory", a.Name())
	assert.NoError(t, a.ApplyAnswer(context.Background(), Answer{RecordID: "r1", ID: "x"}))
	assert.NoError(t, a.Close())

	_, err = New(context.Background(), Config{Driver: "carrier-pigeon"}, log)
	assert.Error(t, err)
}

// TestPostgresAuthority runs against a real database when
// RETAIN_TEST_POSTGRES_DSN is set.
func TestPostgresAuthority(t *testing.T) {
	dsn := os.Getenv("RETAIN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RETAIN_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, PostgresConfig{DSN: dsn}, logrus.New())
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Ping(ctx))

	id := fmt.Sprintf("r-%d", time.Now().UnixNano())
	st := reviewed(t0)
	st.UserID = id
	u := ScheduleUpdate{RecordID: id, State: st}
	require.NoError(t, p.ApplyScheduleUpdate(ctx, u))
	require.NoError(t, p.ApplyScheduleUpdate(ctx, u))

	stale := st
	stale.LastReviewedAt = t0.Add(-time.Hour)
	err = p.ApplyScheduleUpdate(ctx, ScheduleUpdate{RecordID: id + "-2", State: stale, BaseReviewedAt: t0.Add(-2 * time.Hour)})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.Schedule.LastReviewedAt.Equal(t0))
}
