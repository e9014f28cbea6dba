package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingAuthority is a decorator that logs every apply call.
type LoggingAuthority struct {
	inner Authority
	log   logrus.FieldLogger
}

// WithLogging wraps an Authority with call logging.
func WithLogging(a Authority, log logrus.FieldLogger) Authority {
	return &LoggingAuthority{inner: a, log: log}
}

func (l *LoggingAuthority) observe(method, recordID, entity string, call func() error) error {
	start := time.Now()
	err := call()
	entry := l.log.WithFields(logrus.Fields{
		"authority":  l.inner.Name(),
		"method":     method,
		"record_id":  recordID,
		"entity":     entity,
		"latency_ms": time.Since(start).Milliseconds(),
	})
	var conflict *ConflictError
	switch {
	case err == nil:
		entry.Debug("remote apply succeeded")
	case errors.As(err, &conflict):
		entry.Info("remote apply conflicted")
	default:
		entry.WithError(err).Warn("remote apply failed")
	}
	return err
}

func (l *LoggingAuthority) ApplyScheduleUpdate(ctx context.Context, u ScheduleUpdate) error {
	return l.observe("ApplyScheduleUpdate", u.RecordID, u.EntityKey(), func() error {
		return l.inner.ApplyScheduleUpdate(ctx, u)
	})
}

func (l *LoggingAuthority) ApplyAnswer(ctx context.Context, a Answer) error {
	return l.observe("ApplyAnswer", a.RecordID, a.EntityKey(), func() error {
		return l.inner.ApplyAnswer(ctx, a)
	})
}

func (l *LoggingAuthority) ApplySessionSnapshot(ctx context.Context, s SessionSnapshot) error {
	return l.observe("ApplySessionSnapshot", s.RecordID, s.EntityKey(), func() error {
		return l.inner.ApplySessionSnapshot(ctx, s)
	})
}

func (l *LoggingAuthority) Ping(ctx context.Context) error {
	err := l.inner.Ping(ctx)
	if err != nil {
		l.log.WithError(err).WithField("authority", l.inner.Name()).Debug("remote unreachable")
	}
	return err
}

func (l *LoggingAuthority) Name() string { return l.inner.Name() }

func (l *LoggingAuthority) Close() error { return l.inner.Close() }

// TimeoutAuthority is a decorator that bounds every apply call. A call that
// does not return in time fails with an UnavailableError even if the inner
// authority ignores its context.
type TimeoutAuthority struct {
	inner   Authority
	timeout time.Duration
}

// WithTimeout wraps an Authority with a per-call deadline.
func WithTimeout(a Authority, d time.Duration) Authority {
	return &TimeoutAuthority{inner: a, timeout: d}
}

func (t *TimeoutAuthority) run(ctx context.Context, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- call(ctx) }()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return &UnavailableError{Err: err}
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &UnavailableError{Err: fmt.Errorf("no response within %s: %w", t.timeout, ctx.Err())}
		}
		return ctx.Err()
	}
}

func (t *TimeoutAuthority) ApplyScheduleUpdate(ctx context.Context, u ScheduleUpdate) error {
	return t.run(ctx, func(ctx context.Context) error { return t.inner.ApplyScheduleUpdate(ctx, u) })
}

func (t *TimeoutAuthority) ApplyAnswer(ctx context.Context, a Answer) error {
	return t.run(ctx, func(ctx context.Context) error { return t.inner.ApplyAnswer(ctx, a) })
}

func (t *TimeoutAuthority) ApplySessionSnapshot(ctx context.Context, s SessionSnapshot) error {
	return t.run(ctx, func(ctx context.Context) error { return t.inner.ApplySessionSnapshot(ctx, s) })
}

func (t *TimeoutAuthority) Ping(ctx context.Context) error {
	return t.run(ctx, t.inner.Ping)
}

func (t *TimeoutAuthority) Name() string { return t.inner.Name() }

func (t *TimeoutAuthority) Close() error { return t.inner.Close() }
