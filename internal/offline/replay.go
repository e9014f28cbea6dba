package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/abhisek/retain/internal/events"
	"github.com/abhisek/retain/internal/remote"
	"github.com/abhisek/retain/internal/store"
)

// Report summarises one replay pass.
type Report struct {
	// Skipped is set when the pass did not run because the engine is offline.
	Skipped bool

	Applied      int
	Retried      int
	DeadLettered int
	Conflicts    int
	// Deferred counts records left for a later pass: not yet due, or behind
	// an earlier record of the same entity that has not been applied.
	Deferred int
	// BreakerOpen is set when the pass stopped because the breaker rejected
	// an attempt.
	BreakerOpen bool
}

// Replay runs one pass over the pending records in sequence order. Only one
// pass runs at a time; a concurrent call returns ErrReplayInProgress.
func (e *Engine) Replay(ctx context.Context) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{}, ErrReplayInProgress
	}
	defer e.running.Store(false)

	if !e.online.Load() {
		return Report{Skipped: true}, nil
	}

	// Nothing else replays, so anything still in flight was interrupted.
	if n, err := e.store.ResetInFlight(ctx, e.now()); err != nil {
		return Report{}, err
	} else if n > 0 {
		e.log.WithField("count", n).Warn("recovered interrupted in-flight records")
	}

	records, err := e.store.PendingSync(ctx, e.cfg.BatchSize)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	blocked := make(map[string]bool)
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if blocked[rec.EntityKey] {
			rep.Deferred++
			continue
		}
		now := e.now()
		if rec.NextAttemptAt.After(now) {
			blocked[rec.EntityKey] = true
			rep.Deferred++
			continue
		}

		rec.Status = store.SyncInFlight
		if err := e.store.UpdateSync(ctx, rec, now); err != nil {
			return rep, err
		}

		outcome, err := e.send(ctx, rec)
		switch {
		case err == nil:
			if outcome.conflict {
				rep.Conflicts++
			}
			if err := e.store.DeleteSync(ctx, rec.ID); err != nil {
				return rep, err
			}
			rep.Applied++
			e.mu.Lock()
			e.lastSuccess = e.now()
			e.mu.Unlock()

		case errors.Is(err, ErrCircuitOpen):
			// Rejected locally: not an attempt, so no retry is consumed.
			rec.Status = store.SyncPending
			if uerr := e.store.UpdateSync(ctx, rec, e.now()); uerr != nil {
				return rep, uerr
			}
			rep.BreakerOpen = true
			e.log.WithField("record_id", rec.ID).Debug("breaker open, stopping pass")
			return rep, nil

		case !remote.IsTransient(err) || errors.Is(err, ErrInvalidPayload):
			if err := e.deadLetter(ctx, rec, err); err != nil {
				return rep, err
			}
			blocked[rec.EntityKey] = true
			rep.DeadLettered++

		default:
			dead, uerr := e.retry(ctx, rec, err)
			if uerr != nil {
				return rep, uerr
			}
			blocked[rec.EntityKey] = true
			if dead {
				rep.DeadLettered++
			} else {
				rep.Retried++
			}
		}
	}
	return rep, nil
}

type outcome struct {
	conflict bool
}

// send decodes rec and applies it through the breaker, resolving at most
// one conflict.
func (e *Engine) send(ctx context.Context, rec store.SyncRecord) (outcome, error) {
	d, err := e.schemas.decode(rec)
	if err != nil {
		return outcome{}, err
	}

	err = e.call(ctx, d)
	var conflict *remote.ConflictError
	if !errors.As(err, &conflict) {
		return outcome{}, err
	}

	next, resend, err := e.resolve(ctx, d, conflict)
	if err != nil {
		return outcome{}, err
	}
	if !resend {
		return outcome{conflict: true}, nil
	}
	err = e.call(ctx, next)
	if errors.As(err, &conflict) {
		// The entity moved again underneath us; try again next pass.
		return outcome{}, &remote.UnavailableError{Err: fmt.Errorf("repeated conflict on %s", rec.EntityKey)}
	}
	return outcome{conflict: true}, err
}

// call applies d through the circuit breaker.
func (e *Engine) call(ctx context.Context, d decoded) error {
	_, err := e.breaker.Execute(func() (any, error) {
		switch {
		case d.schedule != nil:
			return nil, e.auth.ApplyScheduleUpdate(ctx, *d.schedule)
		case d.answer != nil:
			return nil, e.auth.ApplyAnswer(ctx, *d.answer)
		case d.session != nil:
			return nil, e.auth.ApplySessionSnapshot(ctx, *d.session)
		}
		return nil, ErrInvalidPayload
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

// retry records a failed attempt. It returns true when the record ran out
// of retries and was dead-lettered.
func (e *Engine) retry(ctx context.Context, rec store.SyncRecord, cause error) (bool, error) {
	rec.RetryCount++
	rec.LastError = cause.Error()
	e.noteError(cause)
	if rec.RetryCount >= e.cfg.MaxRetries {
		return true, e.deadLetter(ctx, rec, cause)
	}

	now := e.now()
	delay := e.jitter(e.cfg.Backoff(rec.RetryCount))
	rec.Status = store.SyncPending
	rec.NextAttemptAt = now.Add(delay)
	if err := e.store.UpdateSync(ctx, rec, now); err != nil {
		return false, err
	}
	e.log.WithFields(logrus.Fields{
		"record_id": rec.ID,
		"kind":      rec.Kind,
		"retry":     rec.RetryCount,
		"delay":     delay.String(),
	}).WithError(cause).Debug("remote apply failed, will retry")
	return false, nil
}

// deadLetter parks rec for manual inspection.
func (e *Engine) deadLetter(ctx context.Context, rec store.SyncRecord, cause error) error {
	now := e.now()
	rec.Status = store.SyncDead
	rec.LastError = cause.Error()
	rec.NextAttemptAt = time.Time{}
	e.noteError(cause)
	if err := e.store.UpdateSync(ctx, rec, now); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"record_id":  rec.ID,
		"kind":       rec.Kind,
		"entity":     rec.EntityKey,
		"retries":    rec.RetryCount,
		"last_error": rec.LastError,
	}).Error("sync record dead-lettered")
	e.bus.Publish(events.RecordDeadLettered{
		RecordID:   rec.ID,
		RecordKind: string(rec.Kind),
		EntityKey:  rec.EntityKey,
		LastError:  rec.LastError,
		At:         now,
	})
	return nil
}

func (e *Engine) noteError(err error) {
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()
}
