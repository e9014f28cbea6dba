package offline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/retain/internal/remote"
	"github.com/abhisek/retain/internal/spacedrep"
	"github.com/abhisek/retain/internal/store"
)

// resolve settles a conflict reported for d. It returns the payload to
// re-send, or resend=false when the authority's copy wins outright and has
// been adopted locally.
func (e *Engine) resolve(ctx context.Context, d decoded, c *remote.ConflictError) (decoded, bool, error) {
	switch {
	case d.schedule != nil && c.Schedule != nil:
		next, resend := ResolveSchedule(*d.schedule, *c.Schedule)
		winner := "local"
		if !resend {
			winner = "remote"
			if err := e.store.PutScheduleState(ctx, next.State, e.now()); err != nil {
				return decoded{}, false, err
			}
		}
		e.logConflict(c.EntityKey, winner)
		return decoded{schedule: &next}, resend, nil

	case d.session != nil && c.Session != nil:
		next := ResolveSession(*d.session, *c.Session)
		if err := e.store.PutSession(ctx, store.SessionRecord{
			ID:        next.SessionID,
			UserID:    next.UserID,
			Status:    next.Status,
			StartedAt: next.StartedAt,
			UpdatedAt: next.UpdatedAt,
			Payload:   next.Body,
		}); err != nil {
			return decoded{}, false, err
		}
		e.logConflict(c.EntityKey, "merged")
		return decoded{session: &next}, true, nil
	}
	return decoded{}, false, &remote.RejectedError{Reason: fmt.Sprintf("unresolvable conflict on %s", c.EntityKey)}
}

func (e *Engine) logConflict(entity, winner string) {
	e.log.WithFields(logrus.Fields{
		"entity": entity,
		"winner": winner,
	}).Info("sync conflict resolved")
}

// ResolveSchedule applies last-write-wins by LastReviewedAt. When the local
// state is newer it is returned rebased onto the remote copy and should be
// re-sent; otherwise the remote state is returned and nothing is re-sent.
// Ties go to the remote copy.
func ResolveSchedule(local remote.ScheduleUpdate, theirs spacedrep.ScheduleState) (remote.ScheduleUpdate, bool) {
	if local.State.LastReviewedAt.After(theirs.LastReviewedAt) {
		local.BaseReviewedAt = theirs.LastReviewedAt
		return local, true
	}
	return remote.ScheduleUpdate{RecordID: local.RecordID, State: theirs, BaseReviewedAt: theirs.LastReviewedAt}, false
}

// ResolveSession merges two copies of a session. Descriptive fields come
// from the copy updated last; counters take the maximum of both so progress
// recorded on either side survives. The result is rebased onto the remote
// copy.
func ResolveSession(local, theirs remote.SessionSnapshot) remote.SessionSnapshot {
	merged := local
	if theirs.UpdatedAt.After(local.UpdatedAt) {
		merged = theirs
		merged.RecordID = local.RecordID
		if len(merged.Body) == 0 {
			merged.Body = local.Body
		}
	}
	merged.Stats = local.Stats.Max(theirs.Stats)
	merged.BaseUpdatedAt = theirs.UpdatedAt
	return merged
}
