package app

import (
	"context"
	"fmt"

	"github.com/abhisek/retain/internal/session"
)

// Housekeep abandons idle sessions and prunes ended sessions beyond the
// configured number kept.
func (c *Container) Housekeep(ctx context.Context) error {
	n, err := c.Sessions.SweepIdle(ctx)
	if err != nil {
		return fmt.Errorf("idle sweep: %w", err)
	}
	if n > 0 {
		c.Logger.WithField("count", n).Info("idle sessions abandoned")
	}

	keep := c.Config.Jobs.KeepSessions
	if keep == 0 {
		return nil
	}
	pruned, err := c.Store.PruneSessions(ctx, keep, string(session.StatusCompleted), string(session.StatusAbandoned))
	if err != nil {
		return err
	}
	if pruned > 0 {
		c.Logger.WithField("count", pruned).Info("ended sessions pruned")
	}
	return nil
}

// Background runs the replay loop and the periodic jobs until the returned
// func is called.
func (c *Container) Background(ctx context.Context) (func(), error) {
	if err := c.Jobs.Every("replay", c.Config.Sync.ReplayInterval, c.Engine.Kick); err != nil {
		return nil, err
	}
	err := c.Jobs.Every("connectivity", c.Config.Sync.ReplayInterval, func() {
		if err := c.Engine.CheckConnectivity(ctx); err != nil {
			c.Logger.WithError(err).Debug("authority unreachable")
		}
	})
	if err != nil {
		return nil, err
	}
	err = c.Jobs.Every("housekeeping", c.Config.Jobs.SweepInterval, func() {
		if err := c.Housekeep(ctx); err != nil {
			c.Logger.WithError(err).Warn("housekeeping failed")
		}
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Engine.Run(runCtx)
	}()
	c.Jobs.Start()

	return func() {
		c.Jobs.Stop()
		cancel()
		<-done
	}, nil
}
