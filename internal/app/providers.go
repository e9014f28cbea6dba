// Package app wires the engine's components together.
package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/retain/internal/answer"
	"github.com/abhisek/retain/internal/config"
	"github.com/abhisek/retain/internal/events"
	"github.com/abhisek/retain/internal/jobs"
	"github.com/abhisek/retain/internal/logging"
	"github.com/abhisek/retain/internal/offline"
	"github.com/abhisek/retain/internal/queue"
	"github.com/abhisek/retain/internal/remote"
	"github.com/abhisek/retain/internal/session"
	"github.com/abhisek/retain/internal/spacedrep"
	"github.com/abhisek/retain/internal/store"
)

func provideLogger(cfg *config.Config) (*logrus.Logger, error) {
	return logging.New(cfg.Log)
}

func provideStore(cfg *config.Config, log logrus.FieldLogger) (*store.Store, func(), error) {
	path := cfg.Store.Path
	if path == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	} else if err := store.EnsureDir(path); err != nil {
		return nil, nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("path", path).Debug("store opened")
	return st, func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("close store")
		}
	}, nil
}

func provideAuthority(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (remote.Authority, func(), error) {
	auth, err := remote.New(ctx, cfg.Remote, log)
	if err != nil {
		return nil, nil, err
	}
	return auth, func() {
		if err := auth.Close(); err != nil {
			log.WithError(err).Warn("close remote authority")
		}
	}, nil
}

func provideEngine(st *store.Store, auth remote.Authority, cfg *config.Config, log logrus.FieldLogger, bus *events.Bus) (*offline.Engine, error) {
	return offline.NewEngine(st, auth, cfg.Sync, offline.WithLogger(log), offline.WithBus(bus))
}

func provideRegistry(cfg *config.Config) (*answer.Registry, error) {
	return answer.FromSettings(cfg.Validator)
}

func provideScheduler(cfg *config.Config) (*spacedrep.Scheduler, error) {
	return spacedrep.NewScheduler(cfg.Scheduler)
}

func provideGenerator(cfg *config.Config) *queue.Generator {
	return queue.NewGenerator(queue.WithRecencyWindow(cfg.Queue.RecencyWindow))
}

func provideSessions(reg *answer.Registry, sched *spacedrep.Scheduler, st *store.Store, eng *offline.Engine, cfg *config.Config, log logrus.FieldLogger, bus *events.Bus) (*session.Manager, error) {
	return session.NewManager(reg, sched, st, eng, cfg.Session, session.WithLogger(log), session.WithBus(bus), session.WithArchive(st))
}

func provideJobs(log logrus.FieldLogger) *jobs.Scheduler {
	return jobs.New(log)
}
