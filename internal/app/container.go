package app

import (
	"github.com/sirupsen/logrus"

	"github.com/abhisek/retain/internal/answer"
	"github.com/abhisek/retain/internal/config"
	"github.com/abhisek/retain/internal/events"
	"github.com/abhisek/retain/internal/jobs"
	"github.com/abhisek/retain/internal/offline"
	"github.com/abhisek/retain/internal/queue"
	"github.com/abhisek/retain/internal/remote"
	"github.com/abhisek/retain/internal/session"
	"github.com/abhisek/retain/internal/spacedrep"
	"github.com/abhisek/retain/internal/store"
)

// Container aggregates the application dependencies produced by Wire.
type Container struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Store     *store.Store
	Authority remote.Authority
	Bus       *events.Bus
	Engine    *offline.Engine
	Registry  *answer.Registry
	Scheduler *spacedrep.Scheduler
	Generator *queue.Generator
	Sessions  *session.Manager
	Jobs      *jobs.Scheduler
}
