//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/retain/internal/config"
	"github.com/abhisek/retain/internal/events"
)

var configSet = wire.NewSet(
	config.Load,
	provideLogger,
	wire.Bind(new(logrus.FieldLogger), new(*logrus.Logger)),
)

var storageSet = wire.NewSet(
	provideStore,
	provideAuthority,
)

var engineSet = wire.NewSet(
	events.NewBus,
	provideEngine,
	provideRegistry,
	provideScheduler,
	provideGenerator,
	provideSessions,
	provideJobs,
)

// Initialize builds the application container using Wire.
func Initialize(ctx context.Context, opts config.Options) (*Container, func(), error) {
	wire.Build(
		configSet,
		storageSet,
		engineSet,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil, nil
}
