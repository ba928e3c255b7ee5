package config

import (
	"go.uber.org/fx"
)

// Module provides the application configuration to the fx dependency injection container.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
)
