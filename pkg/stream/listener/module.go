// Package listener provides the Fx module that contributes the built-in
// query listeners to the engine.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/swell/pkg/stream/core/port"
	"github.com/tigerroll/swell/pkg/stream/listener/logging"
	metricslistener "github.com/tigerroll/swell/pkg/stream/listener/metrics"
)

// Module contributes the built-in listeners to the "query_listeners" group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		logging.NewLoggingQueryListener,
		fx.As(new(port.QueryListener)),
		fx.ResultTags(`group:"query_listeners"`),
	)),
	fx.Provide(fx.Annotate(
		metricslistener.NewMetricsQueryListener,
		fx.As(new(port.QueryListener)),
		fx.ResultTags(`group:"query_listeners"`),
	)),
)
