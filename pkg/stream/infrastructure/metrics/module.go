package metrics

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/swell/pkg/stream/core/config"
	coremetrics "github.com/tigerroll/swell/pkg/stream/core/metrics"
	logger "github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

// newMetricRecorder selects the Prometheus recorder when metrics are enabled
// and a no-op recorder otherwise. The metrics HTTP endpoint follows the fx
// lifecycle.
func newMetricRecorder(lc fx.Lifecycle, cfg *config.Config) coremetrics.MetricRecorder {
	if !cfg.Swell.Metrics.Enabled {
		logger.Debugf("Metrics are disabled. Using NoOpMetricRecorder.")
		return coremetrics.NewNoOpMetricRecorder()
	}

	recorder := NewPrometheusMetricRecorder()
	var server *http.Server
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			server = StartMetricsServer(recorder, cfg.Swell.Metrics.ListenAddress)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if server == nil {
				return nil
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
	return recorder
}

// newTracer selects the OTel tracer when tracing is enabled and a no-op
// tracer otherwise.
func newTracer(lc fx.Lifecycle, cfg *config.Config) (coremetrics.Tracer, error) {
	if !cfg.Swell.Tracing.Enabled {
		logger.Debugf("Tracing is disabled. Using NoOpTracer.")
		return coremetrics.NewNoOpTracer(), nil
	}

	tracer, err := NewOTelTracer(context.Background(), cfg.Swell.Tracing)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tracer.Shutdown(ctx)
		},
	})
	return tracer, nil
}

// Module provides the metric recorder and tracer implementations selected by
// the configuration.
var Module = fx.Options(
	fx.Provide(newMetricRecorder),
	fx.Provide(newTracer),
)
