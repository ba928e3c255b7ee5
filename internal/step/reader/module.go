package reader

import (
	"context"

	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	coreconfig "github.com/tigerroll/swell/pkg/stream/core/config"
	coremetrics "github.com/tigerroll/swell/pkg/stream/core/metrics"
	"github.com/tigerroll/swell/pkg/stream/core/port"
)

// newSourceReader opens the configured source location and builds the reader.
func newSourceReader(cfg *coreconfig.Config, resolver storageAdapter.ConnectionResolver, recorder coremetrics.MetricRecorder) (port.SourceReader, error) {
	conn, prefix, err := resolver.Resolve(context.Background(), cfg.Swell.Stream.SourcePath)
	if err != nil {
		return nil, err
	}
	return NewJSONSourceReader(conn, prefix, cfg.Swell.Stream.QueryName, cfg.Swell.Stream.MaxFilesPerTrigger, recorder), nil
}

// Module provides the JSON source reader.
var Module = fx.Options(
	fx.Provide(newSourceReader),
)
