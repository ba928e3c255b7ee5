package writer

import (
	"context"

	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	coreconfig "github.com/tigerroll/swell/pkg/stream/core/config"
	"github.com/tigerroll/swell/pkg/stream/core/port"
)

// newSinkWriter opens the configured destination location and builds the
// partitioned writer.
func newSinkWriter(cfg *coreconfig.Config, resolver storageAdapter.ConnectionResolver) (port.SinkWriter, error) {
	conn, prefix, err := resolver.Resolve(context.Background(), cfg.Swell.Stream.DestPath)
	if err != nil {
		return nil, err
	}
	return NewPartitionedWriter(conn, prefix, cfg.Swell.Stream.OutputFormat, cfg.Swell.Stream.CompressionType)
}

// Module provides the partitioned sink writer.
var Module = fx.Options(
	fx.Provide(newSinkWriter),
)
