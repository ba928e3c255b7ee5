package query

import (
	"context"

	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	coreconfig "github.com/tigerroll/swell/pkg/stream/core/config"
	coremetrics "github.com/tigerroll/swell/pkg/stream/core/metrics"
	"github.com/tigerroll/swell/pkg/stream/core/port"
	"github.com/tigerroll/swell/pkg/stream/engine/checkpoint"
)

// Params collects the components a streaming query is assembled from.
// Listeners are gathered from the "query_listeners" group so applications can
// contribute their own.
type Params struct {
	fx.In

	Cfg       *coreconfig.Config
	Reader    port.SourceReader
	Processor port.RowProcessor
	Writer    port.SinkWriter
	Resolver  storageAdapter.ConnectionResolver
	Listeners []port.QueryListener `group:"query_listeners"`
	Recorder  coremetrics.MetricRecorder
	Tracer    coremetrics.Tracer
}

// newCheckpointStore opens the configured checkpoint location.
func newCheckpointStore(cfg *coreconfig.Config, resolver storageAdapter.ConnectionResolver) (*checkpoint.Store, error) {
	conn, prefix, err := resolver.Resolve(context.Background(), cfg.Swell.Stream.CheckpointPath)
	if err != nil {
		return nil, err
	}
	return checkpoint.NewStore(conn, prefix), nil
}

func newStreamingQuery(p Params, store *checkpoint.Store) *StreamingQuery {
	return NewStreamingQuery(
		p.Cfg.Swell.Stream,
		p.Reader,
		p.Processor,
		p.Writer,
		store,
		p.Listeners,
		p.Recorder,
		p.Tracer,
	)
}

// Module provides the checkpoint store and the streaming query.
var Module = fx.Options(
	fx.Provide(newCheckpointStore),
	fx.Provide(newStreamingQuery),
)
