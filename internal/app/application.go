// Package app wires the stream processor together and drives its lifecycle:
// configuration, storage, metrics, the streaming query and the memory
// monitor.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	"github.com/tigerroll/swell/pkg/stream/adapter/storage/blobstore"
	config "github.com/tigerroll/swell/pkg/stream/core/config"
	"github.com/tigerroll/swell/pkg/stream/engine/query"
	streamlistener "github.com/tigerroll/swell/pkg/stream/listener"
	"github.com/tigerroll/swell/pkg/stream/monitor"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"
	"github.com/tigerroll/swell/pkg/stream/support/util/serialization"

	infraMetrics "github.com/tigerroll/swell/pkg/stream/infrastructure/metrics"

	recordProcessor "github.com/tigerroll/swell/internal/step/processor"
	recordReader "github.com/tigerroll/swell/internal/step/reader"
	recordWriter "github.com/tigerroll/swell/internal/step/writer"
)

// RunApplication sets up and runs the stream processor using uber-fx.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig) {
	app := fx.New(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
		),

		logger.Module,
		config.Module,
		infraMetrics.Module,
		blobstore.Module,
		streamlistener.Module,

		recordReader.Module,
		recordProcessor.Module,
		recordWriter.Module,
		query.Module,

		fx.Invoke(fx.Annotate(startStreaming, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // streamingQuery *query.StreamingQuery
			"",              // resolver storage.ConnectionResolver
			"",              // cfg *config.Config
			`name:"appCtx"`, // appCtx context.Context
		))),
	)

	app.Run()

	if app.Err() != nil {
		logger.Fatalf("Application run failed: %v", app.Err())
	}
}

// startStreaming hooks the streaming query into the Fx lifecycle. The query
// starts after the graph is built and stops gracefully on shutdown.
func startStreaming(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	streamingQuery *query.StreamingQuery,
	resolver storageAdapter.ConnectionResolver,
	cfg *config.Config,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logEffectiveSettings(cfg)

			memInterval := time.Duration(cfg.Swell.Monitor.MemoryIntervalSeconds) * time.Second
			if memInterval <= 0 {
				memInterval = 5 * time.Second
			}
			monitor.StartPeriodicLogging(memInterval)

			logSourceContents(ctx, resolver, cfg.Swell.Stream.SourcePath)

			if err := streamingQuery.Start(ctx); err != nil {
				return err
			}

			go func() {
				exitCode := 0
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in streaming execution: %v", r)
						exitCode = 1
					}
					logger.Infof("Requesting application shutdown after query termination.")
					if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()

				if err := streamingQuery.AwaitTermination(appCtx); err != nil {
					logger.Errorf("Streaming query terminated with error: %v", err)
					exitCode = 1
					return
				}
				logger.Infof("Streaming query terminated normally.")
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			streamingQuery.Stop()
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

// logEffectiveSettings logs the connection settings the query runs with.
// Keys listed under security.masked_config_keys have their values hidden.
func logEffectiveSettings(cfg *config.Config) {
	settings := map[string]interface{}{
		"query_name":        cfg.Swell.Stream.QueryName,
		"source_path":       cfg.Swell.Stream.SourcePath,
		"dest_path":         cfg.Swell.Stream.DestPath,
		"checkpoint_path":   cfg.Swell.Stream.CheckpointPath,
		"output_format":     cfg.Swell.Stream.OutputFormat,
		"region":            cfg.Swell.AWS.Region,
		"endpoint":          cfg.Swell.AWS.Endpoint,
		"access_key_id":     cfg.Swell.AWS.AccessKeyID,
		"secret_access_key": cfg.Swell.AWS.SecretAccessKey,
	}
	for key, value := range serialization.GetMaskedConfigMap(settings) {
		logger.Infof("CONFIG | %s=%v", key, value)
	}
}

// logSourceContents lists the source location at startup so the log records
// exactly what input was visible when the query began. A missing or empty
// source is reported, not fatal.
func logSourceContents(ctx context.Context, resolver storageAdapter.ConnectionResolver, sourcePath string) {
	conn, prefix, err := resolver.Resolve(ctx, sourcePath)
	if err != nil {
		logger.Warnf("S3_PATH_NOT_EXISTS | path=%s | error=%v", sourcePath, err)
		return
	}

	logger.Infof("S3_LISTING_START | path=%s", sourcePath)
	var totalFiles int64
	var totalSize int64
	err = conn.ListObjects(ctx, prefix, func(info storageAdapter.ObjectInfo) error {
		logger.Infof("S3_FILE | key=%s | size=%d", info.Key, info.Size)
		totalFiles++
		totalSize += info.Size
		return nil
	})
	if err != nil {
		logger.Warnf("S3_PATH_NOT_EXISTS | path=%s | error=%v", sourcePath, err)
		return
	}
	logger.Infof("S3_LISTING_SUMMARY | path=%s | total_files=%d | total_size=%d", sourcePath, totalFiles, totalSize)
}
