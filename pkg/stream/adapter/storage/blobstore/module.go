// Package blobstore provides the Fx module for the blob storage adapter.
package blobstore

import (
	"context"

	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	storageconfig "github.com/tigerroll/swell/pkg/stream/adapter/storage/config"
	coreconfig "github.com/tigerroll/swell/pkg/stream/core/config"
	"github.com/tigerroll/swell/pkg/stream/support/util/configbinder"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

// bindAdapterConfigs decodes the raw adapter section of the configuration
// into typed storage configurations.
func bindAdapterConfigs(raw map[string]interface{}) (storageconfig.DatasourcesConfig, error) {
	datasources := make(storageconfig.DatasourcesConfig, len(raw))
	for name, props := range raw {
		m, ok := props.(map[string]interface{})
		if !ok {
			return nil, exception.NewStreamErrorf("storage", "adapter configuration '%s' is not a mapping", name)
		}
		var sc storageconfig.StorageConfig
		if err := configbinder.BindProperties(m, &sc); err != nil {
			return nil, exception.NewStreamErrorf("storage", "failed to bind adapter configuration '%s'", name, err)
		}
		datasources[name] = sc
	}
	return datasources, nil
}

// applyDatasourceOverrides layers named S3 adapter configurations over the
// top-level AWS settings. An adapter entry of type "s3" can point the backend
// at a MinIO-style endpoint without touching the AWS section.
func applyDatasourceOverrides(awsCfg coreconfig.AWSConfig, datasources storageconfig.DatasourcesConfig) coreconfig.AWSConfig {
	for name, sc := range datasources {
		if sc.Type != ProviderTypeS3 {
			continue
		}
		if sc.Endpoint != "" {
			awsCfg.Endpoint = sc.Endpoint
		}
		if sc.Region != "" {
			awsCfg.Region = sc.Region
		}
		if sc.PathStyleAccess {
			awsCfg.PathStyleAccess = true
		}
		logger.Debugf("Applied S3 overrides from adapter configuration '%s'.", name)
	}
	return awsCfg
}

// newResolver builds the connection resolver from the application
// configuration and closes all connections on shutdown.
func newResolver(lc fx.Lifecycle, cfg *coreconfig.Config) (storageAdapter.ConnectionResolver, error) {
	datasources, err := bindAdapterConfigs(cfg.Swell.AdapterConfigs)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(applyDatasourceOverrides(cfg.Swell.AWS, datasources))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return resolver.CloseAll()
		},
	})
	return resolver, nil
}

// Module is the Fx module for the blob storage adapter.
var Module = fx.Options(
	fx.Provide(newResolver),
)
