package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/tigerroll/swell/pkg/stream/core/config"
)

func TestBindAdapterConfigs(t *testing.T) {
	raw := map[string]interface{}{
		"minio": map[string]interface{}{
			"type":              "s3",
			"endpoint":          "http://minio:9000",
			"region":            "us-east-1",
			"path_style_access": "true",
		},
		"scratch": map[string]interface{}{
			"type":     "local",
			"base_dir": "/tmp/scratch",
		},
	}

	datasources, err := bindAdapterConfigs(raw)
	require.NoError(t, err)

	minio := datasources["minio"]
	assert.Equal(t, ProviderTypeS3, minio.Type)
	assert.Equal(t, "http://minio:9000", minio.Endpoint)
	assert.True(t, minio.PathStyleAccess)
	assert.Equal(t, ProviderTypeLocal, datasources["scratch"].Type)
	assert.Equal(t, "/tmp/scratch", datasources["scratch"].BaseDir)
}

func TestBindAdapterConfigsRejectsNonMapping(t *testing.T) {
	_, err := bindAdapterConfigs(map[string]interface{}{"broken": "s3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestApplyDatasourceOverrides(t *testing.T) {
	awsCfg := coreconfig.AWSConfig{Region: "us-east-1"}

	datasources, err := bindAdapterConfigs(map[string]interface{}{
		"minio": map[string]interface{}{
			"type":              "s3",
			"endpoint":          "http://minio:9000",
			"region":            "ap-northeast-1",
			"path_style_access": true,
		},
		"gcs-archive": map[string]interface{}{
			"type":     "gcs",
			"endpoint": "http://fake-gcs:4443",
		},
	})
	require.NoError(t, err)

	merged := applyDatasourceOverrides(awsCfg, datasources)
	assert.Equal(t, "http://minio:9000", merged.Endpoint)
	assert.Equal(t, "ap-northeast-1", merged.Region)
	assert.True(t, merged.PathStyleAccess)
}
