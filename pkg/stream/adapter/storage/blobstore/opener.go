package blobstore

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	coreconfig "github.com/tigerroll/swell/pkg/stream/core/config"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

const (
	// ProviderTypeS3 identifies the S3-compatible backend.
	ProviderTypeS3 = "s3"
	// ProviderTypeGCS identifies the Google Cloud Storage backend.
	ProviderTypeGCS = "gcs"
	// ProviderTypeLocal identifies the local file system backend.
	ProviderTypeLocal = "local"
)

// bucketOpener opens the underlying bucket handle for one backend type.
type bucketOpener func(ctx context.Context, bucket string) (*blobConnection, error)

// Provider implements storage.StorageProvider for one backend type, caching
// connections per bucket.
type Provider struct {
	providerType string
	open         bucketOpener
	connections  map[string]storageAdapter.StorageConnection
	mu           sync.RWMutex
}

func newProvider(providerType string, open bucketOpener) *Provider {
	return &Provider{
		providerType: providerType,
		open:         open,
		connections:  make(map[string]storageAdapter.StorageConnection),
	}
}

// GetConnection retrieves a connection to the named bucket, creating it on
// first use.
func (p *Provider) GetConnection(ctx context.Context, bucket string) (storageAdapter.StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[bucket]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring lock
	conn, ok = p.connections[bucket]
	if ok {
		return conn, nil
	}

	newConn, err := p.open(ctx, bucket)
	if err != nil {
		return nil, err
	}
	p.connections[bucket] = newConn
	logger.Debugf("Created new %s storage connection '%s'.", p.providerType, bucket)
	return newConn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = exception.NewStreamErrorf("storage", "failed to close %s storage connection '%s'", p.providerType, name, err)
		}
		delete(p.connections, name)
	}
	return firstErr
}

// Type returns the backend type handled by this provider.
func (p *Provider) Type() string {
	return p.providerType
}

var _ storageAdapter.StorageProvider = (*Provider)(nil)

// NewS3Provider creates a provider for S3-compatible backends using the AWS
// SDK v2 client, honoring custom endpoints and path-style addressing for
// MinIO-style deployments.
func NewS3Provider(awsCfg coreconfig.AWSConfig) *Provider {
	return newProvider(ProviderTypeS3, func(ctx context.Context, bucket string) (*blobConnection, error) {
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(awsCfg.Region),
		}
		if awsCfg.AccessKeyID != "" && awsCfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(awsCfg.AccessKeyID, awsCfg.SecretAccessKey, ""),
			))
		}
		sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, exception.NewStreamErrorf("storage", "failed to load AWS configuration for bucket '%s'", bucket, err)
		}

		client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
			if awsCfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(awsCfg.Endpoint)
			}
			o.UsePathStyle = awsCfg.PathStyleAccess
		})

		b, err := s3blob.OpenBucketV2(ctx, client, bucket, nil)
		if err != nil {
			return nil, exception.NewStreamErrorf("storage", "failed to open S3 bucket '%s'", bucket, err)
		}
		return newBlobConnection(b, ProviderTypeS3, bucket), nil
	})
}

// NewGCSProvider creates a provider for Google Cloud Storage using application
// default credentials.
func NewGCSProvider() *Provider {
	return newProvider(ProviderTypeGCS, func(ctx context.Context, bucket string) (*blobConnection, error) {
		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, exception.NewStreamErrorf("storage", "failed to load GCP credentials for bucket '%s'", bucket, err)
		}
		client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
		if err != nil {
			return nil, exception.NewStreamErrorf("storage", "failed to create GCP HTTP client for bucket '%s'", bucket, err)
		}
		b, err := gcsblob.OpenBucket(ctx, client, bucket, nil)
		if err != nil {
			return nil, exception.NewStreamErrorf("storage", "failed to open GCS bucket '%s'", bucket, err)
		}
		return newBlobConnection(b, ProviderTypeGCS, bucket), nil
	})
}

// NewLocalProvider creates a provider backed by local directories. The
// "bucket" is the directory path, which is created when missing.
func NewLocalProvider() *Provider {
	return newProvider(ProviderTypeLocal, func(ctx context.Context, dir string) (*blobConnection, error) {
		b, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
		if err != nil {
			return nil, exception.NewStreamErrorf("storage", "failed to open local directory '%s'", dir, err)
		}
		return newBlobConnection(b, ProviderTypeLocal, dir), nil
	})
}

// Resolver resolves storage URLs into connections using a provider per
// backend type.
type Resolver struct {
	providers map[string]*Provider
}

var _ storageAdapter.ConnectionResolver = (*Resolver)(nil)

// NewResolver creates a resolver covering the S3, GCS and local backends.
func NewResolver(awsCfg coreconfig.AWSConfig) *Resolver {
	return &Resolver{
		providers: map[string]*Provider{
			ProviderTypeS3:    NewS3Provider(awsCfg),
			ProviderTypeGCS:   NewGCSProvider(),
			ProviderTypeLocal: NewLocalProvider(),
		},
	}
}

// Resolve parses a storage URL such as "s3://bucket/prefix/" or
// "file:///data/in/" and returns an open connection together with the key
// prefix inside the bucket. Plain paths without a scheme resolve to the local
// backend.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (storageAdapter.StorageConnection, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", exception.NewStreamErrorf("storage", "invalid storage URL '%s'", rawURL, err)
	}

	switch u.Scheme {
	case "s3", "s3a", "s3n":
		conn, err := r.providers[ProviderTypeS3].GetConnection(ctx, u.Host)
		if err != nil {
			return nil, "", err
		}
		return conn, strings.TrimPrefix(u.Path, "/"), nil
	case "gs", "gcs":
		conn, err := r.providers[ProviderTypeGCS].GetConnection(ctx, u.Host)
		if err != nil {
			return nil, "", err
		}
		return conn, strings.TrimPrefix(u.Path, "/"), nil
	case "file", "":
		dir := u.Path
		if u.Scheme == "" {
			dir = rawURL
		}
		conn, err := r.providers[ProviderTypeLocal].GetConnection(ctx, filepath.Clean(dir))
		if err != nil {
			return nil, "", err
		}
		return conn, "", nil
	default:
		return nil, "", exception.NewStreamErrorf("storage", "unsupported storage scheme '%s' in URL '%s'", u.Scheme, rawURL)
	}
}

// CloseAll closes every connection opened through this resolver.
func (r *Resolver) CloseAll() error {
	var firstErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
