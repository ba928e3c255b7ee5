package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`              // Type of storage (e.g., "s3", "gcs", "local").
	BucketName      string `yaml:"bucket_name"`       // Default bucket name for operations.
	Region          string `yaml:"region"`            // Region for S3-compatible backends.
	Endpoint        string `yaml:"endpoint"`          // Custom endpoint for S3-compatible backends (e.g., MinIO).
	PathStyleAccess bool   `yaml:"path_style_access"` // Use path-style addressing for S3-compatible backends.
	CredentialsFile string `yaml:"credentials_file"`  // Path to credentials file (e.g., service account key for GCS).
	BaseDir         string `yaml:"base_dir"`          // Base directory for local file system operations.
}

// DatasourcesConfig holds a map of named storage configurations.
type DatasourcesConfig map[string]StorageConfig
