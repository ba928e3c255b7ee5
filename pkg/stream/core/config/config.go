package config

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
// This is used when loading configuration from an embedded source (e.g., a compiled binary).
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// StreamConfig holds configuration for the streaming query itself.
type StreamConfig struct {
	// QueryName is the logical name of the streaming query.
	QueryName string `yaml:"query_name"`
	// SourcePath is the object storage location streamed from (e.g., "s3://bucket/input/").
	SourcePath string `yaml:"source_path"`
	// DestPath is the object storage location written to (e.g., "s3://bucket/output/").
	DestPath string `yaml:"dest_path"`
	// CheckpointPath is the engine-managed location recording processed offsets for recovery.
	CheckpointPath string `yaml:"checkpoint_path"`
	// TriggerIntervalSeconds controls how often a new micro-batch is initiated.
	TriggerIntervalSeconds int `yaml:"trigger_interval_seconds"`
	// MaxFilesPerTrigger caps how many new source files a single micro-batch may read.
	MaxFilesPerTrigger int `yaml:"max_files_per_trigger"`
	// OutputFormat selects the sink file format ("json" or "parquet").
	OutputFormat string `yaml:"output_format"`
	// CompressionType is the compression codec for parquet output (e.g., "SNAPPY", "GZIP", "NONE").
	CompressionType string `yaml:"compression_type"`
}

// AWSConfig holds S3 connectivity settings.
type AWSConfig struct {
	// Region is the AWS region (e.g., "us-east-1").
	Region string `yaml:"region"`
	// Endpoint overrides the S3 endpoint URL (for MinIO or other S3-compatible stores).
	Endpoint string `yaml:"endpoint"`
	// AccessKeyID and SecretAccessKey select static credentials. When both are empty,
	// the SDK's default credential chain (instance profile, env, shared config) is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	// PathStyleAccess forces path-style bucket addressing.
	PathStyleAccess bool `yaml:"path_style_access"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
	// File is an optional log file that output is duplicated to alongside stdout.
	File string `yaml:"file"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// MonitorConfig holds settings for the background memory monitor.
type MonitorConfig struct {
	// MemoryIntervalSeconds is the interval between MEMORY_USAGE log lines.
	MemoryIntervalSeconds int `yaml:"memory_interval_seconds"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled switches between the Prometheus recorder and the no-op recorder.
	Enabled bool `yaml:"enabled"`
	// ListenAddress is where the /metrics endpoint is served (e.g., ":9090").
	ListenAddress string `yaml:"listen_address"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	// Enabled switches between the OTel tracer and the no-op tracer.
	Enabled bool `yaml:"enabled"`
	// OTLPEndpoint is the OTLP/gRPC collector endpoint (e.g., "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedConfigKeys is a list of configuration keys whose values should be masked in logs.
	MaskedConfigKeys []string `yaml:"masked_config_keys"`
}

// SwellConfig holds all configuration under the "swell" top-level key.
type SwellConfig struct {
	// Stream contains streaming query specific configurations.
	Stream StreamConfig `yaml:"stream"`
	// System contains system-wide configurations.
	System SystemConfig `yaml:"system"`
	// AWS contains S3 connectivity configurations.
	AWS AWSConfig `yaml:"aws"`
	// Monitor contains background monitor configurations.
	Monitor MonitorConfig `yaml:"monitor"`
	// Metrics contains Prometheus metrics configurations.
	Metrics MetricsConfig `yaml:"metrics"`
	// Tracing contains OpenTelemetry tracing configurations.
	Tracing TracingConfig `yaml:"tracing"`
	// Security contains security-related configurations.
	Security SecurityConfig `yaml:"security"`
	// AdapterConfigs holds configurations for adapters, typically named storage connections.
	AdapterConfigs map[string]interface{} `yaml:"adapter"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	// Swell contains the top-level configuration for the streaming application.
	Swell SwellConfig `yaml:"swell"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// GlobalConfig is a pointer to the configuration instance shared across the application.
// It is expected to be set via fx.Supply or fx.Provide.
var GlobalConfig *Config

// GetMaskedConfigKeys retrieves the list of keys to be masked from the global configuration.
//
// Returns:
//
//	A slice of strings representing the keys whose values should be masked.
func GetMaskedConfigKeys() []string {
	if GlobalConfig == nil {
		return []string{}
	}
	return GlobalConfig.Swell.Security.MaskedConfigKeys
}

// NewConfig returns a new instance of Config with default values.
//
// Returns:
//
//	A pointer to a new Config instance initialized with default settings.
func NewConfig() *Config {
	cfg := &Config{
		Swell: SwellConfig{
			Stream: StreamConfig{
				QueryName:              "s3-stream-processor",
				SourcePath:             "s3://swell-stream-source/input/",
				DestPath:               "s3://swell-stream-dest/output/",
				CheckpointPath:         "s3://swell-stream-check/checkpoint/",
				TriggerIntervalSeconds: 10,
				MaxFilesPerTrigger:     20000,
				OutputFormat:           "json",
				CompressionType:        "SNAPPY",
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging: LoggingConfig{
					Level: "INFO",
					File:  "/tmp/swell_streaming.log",
				},
			},
			AWS: AWSConfig{
				Region: "us-east-1",
			},
			Monitor: MonitorConfig{
				MemoryIntervalSeconds: 5,
			},
			Metrics: MetricsConfig{
				Enabled:       true,
				ListenAddress: ":9090",
			},
			Tracing: TracingConfig{
				Enabled: false,
			},
			Security: SecurityConfig{
				MaskedConfigKeys: []string{"secret_access_key", "access_key_id", "api_key"},
			},
		},
	}

	// Initialize AdapterConfigs as an empty map, to be populated by YAML or by mergeConfig.
	cfg.Swell.AdapterConfigs = map[string]interface{}{}
	return cfg
}
