package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig // EmbeddedConfig contains the raw bytes of the configuration file.
	EnvFilePath    string         `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
}

// loadConfig loads configuration from a file and environment variables.
// This function is intended to be called only once during application startup.
//
// Parameters:
//
//	envFilePath: The path to the .env file.
//	embeddedConfig: The embedded configuration bytes.
//
// Returns:
//
//	A pointer to the loaded Config and an error if loading fails.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	// 1. Load defaults from NewConfig()
	cfg := NewConfig()

	// 2. Load configuration from embedded YAML into a temporary Config struct,
	// after expanding ${VAR} placeholders from the environment.
	expander := NewOsEnvironmentExpander()
	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewStreamError(moduleName, "failed to expand environment placeholders in embedded config", err, false)
	}

	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.NewStreamError(moduleName, "failed to unmarshal embedded config", err, false)
	}

	// 3. Merge YAML configuration into the default configuration.
	mergeConfig(cfg, &yamlConfig)

	// 4. Override with SWELL_* environment variables derived from the yaml tags.
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewStreamError(moduleName, "failed to load config from environment variables", err, false)
	}

	// 5. Apply the flat process environment surface (SOURCE_BUCKET, AWS_REGION, ...).
	applyProcessEnvironment(cfg)

	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It initializes the application configuration by loading defaults,
// merging from embedded YAML, and overriding with environment variables.
// It also sets the global logger level and log file.
//
// Parameters:
//
//	params: ConfigParams containing dependencies like embedded config and env file path.
//
// Returns:
//
//	A pointer to the initialized Config and an error if configuration loading fails.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, exception.NewStreamError(moduleName, "failed to load configuration", err, false)
	}

	// Set global configuration
	GlobalConfig = cfg

	// Set log level and log file
	logger.SetLogLevel(cfg.Swell.System.Logging.Level)
	if err := logger.SetLogFile(cfg.Swell.System.Logging.File); err != nil {
		logger.Warnf("Could not open log file '%s'. Logging to stdout only: %v", cfg.Swell.System.Logging.File, err)
	}
	logger.Infof("Log level set to: %s", cfg.Swell.System.Logging.Level)

	return cfg, nil
}

// LoadConfig loads configuration from configuration files and environment variables.
// This function is expected to be called only once during application startup.
//
// Parameters:
//
//	envFilePath: The path to the .env file.
//	embeddedConfig: The embedded configuration bytes.
//
// Returns:
//
//	A pointer to the loaded Config and an error if loading fails.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig)
}

// applyProcessEnvironment maps the flat environment variable surface of the application
// (the variables an operator actually sets on the container) onto the structured config.
// These take precedence over YAML and over the SWELL_* derived variables.
func applyProcessEnvironment(cfg *Config) {
	if v, ok := os.LookupEnv("SOURCE_BUCKET"); ok {
		cfg.Swell.Stream.SourcePath = bucketURL(v, "input/")
	}
	if v, ok := os.LookupEnv("DEST_BUCKET"); ok {
		cfg.Swell.Stream.DestPath = bucketURL(v, "output/")
		// A bare bucket name also hosts the checkpoint data. A full URL is a
		// complete output path, so the checkpoint location stays independent.
		if !strings.Contains(v, "://") {
			cfg.Swell.Stream.CheckpointPath = bucketURL(v, "checkpoints/")
		}
	}
	if v, ok := os.LookupEnv("CHECKPOINT_LOCATION"); ok {
		cfg.Swell.Stream.CheckpointPath = v
	}
	if v, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.Swell.System.Logging.File = v
	}
	if v, ok := os.LookupEnv("MAX_FILES_PER_TRIGGER"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Swell.Stream.MaxFilesPerTrigger = n
		} else {
			logger.Warnf("MAX_FILES_PER_TRIGGER value '%s' is not an integer. Keeping %d.", v, cfg.Swell.Stream.MaxFilesPerTrigger)
		}
	}
	if v, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
		cfg.Swell.AWS.AccessKeyID = v
	}
	if v, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
		cfg.Swell.AWS.SecretAccessKey = v
	}
	if v, ok := os.LookupEnv("AWS_REGION"); ok {
		cfg.Swell.AWS.Region = v
	}
	if v, ok := os.LookupEnv("AWS_S3_ENDPOINT"); ok {
		cfg.Swell.AWS.Endpoint = v
	}
}

// bucketURL turns a bare bucket name into an s3:// URL with the given
// sub-path. Values that already carry a scheme pass through unchanged.
func bucketURL(bucket, subPath string) string {
	if strings.Contains(bucket, "://") {
		return bucket
	}
	return "s3://" + bucket + "/" + subPath
}

// mergeConfig performs a deep merge from sourceConfig into destConfig.
// Values in sourceConfig will overwrite corresponding values in destConfig
// if they are not zero/empty values for their type.
//
// Parameters:
//
//	destConfig: The destination Config to merge into.
//	sourceConfig: The source Config to merge from.
func mergeConfig(destConfig, sourceConfig *Config) {
	mergeSwellConfig(&destConfig.Swell, &sourceConfig.Swell)
}

// mergeSwellConfig merges source into dest.
func mergeSwellConfig(dest, source *SwellConfig) {
	// Merge StreamConfig
	if source.Stream.QueryName != "" {
		dest.Stream.QueryName = source.Stream.QueryName
	}
	if source.Stream.SourcePath != "" {
		dest.Stream.SourcePath = source.Stream.SourcePath
	}
	if source.Stream.DestPath != "" {
		dest.Stream.DestPath = source.Stream.DestPath
	}
	if source.Stream.CheckpointPath != "" {
		dest.Stream.CheckpointPath = source.Stream.CheckpointPath
	}
	if source.Stream.TriggerIntervalSeconds != 0 {
		dest.Stream.TriggerIntervalSeconds = source.Stream.TriggerIntervalSeconds
	}
	if source.Stream.MaxFilesPerTrigger != 0 {
		dest.Stream.MaxFilesPerTrigger = source.Stream.MaxFilesPerTrigger
	}
	if source.Stream.OutputFormat != "" {
		dest.Stream.OutputFormat = source.Stream.OutputFormat
	}
	if source.Stream.CompressionType != "" {
		dest.Stream.CompressionType = source.Stream.CompressionType
	}

	// Merge SystemConfig
	if source.System.Timezone != "" {
		dest.System.Timezone = source.System.Timezone
	}
	if source.System.Logging.Level != "" {
		dest.System.Logging.Level = source.System.Logging.Level
	}
	if source.System.Logging.File != "" {
		dest.System.Logging.File = source.System.Logging.File
	}

	// Merge AWSConfig
	if source.AWS.Region != "" {
		dest.AWS.Region = source.AWS.Region
	}
	if source.AWS.Endpoint != "" {
		dest.AWS.Endpoint = source.AWS.Endpoint
	}
	if source.AWS.AccessKeyID != "" {
		dest.AWS.AccessKeyID = source.AWS.AccessKeyID
	}
	if source.AWS.SecretAccessKey != "" {
		dest.AWS.SecretAccessKey = source.AWS.SecretAccessKey
	}
	if source.AWS.PathStyleAccess {
		dest.AWS.PathStyleAccess = true
	}

	// Merge MonitorConfig
	if source.Monitor.MemoryIntervalSeconds != 0 {
		dest.Monitor.MemoryIntervalSeconds = source.Monitor.MemoryIntervalSeconds
	}

	// Merge MetricsConfig
	if source.Metrics.ListenAddress != "" {
		dest.Metrics.ListenAddress = source.Metrics.ListenAddress
	}
	if source.Metrics.Enabled {
		dest.Metrics.Enabled = true
	}

	// Merge TracingConfig
	if source.Tracing.OTLPEndpoint != "" {
		dest.Tracing.OTLPEndpoint = source.Tracing.OTLPEndpoint
	}
	if source.Tracing.Enabled {
		dest.Tracing.Enabled = true
	}

	// Merge SecurityConfig
	if source.Security.MaskedConfigKeys != nil {
		dest.Security.MaskedConfigKeys = source.Security.MaskedConfigKeys
	}

	// Merge AdapterConfigs (named storage connections and similar)
	if source.AdapterConfigs != nil {
		if dest.AdapterConfigs == nil {
			dest.AdapterConfigs = make(map[string]interface{})
		}
		for key, value := range source.AdapterConfigs {
			dest.AdapterConfigs[key] = value
		}
	}
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
//
// Parameters:
//
//	val: The reflect.Value of the struct to populate.
//	prefix: The prefix for environment variable names (e.g., "SWELL_STREAM_").
//
// Returns: An error if any field cannot be set.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}

		if err := setField(field, envValue); err != nil {
			return exception.NewStreamErrorf(moduleName, "failed to set field '%s' from env var '%s'", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, and bool types.
//
// Parameters:
//
//	field: The reflect.Value of the field to set.
//	value: The string value to convert and set.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
