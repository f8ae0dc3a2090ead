// Package config holds the image linker configuration tree and its loader.
package config

// EmbeddedConfig holds the raw bytes of application.yaml, typically embedded by main.
type EmbeddedConfig []byte

// LogLevel names a logging level.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

// Config is the root of the configuration tree.
type Config struct {
	Linker LinkerConfig `yaml:"linker"`
}

// LinkerConfig groups every setting of the application.
type LinkerConfig struct {
	System         SystemConfig         `yaml:"system"`
	Pipeline       PipelineConfig       `yaml:"pipeline"`
	Server         ServerConfig         `yaml:"server"`
	Report         ReportConfig         `yaml:"report"`
	Observability  ObservabilityConfig  `yaml:"observability"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	// Database maps a connection name to its raw settings; decoded into
	// dbconfig.DatabaseConfig by the database providers.
	Database map[string]interface{} `yaml:"database"`
	// Storage maps a storage name to its raw settings; decoded into
	// storageconfig.StorageConfig by the storage providers.
	Storage map[string]interface{} `yaml:"storage"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the application logger and the GORM logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
	// SQLLevel is the GORM log level (SILENT, ERROR, WARN, INFO).
	SQLLevel string `yaml:"sql_level"`
}

// PipelineConfig tunes the matching run.
type PipelineConfig struct {
	// Bucket and Prefix select the objects scanned by the storage lister.
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	// PageSize is the number of objects requested per listing call.
	PageSize int `yaml:"page_size"`
	// HighThreshold is the minimum confidence for an auto-confirmed image link.
	// It is server-side only; requests cannot lower it.
	HighThreshold int `yaml:"high_threshold"`
	// ConfidenceThreshold is the default minimum confidence for a review candidate.
	ConfidenceThreshold int `yaml:"confidence_threshold"`
	// ProgressEvery is the number of items between persisted progress updates.
	ProgressEvery int `yaml:"progress_every"`
	// SkipLimit caps the per-item errors tolerated in one step; 0 means unlimited.
	SkipLimit int `yaml:"skip_limit"`
	// SkippableErrors lists registered error names treated as per-item failures
	// in addition to errors already flagged skippable.
	SkippableErrors []string `yaml:"skippable_errors"`
	// ListRatePerSecond throttles storage page fetches; 0 disables throttling.
	ListRatePerSecond float64 `yaml:"list_rate_per_second"`
	ListBurst         int     `yaml:"list_burst"`
	// RetryMaxAttempts is the number of attempts for a storage page or an item write
	// failing with a transient error; 1 disables retries.
	RetryMaxAttempts int `yaml:"retry_max_attempts"`
	// RetryIntervalMillis is the first backoff; it doubles on each further attempt.
	RetryIntervalMillis int `yaml:"retry_interval_ms"`
	// RetryableErrors lists registered error names retried in addition to transient ones.
	RetryableErrors []string `yaml:"retryable_errors"`
}

type ServerConfig struct {
	Address                string `yaml:"address"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// ReportConfig controls the Parquet match report written by the summarize step.
type ReportConfig struct {
	Enabled    bool   `yaml:"enabled"`
	StorageRef string `yaml:"storage_ref"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`

	// Compression is SNAPPY (default), GZIP or NONE.
	Compression string `yaml:"compression"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	OTel    OTelConfig    `yaml:"otel"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// OTelConfig configures OpenTelemetry trace and metric export.
type OTelConfig struct {
	Enabled bool `yaml:"enabled"`
	// Protocol is "grpc" or "http".
	Protocol    string `yaml:"protocol"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// InfrastructureConfig names which configured connections each component uses.
type InfrastructureConfig struct {
	CatalogDBRef string `yaml:"catalog_db_ref"`
	SessionDBRef string `yaml:"session_db_ref"`
	StorageRef   string `yaml:"storage_ref"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// GlobalConfig is set by NewConfigProvider.
var GlobalConfig *Config

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Linker: LinkerConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging: LoggingConfig{
					Level:    string(LogLevelInfo),
					Format:   "console",
					SQLLevel: string(LogLevelSilent),
				},
			},
			Pipeline: PipelineConfig{
				PageSize:            500,
				HighThreshold:       85,
				ConfidenceThreshold: 70,
				ProgressEvery:       50,
				ListBurst:           1,
				RetryMaxAttempts:    3,
				RetryIntervalMillis: 200,
			},
			Server: ServerConfig{
				Address:                ":8080",
				ShutdownTimeoutSeconds: 15,
			},
			Report: ReportConfig{
				Prefix: "reports/",
			},
			Observability: ObservabilityConfig{
				Metrics: MetricsConfig{Enabled: true, Namespace: "imagelink"},
				OTel:    OTelConfig{Protocol: "grpc", ServiceName: "imagelinker"},
			},
			Infrastructure: InfrastructureConfig{
				CatalogDBRef: "catalog",
				SessionDBRef: "catalog",
				StorageRef:   "images",
			},
			Database: map[string]interface{}{},
			Storage:  map[string]interface{}{},
		},
	}
}
