package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies of NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// loadConfig builds the configuration in three layers: defaults from NewConfig,
// the embedded YAML document, then environment variables (after loading the .env file).
func loadConfig(envFilePath string, embedded EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()

	// Keys absent from the document keep their defaults.
	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	return cfg, nil
}

// LoadConfig loads the configuration without touching global state.
func LoadConfig(envFilePath string, embedded EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embedded)
}

// NewConfigProvider loads, validates and publishes the configuration, then applies
// the logging settings.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err, false, false)
	}

	GlobalConfig = cfg

	logger.SetFormat(cfg.Linker.System.Logging.Format)
	logger.SetLogLevel(cfg.Linker.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Linker.System.Logging.Level)
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	p := c.Linker.Pipeline
	if p.PageSize <= 0 {
		return fmt.Errorf("pipeline.page_size must be positive, got %d", p.PageSize)
	}
	if p.HighThreshold < 0 || p.HighThreshold > 100 {
		return fmt.Errorf("pipeline.high_threshold must be within 0..100, got %d", p.HighThreshold)
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 100 {
		return fmt.Errorf("pipeline.confidence_threshold must be within 0..100, got %d", p.ConfidenceThreshold)
	}
	if p.ConfidenceThreshold > p.HighThreshold {
		return fmt.Errorf("pipeline.confidence_threshold (%d) must not exceed pipeline.high_threshold (%d)", p.ConfidenceThreshold, p.HighThreshold)
	}
	if p.ProgressEvery <= 0 {
		return fmt.Errorf("pipeline.progress_every must be positive, got %d", p.ProgressEvery)
	}
	if p.SkipLimit < 0 {
		return fmt.Errorf("pipeline.skip_limit must not be negative, got %d", p.SkipLimit)
	}
	if p.RetryMaxAttempts < 0 || p.RetryIntervalMillis < 0 {
		return fmt.Errorf("pipeline.retry_max_attempts and pipeline.retry_interval_ms must not be negative")
	}
	for _, name := range p.RetryableErrors {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("pipeline.retryable_errors references unknown error type '%s'", name)
		}
	}
	for _, name := range p.SkippableErrors {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("pipeline.skippable_errors references unknown error type '%s'", name)
		}
	}
	switch strings.ToLower(c.Linker.Observability.OTel.Protocol) {
	case "grpc", "http":
	default:
		return fmt.Errorf("observability.otel.protocol must be grpc or http, got '%s'", c.Linker.Observability.OTel.Protocol)
	}
	return nil
}

// loadStructFromEnv overrides struct fields from environment variables whose names are the
// upper-cased yaml tag path joined by "_", e.g. LINKER_PIPELINE_PAGE_SIZE.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		envName := strings.ToUpper(prefix + tag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envName+"_"); err != nil {
				return err
			}
		case field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String:
			if err := loadSectionsFromEnv(field, envName+"_"); err != nil {
				return err
			}
		default:
			envValue, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			if err := setField(field, envValue); err != nil {
				return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envName, err)
			}
		}
	}
	return nil
}

// loadSectionsFromEnv fills adapter sections (map[string]interface{}) from variables of the
// form <PREFIX><NAME>_<KEY>, e.g. LINKER_DATABASE_CATALOG_HOST=db sets database.catalog.host.
// The section name is the first segment after the prefix; the rest, lower-cased, is the key.
func loadSectionsFromEnv(mapField reflect.Value, prefix string) error {
	if mapField.Type().Elem().Kind() != reflect.Interface {
		return nil
	}
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	sections := mapField.Interface().(map[string]interface{})

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(kv) != 2 {
			continue
		}
		parts := strings.SplitN(kv[0], "_", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		name, key := strings.ToLower(parts[0]), strings.ToLower(parts[1])

		section, ok := sections[name].(map[string]interface{})
		if !ok {
			section = map[string]interface{}{}
			sections[name] = section
		}
		section[key] = kv[1]
	}
	return nil
}

// setField converts value to the field's kind. Slices of strings are comma separated.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element kind %s", field.Type().Elem().Kind())
		}
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
