package config

import "go.uber.org/fx"

// NewLoggingConfigProvider exposes the logging section on its own.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Linker.System.Logging
}

// NewPipelineConfigProvider exposes the pipeline section on its own.
func NewPipelineConfigProvider(cfg *Config) *PipelineConfig {
	return &cfg.Linker.Pipeline
}

// Module provides the configuration tree and its frequently used sections.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewPipelineConfigProvider),
)
