package operations

import (
	"time"
)

// Config represents the operation execution configuration
type Config struct {
	// Step-specific timeouts, applied per attempt
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`

	// Retry configuration for steps
	RetryConfig RetryConfig `json:"retry_config"`

	// Whether independent steps keep running after a failure
	ContinueOnError bool `json:"continue_on_error"`
}

// NewConfig returns the default operation configuration
func NewConfig() *Config {
	return &Config{
		StageTimeouts: map[string]time.Duration{
			StepIDPrepare:    DefaultPrepareTimeout,
			StepIDPreprocess: DefaultPreprocessTimeout,
			StepIDFeatures:   DefaultFeaturesTimeout,
			StepIDAugment:    DefaultAugmentTimeout,
			StepIDNER:        DefaultNERTimeout,
		},
		RetryConfig: NewRetryConfig(),
	}
}

// GetStageTimeout returns the timeout for a specific step
func (c *Config) GetStageTimeout(stepID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stepID]; ok && timeout > 0 {
		return timeout
	}
	return DefaultStageTimeout
}

// SetStageTimeout sets the timeout for a specific step
func (c *Config) SetStageTimeout(stepID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stepID] = timeout
}

// ConfigBuilder provides a fluent interface for building operation configurations
type ConfigBuilder struct {
	config *Config
}

// NewConfigBuilder creates a new configuration builder
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: NewConfig(),
	}
}

// WithStageTimeout sets the timeout for a step
func (b *ConfigBuilder) WithStageTimeout(stepID string, timeout time.Duration) *ConfigBuilder {
	b.config.SetStageTimeout(stepID, timeout)
	return b
}

// WithRetryConfig sets the retry configuration
func (b *ConfigBuilder) WithRetryConfig(config RetryConfig) *ConfigBuilder {
	b.config.RetryConfig = config
	return b
}

// WithContinueOnError sets whether to continue on errors
func (b *ConfigBuilder) WithContinueOnError(continueOnError bool) *ConfigBuilder {
	b.config.ContinueOnError = continueOnError
	return b
}

// Build returns the built configuration
func (b *ConfigBuilder) Build() *Config {
	if b.config.RetryConfig.MaxAttempts <= 0 {
		b.config.RetryConfig.MaxAttempts = 1
	}
	return b.config
}
