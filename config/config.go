// Package config defines the environment-driven configuration for the
// countline detection pipeline.
package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres and Redis configuration
//   - storage.go: remote object storage configuration
//   - engine.go: detection engine configuration
//   - pipeline.go: upload intake and pipeline configuration
//   - sweeper.go: reconciliation sweeper configuration
//   - http.go: HTTP server configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, etc.)
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Remote object storage configuration
	Storage StorageConfig `envPrefix:"STORAGE_"`

	// Detection engine configuration
	Engine EngineConfig

	// Upload intake and pipeline configuration
	Pipeline PipelineConfig

	// Reconciliation sweeper configuration
	Sweeper SweeperConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,pipeline"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Storage.Sanitize()
	c.Engine.Sanitize()
	c.Pipeline.Sanitize()
	c.Sweeper.Sanitize()
	c.HTTP.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isServiceEnabled(ServiceModeHTTP)
}

// IsPipelineEnabled returns true if the detection pipeline service is enabled.
func (c *AppConfig) IsPipelineEnabled() bool {
	return c.isServiceEnabled(ServiceModePipeline)
}

// IsSweeperEnabled returns true if the reconciliation sweeper is enabled.
func (c *AppConfig) IsSweeperEnabled() bool {
	return c.isServiceEnabled(ServiceModeSweeper)
}

func (c *AppConfig) isServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
