package config

import "time"

// SweeperConfig contains reconciliation and cleanup sweeper configuration.
// The sweeper runs two independent cadences: a frequent recovery sweep for
// stuck jobs and an infrequent retention sweep for expired and orphaned
// artifacts.
type SweeperConfig struct {
	// RecoveryInterval is the cadence for the stuck-job recovery sweep.
	RecoveryInterval time.Duration `env:"SWEEPER_RECOVERY_INTERVAL" envDefault:"1h"`

	// RetentionInterval is the cadence for the retention and orphan sweep.
	RetentionInterval time.Duration `env:"SWEEPER_RETENTION_INTERVAL" envDefault:"24h"`

	// ProcessingTimeout is the maximum silence tolerated from an in-flight
	// job. A job whose last progress marker is older than this and that has
	// no terminal row is forced to failed.
	ProcessingTimeout time.Duration `env:"SWEEPER_PROCESSING_TIMEOUT" envDefault:"3h"`

	// RetentionWindow is how long completed jobs and their remote artifacts
	// are kept before expiry.
	RetentionWindow time.Duration `env:"SWEEPER_RETENTION_WINDOW" envDefault:"720h"` // 30 days

	// OrphanMinAge is the minimum age before a scratch directory or remote
	// object with no matching job row is considered orphaned. Guards against
	// racing a job whose terminal write has simply not landed yet.
	OrphanMinAge time.Duration `env:"SWEEPER_ORPHAN_MIN_AGE" envDefault:"6h"`

	// BatchSize caps rows processed per sweep step.
	BatchSize int `env:"SWEEPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	if s.RecoveryInterval < time.Minute {
		s.RecoveryInterval = time.Minute
	}
	if s.RetentionInterval < time.Hour {
		s.RetentionInterval = time.Hour
	}
	if s.ProcessingTimeout < 5*time.Minute {
		s.ProcessingTimeout = 5 * time.Minute
	}
	if s.RetentionWindow < 24*time.Hour {
		s.RetentionWindow = 24 * time.Hour
	}
	if s.OrphanMinAge < time.Hour {
		s.OrphanMinAge = time.Hour
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
}
