package config

import (
	"strings"
	"time"
)

// StorageConfig contains remote object storage (S3-compatible) configuration.
// All durable media artifacts (input videos, annotated output videos, results
// JSON) live in a single bucket, keyed by job id.
type StorageConfig struct {
	Endpoint  string `env:"ENDPOINT"   envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"countline"`
	SecretKey string `env:"SECRET_KEY" envDefault:"countline"`
	Bucket    string `env:"BUCKET"     envDefault:"countline-media"`
	UseSSL    bool   `env:"USE_SSL"    envDefault:"false"`

	// PresignExpiry bounds how long a presigned GET URL handed to the
	// detection engine remains valid. Must comfortably exceed the engine
	// processing timeout so the engine can re-fetch on retry.
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"24h"`
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.Bucket = strings.TrimSpace(s.Bucket)
	if s.PresignExpiry < time.Hour {
		s.PresignExpiry = time.Hour
	}
}
