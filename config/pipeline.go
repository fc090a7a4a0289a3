package config

import (
	"strings"
	"time"
)

// PipelineConfig contains upload intake and detection pipeline configuration.
type PipelineConfig struct {
	// MaxUploadBytes is the maximum accepted video size. Requests declaring
	// or streaming more than this are rejected before any storage I/O.
	MaxUploadBytes int64 `env:"PIPELINE_MAX_UPLOAD_BYTES" envDefault:"2147483648"` // 2 GiB

	// AllowedContentTypes is the comma-separated allow-list of video MIME types.
	AllowedContentTypes []string `env:"PIPELINE_ALLOWED_CONTENT_TYPES" envSeparator:"," envDefault:"video/mp4,video/quicktime,video/x-msvideo,video/x-matroska"`

	// Concurrency bounds simultaneous engine invocations. Jobs beyond the
	// bound wait in a queued stage rather than spawning unbounded work.
	Concurrency int64 `env:"PIPELINE_CONCURRENCY" envDefault:"2"`

	// ScratchRoot is the local directory holding per-job scratch
	// directories while a job is processing.
	ScratchRoot string `env:"PIPELINE_SCRATCH_ROOT" envDefault:"/var/tmp/countline"`

	// ProgressTTL bounds how long an in-flight progress marker survives in
	// Redis with no further events. Must exceed the engine timeout so a
	// stuck job is still discoverable by the sweeper.
	ProgressTTL time.Duration `env:"PIPELINE_PROGRESS_TTL" envDefault:"48h"`
}

// Sanitize applies guardrails to pipeline configuration values.
func (p *PipelineConfig) Sanitize() {
	if p.MaxUploadBytes < 1 {
		p.MaxUploadBytes = 1 << 31
	}
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	p.ScratchRoot = strings.TrimSpace(p.ScratchRoot)
	if p.ScratchRoot == "" {
		p.ScratchRoot = "/var/tmp/countline"
	}
	if p.ProgressTTL < time.Hour {
		p.ProgressTTL = time.Hour
	}

	types := p.AllowedContentTypes[:0]
	for _, t := range p.AllowedContentTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			types = append(types, t)
		}
	}
	p.AllowedContentTypes = types
}

// ContentTypeAllowed reports whether the given MIME type is accepted for upload.
func (p *PipelineConfig) ContentTypeAllowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, allowed := range p.AllowedContentTypes {
		if ct == allowed {
			return true
		}
	}
	return false
}
