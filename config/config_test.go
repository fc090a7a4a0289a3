package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    map[ServiceMode]bool
		wantErr string
	}{
		{
			name:  "single service",
			input: "http",
			want:  map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:  "all services",
			input: "http,pipeline,sweeper",
			want: map[ServiceMode]bool{
				ServiceModeHTTP:     true,
				ServiceModePipeline: true,
				ServiceModeSweeper:  true,
			},
		},
		{
			name:  "whitespace and empty parts tolerated",
			input: " http , ,pipeline ",
			want: map[ServiceMode]bool{
				ServiceModeHTTP:     true,
				ServiceModePipeline: true,
			},
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: "at least one service",
		},
		{
			name:    "only separators",
			input:   ", ,",
			wantErr: "at least one valid service",
		},
		{
			name:    "unknown service",
			input:   "http,worker",
			wantErr: `invalid service name: "worker"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseServices(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppConfig_ServiceEnabledHelpers(t *testing.T) {
	t.Parallel()

	cfg := AppConfig{Services: "http,sweeper"}
	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsPipelineEnabled())
	assert.True(t, cfg.IsSweeperEnabled())

	broken := AppConfig{Services: "bogus"}
	assert.False(t, broken.IsHTTPServerEnabled())
}

func TestPipelineConfig_Sanitize(t *testing.T) {
	t.Parallel()

	cfg := PipelineConfig{
		MaxUploadBytes:      -1,
		AllowedContentTypes: []string{" Video/MP4 ", "", "video/quicktime"},
		Concurrency:         0,
		ScratchRoot:         "  ",
		ProgressTTL:         time.Minute,
	}
	cfg.Sanitize()

	assert.Equal(t, int64(1<<31), cfg.MaxUploadBytes)
	assert.Equal(t, int64(1), cfg.Concurrency)
	assert.Equal(t, "/var/tmp/countline", cfg.ScratchRoot)
	assert.Equal(t, time.Hour, cfg.ProgressTTL)
	assert.Equal(t, []string{"video/mp4", "video/quicktime"}, cfg.AllowedContentTypes)
}

func TestPipelineConfig_ContentTypeAllowed(t *testing.T) {
	t.Parallel()

	cfg := PipelineConfig{AllowedContentTypes: []string{"video/mp4", "video/quicktime"}}

	assert.True(t, cfg.ContentTypeAllowed("video/mp4"))
	assert.True(t, cfg.ContentTypeAllowed("VIDEO/MP4"))
	assert.True(t, cfg.ContentTypeAllowed(" video/quicktime "))
	assert.True(t, cfg.ContentTypeAllowed("video/mp4; codecs=avc1"))
	assert.False(t, cfg.ContentTypeAllowed("video/webm"))
	assert.False(t, cfg.ContentTypeAllowed(""))
	assert.False(t, cfg.ContentTypeAllowed("video/mp4x"))
}

func TestEngineConfig_Sanitize(t *testing.T) {
	t.Parallel()

	cfg := EngineConfig{
		BinaryPath: " /opt/engine ",
		BinaryName: "  ",
		Timeout:    time.Second,
		Threads:    -4,
	}
	cfg.Sanitize()

	assert.Equal(t, "/opt/engine", cfg.BinaryPath)
	assert.Equal(t, "countline-engine", cfg.BinaryName)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, 0, cfg.Threads)
}

func TestSweeperConfig_Sanitize(t *testing.T) {
	t.Parallel()

	cfg := SweeperConfig{}
	cfg.Sanitize()

	assert.Equal(t, time.Minute, cfg.RecoveryInterval)
	assert.Equal(t, time.Hour, cfg.RetentionInterval)
	assert.Equal(t, 5*time.Minute, cfg.ProcessingTimeout)
	assert.Equal(t, 24*time.Hour, cfg.RetentionWindow)
	assert.Equal(t, time.Hour, cfg.OrphanMinAge)
	assert.Equal(t, 1, cfg.BatchSize)
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	t.Parallel()

	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	cfg.Sanitize()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.IsEnabled())

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " 127.0.0.1:8125 "}
	cfg.Sanitize()
	assert.Equal(t, "127.0.0.1:8125", cfg.StatsdAddress)
	assert.True(t, cfg.IsEnabled())
}
