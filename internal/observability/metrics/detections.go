package metrics

import (
	"time"

	apperrors "github.com/roadmetrics/countline/internal/errors"
	"github.com/roadmetrics/countline/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// DetectionMetric captures details about a detection lifecycle event
// for metric emission.
type DetectionMetric struct {
	Stage    string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitDetectionLifecycle emits standardised detection pipeline metrics.
func EmitDetectionLifecycle(sink statsd.Sink, in DetectionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"stage":  in.Stage,
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if code := apperrors.CodeOf(in.Err); code != "" {
			tags["error_code"] = string(code)
		}
	}

	sink.Count("detection.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("detection.duration", in.Duration, CloneTags(tags))
	}
}

// SweepMetric captures the outcome of a single sweeper step.
type SweepMetric struct {
	Step     string
	Affected int64
	Errors   int64
	Duration time.Duration
}

// EmitSweep emits standardised sweeper step metrics.
func EmitSweep(sink statsd.Sink, in SweepMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"step": in.Step}
	sink.Count("sweeper.affected", in.Affected, tags)
	if in.Errors > 0 {
		sink.Count("sweeper.errors", in.Errors, CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("sweeper.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
