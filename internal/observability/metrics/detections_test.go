package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/roadmetrics/countline/internal/errors"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

// recordingSink captures emissions for assertions.
type recordingSink struct {
	metrics []recordedMetric
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.metrics = append(r.metrics, recordedMetric{kind: "count", name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.metrics = append(r.metrics, recordedMetric{kind: "gauge", name: name, value: value, tags: tags})
}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.metrics = append(r.metrics, recordedMetric{kind: "timing", name: name, value: float64(value.Milliseconds()), tags: tags})
}

func TestEmitDetectionLifecycle_Success(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}

	EmitDetectionLifecycle(sink, DetectionMetric{
		Stage:    "completed",
		Result:   ResultSuccess,
		Duration: 90 * time.Second,
	})

	require.Len(t, sink.metrics, 2)
	count := sink.metrics[0]
	assert.Equal(t, "count", count.kind)
	assert.Equal(t, "detection.transition", count.name)
	assert.Equal(t, map[string]string{"stage": "completed", "result": "success"}, count.tags)

	timing := sink.metrics[1]
	assert.Equal(t, "timing", timing.kind)
	assert.Equal(t, "detection.duration", timing.name)
	assert.Equal(t, float64(90000), timing.value)
}

func TestEmitDetectionLifecycle_ErrorTagsCode(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}

	EmitDetectionLifecycle(sink, DetectionMetric{
		Stage:  "error",
		Result: ResultError,
		Err:    apperrors.Engine("engine exited abnormally", errors.New("exit status 1")),
	})

	require.Len(t, sink.metrics, 1)
	assert.Equal(t, "engine", sink.metrics[0].tags["error_code"])
}

func TestEmitDetectionLifecycle_NilSink(t *testing.T) {
	t.Parallel()
	EmitDetectionLifecycle(nil, DetectionMetric{Stage: "completed", Result: ResultSuccess})
}

func TestEmitSweep(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}

	EmitSweep(sink, SweepMetric{
		Step:     "fail stuck jobs",
		Affected: 3,
		Errors:   1,
		Duration: time.Second,
	})

	require.Len(t, sink.metrics, 3)
	assert.Equal(t, "sweeper.affected", sink.metrics[0].name)
	assert.Equal(t, float64(3), sink.metrics[0].value)
	assert.Equal(t, "sweeper.errors", sink.metrics[1].name)
	assert.Equal(t, "sweeper.duration", sink.metrics[2].name)
	assert.Equal(t, map[string]string{"step": "fail stuck jobs"}, sink.metrics[0].tags)
}

func TestEmitSweep_NoErrorsNoDuration(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}

	EmitSweep(sink, SweepMetric{Step: "expire completed jobs", Affected: 0})

	require.Len(t, sink.metrics, 1)
	assert.Equal(t, "sweeper.affected", sink.metrics[0].name)
}

func TestCloneTags(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CloneTags(nil))
	assert.Nil(t, CloneTags(map[string]string{}))

	src := map[string]string{"a": "1", "": "drop"}
	got := CloneTags(src)
	assert.Equal(t, map[string]string{"a": "1"}, got)

	got["a"] = "2"
	assert.Equal(t, "1", src["a"])
}
