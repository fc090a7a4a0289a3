package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/roadmetrics/countline/internal/domain/model"
)

// Results is the schema of the engine's results artifact. The engine writes
// it next to the output video on success; a missing or malformed artifact is
// an invocation failure, never success-with-partial-data.
type Results struct {
	TotalFrames   int                `json:"totalFrames"`
	TotalVehicles int                `json:"totalVehicles"`
	Accuracy      float64            `json:"accuracy"`
	CountingData  model.CountingData `json:"countingData"`
}

// maxResultsBytes caps how much of the artifact we are willing to read; a
// results file larger than this is malformed by definition.
const maxResultsBytes = 16 << 20

// ParseResults decodes and validates a results artifact. Validation enforces
// the counting contract the pipeline relies on: every counted track id is
// unique and the per-lane buckets sum to the unique track count.
//
// Known upstream limitation: when occlusion makes the engine assign a new
// track id to the same physical vehicle, it is counted again. That duplicate
// is invisible here because the track ids genuinely differ.
func ParseResults(r io.Reader) (*Results, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxResultsBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read results artifact: %w", err)
	}
	if len(raw) > maxResultsBytes {
		return nil, fmt.Errorf("results artifact exceeds %d bytes", maxResultsBytes)
	}

	var results Results
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode results artifact: %w", err)
	}

	if results.TotalFrames < 0 {
		return nil, fmt.Errorf("results artifact reports negative totalFrames %d", results.TotalFrames)
	}
	if results.Accuracy < 0 || results.Accuracy > 100 {
		return nil, fmt.Errorf("results artifact reports accuracy %v outside 0..100", results.Accuracy)
	}
	if results.CountingData.LinePosition < 0 {
		return nil, fmt.Errorf("results artifact reports negative linePosition %d", results.CountingData.LinePosition)
	}
	if err := results.CountingData.Validate(); err != nil {
		return nil, fmt.Errorf("results artifact counting data: %w", err)
	}
	if results.TotalVehicles != results.CountingData.TotalCounted {
		return nil, fmt.Errorf(
			"results artifact totalVehicles %d does not match countingData.totalCounted %d",
			results.TotalVehicles, results.CountingData.TotalCounted,
		)
	}

	return &results, nil
}

// ParseResultsFile opens and parses the results artifact at path.
func ParseResultsFile(path string) (*Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results artifact: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return ParseResults(f)
}
