package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ObjectKind identifies which artifact of a job a remote object holds.
type ObjectKind string

const (
	// ObjectKindInput is the raw uploaded video.
	ObjectKindInput ObjectKind = "input"
	// ObjectKindOutput is the annotated output video produced by the engine.
	ObjectKindOutput ObjectKind = "output"
	// ObjectKindResults is the JSON results artifact produced by the engine.
	ObjectKindResults ObjectKind = "results"
)

// Valid returns true if the ObjectKind is valid.
func (k ObjectKind) Valid() bool {
	return k == ObjectKindInput || k == ObjectKindOutput || k == ObjectKindResults
}

// Remote object keys embed the job id so the sweeper can correlate objects
// with job rows without a foreign key. The layout is a documented contract
// between intake/engine adapter (encoders) and the sweeper (decoder):
//
//	detections/<job id>/input.mp4
//	detections/<job id>/output.mp4
//	detections/<job id>/results.json
const ObjectKeyPrefix = "detections/"

// EncodeInputKey returns the remote object key for a job's input video.
func EncodeInputKey(jobID string) string {
	return ObjectKeyPrefix + jobID + "/input.mp4"
}

// EncodeOutputKey returns the remote object key for a job's annotated output video.
func EncodeOutputKey(jobID string) string {
	return ObjectKeyPrefix + jobID + "/output.mp4"
}

// EncodeResultsKey returns the remote object key for a job's results artifact.
func EncodeResultsKey(jobID string) string {
	return ObjectKeyPrefix + jobID + "/results.json"
}

// DecodeObjectKey extracts the job id and artifact kind from a remote object
// key. Keys outside the naming convention return an error and must be left
// alone by the sweeper.
func DecodeObjectKey(key string) (jobID string, kind ObjectKind, err error) {
	rest, ok := strings.CutPrefix(key, ObjectKeyPrefix)
	if !ok {
		return "", "", fmt.Errorf("object key %q is outside the detections namespace", key)
	}

	id, file, ok := strings.Cut(rest, "/")
	if !ok || id == "" || strings.Contains(file, "/") {
		return "", "", fmt.Errorf("object key %q does not match detections/<id>/<artifact>", key)
	}
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return "", "", fmt.Errorf("object key %q does not embed a job id: %w", key, parseErr)
	}

	switch file {
	case "input.mp4":
		kind = ObjectKindInput
	case "output.mp4":
		kind = ObjectKindOutput
	case "results.json":
		kind = ObjectKindResults
	default:
		return "", "", fmt.Errorf("object key %q has unknown artifact %q", key, file)
	}

	return id, kind, nil
}
