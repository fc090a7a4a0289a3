package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roadmetrics/countline/internal/domain/model"
)

// Redis key and channel layout for in-flight progress state. The marker keys
// are the only record an in-flight job has; the sweeper reads them to find
// jobs that went silent without a terminal row.
const (
	progressMarkerPrefix  = "progress:last:"
	progressJobChannel    = "progress:job:"
	progressGlobalChannel = "progress:global"
)

// ProgressMarker is the last observed progress state of an in-flight job.
type ProgressMarker struct {
	TrackingID string    `json:"trackingId"`
	Stage      string    `json:"stage"`
	Progress   int       `json:"progress"`
	Owner      string    `json:"owner"`
	StartedAt  time.Time `json:"startedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ProgressRegistry records the last progress event of every in-flight job in
// Redis and mirrors events onto per-job and global pub/sub channels. All
// state is TTL'd; Redis holds no durable truth.
type ProgressRegistry struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewProgressRegistry creates a ProgressRegistry with the given marker TTL.
func NewProgressRegistry(client redis.UniversalClient, ttl time.Duration) *ProgressRegistry {
	return &ProgressRegistry{client: client, ttl: ttl}
}

// SetMarker upserts the progress marker for an in-flight job.
func (r *ProgressRegistry) SetMarker(ctx context.Context, marker ProgressMarker) error {
	if marker.TrackingID == "" {
		return errors.New("tracking id is required")
	}

	payload, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("marshal progress marker: %w", err)
	}
	if err := r.client.Set(ctx, progressMarkerPrefix+marker.TrackingID, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("set progress marker: %w", err)
	}
	return nil
}

// GetMarker returns the marker for a job, or nil when none exists.
func (r *ProgressRegistry) GetMarker(ctx context.Context, jobID string) (*ProgressMarker, error) {
	raw, err := r.client.Get(ctx, progressMarkerPrefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get progress marker: %w", err)
	}

	var marker ProgressMarker
	if err := json.Unmarshal([]byte(raw), &marker); err != nil {
		return nil, fmt.Errorf("unmarshal progress marker: %w", err)
	}
	return &marker, nil
}

// ClearMarker removes a job's marker. Clearing a missing marker is a no-op.
func (r *ProgressRegistry) ClearMarker(ctx context.Context, jobID string) error {
	if err := r.client.Del(ctx, progressMarkerPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("clear progress marker: %w", err)
	}
	return nil
}

// ListMarkers returns every in-flight progress marker. Markers that fail to
// decode are skipped; a half-written marker must not poison a sweep.
func (r *ProgressRegistry) ListMarkers(ctx context.Context) ([]ProgressMarker, error) {
	var markers []ProgressMarker

	iter := r.client.Scan(ctx, 0, progressMarkerPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between SCAN and GET
			}
			return nil, fmt.Errorf("get progress marker %s: %w", iter.Val(), err)
		}

		var marker ProgressMarker
		if err := json.Unmarshal([]byte(raw), &marker); err != nil {
			continue
		}
		if marker.TrackingID == "" {
			marker.TrackingID = strings.TrimPrefix(iter.Val(), progressMarkerPrefix)
		}
		markers = append(markers, marker)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan progress markers: %w", err)
	}
	return markers, nil
}

// PublishJobEvent mirrors an event onto the job's Redis channel.
func (r *ProgressRegistry) PublishJobEvent(ctx context.Context, event model.ProgressEvent) error {
	return r.publish(ctx, progressJobChannel+event.TrackingID, event)
}

// PublishTerminalEvent mirrors a terminal event onto the global Redis channel.
func (r *ProgressRegistry) PublishTerminalEvent(ctx context.Context, event model.ProgressEvent) error {
	return r.publish(ctx, progressGlobalChannel, event)
}

func (r *ProgressRegistry) publish(ctx context.Context, channel string, event model.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish progress event: %w", err)
	}
	return nil
}
