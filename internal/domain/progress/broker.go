// Package progress provides best-effort publish/subscribe fan-out of job
// progress events. It is not a durable queue: a subscriber connecting after
// an event was published misses it, and slow subscribers drop events rather
// than blocking the pipeline.
package progress

import (
	"context"
	"sync"

	"github.com/roadmetrics/countline/internal/domain/model"
)

// Publisher mirrors events beyond the local process (e.g. to Redis channels).
// Publish failures are the publisher's problem; the broker never lets them
// reach the pipeline.
type Publisher interface {
	PublishJobEvent(ctx context.Context, event model.ProgressEvent) error
	PublishTerminalEvent(ctx context.Context, event model.ProgressEvent) error
}

// Broker manages per-job and global progress subscriptions. The per-job
// channel carries every event for that job; the global channel carries only
// terminal events. Safe for concurrent use.
type Broker struct {
	remote Publisher // optional

	mu     sync.Mutex
	jobs   map[string]map[chan model.ProgressEvent]struct{}
	global map[chan model.ProgressEvent]struct{}
}

// subscriberBuffer bounds how many undelivered events a subscriber may lag
// behind before events are dropped.
const subscriberBuffer = 16

// NewBroker constructs a Broker. remote may be nil for purely local fan-out.
func NewBroker(remote Publisher) *Broker {
	return &Broker{
		remote: remote,
		jobs:   make(map[string]map[chan model.ProgressEvent]struct{}),
		global: make(map[chan model.ProgressEvent]struct{}),
	}
}

// SubscribeJob registers a subscriber for every event of one job. The
// returned func unsubscribes and closes the channel; it is safe to call more
// than once.
func (b *Broker) SubscribeJob(jobID string) (func(), <-chan model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.ProgressEvent, subscriberBuffer)
	if b.jobs[jobID] == nil {
		b.jobs[jobID] = make(map[chan model.ProgressEvent]struct{})
	}
	b.jobs[jobID][ch] = struct{}{}

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subscribers := b.jobs[jobID]
		if subscribers == nil {
			return
		}
		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		drainAndClose(ch)
		if len(subscribers) == 0 {
			delete(b.jobs, jobID)
		}
	}

	return unsub, ch
}

// SubscribeGlobal registers a subscriber for terminal events of any job.
func (b *Broker) SubscribeGlobal() (func(), <-chan model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.ProgressEvent, subscriberBuffer)
	b.global[ch] = struct{}{}

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.global[ch]; !ok {
			return
		}
		delete(b.global, ch)
		drainAndClose(ch)
	}

	return unsub, ch
}

// Publish fans an event out to the job's subscribers, and to global
// subscribers when the event is terminal. Sends are non-blocking: a full
// subscriber buffer drops the event for that subscriber only.
func (b *Broker) Publish(ctx context.Context, event model.ProgressEvent) {
	b.mu.Lock()
	for ch := range b.jobs[event.TrackingID] {
		select {
		case ch <- event:
		default:
		}
	}
	if event.Terminal() {
		for ch := range b.global {
			select {
			case ch <- event:
			default:
			}
		}
	}
	b.mu.Unlock()

	if b.remote == nil {
		return
	}
	// Remote mirroring is best-effort like everything else here.
	_ = b.remote.PublishJobEvent(ctx, event)
	if event.Terminal() {
		_ = b.remote.PublishTerminalEvent(ctx, event)
	}
}

// StopAll closes every subscriber channel. Used on shutdown.
func (b *Broker) StopAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for jobID, subscribers := range b.jobs {
		for ch := range subscribers {
			drainAndClose(ch)
		}
		delete(b.jobs, jobID)
	}
	for ch := range b.global {
		drainAndClose(ch)
		delete(b.global, ch)
	}
}

// drainAndClose removes any buffered events before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan model.ProgressEvent) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
