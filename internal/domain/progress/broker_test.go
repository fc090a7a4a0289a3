package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadmetrics/countline/internal/domain/model"
)

// recordingPublisher is a simple remote publisher double.
type recordingPublisher struct {
	jobEvents      []model.ProgressEvent
	terminalEvents []model.ProgressEvent
	err            error
}

func (p *recordingPublisher) PublishJobEvent(_ context.Context, event model.ProgressEvent) error {
	p.jobEvents = append(p.jobEvents, event)
	return p.err
}

func (p *recordingPublisher) PublishTerminalEvent(_ context.Context, event model.ProgressEvent) error {
	p.terminalEvents = append(p.terminalEvents, event)
	return p.err
}

func event(jobID, stage string, pct int) model.ProgressEvent {
	return model.ProgressEvent{
		TrackingID: jobID,
		Stage:      stage,
		Progress:   pct,
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBrokerDeliversToJobSubscribers(t *testing.T) {
	t.Parallel()

	broker := NewBroker(nil)
	unsub, ch := broker.SubscribeJob("job-1")
	defer unsub()

	broker.Publish(context.Background(), event("job-1", model.StageProcessing, 40))
	broker.Publish(context.Background(), event("job-2", model.StageProcessing, 10))

	select {
	case got := <-ch:
		assert.Equal(t, "job-1", got.TrackingID)
		assert.Equal(t, 40, got.Progress)
	default:
		t.Fatal("expected an event for job-1")
	}

	select {
	case got := <-ch:
		t.Fatalf("unexpected cross-job delivery: %+v", got)
	default:
	}
}

func TestBrokerGlobalReceivesOnlyTerminalEvents(t *testing.T) {
	t.Parallel()

	broker := NewBroker(nil)
	unsub, ch := broker.SubscribeGlobal()
	defer unsub()

	broker.Publish(context.Background(), event("job-1", model.StageProcessing, 50))
	broker.Publish(context.Background(), event("job-1", model.StageCompleted, 100))
	broker.Publish(context.Background(), event("job-2", model.StageError, 0))

	var got []model.ProgressEvent
	for {
		select {
		case e := <-ch:
			got = append(got, e)
			continue
		default:
		}
		break
	}

	require.Len(t, got, 2)
	assert.Equal(t, model.StageCompleted, got[0].Stage)
	assert.Equal(t, model.StageError, got[1].Stage)
}

func TestBrokerNonBlockingSendDropsWhenFull(t *testing.T) {
	t.Parallel()

	broker := NewBroker(nil)
	unsub, ch := broker.SubscribeJob("job-1")
	defer unsub()

	// No receiver; overflow past the buffer must not block the publisher.
	for i := 0; i < subscriberBuffer+10; i++ {
		broker.Publish(context.Background(), event("job-1", model.StageProcessing, i))
	}

	var received int
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	broker := NewBroker(nil)
	unsub, ch := broker.SubscribeJob("job-1")

	unsub()
	// Calling unsubscribe twice must be safe.
	unsub()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	broker.Publish(context.Background(), event("job-1", model.StageProcessing, 10))
}

func TestBrokerMirrorsToRemotePublisher(t *testing.T) {
	t.Parallel()

	remote := &recordingPublisher{}
	broker := NewBroker(remote)

	broker.Publish(context.Background(), event("job-1", model.StageProcessing, 25))
	broker.Publish(context.Background(), event("job-1", model.StageCompleted, 100))

	require.Len(t, remote.jobEvents, 2)
	require.Len(t, remote.terminalEvents, 1)
	assert.Equal(t, model.StageCompleted, remote.terminalEvents[0].Stage)
}

func TestBrokerRemoteFailureDoesNotAffectLocalDelivery(t *testing.T) {
	t.Parallel()

	remote := &recordingPublisher{err: errors.New("redis down")}
	broker := NewBroker(remote)
	unsub, ch := broker.SubscribeJob("job-1")
	defer unsub()

	broker.Publish(context.Background(), event("job-1", model.StageCompleted, 100))

	select {
	case got := <-ch:
		assert.Equal(t, model.StageCompleted, got.Stage)
	default:
		t.Fatal("local delivery must survive remote publish failure")
	}
}

func TestBrokerStopAllClosesEverything(t *testing.T) {
	t.Parallel()

	broker := NewBroker(nil)
	_, jobCh := broker.SubscribeJob("job-1")
	_, globalCh := broker.SubscribeGlobal()

	broker.StopAll()

	_, open := <-jobCh
	assert.False(t, open)
	_, open = <-globalCh
	assert.False(t, open)
}
