package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdtx/mediagen-api/internal/job"
)

func snap(jobID, clientID string, status job.Status, progress int) job.Snapshot {
	return job.Snapshot{
		JobID:    jobID,
		ClientID: clientID,
		Status:   status,
		Progress: progress,
	}
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed before expected event")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubJobSubscription(t *testing.T) {
	h := NewHub(time.Minute)
	ch, cancel := h.SubscribeJob("job-1")
	defer cancel()

	h.Publish(Event{Snapshot: snap("job-1", "", job.StatusStarted, 16)})
	h.Publish(Event{Snapshot: snap("job-2", "", job.StatusStarted, 16)})

	ev := recvEvent(t, ch)
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, "job_progress", ev.Name())

	select {
	case ev := <-ch:
		t.Fatalf("received event for a different job: %+v", ev)
	default:
	}
}

func TestHubClosesJobSubsAfterTerminal(t *testing.T) {
	h := NewHub(time.Minute)
	ch, cancel := h.SubscribeJob("job-1")
	defer cancel()

	h.Publish(Event{Snapshot: snap("job-1", "", job.StatusFinished, 100)})

	ev := recvEvent(t, ch)
	assert.Equal(t, job.StatusFinished, ev.Status)
	assert.Equal(t, "job_complete", ev.Name())

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must be closed after the terminal event")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after terminal event")
	}
}

func TestHubClientSubscriptionMultiplexes(t *testing.T) {
	h := NewHub(time.Minute)
	ch, cancel := h.SubscribeClient("client-1")
	defer cancel()

	h.Publish(Event{Snapshot: snap("job-1", "client-1", job.StatusStarted, 16)})
	h.Publish(Event{Snapshot: snap("job-2", "client-1", job.StatusFailed, 16)})
	h.Publish(Event{Snapshot: snap("job-3", "client-2", job.StatusStarted, 16)})

	first := recvEvent(t, ch)
	assert.Equal(t, "job-1", first.JobID)

	second := recvEvent(t, ch)
	assert.Equal(t, "job-2", second.JobID)
	assert.Equal(t, "job_error", second.Name())

	// The client stream outlives individual jobs.
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event for another client: %+v", ev)
		}
		t.Fatal("client channel must stay open after a terminal event")
	default:
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	h := NewHub(time.Minute)
	_, cancel := h.SubscribeJob("job-1")
	cancel()
	cancel() // must not panic

	// Terminal publish after cancel must not panic either.
	h.Publish(Event{Snapshot: snap("job-1", "", job.StatusFinished, 100)})
}

func TestHubDropsOnFullBuffer(t *testing.T) {
	h := NewHub(time.Minute)
	ch, cancel := h.SubscribeJob("job-1")
	defer cancel()

	for i := 0; i < subscriberBuffer+8; i++ {
		h.Publish(Event{Snapshot: snap("job-1", "", job.StatusStarted, i)})
	}

	// Publishing never blocked; the buffer holds the first events.
	ev := recvEvent(t, ch)
	assert.Equal(t, 0, ev.Progress)
}

func TestHubKeepAlive(t *testing.T) {
	h := NewHub(10 * time.Millisecond)
	ch, cancel := h.SubscribeJob("job-1")
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go h.Run(ctx)

	ev := recvEvent(t, ch)
	assert.True(t, ev.KeepAlive)
	assert.Equal(t, "keep-alive", ev.Name())
}

func TestEventNames(t *testing.T) {
	assert.Equal(t, "job_progress", Event{Snapshot: snap("j", "", job.StatusQueued, 0)}.Name())
	assert.Equal(t, "job_progress", Event{Snapshot: snap("j", "", job.StatusStarted, 10)}.Name())
	assert.Equal(t, "job_complete", Event{Snapshot: snap("j", "", job.StatusFinished, 100)}.Name())
	assert.Equal(t, "job_error", Event{Snapshot: snap("j", "", job.StatusFailed, 50)}.Name())
	assert.Equal(t, "keep-alive", Event{KeepAlive: true}.Name())
}

func TestJobWatcherStripsKeepAlives(t *testing.T) {
	h := NewHub(time.Minute)
	w := JobWatcher{Hub: h}
	ch, cancel := w.Subscribe("job-1")
	defer cancel()

	h.broadcastKeepAlive()
	h.Publish(Event{Snapshot: snap("job-1", "", job.StatusStarted, 16)})

	select {
	case got := <-ch:
		assert.Equal(t, job.StatusStarted, got.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestRelayDeliversPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := NewHub(time.Minute)
	relay := NewRelay(client, h, nil)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = relay.Run(ctx)
	}()

	// Give the relay time to establish its subscription.
	time.Sleep(50 * time.Millisecond)

	ch, cancel := h.SubscribeJob("job-1")
	defer cancel()

	pub := NewRedisPublisher(client)
	require.NoError(t, pub.Publish(ctx, snap("job-1", "client-1", job.StatusStarted, 16)))

	ev := recvEvent(t, ch)
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, job.StatusStarted, ev.Status)

	stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancel")
	}
}
