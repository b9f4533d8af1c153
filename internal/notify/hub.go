// Package notify fans job lifecycle events out to connected push
// consumers: WebSocket sessions, legacy event streams, streamable
// tool-call streams, and long-poll waiters. Events originate from store
// mutations in any process and reach the hub through the Redis relay.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/pdtx/mediagen-api/internal/job"
	"github.com/pdtx/mediagen-api/internal/telemetry"
)

// subscriberBuffer sizes per-subscriber channels. A full buffer drops
// the event; slow consumers recover through the polling read path.
const subscriberBuffer = 16

// Event is one fan-out message: a job snapshot, or a keep-alive frame
// carrying no snapshot at all.
type Event struct {
	job.Snapshot
	KeepAlive bool `json:"-"`
}

// Name returns the wire-level event name used by the SSE transports.
func (e Event) Name() string {
	if e.KeepAlive {
		return "keep-alive"
	}
	switch e.Status {
	case job.StatusFinished:
		return "job_complete"
	case job.StatusFailed:
		return "job_error"
	default:
		return "job_progress"
	}
}

// subscriber wraps a delivery channel so it can be closed exactly once
// whether the consumer cancels or the job reaches terminal state first.
type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// send delivers without blocking; a full buffer drops the event.
func (s *subscriber) send(ev Event) {
	select {
	case s.ch <- ev:
		telemetry.EventsDelivered.Inc()
	default:
		telemetry.EventsDropped.Inc()
	}
}

// Hub routes events to subscribers by job id and by client id. Job
// subscriptions end when the job does: after delivering a terminal
// event the hub closes those channels. Client subscriptions multiplex
// all of a client's jobs and stay open until the consumer cancels.
type Hub struct {
	mu                sync.RWMutex
	jobSubs           map[string]map[*subscriber]struct{}
	clientSubs        map[string]map[*subscriber]struct{}
	keepAliveInterval time.Duration
}

// NewHub creates a Hub broadcasting keep-alive frames at the given
// interval once Run is started.
func NewHub(keepAliveInterval time.Duration) *Hub {
	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}
	return &Hub{
		jobSubs:           make(map[string]map[*subscriber]struct{}),
		clientSubs:        make(map[string]map[*subscriber]struct{}),
		keepAliveInterval: keepAliveInterval,
	}
}

// SubscribeJob registers for all events of one job. The returned cancel
// is idempotent and safe to call after the hub closed the channel.
func (h *Hub) SubscribeJob(jobID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.jobSubs[jobID] == nil {
		h.jobSubs[jobID] = make(map[*subscriber]struct{})
	}
	h.jobSubs[jobID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.jobSubs[jobID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.jobSubs, jobID)
			}
		}
		sub.close()
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// SubscribeClient registers for events of every job submitted with the
// given client id. The channel is never closed by the hub; cancel it
// when the consumer disconnects.
func (h *Hub) SubscribeClient(clientID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.clientSubs[clientID] == nil {
		h.clientSubs[clientID] = make(map[*subscriber]struct{})
	}
	h.clientSubs[clientID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.clientSubs[clientID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.clientSubs, clientID)
			}
		}
		sub.close()
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish routes an event to the job's subscribers and, when the job
// carries a client id, to that client's subscribers. Terminal events
// are the last thing a job subscriber sees; its channel is closed right
// after delivery so stream handlers know to finish.
func (h *Hub) Publish(ev Event) {
	if ev.Status.IsTerminal() {
		h.mu.Lock()
		for sub := range h.jobSubs[ev.JobID] {
			sub.send(ev)
			sub.close()
		}
		delete(h.jobSubs, ev.JobID)
		for sub := range h.clientSubs[ev.ClientID] {
			sub.send(ev)
		}
		h.mu.Unlock()
		return
	}

	h.mu.RLock()
	for sub := range h.jobSubs[ev.JobID] {
		sub.send(ev)
	}
	if ev.ClientID != "" {
		for sub := range h.clientSubs[ev.ClientID] {
			sub.send(ev)
		}
	}
	h.mu.RUnlock()
}

// Run broadcasts keep-alive frames to every open subscription until the
// context is cancelled, so idle streams are not reaped by proxies.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcastKeepAlive()
		}
	}
}

func (h *Hub) broadcastKeepAlive() {
	ev := Event{KeepAlive: true}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.jobSubs {
		for sub := range subs {
			sub.send(ev)
			telemetry.KeepAlivesSent.Inc()
		}
	}
	for _, subs := range h.clientSubs {
		for sub := range subs {
			sub.send(ev)
			telemetry.KeepAlivesSent.Inc()
		}
	}
}

// JobWatcher adapts the hub to the long-poll subscription port: it
// strips keep-alive frames and forwards bare snapshots.
type JobWatcher struct {
	Hub *Hub
}

// Subscribe implements the job service's Notifier port.
func (w JobWatcher) Subscribe(jobID string) (<-chan job.Snapshot, func()) {
	events, cancel := w.Hub.SubscribeJob(jobID)
	out := make(chan job.Snapshot, subscriberBuffer)
	go func() {
		defer close(out)
		for ev := range events {
			if ev.KeepAlive {
				continue
			}
			select {
			case out <- ev.Snapshot:
			default:
			}
		}
	}()
	return out, cancel
}
