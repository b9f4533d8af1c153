package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pdtx/mediagen-api/internal/job"
)

// eventsChannel is the Redis pub/sub channel carrying job events
// between the worker pool and the API processes.
const eventsChannel = "jobs:events"

// RedisPublisher implements the job service's EventPublisher port over
// Redis pub/sub, so mutations made by a worker reach hubs in every API
// process.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher on an existing Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish serializes the snapshot onto the events channel.
func (p *RedisPublisher) Publish(ctx context.Context, snap job.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal event for job %s: %w", snap.JobID, err)
	}
	if err := p.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish event for job %s: %w", snap.JobID, err)
	}
	return nil
}

// Relay subscribes to the events channel and feeds the in-process hub.
// Each API process runs one relay.
type Relay struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger
}

// NewRelay creates a relay between Redis pub/sub and the hub.
func NewRelay(client *redis.Client, hub *Hub, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, hub: hub, logger: logger}
}

// Run consumes events until the context is cancelled. A malformed
// message is logged and skipped; it must not take the relay down.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	// Fail fast if the subscription could not be established.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", eventsChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snap job.Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				r.logger.Warn("dropping malformed job event",
					slog.String("error", err.Error()),
				)
				continue
			}
			r.hub.Publish(Event{Snapshot: snap})
		}
	}
}
