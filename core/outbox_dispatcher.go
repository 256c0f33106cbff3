package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MetadataKeyOutboxAttempts carries the delivery attempt count on a
// claimed event. Stores write it when they hydrate events; the
// dispatcher reads it to decide between retry and dead-letter.
const MetadataKeyOutboxAttempts = "_outbox_attempts"

type OutboxDispatcherConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultOutboxDispatcherConfig() OutboxDispatcherConfig {
	return OutboxDispatcherConfig{
		BatchSize:      25,
		MaxAttempts:    5,
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     15 * time.Minute,
	}
}

// OutboxDispatcherConfigFrom converts the service-level outbox settings
// into dispatcher settings. Zero or negative values fall back to the
// dispatcher defaults.
func OutboxDispatcherConfigFrom(cfg OutboxConfig) OutboxDispatcherConfig {
	out := DefaultOutboxDispatcherConfig()
	if cfg.BatchSize > 0 {
		out.BatchSize = cfg.BatchSize
	}
	if cfg.MaxAttempts > 0 {
		out.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffSeconds > 0 {
		out.InitialBackoff = time.Duration(cfg.InitialBackoffSeconds) * time.Second
	}
	if cfg.MaxBackoffSeconds > 0 {
		out.MaxBackoff = time.Duration(cfg.MaxBackoffSeconds) * time.Second
	}
	return out
}

// OutboxDispatcher drains pending lifecycle events into the registered
// projectors. Events whose projectors fail stay claimed for a backoff
// window and dead-letter once MaxAttempts is spent.
type OutboxDispatcher struct {
	store    OutboxStore
	registry ProjectorRegistry
	config   OutboxDispatcherConfig
	now      func() time.Time
}

func NewOutboxDispatcher(
	store OutboxStore,
	registry ProjectorRegistry,
	config OutboxDispatcherConfig,
) (*OutboxDispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("core: outbox store is required")
	}
	defaults := DefaultOutboxDispatcherConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	return &OutboxDispatcher{
		store:    store,
		registry: registry,
		config:   config,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (d *OutboxDispatcher) DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error) {
	if d == nil || d.store == nil {
		return DispatchStats{}, fmt.Errorf("core: outbox dispatcher is not configured")
	}
	if batchSize <= 0 {
		batchSize = d.config.BatchSize
	}
	events, err := d.store.ClaimBatch(ctx, batchSize)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(events)}
	var failures []error
	for _, event := range events {
		projectErr := d.project(ctx, event)
		if projectErr == nil {
			if ackErr := d.store.Ack(ctx, strings.TrimSpace(event.ID)); ackErr != nil {
				failures = append(failures, ackErr)
				continue
			}
			stats.Delivered++
			continue
		}
		failures = append(failures, projectErr)

		exhausted := attemptsSoFar(event)+1 >= d.config.MaxAttempts
		if retryErr := d.scheduleRetry(ctx, event, projectErr, exhausted); retryErr != nil {
			failures = append(failures, retryErr)
		}
		if exhausted {
			stats.Failed++
		} else {
			stats.Retried++
		}
	}
	return stats, errors.Join(failures...)
}

func (d *OutboxDispatcher) project(ctx context.Context, event LifecycleEvent) error {
	if d == nil || d.registry == nil {
		return nil
	}
	for i, handler := range d.registry.Handlers() {
		if handler == nil {
			continue
		}
		if err := handler.Handle(ctx, event); err != nil {
			return fmt.Errorf("core: lifecycle projector %d failed for event %q: %w", i, event.ID, err)
		}
	}
	return nil
}

// scheduleRetry signals exhaustion to the store with a zero next
// attempt time, which moves the event into the dead-letter state.
func (d *OutboxDispatcher) scheduleRetry(ctx context.Context, event LifecycleEvent, cause error, exhausted bool) error {
	eventID := strings.TrimSpace(event.ID)
	if exhausted {
		return d.store.Retry(ctx, eventID, cause, time.Time{})
	}
	delay := d.backoffDelay(attemptsSoFar(event) + 1)
	return d.store.Retry(ctx, eventID, cause, d.now().Add(delay))
}

func (d *OutboxDispatcher) backoffDelay(attempt int) time.Duration {
	delay := d.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.config.MaxBackoff || delay < 0 {
			return d.config.MaxBackoff
		}
	}
	if delay > d.config.MaxBackoff {
		return d.config.MaxBackoff
	}
	return delay
}

// attemptsSoFar normalizes the attempt count however the backing store
// typed it; anything unparseable reads as zero.
func attemptsSoFar(event LifecycleEvent) int {
	raw, ok := event.Metadata[MetadataKeyOutboxAttempts]
	if !ok {
		return 0
	}
	attempts, ok := intFromMetadata(raw)
	if !ok || attempts < 0 {
		return 0
	}
	return attempts
}

func intFromMetadata(raw any) (int, bool) {
	switch typed := raw.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// OutboxDispatcher builds a dispatcher over the service's outbox store
// using the resolved outbox settings.
func (s *Service) OutboxDispatcher(registry ProjectorRegistry) (*OutboxDispatcher, error) {
	if s == nil || s.outboxStore == nil {
		return nil, fmt.Errorf("core: outbox store is not configured")
	}
	return NewOutboxDispatcher(s.outboxStore, registry, OutboxDispatcherConfigFrom(s.config.Outbox))
}

var _ LifecycleDispatcher = (*OutboxDispatcher)(nil)
