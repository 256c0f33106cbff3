package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const DefaultAuditChannel = "integrations.lifecycle"

type LifecycleProjectorRegistry struct {
	mu       sync.RWMutex
	handlers map[string]LifecycleEventHandler
	order    []string
}

func NewLifecycleProjectorRegistry() *LifecycleProjectorRegistry {
	return &LifecycleProjectorRegistry{
		handlers: make(map[string]LifecycleEventHandler),
		order:    make([]string, 0),
	}
}

func (r *LifecycleProjectorRegistry) Register(name string, handler LifecycleEventHandler) {
	if r == nil || handler == nil {
		return
	}
	key := strings.TrimSpace(name)
	if key == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]LifecycleEventHandler)
	}
	if _, exists := r.handlers[key]; !exists {
		r.order = append(r.order, key)
		sort.Strings(r.order)
	}
	r.handlers[key] = handler
}

func (r *LifecycleProjectorRegistry) Handlers() []LifecycleEventHandler {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LifecycleEventHandler, 0, len(r.order))
	for _, key := range r.order {
		handler := r.handlers[key]
		if handler != nil {
			out = append(out, handler)
		}
	}
	return out
}

// AuditTrailProjector turns committed lifecycle events into audit
// entries. Entries reuse the event ID, so a sink that upserts by ID
// absorbs outbox redeliveries.
type AuditTrailProjector struct {
	sink AuditSink
	now  func() time.Time
}

func NewAuditTrailProjector(sink AuditSink) *AuditTrailProjector {
	return &AuditTrailProjector{
		sink: sink,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *AuditTrailProjector) Handle(ctx context.Context, event LifecycleEvent) error {
	if p == nil || p.sink == nil {
		return fmt.Errorf("core: audit sink is required")
	}
	entry := AuditEntry{
		ID:        strings.TrimSpace(event.ID),
		Actor:     auditActor(event),
		Action:    strings.TrimSpace(event.Name),
		Object:    auditObject(event),
		Channel:   DefaultAuditChannel,
		Status:    auditStatus(event),
		Metadata:  auditMetadata(event),
		CreatedAt: auditTime(event, p.now),
	}
	return p.sink.Record(ctx, entry)
}

// EventMetricsProjector counts dispatched lifecycle events by name.
type EventMetricsProjector struct {
	recorder MetricsRecorder
}

func NewEventMetricsProjector(recorder MetricsRecorder) *EventMetricsProjector {
	return &EventMetricsProjector{recorder: recorder}
}

func (p *EventMetricsProjector) Handle(ctx context.Context, event LifecycleEvent) error {
	if p == nil || p.recorder == nil {
		return nil
	}
	p.recorder.IncCounter(ctx, "integrations.events.total", 1, map[string]string{
		"event":        strings.TrimSpace(event.Name),
		"workspace_id": strings.TrimSpace(event.WorkspaceID),
	})
	return nil
}

func auditActor(event LifecycleEvent) string {
	actor := strings.TrimSpace(event.Actor)
	if actor == "" {
		return "system"
	}
	return actor
}

func auditObject(event LifecycleEvent) string {
	return "integration:" + strings.TrimSpace(event.IntegrationID)
}

func auditTime(event LifecycleEvent, nowFn func() time.Time) time.Time {
	if !event.OccurredAt.IsZero() {
		return event.OccurredAt.UTC()
	}
	if nowFn == nil {
		return time.Now().UTC()
	}
	return nowFn().UTC()
}

func auditStatus(event LifecycleEvent) AuditStatus {
	if raw, ok := event.Metadata["status"]; ok {
		switch strings.ToLower(strings.TrimSpace(fmt.Sprint(raw))) {
		case string(AuditStatusError):
			return AuditStatusError
		case string(AuditStatusWarn):
			return AuditStatusWarn
		}
	}
	name := strings.ToLower(strings.TrimSpace(event.Name))
	if strings.Contains(name, "fail") || strings.Contains(name, "error") {
		return AuditStatusError
	}
	return AuditStatusOK
}

func auditMetadata(event LifecycleEvent) map[string]any {
	metadata := copyAnyMap(event.Metadata)
	metadata["workspace_id"] = strings.TrimSpace(event.WorkspaceID)
	metadata["integration_id"] = strings.TrimSpace(event.IntegrationID)
	metadata["event_name"] = strings.TrimSpace(event.Name)
	if len(event.Payload) > 0 {
		metadata["payload"] = copyAnyMap(event.Payload)
	}
	return metadata
}

var (
	_ ProjectorRegistry     = (*LifecycleProjectorRegistry)(nil)
	_ LifecycleEventHandler = (*AuditTrailProjector)(nil)
	_ LifecycleEventHandler = (*EventMetricsProjector)(nil)
)
