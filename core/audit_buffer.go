package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BufferedAuditSink decouples audit writes from the caller. Entries are
// accepted into a bounded queue and delivered to the primary sink by a
// single worker; when the queue is full the entry goes straight to the
// fallback sink instead of blocking the mutation path.
type BufferedAuditSink struct {
	primary  AuditSink
	fallback AuditSink
	policy   AuditRetentionPolicy
	pruner   AuditPruner

	queue chan AuditEntry
	now   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewBufferedAuditSink(
	primary AuditSink,
	fallback AuditSink,
	policy AuditRetentionPolicy,
	bufferSize int,
) (*BufferedAuditSink, error) {
	if primary == nil {
		return nil, fmt.Errorf("core: primary audit sink is required")
	}
	if bufferSize <= 0 {
		bufferSize = 128
	}

	sink := &BufferedAuditSink{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		queue:    make(chan AuditEntry, bufferSize),
		now: func() time.Time {
			return time.Now().UTC()
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if pruner, ok := primary.(AuditPruner); ok {
		sink.pruner = pruner
	}

	go sink.run()
	return sink, nil
}

func (s *BufferedAuditSink) Record(ctx context.Context, entry AuditEntry) error {
	if s == nil || s.primary == nil {
		return fmt.Errorf("core: buffered audit sink is not configured")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.queue <- entry:
		return nil
	default:
		if s.fallback != nil {
			return s.fallback.Record(ctx, entry)
		}
		return nil
	}
}

// List reads through to the primary sink. The primary has to expose a
// listable trail; a write-only sink cannot answer queries.
func (s *BufferedAuditSink) List(ctx context.Context, filter AuditFilter) (AuditPage, error) {
	if s == nil || s.primary == nil {
		return AuditPage{}, fmt.Errorf("core: buffered audit sink is not configured")
	}
	log, ok := s.primary.(AuditLog)
	if !ok {
		return AuditPage{}, fmt.Errorf("core: primary audit sink does not expose a listable trail")
	}
	return log.List(ctx, filter)
}

// EnforceRetention applies the configured retention policy through the
// primary sink's pruner. Primaries without one make this a no-op.
func (s *BufferedAuditSink) EnforceRetention(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: buffered audit sink is not configured")
	}
	pruner := s.pruner
	if pruner == nil {
		if p, ok := s.primary.(AuditPruner); ok {
			pruner = p
		}
	}
	if pruner == nil {
		return 0, nil
	}
	return pruner.Prune(ctx, s.policy)
}

// Close stops the worker after flushing every entry that was accepted
// into the queue.
func (s *BufferedAuditSink) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *BufferedAuditSink) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			s.drain()
			return
		case entry := <-s.queue:
			s.deliver(entry)
		}
	}
}

func (s *BufferedAuditSink) drain() {
	for {
		select {
		case entry := <-s.queue:
			s.deliver(entry)
		default:
			return
		}
	}
}

func (s *BufferedAuditSink) deliver(entry AuditEntry) {
	if err := s.primary.Record(context.Background(), entry); err != nil && s.fallback != nil {
		_ = s.fallback.Record(context.Background(), entry)
	}
}

var (
	_ AuditSink = (*BufferedAuditSink)(nil)
	_ AuditLog  = (*BufferedAuditSink)(nil)
)
