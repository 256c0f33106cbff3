package core

import (
	"context"
	"fmt"
)

const defaultReconcilePageSize = 50

// ReconcileStats summarizes one cache reconciliation pass.
type ReconcileStats struct {
	Integrations int
	Sources      int
	Patched      int
	Failed       int
}

type SourceConfigReconcilerOption func(*SourceConfigReconciler)

func WithReconcilerPageSize(size int) SourceConfigReconcilerOption {
	return func(r *SourceConfigReconciler) {
		if r == nil || size <= 0 {
			return
		}
		r.pageSize = size
	}
}

func WithReconcilerLogger(logger Logger) SourceConfigReconcilerOption {
	return func(r *SourceConfigReconciler) {
		if r == nil || logger == nil {
			return
		}
		r.logger = logger
	}
}

// SourceConfigReconciler re-projects the sealed config of every live
// integration into the cached entry of each active dependent source.
// Update fan-out already patches the cache inline; the reconciler is
// the repair path for entries that drifted because a patch was lost or
// the cache restarted. Patches against uncached sources are dropped by
// the cache itself, so a pass never fabricates entries.
type SourceConfigReconciler struct {
	integrations IntegrationStore
	sources      SourceStore
	cache        SourceConfigCache
	logger       Logger
	pageSize     int
}

func NewSourceConfigReconciler(
	integrations IntegrationStore,
	sources SourceStore,
	cache SourceConfigCache,
	opts ...SourceConfigReconcilerOption,
) (*SourceConfigReconciler, error) {
	if integrations == nil {
		return nil, fmt.Errorf("core: integration store is required")
	}
	if sources == nil {
		return nil, fmt.Errorf("core: source store is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("core: source config cache is required")
	}
	r := &SourceConfigReconciler{
		integrations: integrations,
		sources:      sources,
		cache:        cache,
		pageSize:     defaultReconcilePageSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Reconcile walks every live integration and patches the cached entry
// of each active dependent source with the integration's current sealed
// config. Per-source and per-integration failures are logged and
// counted; only a failure listing the integration page itself aborts
// the pass.
func (r *SourceConfigReconciler) Reconcile(ctx context.Context) (ReconcileStats, error) {
	if r == nil || r.integrations == nil || r.sources == nil || r.cache == nil {
		return ReconcileStats{}, fmt.Errorf("core: source config reconciler is not configured")
	}

	stats := ReconcileStats{}
	offset := 0
	for {
		page, err := r.integrations.List(ctx, IntegrationFilter{
			Limit:  r.pageSize,
			Offset: offset,
		})
		if err != nil {
			return stats, fmt.Errorf("core: integration page at offset %d failed: %w", offset, err)
		}
		if len(page.Items) == 0 {
			return stats, nil
		}

		for _, integration := range page.Items {
			stats.Integrations++
			r.reconcileIntegration(ctx, integration, &stats)
		}

		offset += len(page.Items)
		if offset >= page.Total {
			return stats, nil
		}
	}
}

func (r *SourceConfigReconciler) reconcileIntegration(ctx context.Context, integration Integration, stats *ReconcileStats) {
	sources, err := r.sources.ListActiveByIntegration(ctx, integration.ID)
	if err != nil {
		stats.Failed++
		r.logReconcileError(ctx, "dependent source lookup failed", map[string]any{
			"integration_id": integration.ID,
			"error":          err.Error(),
		})
		return
	}

	for _, source := range sources {
		stats.Sources++
		if err := r.cache.Patch(ctx, source.ID, map[string]any{
			"integration_id":     integration.ID,
			"integration_config": integration.Config,
		}); err != nil {
			stats.Failed++
			r.logReconcileError(ctx, "source cache patch failed", map[string]any{
				"integration_id": integration.ID,
				"source_id":      source.ID,
				"error":          err.Error(),
			})
			continue
		}
		stats.Patched++
	}
}

func (r *SourceConfigReconciler) logReconcileError(ctx context.Context, message string, fields map[string]any) {
	if r == nil || r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	logger.Error(message, flattenFields(fields)...)
}

// SourceConfigReconciler builds a reconciler over the service's stores
// and cache, sharing the service logger and list page size.
func (s *Service) SourceConfigReconciler() (*SourceConfigReconciler, error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	if s.configCache == nil {
		return nil, fmt.Errorf("core: source config cache is not configured")
	}
	opts := []SourceConfigReconcilerOption{}
	if s.logger != nil {
		opts = append(opts, WithReconcilerLogger(s.logger))
	}
	if s.config.ListLimit > 0 {
		opts = append(opts, WithReconcilerPageSize(s.config.ListLimit))
	}
	return NewSourceConfigReconciler(s.integrationStore, s.sourceStore, s.configCache, opts...)
}
