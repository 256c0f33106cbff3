package core

import (
	"context"
	"errors"
	"fmt"
)

// PropagationOutcome records what happened for one dependent source
// during update fan-out. Err carries the joined per-step failures; a
// non-nil Err never aborts the surrounding operation.
type PropagationOutcome struct {
	SourceID string
	Patched  bool
	Released bool
	Notified bool
	Err      error
}

type PropagationReport struct {
	IntegrationID string
	Attempted     int
	Failed        int
	Outcomes      []PropagationOutcome
}

func (r PropagationReport) Failures() []PropagationOutcome {
	failures := make([]PropagationOutcome, 0, r.Failed)
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failures = append(failures, outcome)
		}
	}
	return failures
}

// propagateConfigUpdate pushes a freshly sealed config to every active
// dependent source: cache patch, local connection release, release
// broadcast. Per-source failures are collected, logged, and counted;
// only a failure listing the dependents is surfaced to the caller.
func (s *Service) propagateConfigUpdate(
	ctx context.Context,
	integration Integration,
	sealedConfig string,
) (PropagationReport, error) {
	report := PropagationReport{IntegrationID: integration.ID}
	if s == nil || s.sourceStore == nil {
		return report, fmt.Errorf("core: source store is not configured")
	}

	sources, err := s.sourceStore.ListActiveByIntegration(ctx, integration.ID)
	if err != nil {
		return report, fmt.Errorf("core: dependent source lookup failed: %w", err)
	}

	report.Attempted = len(sources)
	for _, source := range sources {
		outcome := PropagationOutcome{SourceID: source.ID}
		var stepErrs []error

		if s.configCache != nil {
			if patchErr := s.configCache.Patch(ctx, source.ID, map[string]any{
				"integration_id":     integration.ID,
				"integration_config": sealedConfig,
			}); patchErr != nil {
				stepErrs = append(stepErrs, fmt.Errorf("cache patch: %w", patchErr))
			} else {
				outcome.Patched = true
			}
		}

		if s.releaser != nil {
			s.releaser.ReleaseLocal(ctx, source.ID)
			outcome.Released = true
		}

		if broadcastErr := s.broadcastRelease(ctx, source.ID, "integration_updated"); broadcastErr != nil {
			stepErrs = append(stepErrs, fmt.Errorf("release broadcast: %w", broadcastErr))
		} else {
			outcome.Notified = true
		}

		outcome.Err = errors.Join(stepErrs...)
		if outcome.Err != nil {
			report.Failed++
			s.logError(ctx, "source propagation failed", map[string]any{
				"integration_id": integration.ID,
				"source_id":      source.ID,
				"error":          outcome.Err.Error(),
			})
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	if report.Failed > 0 {
		s.recordCounter(ctx, "integrations.propagation.failures.total", int64(report.Failed), map[string]string{
			"integration_id": integration.ID,
		})
	}
	return report, nil
}

// broadcastRelease sends a release command worker-scope then
// primary-scope. Bus failures are joined and reported to the caller
// for logging; they never fail the surrounding operation.
func (s *Service) broadcastRelease(ctx context.Context, sourceID string, reason string) error {
	if s == nil || s.releaseBus == nil {
		return nil
	}
	cmd := ReleaseCommand{SourceID: sourceID, Reason: reason}
	var errs []error
	if err := s.releaseBus.BroadcastToWorkers(ctx, cmd); err != nil {
		errs = append(errs, fmt.Errorf("workers: %w", err))
	}
	if err := s.releaseBus.SendToPrimary(ctx, cmd); err != nil {
		errs = append(errs, fmt.Errorf("primary: %w", err))
	}
	return errors.Join(errs...)
}

// teardownSource is the non-durable half of removing a source: cache
// entry, local connection, cross-process release. Always best-effort.
func (s *Service) teardownSource(ctx context.Context, sourceID string, reason string) {
	if s == nil {
		return
	}
	if s.configCache != nil {
		if err := s.configCache.Drop(ctx, sourceID); err != nil {
			s.logError(ctx, "source cache drop failed", map[string]any{
				"source_id": sourceID,
				"error":     err.Error(),
			})
		}
	}
	if s.releaser != nil {
		s.releaser.ReleaseLocal(ctx, sourceID)
	}
	if err := s.broadcastRelease(ctx, sourceID, reason); err != nil {
		s.logError(ctx, "source release broadcast failed", map[string]any{
			"source_id": sourceID,
			"error":     err.Error(),
		})
	}
}

// NopReleaseBus stands in when no cross-process transport is wired.
// Callers proceed with local-only release.
type NopReleaseBus struct{}

func (NopReleaseBus) BroadcastToWorkers(context.Context, ReleaseCommand) error { return nil }

func (NopReleaseBus) SendToPrimary(context.Context, ReleaseCommand) error { return nil }

// storeSourceEraser is the default cascade collaborator. The durable
// row delete rides the supplied transaction; cache and connection
// teardown follow best-effort and are harmless to repeat if the
// transaction later rolls back.
type storeSourceEraser struct {
	service *Service
}

func (e storeSourceEraser) Erase(ctx context.Context, tx StoreProvider, source Source) error {
	if e.service == nil {
		return fmt.Errorf("core: source eraser is not configured")
	}
	if tx == nil {
		return fmt.Errorf("core: source erase requires a transaction")
	}
	if err := tx.Sources().Delete(ctx, source.ID); err != nil {
		return err
	}
	e.service.teardownSource(ctx, source.ID, "integration_deleted")
	return nil
}

var _ ReleaseBus = NopReleaseBus{}

var _ SourceEraser = storeSourceEraser{}
