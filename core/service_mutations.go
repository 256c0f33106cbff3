package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Create persists a new integration. With CopyFromID set the new record
// clones the referenced integration's decrypted config and metadata and
// takes its title plus the configured copy suffix. The returned record
// carries no config.
func (s *Service) Create(ctx context.Context, req CreateIntegrationRequest) (integration Integration, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"workspace_id":     req.WorkspaceID,
		"integration_type": req.Type,
		"copy_from_id":     req.CopyFromID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "integration_create", err, fields)
	}()

	if err = s.requireStores(); err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	if strings.TrimSpace(req.WorkspaceID) == "" {
		err = s.mapError(requiredFieldError("workspace_id"))
		return Integration{}, err
	}

	input := CreateIntegrationInput{
		WorkspaceID: strings.TrimSpace(req.WorkspaceID),
		Type:        strings.TrimSpace(req.Type),
		SubType:     strings.TrimSpace(req.SubType),
		Title:       strings.TrimSpace(req.Title),
		CreatedBy:   strings.TrimSpace(req.CreatedBy),
		Meta:        copyAnyMap(req.Meta),
	}
	configValues := req.Config

	if copyFrom := strings.TrimSpace(req.CopyFromID); copyFrom != "" {
		original, cloneErr := s.loadCloneSource(ctx, copyFrom)
		if cloneErr != nil {
			err = s.mapError(cloneErr)
			return Integration{}, err
		}
		input.Type = original.Type
		if input.SubType == "" {
			input.SubType = original.SubType
		}
		input.Title = original.Title + s.config.CopyTitleSuffix
		meta := copyAnyMap(original.Meta)
		for key, value := range req.Meta {
			meta[key] = value
		}
		input.Meta = meta
		if configValues == nil {
			values, openErr := s.openConfig(ctx, original.Config)
			if openErr != nil {
				err = s.mapError(openErr)
				return Integration{}, err
			}
			configValues = values
		}
		fields["integration_type"] = input.Type
	}

	if input.Type == "" {
		err = s.mapError(requiredFieldError("type"))
		return Integration{}, err
	}
	if input.Title == "" {
		err = s.mapError(requiredFieldError("title"))
		return Integration{}, err
	}
	if err = s.validatePayload(ctx, input.Type, configValues); err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}

	if configValues != nil {
		sealed, sealErr := s.sealConfig(ctx, configValues)
		if sealErr != nil {
			err = s.mapError(sealErr)
			return Integration{}, err
		}
		input.Config = sealed
	}

	integration, err = s.integrationStore.Create(ctx, input)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	fields["integration_id"] = integration.ID

	s.emitLifecycleEvent(ctx, EventIntegrationCreated, integration, input.CreatedBy, map[string]any{
		"title":        integration.Title,
		"copy_from_id": strings.TrimSpace(req.CopyFromID),
	})

	integration.ClearConfig()
	return integration, nil
}

// Update persists field changes and then propagates the new config to
// every active dependent source before returning. Propagation failures
// for individual sources are tolerated; a failure listing the
// dependents is not. The returned record carries no config.
func (s *Service) Update(ctx context.Context, id string, req UpdateIntegrationRequest) (integration Integration, err error) {
	startedAt := time.Now().UTC()
	progress := UpdateProgress{}
	fields := map[string]any{
		"integration_id": id,
	}
	defer func() {
		fields["phase"] = string(progress.Phase)
		s.observeOperation(ctx, startedAt, "integration_update", err, fields)
	}()

	if err = s.requireStores(); err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		err = s.mapError(requiredFieldError("id"))
		return Integration{}, err
	}

	existing, getErr := s.integrationStore.Get(ctx, id)
	if getErr != nil {
		err = s.mapError(getErr)
		return Integration{}, err
	}
	fields["integration_type"] = existing.Type

	input := UpdateIntegrationInput{
		Title:   strings.TrimSpace(req.Title),
		SubType: strings.TrimSpace(req.SubType),
		Meta:    copyAnyMap(req.Meta),
	}
	if req.Config != nil {
		if err = s.validatePayload(ctx, existing.Type, req.Config); err != nil {
			err = s.mapError(err)
			return Integration{}, err
		}
		sealed, sealErr := s.sealConfig(ctx, req.Config)
		if sealErr != nil {
			err = s.mapError(sealErr)
			return Integration{}, err
		}
		input.Config = sealed
	}
	_ = progress.Advance(UpdatePhaseValidated, time.Now().UTC())

	integration, err = s.integrationStore.Update(ctx, id, input)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	_ = progress.Advance(UpdatePhasePersisted, time.Now().UTC())

	if req.Config != nil {
		report, propagateErr := s.propagateConfigUpdate(ctx, integration, input.Config)
		if propagateErr != nil {
			err = s.mapError(propagateErr)
			return Integration{}, err
		}
		fields["sources_propagated"] = report.Attempted - report.Failed
		fields["sources_failed"] = report.Failed
	}
	_ = progress.Advance(UpdatePhasePropagated, time.Now().UTC())

	s.emitLifecycleEvent(ctx, EventIntegrationUpdated, integration, req.Actor, map[string]any{
		"title":          integration.Title,
		"config_changed": req.Config != nil,
	})
	_ = progress.Advance(UpdatePhaseNotified, time.Now().UTC())

	integration.ClearConfig()
	return integration, nil
}

// SoftDelete flips the delete flag. The flip is one durable write, so
// repeating it converges on the same state; any store failure is
// wrapped as a bad-request-class error.
func (s *Service) SoftDelete(ctx context.Context, req SoftDeleteIntegrationRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"integration_id": req.ID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "integration_soft_delete", err, fields)
	}()

	if err = s.requireStores(); err != nil {
		err = s.mapError(err)
		return err
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		err = s.mapError(requiredFieldError("id"))
		return err
	}

	integration, flagErr := s.integrationStore.SetDeleteFlag(ctx, id)
	if flagErr != nil {
		err = s.mapError(goerrors.Wrap(flagErr, goerrors.CategoryBadInput, "core: integration soft delete failed").
			WithTextCode(IntegrationErrorBadInput))
		return err
	}

	s.emitLifecycleEvent(ctx, EventIntegrationSoftDeleted, integration, req.Actor, map[string]any{
		"title": integration.Title,
	})
	return nil
}

// Delete removes the integration row for good. Active dependent
// sources block the delete unless Force is set, in which case each one
// is cascaded through the source eraser inside the same transaction.
// Any failure rolls the whole transaction back.
func (s *Service) Delete(ctx context.Context, req DeleteIntegrationRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"integration_id": req.ID,
		"force":          req.Force,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "integration_delete", err, fields)
	}()

	if err = s.requireStores(); err != nil {
		err = s.mapError(err)
		return err
	}
	if s.stores == nil {
		err = s.mapError(fmt.Errorf("core: store provider is not configured"))
		return err
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		err = s.mapError(requiredFieldError("id"))
		return err
	}

	var deleted Integration
	var cascaded []Source
	txErr := s.stores.RunInTx(ctx, func(ctx context.Context, tx StoreProvider) error {
		integration, loadErr := tx.Integrations().Get(ctx, id)
		if loadErr != nil {
			return loadErr
		}
		deleted = integration

		sources, listErr := tx.Sources().ListActiveByIntegration(ctx, id)
		if listErr != nil {
			return listErr
		}
		if len(sources) > 0 && !req.Force {
			blockers, blockErr := collectBlockers(ctx, tx, sources)
			if blockErr != nil {
				return blockErr
			}
			return InUseError{IntegrationID: id, Blockers: blockers}
		}

		for _, source := range sources {
			if eraseErr := s.sourceEraser.Erase(ctx, tx, source); eraseErr != nil {
				return fmt.Errorf("core: cascade failed for source %s: %w", source.ID, eraseErr)
			}
		}
		cascaded = sources

		if deleteErr := tx.Integrations().Delete(ctx, id); deleteErr != nil {
			return deleteErr
		}

		// The delete event rides the same transaction: it only becomes
		// visible to the dispatcher once the cascade commits.
		if outbox := tx.Outbox(); outbox != nil {
			event := s.buildLifecycleEvent(EventIntegrationDeleted, integration, req.Actor, map[string]any{
				"title":            integration.Title,
				"cascaded_sources": len(sources),
				"force":            req.Force,
			})
			if enqueueErr := outbox.Enqueue(ctx, event); enqueueErr != nil {
				s.logError(ctx, "delete event enqueue failed", map[string]any{
					"integration_id": id,
					"error":          enqueueErr.Error(),
				})
			}
		}
		return nil
	})
	if txErr != nil {
		var inUse InUseError
		switch {
		case errors.As(txErr, &inUse):
			err = s.mapError(inUse)
		case errors.Is(txErr, ErrIntegrationNotFound):
			err = s.mapError(txErr)
		default:
			err = s.mapError(DeleteFailedError{IntegrationID: id, Cause: txErr})
		}
		return err
	}

	fields["cascaded_sources"] = len(cascaded)
	s.publishEvent(ctx, s.buildLifecycleEvent(EventIntegrationDeleted, deleted, req.Actor, map[string]any{
		"title":            deleted.Title,
		"cascaded_sources": len(cascaded),
		"force":            req.Force,
	}))
	return nil
}

// loadCloneSource resolves the integration a clone copies from. A
// soft-deleted original is treated as absent.
func (s *Service) loadCloneSource(ctx context.Context, id string) (Integration, error) {
	original, err := s.integrationStore.Get(ctx, id)
	if err != nil {
		return Integration{}, err
	}
	if !original.DeleteState.Active() {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	return original, nil
}

func (s *Service) validatePayload(ctx context.Context, integrationType string, payload map[string]any) error {
	if s == nil || s.schemaValidator == nil {
		return nil
	}
	return s.schemaValidator.Validate(ctx, integrationType, payload)
}

func collectBlockers(ctx context.Context, tx StoreProvider, sources []Source) ([]SourceBlocker, error) {
	baseIDs := make([]string, 0, len(sources))
	seen := map[string]struct{}{}
	for _, source := range sources {
		if _, ok := seen[source.BaseID]; ok {
			continue
		}
		seen[source.BaseID] = struct{}{}
		baseIDs = append(baseIDs, source.BaseID)
	}
	titles, err := tx.Bases().TitlesByIDs(ctx, baseIDs)
	if err != nil {
		return nil, fmt.Errorf("core: base title lookup failed: %w", err)
	}
	blockers := make([]SourceBlocker, 0, len(sources))
	for _, source := range sources {
		blockers = append(blockers, SourceBlocker{
			SourceID:  source.ID,
			Alias:     source.Alias,
			BaseID:    source.BaseID,
			BaseTitle: titles[source.BaseID],
		})
	}
	return blockers, nil
}

func (s *Service) buildLifecycleEvent(name string, integration Integration, actor string, payload map[string]any) LifecycleEvent {
	return LifecycleEvent{
		ID:            uuid.NewString(),
		Name:          name,
		IntegrationID: integration.ID,
		WorkspaceID:   integration.WorkspaceID,
		Actor:         strings.TrimSpace(actor),
		OccurredAt:    time.Now().UTC(),
		Payload:       RedactSensitiveMap(payload),
		Metadata: map[string]any{
			"integration_type": integration.Type,
		},
	}
}

// emitLifecycleEvent writes the event to the outbox and hands it to
// in-process subscribers. Neither failure affects the caller.
func (s *Service) emitLifecycleEvent(ctx context.Context, name string, integration Integration, actor string, payload map[string]any) {
	if s == nil {
		return
	}
	event := s.buildLifecycleEvent(name, integration, actor, payload)
	if s.outboxStore != nil {
		if err := s.outboxStore.Enqueue(ctx, event); err != nil {
			s.logError(ctx, "lifecycle event enqueue failed", map[string]any{
				"integration_id": integration.ID,
				"event":          name,
				"error":          err.Error(),
			})
		}
	}
	s.publishEvent(ctx, event)
}

func (s *Service) publishEvent(ctx context.Context, event LifecycleEvent) {
	if s == nil || s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logError(ctx, "lifecycle event publish failed", map[string]any{
			"integration_id": event.IntegrationID,
			"event":          event.Name,
			"error":          err.Error(),
		})
	}
}

var _ IntegrationRegistry = (*Service)(nil)
