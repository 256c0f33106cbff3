package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/ChasLui/nocodb/core"
)

type MutatingService interface {
	Create(ctx context.Context, req core.CreateIntegrationRequest) (core.Integration, error)
	Update(ctx context.Context, id string, req core.UpdateIntegrationRequest) (core.Integration, error)
	SoftDelete(ctx context.Context, req core.SoftDeleteIntegrationRequest) error
	Delete(ctx context.Context, req core.DeleteIntegrationRequest) error
}

type CreateIntegrationCommand struct {
	service MutatingService
}

func NewCreateIntegrationCommand(service MutatingService) *CreateIntegrationCommand {
	return &CreateIntegrationCommand{service: service}
}

func (c *CreateIntegrationCommand) Execute(ctx context.Context, msg CreateIntegrationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: integration service is required")
	}
	out, err := c.service.Create(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateIntegrationCommand struct {
	service MutatingService
}

func NewUpdateIntegrationCommand(service MutatingService) *UpdateIntegrationCommand {
	return &UpdateIntegrationCommand{service: service}
}

func (c *UpdateIntegrationCommand) Execute(ctx context.Context, msg UpdateIntegrationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: integration service is required")
	}
	out, err := c.service.Update(ctx, msg.ID, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SoftDeleteIntegrationCommand struct {
	service MutatingService
}

func NewSoftDeleteIntegrationCommand(service MutatingService) *SoftDeleteIntegrationCommand {
	return &SoftDeleteIntegrationCommand{service: service}
}

func (c *SoftDeleteIntegrationCommand) Execute(ctx context.Context, msg SoftDeleteIntegrationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: integration service is required")
	}
	return c.service.SoftDelete(ctx, msg.Request)
}

type DeleteIntegrationCommand struct {
	service MutatingService
}

func NewDeleteIntegrationCommand(service MutatingService) *DeleteIntegrationCommand {
	return &DeleteIntegrationCommand{service: service}
}

func (c *DeleteIntegrationCommand) Execute(ctx context.Context, msg DeleteIntegrationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: integration service is required")
	}
	return c.service.Delete(ctx, msg.Request)
}

// ReleaseSourceCommand is the receiver side of the release fan-out.
// Execution never fails: a source without a local connection is a
// no-op, which keeps duplicate and replayed commands harmless.
type ReleaseSourceCommand struct {
	releaser core.ConnectionReleaser
}

func NewReleaseSourceCommand(releaser core.ConnectionReleaser) *ReleaseSourceCommand {
	return &ReleaseSourceCommand{releaser: releaser}
}

func (c *ReleaseSourceCommand) Execute(ctx context.Context, msg ReleaseSourceMessage) error {
	if c == nil || c.releaser == nil {
		return nil
	}
	c.releaser.ReleaseLocal(ctx, msg.SourceID)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
