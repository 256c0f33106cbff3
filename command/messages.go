package command

import (
	"strings"

	"github.com/ChasLui/nocodb/core"
)

const (
	TypeCreateIntegration     = "nocodb.command.integration.create"
	TypeUpdateIntegration     = "nocodb.command.integration.update"
	TypeSoftDeleteIntegration = "nocodb.command.integration.soft_delete"
	TypeDeleteIntegration     = "nocodb.command.integration.delete"
	TypeReleaseSource         = "nocodb.command.source.release"
)

type CreateIntegrationMessage struct {
	Request core.CreateIntegrationRequest
}

func (CreateIntegrationMessage) Type() string { return TypeCreateIntegration }

func (m CreateIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.Request.WorkspaceID) == "" {
		return commandValidationError("workspace_id", "required")
	}
	if strings.TrimSpace(m.Request.Type) == "" && strings.TrimSpace(m.Request.CopyFromID) == "" {
		return commandValidationError("type", "required when copy_from_id is not set")
	}
	return nil
}

type UpdateIntegrationMessage struct {
	ID      string
	Request core.UpdateIntegrationRequest
}

func (UpdateIntegrationMessage) Type() string { return TypeUpdateIntegration }

func (m UpdateIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return commandValidationError("id", "required")
	}
	return nil
}

type SoftDeleteIntegrationMessage struct {
	Request core.SoftDeleteIntegrationRequest
}

func (SoftDeleteIntegrationMessage) Type() string { return TypeSoftDeleteIntegration }

func (m SoftDeleteIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.Request.ID) == "" {
		return commandValidationError("id", "required")
	}
	return nil
}

type DeleteIntegrationMessage struct {
	Request core.DeleteIntegrationRequest
}

func (DeleteIntegrationMessage) Type() string { return TypeDeleteIntegration }

func (m DeleteIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.Request.ID) == "" {
		return commandValidationError("id", "required")
	}
	return nil
}

// ReleaseSourceMessage is the cross-process release fan-out. Receivers
// drop their local connection for the source; duplicates and replays
// are harmless.
type ReleaseSourceMessage struct {
	SourceID string
	Reason   string
	Scope    core.ReleaseScope
}

func (ReleaseSourceMessage) Type() string { return TypeReleaseSource }

func (m ReleaseSourceMessage) Validate() error {
	if strings.TrimSpace(m.SourceID) == "" {
		return commandValidationError("source_id", "required")
	}
	switch m.Scope {
	case "", core.ReleaseScopeWorkers, core.ReleaseScopePrimary:
		return nil
	default:
		return commandValidationError("scope", "must be workers or primary")
	}
}
