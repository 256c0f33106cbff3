package query

import (
	"strings"

	"github.com/ChasLui/nocodb/core"
)

const (
	TypeGetIntegration    = "nocodb.query.integration.get"
	TypeListIntegrations  = "nocodb.query.integration.list"
	TypeListActiveSources = "nocodb.query.source.list_active"
	TypeListActivity      = "nocodb.query.activity.list"
)

type GetIntegrationMessage struct {
	IntegrationID string
	IncludeConfig bool
}

func (GetIntegrationMessage) Type() string { return TypeGetIntegration }

func (m GetIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return queryValidationError("integration_id", "required")
	}
	return nil
}

type ListIntegrationsMessage struct {
	Filter core.IntegrationFilter
}

func (ListIntegrationsMessage) Type() string { return TypeListIntegrations }

func (m ListIntegrationsMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "must be >= 0")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "must be >= 0")
	}
	return nil
}

type ListActiveSourcesMessage struct {
	IntegrationID string
}

func (ListActiveSourcesMessage) Type() string { return TypeListActiveSources }

func (m ListActiveSourcesMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return queryValidationError("integration_id", "required")
	}
	return nil
}

type ListActivityMessage struct {
	Filter core.AuditFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "must be >= 0")
	}
	return nil
}
