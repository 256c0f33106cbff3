package query

import (
	"context"

	"github.com/ChasLui/nocodb/core"
)

// IntegrationReader is the read surface the integration service
// exposes; sealed config never leaves it unless explicitly requested.
type IntegrationReader interface {
	Get(ctx context.Context, id string, includeConfig bool) (core.Integration, error)
	List(ctx context.Context, filter core.IntegrationFilter) (core.IntegrationPage, error)
}

type SourceReader interface {
	ListActiveByIntegration(ctx context.Context, integrationID string) ([]core.Source, error)
}

type ActivityReader interface {
	List(ctx context.Context, filter core.AuditFilter) (core.AuditPage, error)
}

type GetIntegrationQuery struct {
	reader IntegrationReader
}

func NewGetIntegrationQuery(reader IntegrationReader) *GetIntegrationQuery {
	return &GetIntegrationQuery{reader: reader}
}

func (q *GetIntegrationQuery) Query(ctx context.Context, msg GetIntegrationMessage) (core.Integration, error) {
	if q == nil || q.reader == nil {
		return core.Integration{}, queryDependencyError("query: integration reader is required")
	}
	return q.reader.Get(ctx, msg.IntegrationID, msg.IncludeConfig)
}

type ListIntegrationsQuery struct {
	reader IntegrationReader
}

func NewListIntegrationsQuery(reader IntegrationReader) *ListIntegrationsQuery {
	return &ListIntegrationsQuery{reader: reader}
}

func (q *ListIntegrationsQuery) Query(
	ctx context.Context,
	msg ListIntegrationsMessage,
) (core.IntegrationPage, error) {
	if q == nil || q.reader == nil {
		return core.IntegrationPage{}, queryDependencyError("query: integration reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}

type ListActiveSourcesQuery struct {
	reader SourceReader
}

func NewListActiveSourcesQuery(reader SourceReader) *ListActiveSourcesQuery {
	return &ListActiveSourcesQuery{reader: reader}
}

func (q *ListActiveSourcesQuery) Query(
	ctx context.Context,
	msg ListActiveSourcesMessage,
) ([]core.Source, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: source reader is required")
	}
	return q.reader.ListActiveByIntegration(ctx, msg.IntegrationID)
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (core.AuditPage, error) {
	if q == nil || q.reader == nil {
		return core.AuditPage{}, queryDependencyError("query: activity reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
