package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/ChasLui/nocodb/core"
)

var (
	_ gocmd.Querier[GetIntegrationMessage, core.Integration]       = (*GetIntegrationQuery)(nil)
	_ gocmd.Querier[ListIntegrationsMessage, core.IntegrationPage] = (*ListIntegrationsQuery)(nil)
	_ gocmd.Querier[ListActiveSourcesMessage, []core.Source]       = (*ListActiveSourcesQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.AuditPage]           = (*ListActivityQuery)(nil)

	_ IntegrationReader = (*core.Service)(nil)
	_ SourceReader      = (core.SourceStore)(nil)
	_ ActivityReader    = (core.AuditLog)(nil)
)
