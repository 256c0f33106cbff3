package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateIntegrationMessage]     = (*CreateIntegrationCommand)(nil)
	_ gocmd.Commander[UpdateIntegrationMessage]     = (*UpdateIntegrationCommand)(nil)
	_ gocmd.Commander[SoftDeleteIntegrationMessage] = (*SoftDeleteIntegrationCommand)(nil)
	_ gocmd.Commander[DeleteIntegrationMessage]     = (*DeleteIntegrationCommand)(nil)
	_ gocmd.Commander[ReleaseSourceMessage]         = (*ReleaseSourceCommand)(nil)
)
