package nocodb

import "github.com/ChasLui/nocodb/core"

type Config = core.Config

type CacheConfig = core.CacheConfig

type OutboxConfig = core.OutboxConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Integration = core.Integration
type Source = core.Source
type Base = core.Base
type IntegrationPage = core.IntegrationPage
type IntegrationFilter = core.IntegrationFilter
type TypeDescriptor = core.TypeDescriptor
type TypeRegistry = core.TypeRegistry
type SecretProvider = core.SecretProvider
type SourceConfigCache = core.SourceConfigCache
type ConnectionReleaser = core.ConnectionReleaser
type ReleaseBus = core.ReleaseBus
type ReleaseCommand = core.ReleaseCommand
type ReleaseScope = core.ReleaseScope

type CreateIntegrationRequest = core.CreateIntegrationRequest
type UpdateIntegrationRequest = core.UpdateIntegrationRequest

type SoftDeleteIntegrationRequest = core.SoftDeleteIntegrationRequest

type DeleteIntegrationRequest = core.DeleteIntegrationRequest

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorFactory       = core.WithErrorFactory
	WithErrorMapper        = core.WithErrorMapper
	WithSecretProvider     = core.WithSecretProvider
	WithPersistenceClient  = core.WithPersistenceClient
	WithRepositoryFactory  = core.WithRepositoryFactory
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithTypeRegistry       = core.WithTypeRegistry
	WithSchemaValidator    = core.WithSchemaValidator
	WithStoreProvider      = core.WithStoreProvider
	WithIntegrationStore   = core.WithIntegrationStore
	WithSourceStore        = core.WithSourceStore
	WithBaseStore          = core.WithBaseStore
	WithOutboxStore        = core.WithOutboxStore
	WithSourceConfigCache  = core.WithSourceConfigCache
	WithConnectionReleaser = core.WithConnectionReleaser
	WithReleaseBus         = core.WithReleaseBus
	WithSourceEraser       = core.WithSourceEraser
	WithLifecycleEventBus  = core.WithLifecycleEventBus
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
