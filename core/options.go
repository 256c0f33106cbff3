package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	typeRegistry      TypeRegistry
	schemaValidator   SchemaValidator
	stores            StoreProvider
	integrationStore  IntegrationStore
	sourceStore       SourceStore
	baseStore         BaseStore
	outboxStore       OutboxStore
	configCache       SourceConfigCache
	releaser          ConnectionReleaser
	releaseBus        ReleaseBus
	sourceEraser      SourceEraser
	eventBus          LifecycleEventBus
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithTypeRegistry(registry TypeRegistry) Option {
	return func(b *serviceBuilder) {
		b.typeRegistry = registry
	}
}

func WithSchemaValidator(validator SchemaValidator) Option {
	return func(b *serviceBuilder) {
		b.schemaValidator = validator
	}
}

func WithStoreProvider(stores StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.stores = stores
	}
}

func WithIntegrationStore(store IntegrationStore) Option {
	return func(b *serviceBuilder) {
		b.integrationStore = store
	}
}

func WithSourceStore(store SourceStore) Option {
	return func(b *serviceBuilder) {
		b.sourceStore = store
	}
}

func WithBaseStore(store BaseStore) Option {
	return func(b *serviceBuilder) {
		b.baseStore = store
	}
}

func WithOutboxStore(store OutboxStore) Option {
	return func(b *serviceBuilder) {
		b.outboxStore = store
	}
}

func WithSourceConfigCache(cache SourceConfigCache) Option {
	return func(b *serviceBuilder) {
		b.configCache = cache
	}
}

func WithConnectionReleaser(releaser ConnectionReleaser) Option {
	return func(b *serviceBuilder) {
		b.releaser = releaser
	}
}

func WithReleaseBus(bus ReleaseBus) Option {
	return func(b *serviceBuilder) {
		b.releaseBus = bus
	}
}

func WithSourceEraser(eraser SourceEraser) Option {
	return func(b *serviceBuilder) {
		b.sourceEraser = eraser
	}
}

func WithLifecycleEventBus(bus LifecycleEventBus) Option {
	return func(b *serviceBuilder) {
		b.eventBus = bus
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("integrations", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		typeRegistry:    NewIntegrationTypeRegistry(),
		releaseBus:      NopReleaseBus{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return integrationErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.CopyTitleSuffix) != "" {
		layer["copy_title_suffix"] = cfg.CopyTitleSuffix
	}
	if includeZero || cfg.ListLimit > 0 {
		layer["list_limit"] = cfg.ListLimit
	}

	cache := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Cache.Scope) != "" {
		cache["scope"] = cfg.Cache.Scope
	}
	if includeZero || cfg.Cache.TTLSeconds > 0 {
		cache["ttl_seconds"] = cfg.Cache.TTLSeconds
	}
	if len(cache) > 0 {
		layer["cache"] = cache
	}

	outbox := map[string]any{}
	if includeZero || cfg.Outbox.BatchSize > 0 {
		outbox["batch_size"] = cfg.Outbox.BatchSize
	}
	if includeZero || cfg.Outbox.MaxAttempts > 0 {
		outbox["max_attempts"] = cfg.Outbox.MaxAttempts
	}
	if includeZero || cfg.Outbox.InitialBackoffSeconds > 0 {
		outbox["initial_backoff_seconds"] = cfg.Outbox.InitialBackoffSeconds
	}
	if includeZero || cfg.Outbox.MaxBackoffSeconds > 0 {
		outbox["max_backoff_seconds"] = cfg.Outbox.MaxBackoffSeconds
	}
	if len(outbox) > 0 {
		layer["outbox"] = outbox
	}
	return layer
}
