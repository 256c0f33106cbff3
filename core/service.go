package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
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

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	TypeRegistry      TypeRegistry
	SchemaValidator   SchemaValidator
	StoreProvider     StoreProvider
	IntegrationStore  IntegrationStore
	SourceStore       SourceStore
	BaseStore         BaseStore
	OutboxStore       OutboxStore
	SourceConfigCache SourceConfigCache
	Releaser          ConnectionReleaser
	ReleaseBus        ReleaseBus
	SourceEraser      SourceEraser
	EventBus          LifecycleEventBus
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.typeRegistry == nil {
		builder.typeRegistry = NewIntegrationTypeRegistry()
	}
	if builder.releaseBus == nil {
		builder.releaseBus = NopReleaseBus{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.stores == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.stores = storeProvider
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.stores = storeProvider
		}
	}
	if builder.stores != nil {
		if builder.integrationStore == nil {
			builder.integrationStore = builder.stores.Integrations()
		}
		if builder.sourceStore == nil {
			builder.sourceStore = builder.stores.Sources()
		}
		if builder.baseStore == nil {
			builder.baseStore = builder.stores.Bases()
		}
		if builder.outboxStore == nil {
			builder.outboxStore = builder.stores.Outbox()
		}
	}
	if builder.schemaValidator == nil {
		builder.schemaValidator = TypeRuleValidator{Registry: builder.typeRegistry}
	}

	service := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		typeRegistry:      builder.typeRegistry,
		schemaValidator:   builder.schemaValidator,
		stores:            builder.stores,
		integrationStore:  builder.integrationStore,
		sourceStore:       builder.sourceStore,
		baseStore:         builder.baseStore,
		outboxStore:       builder.outboxStore,
		configCache:       builder.configCache,
		releaser:          builder.releaser,
		releaseBus:        builder.releaseBus,
		eventBus:          builder.eventBus,
	}
	if builder.sourceEraser != nil {
		service.sourceEraser = builder.sourceEraser
	} else {
		service.sourceEraser = storeSourceEraser{service: service}
	}
	return service, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		TypeRegistry:      s.typeRegistry,
		SchemaValidator:   s.schemaValidator,
		StoreProvider:     s.stores,
		IntegrationStore:  s.integrationStore,
		SourceStore:       s.sourceStore,
		BaseStore:         s.baseStore,
		OutboxStore:       s.outboxStore,
		SourceConfigCache: s.configCache,
		Releaser:          s.releaser,
		ReleaseBus:        s.releaseBus,
		SourceEraser:      s.sourceEraser,
		EventBus:          s.eventBus,
	}
}

// Get loads one integration. The sealed config blob stays empty unless
// includeConfig is set, in which case it is decrypted and re-attached
// as a JSON string.
func (s *Service) Get(ctx context.Context, id string, includeConfig bool) (integration Integration, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"integration_id": id,
		"include_config": includeConfig,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "integration_get", err, fields)
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

	integration, err = s.integrationStore.Get(ctx, id)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	if !includeConfig {
		integration.ClearConfig()
		return integration, nil
	}

	values, openErr := s.openConfig(ctx, integration.Config)
	if openErr != nil {
		err = s.mapError(openErr)
		return Integration{}, err
	}
	encoded, encodeErr := json.Marshal(values)
	if encodeErr != nil {
		err = s.mapError(encodeErr)
		return Integration{}, err
	}
	integration.Config = string(encoded)
	return integration, nil
}

// DecryptedConfig returns the plaintext config values for one
// integration. This is the only accessor that exposes config.
func (s *Service) DecryptedConfig(ctx context.Context, id string) (values map[string]any, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"integration_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "integration_config_read", err, fields)
	}()

	if err = s.requireStores(); err != nil {
		err = s.mapError(err)
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		err = s.mapError(requiredFieldError("id"))
		return nil, err
	}

	integration, getErr := s.integrationStore.Get(ctx, id)
	if getErr != nil {
		err = s.mapError(getErr)
		return nil, err
	}
	values, err = s.openConfig(ctx, integration.Config)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return values, nil
}

func (s *Service) List(ctx context.Context, filter IntegrationFilter) (page IntegrationPage, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"workspace_id":     filter.WorkspaceID,
		"integration_type": filter.Type,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "integration_list", err, fields)
	}()

	if err = s.requireStores(); err != nil {
		err = s.mapError(err)
		return IntegrationPage{}, err
	}
	if filter.Limit <= 0 {
		filter.Limit = s.config.ListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	page, err = s.integrationStore.List(ctx, filter)
	if err != nil {
		err = s.mapError(err)
		return IntegrationPage{}, err
	}
	for i := range page.Items {
		page.Items[i].ClearConfig()
	}

	if filter.IncludeSourceCount && s.sourceStore != nil && len(page.Items) > 0 {
		ids := make([]string, 0, len(page.Items))
		for _, item := range page.Items {
			ids = append(ids, item.ID)
		}
		counts, countErr := s.sourceStore.CountActiveByIntegration(ctx, ids)
		if countErr != nil {
			err = s.mapError(countErr)
			return IntegrationPage{}, err
		}
		page.SourceCounts = counts
	}
	return page, nil
}

func (s *Service) requireStores() error {
	if s == nil || s.integrationStore == nil {
		return fmt.Errorf("core: integration store is not configured")
	}
	return nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// sealConfig encodes and encrypts plaintext config values into the
// opaque blob persisted on the record.
func (s *Service) sealConfig(ctx context.Context, values map[string]any) (string, error) {
	if s == nil || s.secretProvider == nil {
		return "", fmt.Errorf("core: secret provider is not configured")
	}
	encoded, err := json.Marshal(copyAnyMap(values))
	if err != nil {
		return "", fmt.Errorf("core: config encode failed: %w", err)
	}
	sealed, err := s.secretProvider.Encrypt(ctx, encoded)
	if err != nil {
		return "", fmt.Errorf("core: config encrypt failed: %w", err)
	}
	return string(sealed), nil
}

// openConfig reverses sealConfig. An empty blob opens to an empty map.
func (s *Service) openConfig(ctx context.Context, sealed string) (map[string]any, error) {
	if strings.TrimSpace(sealed) == "" {
		return map[string]any{}, nil
	}
	if s == nil || s.secretProvider == nil {
		return nil, fmt.Errorf("core: secret provider is not configured")
	}
	plaintext, err := s.secretProvider.Decrypt(ctx, []byte(sealed))
	if err != nil {
		return nil, fmt.Errorf("core: config decrypt failed: %w", err)
	}
	values := map[string]any{}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("core: config decode failed: %w", err)
	}
	return values, nil
}

func requiredFieldError(field string) error {
	return goerrors.NewValidation("core: validation failed", goerrors.FieldError{
		Field:   field,
		Message: "is required",
	}).
		WithTextCode(IntegrationErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
