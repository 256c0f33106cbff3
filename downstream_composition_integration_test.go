package nocodb_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	nocodb "github.com/ChasLui/nocodb"
	nccommand "github.com/ChasLui/nocodb/command"
	"github.com/ChasLui/nocodb/core"
	ncmigrations "github.com/ChasLui/nocodb/migrations"
	"github.com/ChasLui/nocodb/providers/discord"
	"github.com/ChasLui/nocodb/providers/mssql"
	ncquery "github.com/ChasLui/nocodb/query"
	"github.com/ChasLui/nocodb/schema"
	"github.com/ChasLui/nocodb/security"
	sqlstore "github.com/ChasLui/nocodb/store/sql"
	"github.com/ChasLui/nocodb/webhooks"
	gocmd "github.com/goliatone/go-command"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// The composition tests drive the module the way a downstream
// application would: connector packs through extension hooks, a
// sqlite-backed store factory, and every interaction through the root
// facade rather than runtime internals.

func TestDownstreamComposition_FacadeOverSQLiteRuntime(t *testing.T) {
	ctx := context.Background()
	runtime, cleanup := newCompositionRuntime(t)
	defer cleanup()

	commands := runtime.facade.Commands()
	queries := runtime.facade.Queries()

	err := commands.Create.Execute(ctx, nccommand.CreateIntegrationMessage{Request: nocodb.CreateIntegrationRequest{
		WorkspaceID: "ws_main",
		Type:        discord.TypeID,
		Title:       "Deploy Alerts",
		Config:      map[string]any{"webhook_url": "https://example.com/hooks/123"},
		CreatedBy:   "usr_admin",
	}})
	if err == nil {
		t.Fatalf("expected connector rule to reject a foreign webhook host")
	}

	webhookURL := discord.WebhookHostPrefix + "42/token-abc"
	collector := gocmd.NewResult[core.Integration]()
	err = commands.Create.Execute(gocmd.ContextWithResult(ctx, collector), nccommand.CreateIntegrationMessage{Request: nocodb.CreateIntegrationRequest{
		WorkspaceID: "ws_main",
		Type:        discord.TypeID,
		Title:       "Deploy Alerts",
		Config:      map[string]any{"webhook_url": webhookURL},
		CreatedBy:   "usr_admin",
	}})
	if err != nil {
		t.Fatalf("create integration through facade command: %v", err)
	}
	created, ok := collector.Load()
	if !ok || created.ID == "" {
		t.Fatalf("expected created integration in result collector, got %#v", created)
	}
	if created.Config != "" {
		t.Fatalf("expected mutation response without config, got %q", created.Config)
	}

	fetched, err := queries.GetIntegration.Query(ctx, ncquery.GetIntegrationMessage{IntegrationID: created.ID})
	if err != nil {
		t.Fatalf("get integration through facade query: %v", err)
	}
	if fetched.Config != "" {
		t.Fatalf("expected config stripped without include_config, got %q", fetched.Config)
	}

	withConfig, err := queries.GetIntegration.Query(ctx, ncquery.GetIntegrationMessage{
		IntegrationID: created.ID,
		IncludeConfig: true,
	})
	if err != nil {
		t.Fatalf("get integration with config: %v", err)
	}
	if !strings.Contains(withConfig.Config, "webhook_url") {
		t.Fatalf("expected decrypted config view, got %q", withConfig.Config)
	}

	clone, err := runtime.service.Create(ctx, nocodb.CreateIntegrationRequest{
		WorkspaceID: "ws_main",
		CopyFromID:  created.ID,
		CreatedBy:   "usr_admin",
	})
	if err != nil {
		t.Fatalf("clone integration: %v", err)
	}
	if clone.Title != "Deploy Alerts_copy" {
		t.Fatalf("expected copy suffix on clone title, got %q", clone.Title)
	}
	if clone.Type != discord.TypeID {
		t.Fatalf("expected clone to inherit type, got %q", clone.Type)
	}
	cloneValues, err := runtime.service.DecryptedConfig(ctx, clone.ID)
	if err != nil {
		t.Fatalf("decrypt clone config: %v", err)
	}
	if cloneValues["webhook_url"] != webhookURL {
		t.Fatalf("expected clone to carry the original config, got %v", cloneValues)
	}

	page, err := queries.ListIntegrations.Query(ctx, ncquery.ListIntegrationsMessage{
		Filter: nocodb.IntegrationFilter{WorkspaceID: "ws_main"},
	})
	if err != nil {
		t.Fatalf("list integrations through facade query: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected original and clone listed, got %d", page.Total)
	}

	err = commands.SoftDelete.Execute(ctx, nccommand.SoftDeleteIntegrationMessage{Request: nocodb.SoftDeleteIntegrationRequest{
		ID:    created.ID,
		Actor: "usr_admin",
	}})
	if err != nil {
		t.Fatalf("soft delete through facade command: %v", err)
	}

	page, err = queries.ListIntegrations.Query(ctx, ncquery.ListIntegrationsMessage{
		Filter: nocodb.IntegrationFilter{WorkspaceID: "ws_main"},
	})
	if err != nil {
		t.Fatalf("list integrations after soft delete: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != clone.ID {
		t.Fatalf("expected only the clone to remain listed, got %+v", page)
	}

	flagged, err := runtime.service.Get(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("get soft-deleted integration: %v", err)
	}
	if flagged.DeleteState != core.DeleteStateDeleted {
		t.Fatalf("expected deleted state on flagged integration, got %q", flagged.DeleteState)
	}
}

func TestDownstreamComposition_FacadeResolvesReadersFromRuntime(t *testing.T) {
	ctx := context.Background()
	runtime, cleanup := newCompositionRuntime(t)
	defer cleanup()

	queries := runtime.facade.Queries()

	// Neither reader was passed as an option; answering at all proves
	// the facade resolved them off the runtime's store factory.
	activity, err := queries.ListActivity.Query(ctx, ncquery.ListActivityMessage{})
	if err != nil {
		t.Fatalf("list activity through resolved reader: %v", err)
	}
	if activity.Total != 0 {
		t.Fatalf("expected empty activity trail, got %d", activity.Total)
	}

	integration, err := runtime.service.Create(ctx, nocodb.CreateIntegrationRequest{
		WorkspaceID: "ws_main",
		Type:        mssql.TypeID,
		Title:       "Warehouse",
		Config: map[string]any{
			"host":     "db.internal",
			"port":     1433,
			"database": "analytics",
			"user":     "svc",
		},
		CreatedBy: "usr_admin",
	})
	if err != nil {
		t.Fatalf("create integration: %v", err)
	}

	base, err := runtime.factory.BaseStore().Create(ctx, core.Base{WorkspaceID: "ws_main", Title: "Analytics"})
	if err != nil {
		t.Fatalf("create base: %v", err)
	}
	source, err := runtime.factory.SourceStore().Create(ctx, core.Source{
		BaseID:        base.ID,
		IntegrationID: integration.ID,
		Alias:         "warehouse_main",
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	sources, err := queries.ListActiveSources.Query(ctx, ncquery.ListActiveSourcesMessage{IntegrationID: integration.ID})
	if err != nil {
		t.Fatalf("list active sources through resolved reader: %v", err)
	}
	if len(sources) != 1 || sources[0].ID != source.ID {
		t.Fatalf("expected seeded source listed, got %+v", sources)
	}

	err = runtime.factory.ActivityStore().Record(ctx, core.AuditEntry{
		Actor:  "usr_admin",
		Action: "integration.created",
		Object: "integration:" + integration.ID,
		Status: core.AuditStatusOK,
		Metadata: map[string]any{
			"workspace_id":   "ws_main",
			"integration_id": integration.ID,
		},
	})
	if err != nil {
		t.Fatalf("record activity entry: %v", err)
	}

	activity, err = queries.ListActivity.Query(ctx, ncquery.ListActivityMessage{
		Filter: core.AuditFilter{IntegrationID: integration.ID},
	})
	if err != nil {
		t.Fatalf("list activity for integration: %v", err)
	}
	if activity.Total != 1 || activity.Items[0].Action != "integration.created" {
		t.Fatalf("expected recorded entry listed, got %+v", activity)
	}
}

func TestDownstreamComposition_WebhookFanoutFromOutbox(t *testing.T) {
	ctx := context.Background()
	runtime, cleanup := newCompositionRuntime(t)
	defer cleanup()

	endpoints := webhooks.NewEndpointRegistry()
	err := endpoints.Register(webhooks.Endpoint{
		ID:     "ep_ops",
		URL:    "https://hooks.example.com/ops",
		Secret: "whsec_ops",
	})
	if err != nil {
		t.Fatalf("register endpoint: %v", err)
	}
	doer := &compositionDoer{}
	notifier, err := webhooks.NewNotifier(endpoints, webhooks.WithHTTPClient(doer))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	projectors := core.NewLifecycleProjectorRegistry()
	projectors.Register("webhooks", notifier)
	dispatcher, err := runtime.service.OutboxDispatcher(projectors)
	if err != nil {
		t.Fatalf("new outbox dispatcher: %v", err)
	}

	created, err := runtime.service.Create(ctx, nocodb.CreateIntegrationRequest{
		WorkspaceID: "ws_main",
		Type:        mssql.TypeID,
		Title:       "Warehouse",
		Config: map[string]any{
			"host":     "db.internal",
			"port":     1433,
			"database": "analytics",
			"user":     "svc",
			"password": "hunter2",
		},
		CreatedBy: "usr_admin",
	})
	if err != nil {
		t.Fatalf("create integration: %v", err)
	}

	stats, err := dispatcher.DispatchPending(ctx, 10)
	if err != nil {
		t.Fatalf("dispatch pending: %v", err)
	}
	if stats.Delivered != 1 {
		t.Fatalf("expected one delivered event, got %+v", stats)
	}

	requests := doer.snapshot()
	if len(requests) != 1 {
		t.Fatalf("expected one webhook delivery, got %d", len(requests))
	}
	delivery := requests[0]
	if got := delivery.header.Get(webhooks.HeaderEvent); got != core.EventIntegrationCreated {
		t.Fatalf("expected created event header, got %q", got)
	}
	scheme := webhooks.DefaultSignatureScheme()
	if err := scheme.Verify("whsec_ops", delivery.body, delivery.header.Get(webhooks.DefaultSignatureHeader)); err != nil {
		t.Fatalf("verify delivery signature: %v", err)
	}

	var message webhooks.Message
	if err := json.Unmarshal(delivery.body, &message); err != nil {
		t.Fatalf("decode delivery body: %v", err)
	}
	if message.IntegrationID != created.ID || message.Event != core.EventIntegrationCreated {
		t.Fatalf("unexpected delivery message %+v", message)
	}
	if strings.Contains(string(delivery.body), "hunter2") {
		t.Fatalf("expected the delivery body to stay free of credentials: %s", delivery.body)
	}

	// Redelivery of the same batch is a no-op once acked.
	stats, err = dispatcher.DispatchPending(ctx, 10)
	if err != nil {
		t.Fatalf("redispatch: %v", err)
	}
	if stats.Claimed != 0 {
		t.Fatalf("expected nothing left to claim, got %+v", stats)
	}
}

type compositionDoer struct {
	mu       sync.Mutex
	requests []compositionDelivery
}

type compositionDelivery struct {
	header http.Header
	body   []byte
}

func (d *compositionDoer) Do(req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.requests = append(d.requests, compositionDelivery{header: req.Header.Clone(), body: body})
	d.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func (d *compositionDoer) snapshot() []compositionDelivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]compositionDelivery, len(d.requests))
	copy(out, d.requests)
	return out
}

type compositionRuntime struct {
	service *nocodb.Service
	facade  *nocodb.Facade
	factory *sqlstore.RepositoryFactory
}

func newCompositionRuntime(t *testing.T) (compositionRuntime, func()) {
	t.Helper()

	client, cleanup := newCompositionClient(t)
	fail := func(format string, args ...any) {
		cleanup()
		t.Fatalf(format, args...)
	}

	mssqlConnector, err := nocodb.MSSQLConnector(mssql.Config{})
	if err != nil {
		fail("build mssql connector: %v", err)
	}
	discordConnector, err := nocodb.DiscordConnector(discord.Config{})
	if err != nil {
		fail("build discord connector: %v", err)
	}

	hooks := nocodb.NewExtensionHooks()
	typePack, err := nocodb.ConnectorTypePack("extensions", mssqlConnector, discordConnector)
	if err != nil {
		fail("build connector type pack: %v", err)
	}
	if err := hooks.RegisterTypePack(typePack); err != nil {
		fail("register type pack: %v", err)
	}
	rulePacks, err := nocodb.ConnectorRulePacks("extensions", mssqlConnector, discordConnector)
	if err != nil {
		fail("build connector rule packs: %v", err)
	}
	for _, pack := range rulePacks {
		if err := hooks.RegisterSchemaRulePack(pack); err != nil {
			fail("register rule pack %s: %v", pack.Name, err)
		}
	}

	registry := core.NewIntegrationTypeRegistry()
	if err := hooks.ApplyTypePacks(registry); err != nil {
		fail("apply type packs: %v", err)
	}
	validator := schema.New(registry)
	if err := hooks.ApplySchemaRulePacks(validator); err != nil {
		fail("apply schema rule packs: %v", err)
	}

	secrets, err := security.NewAppKeySecretProviderFromString("composition-app-key")
	if err != nil {
		fail("new secret provider: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		fail("new repository factory: %v", err)
	}

	service, err := nocodb.NewService(
		nocodb.Config{},
		nocodb.WithTypeRegistry(registry),
		nocodb.WithSchemaValidator(validator),
		nocodb.WithSecretProvider(secrets),
		nocodb.WithRepositoryFactory(factory),
	)
	if err != nil {
		fail("new service: %v", err)
	}
	facade, err := nocodb.NewFacade(service)
	if err != nil {
		fail("new facade: %v", err)
	}

	return compositionRuntime{service: service, facade: facade, factory: factory}, cleanup
}

type compositionPersistenceConfig struct {
	driver string
	server string
}

func (c compositionPersistenceConfig) GetDebug() bool {
	return false
}

func (c compositionPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c compositionPersistenceConfig) GetServer() string {
	return c.server
}

func (c compositionPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c compositionPersistenceConfig) GetOtelIdentifier() string {
	return "nocodb-tests"
}

func newCompositionClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:nocodb-composition-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := compositionPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = ncmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != ncmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, ncmigrations.WithValidationTargets(ncmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
