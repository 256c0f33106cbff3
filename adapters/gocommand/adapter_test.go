package gocommand

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-command"

	nccommand "github.com/ChasLui/nocodb/command"
	"github.com/ChasLui/nocodb/core"
	ncquery "github.com/ChasLui/nocodb/query"
)

type untypedMessage struct{}

type blankTypeMessage struct{}

func (blankTypeMessage) Type() string { return "   " }

type stubReleaser struct {
	released []string
}

func (r *stubReleaser) ReleaseLocal(_ context.Context, sourceID string) {
	r.released = append(r.released, sourceID)
}

type stubIntegrationReader struct {
	lastID            string
	lastIncludeConfig bool
}

func (r *stubIntegrationReader) Get(_ context.Context, id string, includeConfig bool) (core.Integration, error) {
	r.lastID = id
	r.lastIncludeConfig = includeConfig
	return core.Integration{ID: id, Title: "Team Postgres", Type: "pg"}, nil
}

func (r *stubIntegrationReader) List(context.Context, core.IntegrationFilter) (core.IntegrationPage, error) {
	return core.IntegrationPage{}, nil
}

func TestValidateMessageContract(t *testing.T) {
	valid := nccommand.ReleaseSourceMessage{SourceID: "src_1", Scope: core.ReleaseScopeWorkers}
	if err := ValidateMessageContract(valid); err != nil {
		t.Fatalf("expected release message to satisfy the contract, got %v", err)
	}

	err := ValidateMessageContract(untypedMessage{})
	if err == nil || !strings.Contains(err.Error(), "Type()") {
		t.Fatalf("expected missing Type() to fail the contract, got %v", err)
	}
	if err := ValidateMessageContract(blankTypeMessage{}); err == nil {
		t.Fatalf("expected blank message type to fail the contract")
	}
	if err := ValidateMessageContract(nccommand.ReleaseSourceMessage{}); err == nil {
		t.Fatalf("expected the message's own Validate() failure to bubble")
	}
}

func TestRegistryAdapter_InitializeRunsResolverHooks(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	resolverRuns := 0

	err := adapter.AddResolver("  mirror  ", func(any, command.CommandMeta, *command.Registry) error {
		resolverRuns++
		return nil
	})
	if err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("mirror") {
		t.Fatalf("expected resolver key to be trimmed on registration")
	}
	if err := adapter.RegisterCommand(nccommand.NewReleaseSourceCommand(&stubReleaser{})); err != nil {
		t.Fatalf("register release handler: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if resolverRuns == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := adapter.AddQueueResolver("queue", nil); err == nil {
		t.Fatalf("expected nil queue registry to be rejected")
	}
}

func TestDispatchInvokesSubscribedHandler(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	releaser := &stubReleaser{}

	subscription, err := RegisterAndSubscribe(adapter, nccommand.NewReleaseSourceCommand(releaser))
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer subscription.Unsubscribe()

	msg := nccommand.ReleaseSourceMessage{SourceID: "src_7", Reason: "config_updated"}
	if err := Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(releaser.released) != 1 || releaser.released[0] != "src_7" {
		t.Fatalf("expected one local release for src_7, got %v", releaser.released)
	}
}

func TestQueryRoundTripThroughDispatcher(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	reader := &stubIntegrationReader{}

	subscription, err := RegisterAndSubscribeQuery(adapter, ncquery.NewGetIntegrationQuery(reader))
	if err != nil {
		t.Fatalf("register and subscribe query: %v", err)
	}
	defer subscription.Unsubscribe()

	got, err := Query[ncquery.GetIntegrationMessage, core.Integration](
		context.Background(),
		ncquery.GetIntegrationMessage{IntegrationID: "int_9"},
	)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got.ID != "int_9" || got.Title != "Team Postgres" {
		t.Fatalf("expected the reader's integration back, got %+v", got)
	}
	if reader.lastID != "int_9" || reader.lastIncludeConfig {
		t.Fatalf("expected a config-free read for int_9, got id=%q include=%v", reader.lastID, reader.lastIncludeConfig)
	}
}

func TestRegisterAndSubscribeRejectsMissingPieces(t *testing.T) {
	var nilAdapter *RegistryAdapter
	if _, err := RegisterAndSubscribe[nccommand.ReleaseSourceMessage](nilAdapter, nil); err == nil {
		t.Fatalf("expected unconfigured registry to be rejected")
	}
	if err := nilAdapter.RegisterCommand(struct{}{}); err == nil {
		t.Fatalf("expected nil adapter registration to fail")
	}

	adapter := NewRegistryAdapter(command.NewRegistry())
	if _, err := RegisterAndSubscribe[nccommand.ReleaseSourceMessage](adapter, nil); err == nil {
		t.Fatalf("expected nil command handler to be rejected")
	}
	if _, err := RegisterAndSubscribeQuery[ncquery.GetIntegrationMessage, core.Integration](adapter, nil); err == nil {
		t.Fatalf("expected nil query handler to be rejected")
	}
}
