package command

import (
	"context"
	"fmt"
	"sync"
	"testing"

	gocmd "github.com/goliatone/go-command"

	"github.com/ChasLui/nocodb/core"
)

func TestCreateIntegrationCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.Integration{ID: "int-1", WorkspaceID: "ws-1", Type: "pg", Title: "Primary PG"}
	called := false

	svc := stubMutatingService{
		createFn: func(_ context.Context, req core.CreateIntegrationRequest) (core.Integration, error) {
			called = true
			if req.WorkspaceID != "ws-1" {
				t.Fatalf("expected workspace ws-1, got %q", req.WorkspaceID)
			}
			return expected, nil
		},
	}

	cmd := NewCreateIntegrationCommand(svc)
	collector := gocmd.NewResult[core.Integration]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, CreateIntegrationMessage{Request: core.CreateIntegrationRequest{
		WorkspaceID: "ws-1",
		Type:        "pg",
		Title:       "Primary PG",
	}})
	if err != nil {
		t.Fatalf("execute create: %v", err)
	}
	if !called {
		t.Fatalf("expected create service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.ID != expected.ID || result.Title != expected.Title {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("update", func(t *testing.T) {
		expected := core.Integration{ID: "int-1", Title: "Renamed"}
		called := false
		svc := stubMutatingService{
			updateFn: func(_ context.Context, id string, req core.UpdateIntegrationRequest) (core.Integration, error) {
				called = true
				if id != "int-1" || req.Title != "Renamed" {
					t.Fatalf("unexpected update payload: %q %#v", id, req)
				}
				return expected, nil
			},
		}
		cmd := NewUpdateIntegrationCommand(svc)
		collector := gocmd.NewResult[core.Integration]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, UpdateIntegrationMessage{ID: "int-1", Request: core.UpdateIntegrationRequest{Title: "Renamed"}}); err != nil {
			t.Fatalf("execute update: %v", err)
		}
		if !called {
			t.Fatalf("expected update invocation")
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected update result")
		}
		if stored.Title != expected.Title {
			t.Fatalf("unexpected update result: %#v", stored)
		}
	})

	t.Run("soft delete", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			softDeleteFn: func(_ context.Context, req core.SoftDeleteIntegrationRequest) error {
				called = true
				if req.ID != "int-1" {
					t.Fatalf("unexpected soft delete id: %q", req.ID)
				}
				return nil
			},
		}
		if err := NewSoftDeleteIntegrationCommand(svc).Execute(context.Background(), SoftDeleteIntegrationMessage{
			Request: core.SoftDeleteIntegrationRequest{ID: "int-1", Actor: "usr-1"},
		}); err != nil {
			t.Fatalf("execute soft delete: %v", err)
		}
		if !called {
			t.Fatalf("expected soft delete invocation")
		}
	})

	t.Run("delete", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			deleteFn: func(_ context.Context, req core.DeleteIntegrationRequest) error {
				called = true
				if req.ID != "int-1" || !req.Force {
					t.Fatalf("unexpected delete payload: %#v", req)
				}
				return nil
			},
		}
		if err := NewDeleteIntegrationCommand(svc).Execute(context.Background(), DeleteIntegrationMessage{
			Request: core.DeleteIntegrationRequest{ID: "int-1", Force: true},
		}); err != nil {
			t.Fatalf("execute delete: %v", err)
		}
		if !called {
			t.Fatalf("expected delete invocation")
		}
	})
}

func TestReleaseSourceCommand_ReleasesLocalConnection(t *testing.T) {
	releaser := &recordingReleaser{}
	cmd := NewReleaseSourceCommand(releaser)

	if err := cmd.Execute(context.Background(), ReleaseSourceMessage{SourceID: "src-1", Reason: "integration_updated"}); err != nil {
		t.Fatalf("execute release: %v", err)
	}
	if err := cmd.Execute(context.Background(), ReleaseSourceMessage{SourceID: "src-1", Reason: "integration_updated"}); err != nil {
		t.Fatalf("execute duplicate release: %v", err)
	}

	if got := releaser.calls("src-1"); got != 2 {
		t.Fatalf("expected two release calls, got %d", got)
	}
}

func TestReleaseSourceCommand_NilReleaserIsNoOp(t *testing.T) {
	cmd := NewReleaseSourceCommand(nil)
	if err := cmd.Execute(context.Background(), ReleaseSourceMessage{SourceID: "src-1"}); err != nil {
		t.Fatalf("expected release against nil releaser to be a no-op, got %v", err)
	}
}

func TestMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{
			name: "create valid",
			msg: CreateIntegrationMessage{Request: core.CreateIntegrationRequest{
				WorkspaceID: "ws-1",
				Type:        "pg",
			}},
			wantErr: false,
		},
		{
			name: "create clone without type valid",
			msg: CreateIntegrationMessage{Request: core.CreateIntegrationRequest{
				WorkspaceID: "ws-1",
				CopyFromID:  "int-1",
			}},
			wantErr: false,
		},
		{
			name:    "create missing workspace",
			msg:     CreateIntegrationMessage{Request: core.CreateIntegrationRequest{Type: "pg"}},
			wantErr: true,
		},
		{
			name:    "update missing id",
			msg:     UpdateIntegrationMessage{Request: core.UpdateIntegrationRequest{Title: "x"}},
			wantErr: true,
		},
		{
			name:    "soft delete missing id",
			msg:     SoftDeleteIntegrationMessage{},
			wantErr: true,
		},
		{
			name:    "delete missing id",
			msg:     DeleteIntegrationMessage{},
			wantErr: true,
		},
		{
			name:    "release valid",
			msg:     ReleaseSourceMessage{SourceID: "src-1", Scope: core.ReleaseScopeWorkers},
			wantErr: false,
		},
		{
			name:    "release missing source",
			msg:     ReleaseSourceMessage{Scope: core.ReleaseScopeWorkers},
			wantErr: true,
		},
		{
			name:    "release unknown scope",
			msg:     ReleaseSourceMessage{SourceID: "src-1", Scope: core.ReleaseScope("galaxy")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubMutatingService struct {
	createFn     func(ctx context.Context, req core.CreateIntegrationRequest) (core.Integration, error)
	updateFn     func(ctx context.Context, id string, req core.UpdateIntegrationRequest) (core.Integration, error)
	softDeleteFn func(ctx context.Context, req core.SoftDeleteIntegrationRequest) error
	deleteFn     func(ctx context.Context, req core.DeleteIntegrationRequest) error
}

func (s stubMutatingService) Create(ctx context.Context, req core.CreateIntegrationRequest) (core.Integration, error) {
	if s.createFn == nil {
		return core.Integration{}, fmt.Errorf("create not configured")
	}
	return s.createFn(ctx, req)
}

func (s stubMutatingService) Update(ctx context.Context, id string, req core.UpdateIntegrationRequest) (core.Integration, error) {
	if s.updateFn == nil {
		return core.Integration{}, fmt.Errorf("update not configured")
	}
	return s.updateFn(ctx, id, req)
}

func (s stubMutatingService) SoftDelete(ctx context.Context, req core.SoftDeleteIntegrationRequest) error {
	if s.softDeleteFn == nil {
		return fmt.Errorf("soft delete not configured")
	}
	return s.softDeleteFn(ctx, req)
}

func (s stubMutatingService) Delete(ctx context.Context, req core.DeleteIntegrationRequest) error {
	if s.deleteFn == nil {
		return fmt.Errorf("delete not configured")
	}
	return s.deleteFn(ctx, req)
}

type recordingReleaser struct {
	mu       sync.Mutex
	released map[string]int
}

func (r *recordingReleaser) ReleaseLocal(_ context.Context, sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released == nil {
		r.released = map[string]int{}
	}
	r.released[sourceID]++
}

func (r *recordingReleaser) calls(sourceID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released[sourceID]
}

var _ MutatingService = stubMutatingService{}
