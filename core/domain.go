package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidUpdatePhaseTransition = errors.New("core: invalid update phase transition")
	ErrIntegrationNotFound          = errors.New("core: integration not found")
	ErrSourceNotFound               = errors.New("core: source not found")
	ErrBaseNotFound                 = errors.New("core: base not found")
	ErrIntegrationInUse             = errors.New("core: integration has active sources")
)

// DeleteState is the read-time view of the stored delete flag. The
// durable column is tri-state (NULL, false, true) for legacy reasons;
// everything above the store layer only ever sees this enum.
type DeleteState string

const (
	DeleteStateActive  DeleteState = "active"
	DeleteStateDeleted DeleteState = "deleted"
)

// DeleteStateOf collapses the raw tri-state column value. NULL and
// false both mean the record is still live; only an explicit true marks
// it deleted. This is the single place the tri-state representation is
// interpreted.
func DeleteStateOf(raw *bool) DeleteState {
	if raw != nil && *raw {
		return DeleteStateDeleted
	}
	return DeleteStateActive
}

func (s DeleteState) Active() bool {
	return s != DeleteStateDeleted
}

type Integration struct {
	ID          string
	WorkspaceID string
	Type        string
	SubType     string
	Title       string
	Config      string
	CreatedBy   string
	Meta        map[string]any
	DeleteState DeleteState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ClearConfig empties the sealed config blob before the record is
// handed back from a mutating call.
func (i *Integration) ClearConfig() {
	if i == nil {
		return
	}
	i.Config = ""
}

type Source struct {
	ID                string
	BaseID            string
	IntegrationID     string
	Alias             string
	IntegrationConfig string
	DeleteState       DeleteState
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Base struct {
	ID          string
	WorkspaceID string
	Title       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SourceBlocker names one base/source pair that blocks a non-forced
// hard delete. The pairs ride inside the conflict error so callers can
// present a precise message.
type SourceBlocker struct {
	SourceID  string
	Alias     string
	BaseID    string
	BaseTitle string
}

func (b SourceBlocker) String() string {
	title := strings.TrimSpace(b.BaseTitle)
	if title == "" {
		title = b.BaseID
	}
	return fmt.Sprintf("%s (source %s)", title, b.SourceID)
}

type UpdatePhase string

const (
	UpdatePhaseValidated  UpdatePhase = "validated"
	UpdatePhasePersisted  UpdatePhase = "persisted"
	UpdatePhasePropagated UpdatePhase = "propagated"
	UpdatePhaseNotified   UpdatePhase = "notified"
)

// UpdateProgress tracks an update call through its phases. Phases only
// move forward; a failed step leaves the progress at the last phase it
// reached, which is what ends up in logs and metrics.
type UpdateProgress struct {
	Phase     UpdatePhase
	EnteredAt time.Time
}

func (p *UpdateProgress) Advance(next UpdatePhase, now time.Time) error {
	if p == nil {
		return nil
	}
	if p.Phase == next {
		p.EnteredAt = now
		return nil
	}
	if !updatePhaseTransitionAllowed(p.Phase, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidUpdatePhaseTransition, p.Phase, next)
	}
	p.Phase = next
	p.EnteredAt = now
	return nil
}

func updatePhaseTransitionAllowed(current, next UpdatePhase) bool {
	allowed := map[UpdatePhase]map[UpdatePhase]struct{}{
		"": {
			UpdatePhaseValidated: {},
		},
		UpdatePhaseValidated: {
			UpdatePhasePersisted: {},
		},
		UpdatePhasePersisted: {
			UpdatePhasePropagated: {},
		},
		UpdatePhasePropagated: {
			UpdatePhaseNotified: {},
		},
		UpdatePhaseNotified: {},
	}
	_, ok := allowed[current][next]
	return ok
}

const (
	EventIntegrationCreated     = "integration.created"
	EventIntegrationUpdated     = "integration.updated"
	EventIntegrationSoftDeleted = "integration.soft_deleted"
	EventIntegrationDeleted     = "integration.deleted"
)

type LifecycleEvent struct {
	ID            string
	Name          string
	IntegrationID string
	WorkspaceID   string
	Actor         string
	OccurredAt    time.Time
	Payload       map[string]any
	Metadata      map[string]any
}

// ReleaseScope selects which process group a release command targets.
type ReleaseScope string

const (
	ReleaseScopeWorkers ReleaseScope = "workers"
	ReleaseScopePrimary ReleaseScope = "primary"
)
