package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// integrationRecord keeps the deleted column as a nullable bool instead
// of bun's soft_delete timestamp. Rows written before the flag existed
// carry NULL, and NULL must keep reading as live.
type integrationRecord struct {
	bun.BaseModel `bun:"table:nc_integrations,alias:nci"`

	ID          string         `bun:"id,pk"`
	WorkspaceID string         `bun:"fk_workspace_id,notnull"`
	Type        string         `bun:"type,notnull"`
	SubType     string         `bun:"sub_type"`
	Title       string         `bun:"title,notnull"`
	Config      string         `bun:"config"`
	CreatedBy   string         `bun:"created_by"`
	Meta        map[string]any `bun:"meta,type:jsonb,notnull"`
	Deleted     *bool          `bun:"deleted"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type sourceRecord struct {
	bun.BaseModel `bun:"table:nc_sources,alias:ncs"`

	ID                string    `bun:"id,pk"`
	BaseID            string    `bun:"base_id,notnull"`
	IntegrationID     *string   `bun:"fk_integration_id"`
	Alias             string    `bun:"alias"`
	IntegrationConfig string    `bun:"integration_config"`
	Deleted           *bool     `bun:"deleted"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type baseRecord struct {
	bun.BaseModel `bun:"table:nc_bases,alias:ncb"`

	ID          string    `bun:"id,pk"`
	WorkspaceID string    `bun:"fk_workspace_id"`
	Title       string    `bun:"title,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type integrationOutboxRecord struct {
	bun.BaseModel `bun:"table:nc_integration_outbox,alias:ncio"`

	ID            string         `bun:"id,pk"`
	EventID       string         `bun:"event_id,notnull"`
	EventName     string         `bun:"event_name,notnull"`
	IntegrationID string         `bun:"fk_integration_id,notnull"`
	WorkspaceID   string         `bun:"fk_workspace_id"`
	Actor         string         `bun:"actor"`
	Payload       map[string]any `bun:"payload,type:jsonb,notnull"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	Status        string         `bun:"status,notnull"`
	Attempts      int            `bun:"attempts,notnull"`
	NextAttempt   *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError     string         `bun:"last_error,notnull"`
	OccurredAt    time.Time      `bun:"occurred_at,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type activityEntryRecord struct {
	bun.BaseModel `bun:"table:nc_integration_activity,alias:ncia"`

	ID            string         `bun:"id,pk"`
	WorkspaceID   string         `bun:"fk_workspace_id,notnull"`
	IntegrationID *string        `bun:"fk_integration_id"`
	Channel       string         `bun:"channel,notnull"`
	Action        string         `bun:"action,notnull"`
	ObjectType    string         `bun:"object_type,notnull"`
	ObjectID      string         `bun:"object_id,notnull"`
	Actor         string         `bun:"actor,notnull"`
	ActorType     string         `bun:"actor_type,notnull"`
	Status        string         `bun:"status,notnull"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
