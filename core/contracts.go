package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type CreateIntegrationRequest struct {
	WorkspaceID string
	Type        string
	SubType     string
	Title       string
	Config      map[string]any
	CreatedBy   string
	Meta        map[string]any
	CopyFromID  string
}

type UpdateIntegrationRequest struct {
	Title   string
	SubType string
	Config  map[string]any
	Meta    map[string]any
	Actor   string
}

type DeleteIntegrationRequest struct {
	ID    string
	Force bool
	Actor string
}

type SoftDeleteIntegrationRequest struct {
	ID    string
	Actor string
}

type IntegrationFilter struct {
	WorkspaceID        string
	Type               string
	Query              string
	IncludeSourceCount bool
	Limit              int
	Offset             int
}

type IntegrationPage struct {
	Items        []Integration
	Total        int
	Limit        int
	Offset       int
	SourceCounts map[string]int
}

// Store-level inputs carry the sealed config blob; the registry seals
// plaintext config before it reaches the store.
type CreateIntegrationInput struct {
	WorkspaceID string
	Type        string
	SubType     string
	Title       string
	Config      string
	CreatedBy   string
	Meta        map[string]any
}

type UpdateIntegrationInput struct {
	Title   string
	SubType string
	Config  string
	Meta    map[string]any
}

type IntegrationStore interface {
	Create(ctx context.Context, in CreateIntegrationInput) (Integration, error)
	Get(ctx context.Context, id string) (Integration, error)
	Update(ctx context.Context, id string, in UpdateIntegrationInput) (Integration, error)
	SetDeleteFlag(ctx context.Context, id string) (Integration, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter IntegrationFilter) (IntegrationPage, error)
}

type SourceStore interface {
	Get(ctx context.Context, id string) (Source, error)
	ListActiveByIntegration(ctx context.Context, integrationID string) ([]Source, error)
	CountActiveByIntegration(ctx context.Context, integrationIDs []string) (map[string]int, error)
	Delete(ctx context.Context, id string) error
}

type BaseStore interface {
	Get(ctx context.Context, id string) (Base, error)
	TitlesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// StoreProvider bundles the durable stores. RunInTx hands the callback
// a provider whose stores are bound to one transaction; the callback
// returning an error rolls everything back.
type StoreProvider interface {
	Integrations() IntegrationStore
	Sources() SourceStore
	Bases() BaseStore
	Outbox() OutboxStore
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx StoreProvider) error) error
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// SchemaValidator checks a mutation payload against the rules for an
// integration type before anything is persisted.
type SchemaValidator interface {
	Validate(ctx context.Context, integrationType string, payload map[string]any) error
}

// ConnectionReleaser tears down this process's live connection for a
// source. Releasing a source with no tracked connection is a no-op;
// close failures are handled by the implementation, never surfaced.
type ConnectionReleaser interface {
	ReleaseLocal(ctx context.Context, sourceID string)
}

// SourceConfigCache holds the derived config snapshot per source in a
// cache shared across processes. Patch merges fields into an existing
// entry and silently drops the write when the key is absent; the
// durable store stays authoritative.
type SourceConfigCache interface {
	Patch(ctx context.Context, sourceID string, fields map[string]any) error
	Drop(ctx context.Context, sourceID string) error
}

type ReleaseCommand struct {
	SourceID string
	Reason   string
}

// ReleaseBus is the outbound port for cross-process release fan-out.
// Delivery is fire-and-forget: implementations may drop commands and
// receivers must tolerate duplicates. An unavailable bus is a runtime
// condition, not an error.
type ReleaseBus interface {
	BroadcastToWorkers(ctx context.Context, cmd ReleaseCommand) error
	SendToPrimary(ctx context.Context, cmd ReleaseCommand) error
}

// SourceEraser performs full teardown of one source: cache entry, live
// connections, durable record. The durable delete must go through the
// supplied tx-scoped provider so a cascade commits or rolls back as a
// single unit.
type SourceEraser interface {
	Erase(ctx context.Context, tx StoreProvider, source Source) error
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

type LifecycleEventHandler interface {
	Handle(ctx context.Context, event LifecycleEvent) error
}

type LifecycleEventBus interface {
	Publish(ctx context.Context, event LifecycleEvent) error
	Subscribe(handler LifecycleEventHandler)
}

// ProjectorRegistry holds the durable consumers the outbox dispatcher
// delivers committed events to, in a stable order.
type ProjectorRegistry interface {
	Register(name string, handler LifecycleEventHandler)
	Handlers() []LifecycleEventHandler
}

type AuditStatus string

const (
	AuditStatusOK    AuditStatus = "ok"
	AuditStatusWarn  AuditStatus = "warn"
	AuditStatusError AuditStatus = "error"
)

type AuditEntry struct {
	ID        string
	Actor     string
	Action    string
	Object    string
	Channel   string
	Status    AuditStatus
	Metadata  map[string]any
	CreatedAt time.Time
}

type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type AuditFilter struct {
	WorkspaceID   string
	IntegrationID string
	Action        string
	Status        AuditStatus
	From          *time.Time
	To            *time.Time
	Page          int
	PerPage       int
}

type AuditPage struct {
	Items      []AuditEntry
	Page       int
	PerPage    int
	Total      int
	HasNext    bool
	NextCursor string
}

type AuditLog interface {
	List(ctx context.Context, filter AuditFilter) (AuditPage, error)
}

// AuditRetentionPolicy bounds the audit trail by age, row count, or
// both. Zero values disable the corresponding bound.
type AuditRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

type AuditPruner interface {
	Prune(ctx context.Context, policy AuditRetentionPolicy) (int, error)
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

type LifecycleDispatcher interface {
	DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error)
}

// Job contracts keep the background runtime transport-neutral; the
// queue implementation binds through adapters.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type OutboxStore interface {
	Enqueue(ctx context.Context, event LifecycleEvent) error
	ClaimBatch(ctx context.Context, limit int) ([]LifecycleEvent, error)
	Ack(ctx context.Context, eventID string) error
	Retry(ctx context.Context, eventID string, cause error, nextAttemptAt time.Time) error
}

// IntegrationRegistry is the public surface of this package: lifecycle
// operations over integration records plus the decrypted-config
// accessor. Mutating calls return records with the config blob cleared.
type IntegrationRegistry interface {
	Get(ctx context.Context, id string, includeConfig bool) (Integration, error)
	DecryptedConfig(ctx context.Context, id string) (map[string]any, error)
	Create(ctx context.Context, req CreateIntegrationRequest) (Integration, error)
	Update(ctx context.Context, id string, req UpdateIntegrationRequest) (Integration, error)
	SoftDelete(ctx context.Context, req SoftDeleteIntegrationRequest) error
	Delete(ctx context.Context, req DeleteIntegrationRequest) error
	List(ctx context.Context, filter IntegrationFilter) (IntegrationPage, error)
}
