package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ChasLui/nocodb/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityStore persists the integration audit trail. Inserts are
// keyed by entry ID with conflicts ignored, so outbox redeliveries of
// the same event land exactly one row.
type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*activityEntryRecord]
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*activityEntryRecord](db, activityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo}, nil
}

func (s *ActivityStore) Record(ctx context.Context, entry core.AuditEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}

	metadata := copyAnyMap(entry.Metadata)
	objectType, objectID := parseObject(entry.Object)
	actorType := metadataString(metadata, "actor_type")
	if actorType == "" {
		actorType = inferActorType(entry.Actor)
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	record := &activityEntryRecord{
		ID:          id,
		WorkspaceID: metadataString(metadata, "workspace_id"),
		Channel:     strings.TrimSpace(entry.Channel),
		Action:      strings.TrimSpace(entry.Action),
		ObjectType:  objectType,
		ObjectID:    objectID,
		Actor:       strings.TrimSpace(entry.Actor),
		ActorType:   actorType,
		Status:      strings.TrimSpace(string(entry.Status)),
		Metadata:    metadata,
		CreatedAt:   createdAt,
	}
	if record.Channel == "" {
		record.Channel = core.DefaultAuditChannel
	}
	if record.Action == "" {
		record.Action = "lifecycle.event"
	}
	if record.ObjectType == "" {
		record.ObjectType = "integration"
	}
	if record.ObjectID == "" {
		record.ObjectID = id
	}
	if record.Actor == "" {
		record.Actor = "system"
	}
	if record.Status == "" {
		record.Status = string(core.AuditStatusOK)
	}
	if value := metadataString(metadata, "integration_id"); value != "" {
		record.IntegrationID = &value
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *ActivityStore) List(ctx context.Context, filter core.AuditFilter) (core.AuditPage, error) {
	if s == nil || s.repo == nil {
		return core.AuditPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if workspaceID := strings.TrimSpace(filter.WorkspaceID); workspaceID != "" {
		selectors = append(selectors, repository.SelectBy("fk_workspace_id", "=", workspaceID))
	}
	if integrationID := strings.TrimSpace(filter.IntegrationID); integrationID != "" {
		selectors = append(selectors, repository.SelectBy("fk_integration_id", "=", integrationID))
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.AuditPage{}, err
	}
	items := make([]core.AuditEntry, 0, len(records))
	for _, record := range records {
		items = append(items, activityRecordToDomain(record))
	}
	hasNext := offset+len(items) < total
	nextOffset := ""
	if hasNext {
		nextOffset = strconv.Itoa(offset + len(items))
	}
	return core.AuditPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasNext:    hasNext,
		NextCursor: nextOffset,
	}, nil
}

func (s *ActivityStore) Prune(ctx context.Context, policy core.AuditRetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	deleted := 0
	now := time.Now().UTC()

	if policy.TTL > 0 {
		cutoff := now.Add(-policy.TTL)
		res, err := s.db.NewDelete().
			Model((*activityEntryRecord)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if policy.RowCap > 0 {
		total, err := s.db.NewSelect().Model((*activityEntryRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := total - policy.RowCap
		if excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM nc_integration_activity WHERE id IN (SELECT id FROM nc_integration_activity ORDER BY created_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	return deleted, nil
}

func activityRecordToDomain(record *activityEntryRecord) core.AuditEntry {
	if record == nil {
		return core.AuditEntry{}
	}
	object := strings.TrimSpace(record.ObjectType) + ":" + strings.TrimSpace(record.ObjectID)
	metadata := copyAnyMap(record.Metadata)
	metadata["workspace_id"] = strings.TrimSpace(record.WorkspaceID)
	if record.IntegrationID != nil {
		metadata["integration_id"] = strings.TrimSpace(*record.IntegrationID)
	}

	return core.AuditEntry{
		ID:        record.ID,
		Actor:     record.Actor,
		Action:    record.Action,
		Object:    object,
		Channel:   record.Channel,
		Status:    core.AuditStatus(record.Status),
		Metadata:  metadata,
		CreatedAt: record.CreatedAt,
	}
}

func parseObject(value string) (objectType string, objectID string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ""
	}
	parts := strings.SplitN(value, ":", 2)
	if len(parts) == 1 {
		return "integration", parts[0]
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func inferActorType(actor string) string {
	normalized := strings.ToLower(strings.TrimSpace(actor))
	switch normalized {
	case "user", "system", "job", "webhook":
		return normalized
	default:
		return "system"
	}
}

func metadataString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	value, ok := metadata[key]
	if !ok || value == nil {
		return ""
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "" || text == "<nil>" {
		return ""
	}
	return text
}

var (
	_ core.AuditSink   = (*ActivityStore)(nil)
	_ core.AuditLog    = (*ActivityStore)(nil)
	_ core.AuditPruner = (*ActivityStore)(nil)
)
