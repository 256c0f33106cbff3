package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChasLui/nocodb/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// IntegrationStore reads every row regardless of the deleted flag; only
// List filters soft-deleted records out. Hard deletes must keep working
// against rows that were soft deleted first.
type IntegrationStore struct {
	db   *bun.DB
	tx   *bun.Tx
	repo repository.Repository[*integrationRecord]
}

func NewIntegrationStore(db *bun.DB) (*IntegrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationRecord](db, integrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}
	return &IntegrationStore{db: db, repo: repo}, nil
}

func (s *IntegrationStore) withTx(tx bun.Tx) *IntegrationStore {
	if s == nil {
		return nil
	}
	clone := *s
	clone.tx = &tx
	return &clone
}

func (s *IntegrationStore) conn() bun.IDB {
	if s.tx != nil {
		return *s.tx
	}
	return s.db
}

func (s *IntegrationStore) Create(ctx context.Context, in core.CreateIntegrationInput) (core.Integration, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	if strings.TrimSpace(in.WorkspaceID) == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: workspace id is required")
	}
	if strings.TrimSpace(in.Type) == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: integration type is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: integration title is required")
	}

	record := newIntegrationRecord(in, time.Now().UTC())
	if s.tx != nil {
		created, err := s.repo.CreateTx(ctx, *s.tx, record)
		if err != nil {
			return core.Integration{}, err
		}
		return created.toDomain(), nil
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Integration{}, err
	}
	return created.toDomain(), nil
}

func (s *IntegrationStore) Get(ctx context.Context, id string) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	record, err := s.load(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.Integration{}, err
	}
	return record.toDomain(), nil
}

// Update replaces only the fields the input carries. An empty title,
// sub type, or config blob means the caller did not touch that field;
// metadata is replaced wholesale when present.
func (s *IntegrationStore) Update(ctx context.Context, id string, in core.UpdateIntegrationInput) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	record, err := s.load(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.Integration{}, err
	}

	if title := strings.TrimSpace(in.Title); title != "" {
		record.Title = title
	}
	if subType := strings.TrimSpace(in.SubType); subType != "" {
		record.SubType = subType
	}
	if in.Config != "" {
		record.Config = in.Config
	}
	if len(in.Meta) > 0 {
		record.Meta = copyAnyMap(in.Meta)
	}
	record.UpdatedAt = time.Now().UTC()

	if _, err := s.conn().NewUpdate().
		Model(&record).
		WherePK().
		Exec(ctx); err != nil {
		return core.Integration{}, err
	}
	return record.toDomain(), nil
}

// SetDeleteFlag marks the row deleted without removing it. Flipping an
// already deleted row converges on the same state.
func (s *IntegrationStore) SetDeleteFlag(ctx context.Context, id string) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	record, err := s.load(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.Integration{}, err
	}

	now := time.Now().UTC()
	if _, err := s.conn().NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("deleted = ?", true).
		Set("updated_at = ?", now).
		Where("id = ?", record.ID).
		Exec(ctx); err != nil {
		return core.Integration{}, err
	}

	flag := true
	record.Deleted = &flag
	record.UpdatedAt = now
	return record.toDomain(), nil
}

func (s *IntegrationStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: integration id is required")
	}
	res, err := s.conn().NewDelete().
		Model((*integrationRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, id)
	}
	return nil
}

func (s *IntegrationStore) List(ctx context.Context, filter core.IntegrationFilter) (core.IntegrationPage, error) {
	if s == nil || s.repo == nil {
		return core.IntegrationPage{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, offset),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("(?TableAlias.deleted IS NULL OR ?TableAlias.deleted = ?)", false)
		}),
	}
	if workspaceID := strings.TrimSpace(filter.WorkspaceID); workspaceID != "" {
		selectors = append(selectors, repository.SelectBy("fk_workspace_id", "=", workspaceID))
	}
	if integrationType := strings.TrimSpace(filter.Type); integrationType != "" {
		selectors = append(selectors, repository.SelectBy("type", "=", integrationType))
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		pattern := "%" + strings.ToLower(query) + "%"
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(?TableAlias.title) LIKE ?", pattern)
		}))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.IntegrationPage{}, err
	}

	items := make([]core.Integration, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.IntegrationPage{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (s *IntegrationStore) load(ctx context.Context, id string) (integrationRecord, error) {
	if id == "" {
		return integrationRecord{}, fmt.Errorf("sqlstore: integration id is required")
	}
	record := integrationRecord{}
	err := s.conn().NewSelect().
		Model(&record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return integrationRecord{}, fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, id)
		}
		return integrationRecord{}, err
	}
	return record, nil
}
