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

type SourceStore struct {
	db   *bun.DB
	tx   *bun.Tx
	repo repository.Repository[*sourceRecord]
}

func NewSourceStore(db *bun.DB) (*SourceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sourceRecord](db, sourceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid source repository wiring: %w", err)
		}
	}
	return &SourceStore{db: db, repo: repo}, nil
}

func (s *SourceStore) withTx(tx bun.Tx) *SourceStore {
	if s == nil {
		return nil
	}
	clone := *s
	clone.tx = &tx
	return &clone
}

func (s *SourceStore) conn() bun.IDB {
	if s.tx != nil {
		return *s.tx
	}
	return s.db
}

// Create inserts a source row. The lifecycle service never creates
// sources itself; this is the surface base provisioning flows use.
func (s *SourceStore) Create(ctx context.Context, source core.Source) (core.Source, error) {
	if s == nil || s.repo == nil {
		return core.Source{}, fmt.Errorf("sqlstore: source store is not configured")
	}
	if strings.TrimSpace(source.BaseID) == "" {
		return core.Source{}, fmt.Errorf("sqlstore: base id is required")
	}

	record := newSourceRecord(source, time.Now().UTC())
	if s.tx != nil {
		created, err := s.repo.CreateTx(ctx, *s.tx, record)
		if err != nil {
			return core.Source{}, err
		}
		return created.toDomain(), nil
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Source{}, err
	}
	return created.toDomain(), nil
}

func (s *SourceStore) Get(ctx context.Context, id string) (core.Source, error) {
	if s == nil || s.db == nil {
		return core.Source{}, fmt.Errorf("sqlstore: source store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Source{}, fmt.Errorf("sqlstore: source id is required")
	}
	record := sourceRecord{}
	err := s.conn().NewSelect().
		Model(&record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Source{}, fmt.Errorf("%w: %s", core.ErrSourceNotFound, id)
		}
		return core.Source{}, err
	}
	return record.toDomain(), nil
}

// ListActiveByIntegration returns live sources only. NULL and false in
// the deleted column both count as live.
func (s *SourceStore) ListActiveByIntegration(ctx context.Context, integrationID string) ([]core.Source, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: source store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return nil, fmt.Errorf("sqlstore: integration id is required")
	}

	var records []sourceRecord
	err := s.conn().NewSelect().
		Model(&records).
		Where("?TableAlias.fk_integration_id = ?", integrationID).
		Where("(?TableAlias.deleted IS NULL OR ?TableAlias.deleted = ?)", false).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.Source, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *SourceStore) CountActiveByIntegration(ctx context.Context, integrationIDs []string) (map[string]int, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: source store is not configured")
	}

	ids := make([]string, 0, len(integrationIDs))
	seen := map[string]struct{}{}
	for _, id := range integrationIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		ids = append(ids, trimmed)
	}
	counts := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	for _, id := range ids {
		counts[id] = 0
	}

	var rows []struct {
		IntegrationID string `bun:"fk_integration_id"`
		SourceCount   int    `bun:"source_count"`
	}
	err := s.conn().NewSelect().
		Model((*sourceRecord)(nil)).
		ColumnExpr("?TableAlias.fk_integration_id AS fk_integration_id").
		ColumnExpr("COUNT(*) AS source_count").
		Where("?TableAlias.fk_integration_id IN (?)", bun.In(ids)).
		Where("(?TableAlias.deleted IS NULL OR ?TableAlias.deleted = ?)", false).
		GroupExpr("?TableAlias.fk_integration_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.IntegrationID] = row.SourceCount
	}
	return counts, nil
}

func (s *SourceStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: source store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: source id is required")
	}
	res, err := s.conn().NewDelete().
		Model((*sourceRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrSourceNotFound, id)
	}
	return nil
}
