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

type BaseStore struct {
	db   *bun.DB
	tx   *bun.Tx
	repo repository.Repository[*baseRecord]
}

func NewBaseStore(db *bun.DB) (*BaseStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*baseRecord](db, baseHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid base repository wiring: %w", err)
		}
	}
	return &BaseStore{db: db, repo: repo}, nil
}

func (s *BaseStore) withTx(tx bun.Tx) *BaseStore {
	if s == nil {
		return nil
	}
	clone := *s
	clone.tx = &tx
	return &clone
}

func (s *BaseStore) conn() bun.IDB {
	if s.tx != nil {
		return *s.tx
	}
	return s.db
}

func (s *BaseStore) Create(ctx context.Context, base core.Base) (core.Base, error) {
	if s == nil || s.repo == nil {
		return core.Base{}, fmt.Errorf("sqlstore: base store is not configured")
	}
	if strings.TrimSpace(base.Title) == "" {
		return core.Base{}, fmt.Errorf("sqlstore: base title is required")
	}

	record := newBaseRecord(base, time.Now().UTC())
	if s.tx != nil {
		created, err := s.repo.CreateTx(ctx, *s.tx, record)
		if err != nil {
			return core.Base{}, err
		}
		return created.toDomain(), nil
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Base{}, err
	}
	return created.toDomain(), nil
}

func (s *BaseStore) Get(ctx context.Context, id string) (core.Base, error) {
	if s == nil || s.db == nil {
		return core.Base{}, fmt.Errorf("sqlstore: base store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Base{}, fmt.Errorf("sqlstore: base id is required")
	}
	record := baseRecord{}
	err := s.conn().NewSelect().
		Model(&record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Base{}, fmt.Errorf("%w: %s", core.ErrBaseNotFound, id)
		}
		return core.Base{}, err
	}
	return record.toDomain(), nil
}

// TitlesByIDs resolves base titles in one query. IDs with no matching
// row are simply absent from the result.
func (s *BaseStore) TitlesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: base store is not configured")
	}

	wanted := make([]string, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		wanted = append(wanted, trimmed)
	}
	titles := make(map[string]string, len(wanted))
	if len(wanted) == 0 {
		return titles, nil
	}

	var rows []struct {
		ID    string `bun:"id"`
		Title string `bun:"title"`
	}
	err := s.conn().NewSelect().
		Model((*baseRecord)(nil)).
		Column("id", "title").
		Where("?TableAlias.id IN (?)", bun.In(wanted)).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		titles[row.ID] = row.Title
	}
	return titles, nil
}
