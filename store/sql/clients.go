package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ChasLui/nocodb/migrations"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// ClientConfig satisfies the go-persistence-bun config surface for the
// clients built here.
type ClientConfig struct {
	Driver         string
	Server         string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c ClientConfig) GetDebug() bool {
	return c.Debug
}

func (c ClientConfig) GetDriver() string {
	return c.Driver
}

func (c ClientConfig) GetServer() string {
	return c.Server
}

func (c ClientConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c ClientConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "nocodb"
	}
	return c.OtelIdentifier
}

// NewPostgresClient opens a postgres-backed persistence client with the
// embedded schema registered for that dialect. Migrate stays with the
// caller so hosts control when DDL runs.
func NewPostgresClient(ctx context.Context, dsn string) (*persistence.Client, error) {
	return newClient(ctx, "postgres", dsn, pgdialect.New(), migrations.DialectPostgres, 0)
}

// NewSQLiteClient opens a sqlite-backed persistence client. The
// connection pool is pinned to one connection, which sqlite needs for
// serialized writes and shared-cache memory DSNs.
func NewSQLiteClient(ctx context.Context, dsn string) (*persistence.Client, error) {
	return newClient(ctx, "sqlite3", dsn, sqlitedialect.New(), migrations.DialectSQLite, 1)
}

func newClient(
	ctx context.Context,
	driver string,
	dsn string,
	sqlDialect schema.Dialect,
	migrationDialect string,
	maxOpenConns int,
) (*persistence.Client, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("sqlstore: %s dsn is required", driver)
	}

	sqlDB, err := sql.Open(driver, trimmed)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}

	cfg := ClientConfig{Driver: driver, Server: trimmed}
	client, err := persistence.New(cfg, sqlDB, sqlDialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: register migrations: %w", err)
	}
	return client, nil
}
