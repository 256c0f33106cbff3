// Package migrations hands the embedded SQL schema to whatever
// migration runner the host application uses. The postgres statements
// live at the tree root and the sqlite rewrites sit under sqlite/, so
// one registration call can feed either dialect to go-persistence-bun.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	nocodb "github.com/ChasLui/nocodb"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// DefaultSourceLabel tags registered migrations in the runner's
	// bookkeeping tables.
	DefaultSourceLabel = "nocodb"

	embeddedRoot = "data/sql/migrations"
)

// FilesystemSpec is one dialect's migration tree.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration records what Register handed to the migration runner.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect tree per validation target.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeTargets(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// WithFilesystems swaps the embedded trees for caller-provided ones.
// Specs without a dialect or filesystem are dropped.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		kept := make([]FilesystemSpec, 0, len(filesystems))
		for _, spec := range filesystems {
			dialect := strings.ToLower(strings.TrimSpace(spec.Dialect))
			if dialect == "" || spec.FS == nil {
				continue
			}
			spec.Dialect = dialect
			kept = append(kept, spec)
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems splits a migration tree into its postgres and sqlite
// halves and checks that every up migration ships a rollback pair.
// Without an explicit root the tree compiled into the binary is used.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := fs.FS(nocodb.GetMigrationsFS())
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: joinPath(basePath, DialectSQLite), FS: sqliteFS},
	}
	for _, spec := range specs {
		if err := checkMigrationPairs(spec); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// Register validates the migration trees and hands each validation
// target to registerFn. Dialects outside ValidationTargets are skipped,
// so a deployment registers only the dialect it actually runs.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       DefaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&reg)
	}

	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if strings.TrimSpace(reg.SourceLabel) == "" {
		return reg, fmt.Errorf("migrations: source label is required")
	}
	if len(reg.ValidationTargets) == 0 {
		return reg, fmt.Errorf("migrations: at least one validation target is required")
	}
	if len(reg.Filesystems) == 0 {
		defaults, err := Filesystems()
		if err != nil {
			return reg, err
		}
		reg.Filesystems = defaults
	}

	targets := normalizeTargets(reg.ValidationTargets)
	for _, spec := range reg.Filesystems {
		if !slices.Contains(targets, spec.Dialect) {
			continue
		}
		if spec.FS == nil {
			return reg, fmt.Errorf("migrations: %s filesystem is nil", spec.Dialect)
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s tree %q: %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

// resolveRoot locates the migration files inside root. The embedded
// tree nests them under data/sql/migrations; an alternate root may
// point at the files directly.
func resolveRoot(root fs.FS) (fs.FS, string, error) {
	if sub, err := fs.Sub(root, embeddedRoot); err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, embeddedRoot, nil
		}
	}
	matches, err := fs.Glob(root, "*.sql")
	if err == nil && len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: no migration files under %s or the filesystem root", embeddedRoot)
}

func checkMigrationPairs(spec FilesystemSpec) error {
	ups, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: scan %s tree %q: %w", spec.Dialect, spec.Path, err)
	}
	if len(ups) == 0 {
		return fmt.Errorf("migrations: %s tree %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, statErr := fs.Stat(spec.FS, down); statErr != nil {
			return fmt.Errorf("migrations: %s migration %s has no rollback pair: %w", spec.Dialect, up, statErr)
		}
	}
	return nil
}

func normalizeTargets(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		target := strings.ToLower(strings.TrimSpace(value))
		if target == "" || slices.Contains(out, target) {
			continue
		}
		out = append(out, target)
	}
	return out
}

func joinPath(base string, child string) string {
	if base == "" || base == "." {
		return child
	}
	return strings.TrimSuffix(base, "/") + "/" + child
}
