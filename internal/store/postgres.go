package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

const postgresMigrationsDir = "migrations/postgres"

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func openPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := OpenPostgresDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := RunPostgresMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, driver: DriverPostgres}, nil
}

// OpenPostgresDB opens a pgx-backed handle and verifies connectivity.
func OpenPostgresDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database url is required for the postgres driver")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetConnMaxLifetime(connMaxLifetime)
	return db, nil
}

// RunPostgresMigrations applies the embedded goose migrations.
func RunPostgresMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(postgresMigrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, postgresMigrationsDir); err != nil {
		return fmt.Errorf("apply postgres migrations: %w", err)
	}
	return nil
}

// PostgresMigrationPlan reports applied and pending goose migrations.
func PostgresMigrationPlan(ctx context.Context, db *sql.DB) (*MigrationStatus, error) {
	goose.SetBaseFS(postgresMigrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return nil, err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return nil, err
	}
	all, err := goose.CollectMigrations(postgresMigrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{CurrentVersion: int(current)}
	for _, m := range all {
		if int(m.Version) > status.AvailableVersion {
			status.AvailableVersion = int(m.Version)
		}
		if m.Version > current {
			status.Pending = append(status.Pending, MigrationInfo{
				Version:     int(m.Version),
				Description: path.Base(m.Source),
			})
		}
	}
	return status, nil
}
