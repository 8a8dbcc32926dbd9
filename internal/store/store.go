package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Driver names a supported metadata backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ErrNotFound is returned when a row addressed by key does not exist.
var ErrNotFound = errors.New("not found")

// Options selects and locates the metadata database.
type Options struct {
	Driver Driver
	// Path is the SQLite database file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// Store wraps the metadata database.
type Store struct {
	db     *sql.DB
	driver Driver
}

// ParseDriver validates a driver name. Empty selects SQLite.
func ParseDriver(raw string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DriverSQLite:
		return DriverSQLite, nil
	case DriverPostgres, "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported db driver: %s", raw)
	}
}

// Open opens the SQLite database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	return OpenWithOptions(context.Background(), Options{Driver: DriverSQLite, Path: path})
}

// OpenWithOptions opens the configured backend and applies pending migrations.
func OpenWithOptions(ctx context.Context, opts Options) (*Store, error) {
	driver, err := ParseDriver(string(opts.Driver))
	if err != nil {
		return nil, err
	}
	if driver == DriverPostgres {
		return openPostgres(ctx, opts.DSN)
	}

	db, err := OpenSQLiteDB(opts.Path)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, driver: DriverSQLite}, nil
}

// OpenSQLiteDB opens and configures a SQLite handle without migrating it.
func OpenSQLiteDB(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver reports the active backend.
func (s *Store) Driver() Driver {
	return s.driver
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Tune connection pool for local usage.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

// rebind rewrites "?" placeholders into the backend's bind syntax.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullString(value *string) any {
	if value == nil {
		return nil
	}
	return nullIfEmpty(*value)
}

// timeLayout is fixed width so stored values order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
