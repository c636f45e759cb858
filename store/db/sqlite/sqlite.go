// Package sqlite implements the store driver on SQLite.
//
// SQLite is the dev/demo driver: it runs CGO-free via modernc.org/sqlite and
// needs no database server. Embeddings are stored as little-endian float32
// BLOBs and similarity search scans candidates in Go, so the full pipeline
// works, just without in-database vector indexing. Use PostgreSQL for any
// catalog large enough that a linear scan hurts.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/ghurfati/ghurfati/internal/profile"
	"github.com/ghurfati/ghurfati/internal/version"
	"github.com/ghurfati/ghurfati/store"
)

//go:embed migration
var migrationFS embed.FS

const latestSchemaFile = "migration/LATEST.sql"

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database specified by its database driver name and a
// driver-specific data source name, usually consisting of at least a
// database name and connection information.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	// Ensure a DSN is set before attempting to open the database.
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No shared-cache: it's obsolete; WAL journal mode is a better solution.
	// - No foreign key constraints: it's currently disabled by default, but it's a
	// good practice to be explicit and prevent future surprises on SQLite upgrades.
	// - Journal mode set to WAL: it's the recommended journal mode for most applications
	// as it prevents locking issues.
	//
	// Notes:
	// - When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
	//
	// References:
	// - https://pkg.go.dev/modernc.org/sqlite#Driver.Open
	// - https://www.sqlite.org/sharedcache.html
	// - https://www.sqlite.org/pragma.html
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// Configure connection pool for single-writer SQLite with WAL mode.
	sqliteDB.SetMaxOpenConns(1)    // SQLite: single connection is optimal with WAL
	sqliteDB.SetMaxIdleConns(1)    // Keep the single connection ready
	sqliteDB.SetConnMaxLifetime(0) // No lifetime limit (local file, no network)
	sqliteDB.SetConnMaxIdleTime(0) // No idle timeout (always ready)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies the latest schema and stamps the schema version. The
// schema only uses IF NOT EXISTS statements, so it is safe to run on every
// boot.
func (d *DB) Migrate(ctx context.Context) error {
	buf, err := migrationFS.ReadFile(latestSchemaFile)
	if err != nil {
		return errors.Wrap(err, "failed to read latest schema")
	}
	if _, err := d.db.ExecContext(ctx, string(buf)); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}
	return d.stampSchemaVersion(ctx)
}

// stampSchemaVersion records the running release in system_setting. A data
// directory written by a newer release is refused rather than silently
// downgraded.
func (d *DB) stampSchemaVersion(ctx context.Context) error {
	current := d.profile.Version
	if current == "" {
		current = version.GetCurrentVersion(d.profile.Mode)
	}

	var stored string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM system_setting WHERE name = 'schema_version'").Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "failed to read schema version")
	}
	if stored != "" && version.IsVersionGreaterThan(stored, current) {
		return errors.Errorf("data directory was written by release %s, refusing to start release %s", stored, current)
	}

	stmt := "INSERT INTO system_setting (name, value) VALUES ('schema_version', ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value"
	if _, err := d.db.ExecContext(ctx, stmt, current); err != nil {
		return errors.Wrap(err, "failed to stamp schema version")
	}
	return nil
}

func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, "?")
	}
	return strings.Join(list, ", ")
}
