// Package postgres implements the store driver on PostgreSQL with pgvector.
// This is the production driver: catalog similarity search runs inside the
// database using the cosine distance operator.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"strconv"
	"strings"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

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

// NewDB opens a database specified by its connection string in profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database with dsn: %s", profile.DSN)
	}

	return &DB{db: db, profile: profile}, nil
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

	stmt := "INSERT INTO system_setting (name, value) VALUES ('schema_version', $1) ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value"
	if _, err := d.db.ExecContext(ctx, stmt, current); err != nil {
		return errors.Wrap(err, "failed to stamp schema version")
	}
	return nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func placeholders(n int) string {
	list := []string{}
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}
