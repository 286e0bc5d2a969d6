package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"modernc.org/sqlite"

	"github.com/wolfpack-pm/wolfpack/deb"
)

// migrations are numbered monotonically and applied in order; each one must
// be idempotent since Open runs against whatever schema_version a database
// already carries.
var migrations = []string{
	migration01,
}

const migration01 = `
CREATE TABLE IF NOT EXISTS repos (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	base_url TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS components (
	id INTEGER PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	repo_id INTEGER NOT NULL REFERENCES repos(id),
	suite TEXT NOT NULL,
	component TEXT NOT NULL,
	architecture TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS packages (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	architecture TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	installed_size INTEGER,
	depends TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	hash TEXT NOT NULL,
	homepage TEXT,
	component_id INTEGER NOT NULL REFERENCES components(id)
);
CREATE INDEX IF NOT EXISTS idx_packages_name ON packages(name);
CREATE INDEX IF NOT EXISTS idx_packages_component ON packages(component_id);

CREATE TABLE IF NOT EXISTS provisions (
	package_id INTEGER NOT NULL REFERENCES packages(id),
	name TEXT NOT NULL,
	version TEXT,
	PRIMARY KEY (package_id, name, version)
);
CREATE INDEX IF NOT EXISTS idx_provisions_name ON provisions(name);

CREATE TABLE IF NOT EXISTS dependencies (
	child INTEGER NOT NULL REFERENCES packages(id),
	parent INTEGER NOT NULL REFERENCES packages(id),
	PRIMARY KEY (child, parent)
);

CREATE TABLE IF NOT EXISTS downloaded_files (
	url TEXT PRIMARY KEY,
	etag TEXT,
	last_modified TEXT,
	expires INTEGER,
	size INTEGER
);
`

func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES(?)`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: recording version: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", i+1, err)
		}
	}
	return nil
}

// versionCompareSQL backs the deb_version_compare(a, b) SQL function used by
// version-constrained WHERE clauses, returning -1/0/1 like strcmp. Both
// arguments are bound as ordinary string parameters — never a raw pointer
// literal the way the original Rust query builder embeds one.
func versionCompareSQL(fc *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, aOK := args[0].(string)
	b, bOK := args[1].(string)
	if !aOK || !bOK {
		return nil, fmt.Errorf("store: deb_version_compare expects two strings")
	}
	va, err := deb.ParseVersion(a)
	if err != nil {
		return nil, err
	}
	vb, err := deb.ParseVersion(b)
	if err != nil {
		return nil, err
	}
	return int64(va.Compare(vb)), nil
}
