package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// DefaultPath is MT_DB_PATH, or .mt/matorral.db under the working directory.
func DefaultPath() string {
	if env := os.Getenv("MT_DB_PATH"); env != "" {
		return env
	}
	return filepath.Join(".mt", "matorral.db")
}

// Connection pragmas. They go in the DSN so every pooled connection gets
// them, not only the first one.
var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// Open creates the database directory if needed, opens the SQLite file and
// brings the schema up to date.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	// A narrower issues table needs these columns before the schema's
	// indexes can reference them.
	if err := ensureIssueColumns(ctx, db); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Issue columns beyond the core id..parent_id set. An issues table created
// without them, by hand or by another tool, is widened in place since
// CREATE TABLE IF NOT EXISTS leaves an existing table untouched.
var optionalIssueColumns = []struct {
	name string
	ddl  string
}{
	{"estimated_points", "ALTER TABLE issues ADD COLUMN estimated_points INTEGER"},
	{"position", "ALTER TABLE issues ADD COLUMN position INTEGER NOT NULL DEFAULT 0"},
	{"milestone_id", "ALTER TABLE issues ADD COLUMN milestone_id INTEGER REFERENCES milestones(id) ON DELETE SET NULL"},
}

func ensureIssueColumns(ctx context.Context, db *sql.DB) error {
	columns, err := tableColumns(ctx, db, "issues")
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return nil
	}
	for _, c := range optionalIssueColumns {
		if columns[c.name] {
			continue
		}
		if _, err := db.ExecContext(ctx, c.ddl); err != nil {
			return fmt.Errorf("add issues.%s: %w", c.name, err)
		}
	}
	return nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, fmt.Errorf("inspect %s table: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read table info: %w", err)
	}
	return columns, nil
}
