package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"doctable/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial layout (pre-migration)
// 1 - Added sql_name index on schema_tables
const currentSchemaVersion = 1

// SQLite is a file-backed schema store. It is the fallback target when
// the source database refuses metadata writes, and the storage for
// offline work against exported artifacts.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite creates or opens the store database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement (version rows cascade to table rows)
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on
// user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		// CREATE INDEX IF NOT EXISTS is safe - no-op when present.
		if _, err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_schema_tables_sql_name
			ON schema_tables(schema_name, schema_version, sql_name)
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *SQLite) Read(ctx context.Context, name string, version int) (*schema.Schema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, version, db_name, created_at
		FROM schemas WHERE name = ? AND version = ?
	`, name, version)
	return s.scanSchema(ctx, row)
}

func (s *SQLite) ReadLatest(ctx context.Context, name string) (*schema.Schema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, version, db_name, created_at
		FROM schemas WHERE name = ?
		ORDER BY version DESC LIMIT 1
	`, name)
	return s.scanSchema(ctx, row)
}

func (s *SQLite) scanSchema(ctx context.Context, row *sql.Row) (*schema.Schema, error) {
	var (
		sc      schema.Schema
		created string
	)
	err := row.Scan(&sc.Name, &sc.Version, &sc.Database, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	sc.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("read schema: bad created_at %q: %w", created, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT table_id, sql_name
		FROM schema_tables
		WHERE schema_name = ? AND schema_version = ?
		ORDER BY sql_name ASC
	`, sc.Name, sc.Version)
	if err != nil {
		return nil, fmt.Errorf("read schema tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref schema.TableRef
		if err := rows.Scan(&ref.ID, &ref.SQLName); err != nil {
			return nil, fmt.Errorf("read schema tables: %w", err)
		}
		sc.Tables = append(sc.Tables, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema tables: %w", err)
	}
	return &sc, nil
}

func (s *SQLite) ReadTable(ctx context.Context, name string, version int, tableID string) (*schema.Table, error) {
	var artifact string
	err := s.db.QueryRowContext(ctx, `
		SELECT artifact FROM schema_tables
		WHERE schema_name = ? AND schema_version = ? AND table_id = ?
	`, name, version, tableID).Scan(&artifact)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	t, err := schema.UnmarshalTable([]byte(artifact))
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	t.ID = tableID
	return t, nil
}

func (s *SQLite) ReadTables(ctx context.Context, sc *schema.Schema) (map[string]*schema.Table, error) {
	tables := make(map[string]*schema.Table, len(sc.Tables))
	for _, ref := range sc.Tables {
		t, err := s.ReadTable(ctx, sc.Name, sc.Version, ref.ID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("schema %s v%d references missing table %s", sc.Name, sc.Version, ref.SQLName)
		}
		tables[t.SQLName] = t
	}
	return tables, nil
}

func (s *SQLite) Write(ctx context.Context, sc *schema.Schema, tables map[string]*schema.Table) error {
	return s.writeVersion(ctx, sc, tables, false)
}

func (s *SQLite) Update(ctx context.Context, sc *schema.Schema, tables map[string]*schema.Table) error {
	return s.writeVersion(ctx, sc, tables, true)
}

func (s *SQLite) writeVersion(ctx context.Context, sc *schema.Schema, tables map[string]*schema.Table, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM schemas WHERE name = ? AND version = ?
		`, sc.Name, sc.Version); err != nil {
			return fmt.Errorf("write schema: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schemas (name, version, db_name, created_at)
		VALUES (?, ?, ?, ?)
	`, sc.Name, sc.Version, sc.Database, sc.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("write schema %s v%d: %w", sc.Name, sc.Version, err)
	}

	for _, t := range tables {
		artifact, err := schema.MarshalTable(t)
		if err != nil {
			return fmt.Errorf("write table %s: %w", t.SQLName, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schema_tables
			(schema_name, schema_version, table_id, sql_name, artifact)
			VALUES (?, ?, ?, ?, ?)
		`, sc.Name, sc.Version, t.ID, t.SQLName, string(artifact)); err != nil {
			return fmt.Errorf("write table %s: %w", t.SQLName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}

func (s *SQLite) Remove(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM schemas WHERE name = ?`, name); err != nil {
		return fmt.Errorf("remove schema %s: %w", name, err)
	}
	return nil
}

func (s *SQLite) RemoveVersion(ctx context.Context, name string, version int) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM schemas WHERE name = ? AND version = ?
	`, name, version); err != nil {
		return fmt.Errorf("remove schema %s v%d: %w", name, version, err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]*schema.Schema, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, version FROM schemas
		ORDER BY name ASC, version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	type key struct {
		name    string
		version int
	}
	var keys []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.name, &k.version); err != nil {
			return nil, fmt.Errorf("list schemas: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}

	out := make([]*schema.Schema, 0, len(keys))
	for _, k := range keys {
		sc, err := s.Read(ctx, k.name, k.version)
		if err != nil {
			return nil, err
		}
		if sc != nil {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *SQLite) Close(context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// verifyPragma checks that a pragma is set to the expected value. Used
// for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
