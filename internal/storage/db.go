package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
	dialectMySQL    dialect = "mysql"
)

// DB wraps a SQL connection and the dialect its statements are written for.
// Statements are authored with '?' placeholders and rebound per dialect.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// OpenSQLite opens (or creates) the SQLite file at dbPath.
func OpenSQLite(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	conn, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer: limit to single connection to prevent SQLITE_BUSY
	conn.SetMaxOpenConns(1)
	return newDB(conn, dialectSQLite)
}

// OpenPostgres opens a Postgres database from a lib/pq connection string or URL.
func OpenPostgres(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	return newDB(conn, dialectPostgres)
}

// OpenMySQL opens a MySQL database from a go-sql-driver DSN.
func OpenMySQL(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	return newDB(conn, dialectMySQL)
}

func newDB(conn *sql.DB, d dialect) (*DB, error) {
	db := &DB{conn: conn, dialect: d}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// rebind rewrites '?' placeholders into the dialect's positional form.
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (db *DB) columnTypes() *strings.Replacer {
	switch db.dialect {
	case dialectPostgres:
		return strings.NewReplacer("{{id}}", "VARCHAR(64)", "{{text}}", "TEXT", "{{long}}", "TEXT", "{{int}}", "BIGINT", "{{ts}}", "TIMESTAMPTZ")
	case dialectMySQL:
		return strings.NewReplacer("{{id}}", "VARCHAR(64)", "{{text}}", "VARCHAR(512)", "{{long}}", "LONGTEXT", "{{int}}", "BIGINT", "{{ts}}", "DATETIME(6)")
	default:
		return strings.NewReplacer("{{id}}", "TEXT", "{{text}}", "TEXT", "{{long}}", "TEXT", "{{int}}", "INTEGER", "{{ts}}", "DATETIME")
	}
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id {{id}} PRIMARY KEY,
			name {{text}} NOT NULL,
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sections (
			id {{id}} PRIMARY KEY,
			tenant_id {{id}} NOT NULL,
			name {{text}} NOT NULL,
			sort_order {{int}} NOT NULL DEFAULT 0,
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			id {{id}} PRIMARY KEY,
			section_id {{id}} NOT NULL,
			title {{text}} NOT NULL,
			content {{long}} NULL,
			content_seq {{int}} NOT NULL DEFAULT 0,
			sort_order {{int}} NOT NULL DEFAULT 0,
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`,
		// Committed snapshots per page, newest kept by PruneRevisions
		`CREATE TABLE IF NOT EXISTS page_revisions (
			id {{id}} PRIMARY KEY,
			page_id {{id}} NOT NULL,
			seq {{int}} NOT NULL,
			content {{long}} NOT NULL,
			created_at {{ts}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sections_tenant ON sections(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_section ON pages(section_id)`,
		`CREATE INDEX IF NOT EXISTS idx_page_revisions_page ON page_revisions(page_id)`,
	}

	types := db.columnTypes()
	for _, m := range migrations {
		stmt := types.Replace(m)
		if db.dialect == dialectMySQL {
			stmt = strings.Replace(stmt, "CREATE INDEX IF NOT EXISTS", "CREATE INDEX", 1)
		}
		if _, err := db.conn.Exec(stmt); err != nil {
			// MySQL has no IF NOT EXISTS for indexes: a re-run reports the existing key
			if db.dialect == dialectMySQL && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}
	return nil
}
