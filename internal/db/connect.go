package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver maps common aliases to a supported driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "pg", "pgsql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", s)
	}
}

// Open opens a DB, tunes the pool and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:sheets.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/sheets?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	tunePool(driver, db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	if driver == DriverSQLite {
		if err := applySQLitePragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db: schema: %w", err)
	}
	return db, nil
}

func tunePool(driver Driver, db *sql.DB) {
	switch driver {
	case DriverSQLite:
		// single writer; one connection also keeps :memory: databases alive
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	default:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(45 * time.Minute)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}
}

func applySQLitePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("db: sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	schema := schemaSQLite
	if driver == DriverPostgres {
		schema = schemaPostgres
	}
	// one statement per Exec so a failure names its statement
	for _, stmt := range strings.Split(schema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Timestamps are unix milliseconds in both dialects.

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_sheets (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  template INTEGER NOT NULL DEFAULT 1,
  creator_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  editor_id TEXT REFERENCES users(id) ON DELETE CASCADE,
  created_at INTEGER NOT NULL,
  edited_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS exam_sheets_one_instance_per_creator
  ON exam_sheets (creator_id) WHERE template = FALSE;

CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL DEFAULT 'TEXT',
  question TEXT NOT NULL DEFAULT '',
  max_grade INTEGER,
  creator_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  editor_id TEXT REFERENCES users(id) ON DELETE CASCADE,
  created_at INTEGER NOT NULL,
  edited_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_sheet_tasks (
  sheet_id TEXT NOT NULL REFERENCES exam_sheets(id) ON DELETE CASCADE,
  task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
  PRIMARY KEY (sheet_id, task_id)
);

CREATE INDEX IF NOT EXISTS exam_sheet_tasks_task ON exam_sheet_tasks (task_id);

CREATE TABLE IF NOT EXISTS solutions (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
  choice_answer INTEGER NOT NULL DEFAULT 0,
  text_answer TEXT,
  points INTEGER NOT NULL DEFAULT 1,
  creator_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  editor_id TEXT REFERENCES users(id) ON DELETE CASCADE,
  created_at INTEGER NOT NULL,
  edited_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
  solution_id TEXT REFERENCES solutions(id) ON DELETE CASCADE,
  choice_answer INTEGER NOT NULL DEFAULT 0,
  text_answer TEXT,
  submit INTEGER NOT NULL DEFAULT 0,
  grade INTEGER,
  creator_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  editor_id TEXT REFERENCES users(id) ON DELETE CASCADE,
  created_at INTEGER NOT NULL,
  edited_at INTEGER NOT NULL,
  UNIQUE (creator_id, solution_id)
);

CREATE INDEX IF NOT EXISTS answers_task_creator ON answers (task_id, creator_id);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_sheets (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  template BOOLEAN NOT NULL DEFAULT TRUE,
  creator_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  editor_id TEXT REFERENCES users(id) ON DELETE CASCADE,
  created_at BIGINT NOT NULL,
  edited_at BIGINT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS exam_sheets_one_instance_per_creator
  ON exam_sheets (creator_id) WHERE template = FALSE;

CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL DEFAULT 'TEXT',
  question TEXT NOT NULL DEFAULT '',
  max_grade INTEGER,
  creator_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  editor_id TEXT REFERENCES users(id) ON DELETE CASCADE,
  created_at BIGINT NOT NULL,
  edited_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_sheet_tasks (
  sheet_id TEXT NOT NULL REFERENCES exam_sheets(id) ON DELETE CASCADE,
  task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
  PRIMARY KEY (sheet_id, task_id)
);

CREATE INDEX IF NOT EXISTS exam_sheet_tasks_task ON exam_sheet_tasks (task_id);

CREATE TABLE IF NOT EXISTS solutions (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
  choice_answer BOOLEAN NOT NULL DEFAULT FALSE,
  text_answer TEXT,
  points INTEGER NOT NULL DEFAULT 1,
  creator_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  editor_id TEXT REFERENCES users(id) ON DELETE CASCADE,
  created_at BIGINT NOT NULL,
  edited_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
  solution_id TEXT REFERENCES solutions(id) ON DELETE CASCADE,
  choice_answer BOOLEAN NOT NULL DEFAULT FALSE,
  text_answer TEXT,
  submit BOOLEAN NOT NULL DEFAULT FALSE,
  grade INTEGER,
  creator_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  editor_id TEXT REFERENCES users(id) ON DELETE CASCADE,
  created_at BIGINT NOT NULL,
  edited_at BIGINT NOT NULL,
  UNIQUE (creator_id, solution_id)
);

CREATE INDEX IF NOT EXISTS answers_task_creator ON answers (task_id, creator_id);
`
