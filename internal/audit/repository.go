package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mcoot/chaosroom/internal/model"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// Dialect selects the SQL backend
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectNone     Dialect = "none"
)

// Config holds audit log settings
type Config struct {
	Dialect Dialect
	// DSN is a file path (or :memory:) for sqlite, a connection URL for postgres
	DSN string
}

// DefaultConfig returns default audit configuration
func DefaultConfig() Config {
	return Config{
		Dialect: DialectSQLite,
		DSN:     filepath.Join("tmp", "chaosroom_audit.sqlite"),
	}
}

// SQLRepository stores audit entries through database/sql
type SQLRepository struct {
	dialect Dialect
	db      *sql.DB
}

// Open connects to the configured database and applies pending migrations
func Open(ctx context.Context, cfg Config) (*SQLRepository, error) {
	var driverName string
	switch cfg.Dialect {
	case DialectSQLite:
		driverName = "sqlite"
		if cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	case DialectPostgres:
		driverName = "pgx"
		if cfg.DSN == "" {
			return nil, fmt.Errorf("audit dialect postgres requires a DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported audit dialect %q", cfg.Dialect)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Dialect, err)
	}

	repo := &SQLRepository{dialect: cfg.Dialect, db: db}
	if err := repo.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the database
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) bind(pos int) string {
	if r.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (r *SQLRepository) insertQuery(table string, cols []string) string {
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = r.bind(i + 1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		strings.Join(ph, ", "),
	)
}

func (r *SQLRepository) applyMigrations(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at_ms BIGINT NOT NULL
		)
	`
	if _, err := r.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := r.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate schema migrations: %w", err)
	}
	rows.Close()

	files, err := fs.Glob(migrationFS, fmt.Sprintf("migrations/%s/*.sql", r.dialect))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		base := filepath.Base(file)
		if applied[base] {
			continue
		}
		sqlBytes, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", file, err)
		}
		for _, stmt := range splitStatements(string(sqlBytes)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
		q := r.insertQuery("schema_migrations", []string{"version", "applied_at_ms"})
		if _, err := tx.ExecContext(ctx, q, base, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var auditColumns = []string{
	"id", "actor_id", "target_id", "action", "field", "delta", "detail", "reason", "created_at_ms",
}

// Record inserts one entry
func (r *SQLRepository) Record(ctx context.Context, e model.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, r.insertQuery("audit_log", auditColumns),
		e.ID,
		string(e.ActorID),
		string(e.TargetID),
		string(e.Action),
		string(e.Field),
		e.Delta,
		e.Detail,
		e.Reason,
		e.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListForTarget returns the newest entries about a player first
func (r *SQLRepository) ListForTarget(ctx context.Context, target model.PlayerID, limit int) ([]model.AuditEntry, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM audit_log WHERE target_id = %s ORDER BY created_at_ms DESC, id DESC",
		strings.Join(auditColumns, ", "),
		r.bind(1),
	)
	args := []any{string(target)}
	if limit > 0 {
		q += " LIMIT " + r.bind(2)
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	out := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e                       model.AuditEntry
			actor, tgt, action, fld string
			createdMs               int64
		)
		if err := rows.Scan(&e.ID, &actor, &tgt, &action, &fld, &e.Delta, &e.Detail, &e.Reason, &createdMs); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ActorID = model.PlayerID(actor)
		e.TargetID = model.PlayerID(tgt)
		e.Action = model.AuditAction(action)
		e.Field = model.BalanceField(fld)
		e.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return out, nil
}
