package postgres

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/briskprint/printservice/internal/domain"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one forward-only schema change, numbered by filename prefix
// (e.g. "0001_init.up.sql"). Grounded on the teacher's migration loader
// (internal/utils/migration/migration.go in the auth-service pack member),
// adapted from database/sql + a down-migration pair to a pgx pool running
// embedded, forward-only SQL files tracked in schema_migrations.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// LoadMigrations reads every embedded *.up.sql file, sorted by version.
func LoadMigrations() ([]Migration, error) {
	entries, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("op=migrations.load glob: %w", err)
	}
	out := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		filename := path.Base(entry)
		parts := strings.SplitN(filename, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		content, err := migrationFS.ReadFile(entry)
		if err != nil {
			return nil, fmt.Errorf("op=migrations.load read %s: %w", entry, err)
		}
		name := strings.TrimSuffix(parts[1], ".up.sql")
		out = append(out, Migration{Version: version, Name: name, SQL: string(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies every pending migration, recording applied versions in
// schema_migrations so re-running is a no-op. A migration's SQL and its
// schema_migrations row are written by two separate statements, not inside
// one transaction.
func Migrate(ctx domain.Context, pool PgxPool) error {
	lg := slog.Default().With("component", "migrator")

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("op=migrate.create_tracking_table: %w", err)
	}

	migrations, err := LoadMigrations()
	if err != nil {
		return err
	}

	applied := map[int]bool{}
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("op=migrate.list_applied: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("op=migrate.scan_applied: %w", err)
		}
		applied[v] = true
	}
	rerr := rows.Err()
	rows.Close()
	if rerr != nil {
		return fmt.Errorf("op=migrate.rows_applied: %w", rerr)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(ctx, pool, m); err != nil {
			return fmt.Errorf("op=migrate.apply version=%d: %w", m.Version, err)
		}
		lg.Info("applied migration", slog.Int("version", m.Version), slog.String("name", m.Name))
	}
	return nil
}

func applyMigration(ctx domain.Context, pool PgxPool, m Migration) error {
	if _, err := pool.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return nil
}
