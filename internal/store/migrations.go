package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// columnExists checks whether a column exists on a table
func columnExists(ctx context.Context, q querier, table, column string) (bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// tableExists checks whether a table exists in the database
func tableExists(ctx context.Context, q querier, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetSchemaVersion returns the stored schema version, 0 for a new database.
func (s *Store) GetSchemaVersion(ctx context.Context) (int, error) {
	conn, err := s.db()
	if err != nil {
		return 0, err
	}
	return schemaVersion(ctx, conn)
}

func schemaVersion(ctx context.Context, q querier) (int, error) {
	exists, err := tableExists(ctx, q, "schema_info")
	if err != nil || !exists {
		return 0, err
	}
	var version string
	err = q.QueryRowContext(ctx, "SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, _ := strconv.Atoi(version)
	return v, nil
}

func setSchemaVersion(ctx context.Context, q querier, version int) error {
	_, err := q.ExecContext(ctx, `INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`, strconv.Itoa(version))
	return err
}

// RunMigrations creates missing tables and indexes and applies pending
// migrations. Existing rows are never touched and it is safe to run repeatedly.
// It returns the number of migrations applied.
func (s *Store) RunMigrations(ctx context.Context) (int, error) {
	conn, err := s.db()
	if err != nil {
		return 0, err
	}

	var applied int
	err = s.withWriteLock(func() error {
		if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
			return fmt.Errorf("create schema_info: %w", err)
		}
		if err := ensureBaseSchema(ctx, conn); err != nil {
			return err
		}

		current, err := schemaVersion(ctx, conn)
		if err != nil {
			return fmt.Errorf("get schema version: %w", err)
		}

		for _, m := range Migrations {
			if m.Version <= current {
				continue
			}
			skip := false
			if m.Version == 2 {
				// Fresh databases get the column from the base schema
				if skip, err = columnExists(ctx, conn, "sync_queue", "attempts"); err != nil {
					return fmt.Errorf("check column attempts: %w", err)
				}
			}
			if !skip {
				if err := execScript(ctx, conn, m.SQL); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
				}
			}
			if err := setSchemaVersion(ctx, conn, m.Version); err != nil {
				return fmt.Errorf("set version %d: %w", m.Version, err)
			}
			applied++
		}

		if current < SchemaVersion {
			return setSchemaVersion(ctx, conn, SchemaVersion)
		}
		return nil
	})
	return applied, err
}

// ensureBaseSchema creates every collection table, index column and index
// that does not exist yet.
func ensureBaseSchema(ctx context.Context, conn *sql.DB) error {
	for _, name := range collectionOrder {
		spec := collections[name]
		cols := []string{"id TEXT PRIMARY KEY", "doc TEXT NOT NULL"}
		for _, idx := range spec.indexes {
			cols = append(cols, idx+" TEXT")
		}
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(cols, ", "))
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}

		for _, idx := range spec.indexes {
			exists, err := columnExists(ctx, conn, name, idx)
			if err != nil {
				return fmt.Errorf("check column %s.%s: %w", name, idx, err)
			}
			if !exists {
				if _, err := conn.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", name, idx)); err != nil {
					return fmt.Errorf("add column %s.%s: %w", name, idx, err)
				}
				if err := backfillIndex(ctx, conn, name, idx); err != nil {
					return err
				}
			}
			unique := ""
			if spec.unique[idx] {
				unique = "UNIQUE "
			}
			stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", unique, name, idx, name, idx)
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create index %s.%s: %w", name, idx, err)
			}
		}
	}

	if err := execScript(ctx, conn, queueSchema); err != nil {
		return fmt.Errorf("create sync_queue: %w", err)
	}
	if err := execScript(ctx, conn, metaSchema); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}
	return nil
}

// backfillIndex fills a newly added index column from the stored documents.
func backfillIndex(ctx context.Context, conn *sql.DB, table, column string) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT id, doc FROM %s", table))
	if err != nil {
		return fmt.Errorf("backfill %s.%s: %w", table, column, err)
	}
	values := map[string]sql.NullString{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			rows.Close()
			return err
		}
		values[id] = nullable(fieldValue([]byte(doc), column))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id, v := range values {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE id = ?", table, column), v, id); err != nil {
			return fmt.Errorf("backfill %s.%s: %w", table, column, err)
		}
	}
	return nil
}

func execScript(ctx context.Context, q querier, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
