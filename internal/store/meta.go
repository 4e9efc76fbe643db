package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetMeta returns a persisted flag. The boolean is false when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	conn, err := s.db()
	if err != nil {
		return "", false, err
	}
	var v string
	err = conn.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return v, true, nil
}

// SetMeta persists a flag.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	return s.withWriteLock(func() error {
		_, err := conn.ExecContext(ctx, "INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
		if err != nil {
			return fmt.Errorf("set meta %s: %w", key, err)
		}
		return nil
	})
}

// MetaWithPrefix returns every flag whose key starts with prefix, keyed by
// the remainder of the key.
func (s *Store) MetaWithPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx,
		"SELECT key, value FROM meta WHERE substr(key, 1, ?) = ?", len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list meta %s*: %w", prefix, err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k[len(prefix):]] = v
	}
	return out, rows.Err()
}

// DeleteMeta removes the given flags.
func (s *Store) DeleteMeta(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	conn, err := s.db()
	if err != nil {
		return err
	}
	return s.withWriteLock(func() error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, "DELETE FROM meta WHERE key = ?", k); err != nil {
				return fmt.Errorf("delete meta %s: %w", k, err)
			}
		}
		return tx.Commit()
	})
}

// DeleteMetaPrefix removes every flag whose key starts with prefix.
func (s *Store) DeleteMetaPrefix(ctx context.Context, prefix string) (int64, error) {
	conn, err := s.db()
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.withWriteLock(func() error {
		res, err := conn.ExecContext(ctx, "DELETE FROM meta WHERE substr(key, 1, ?) = ?", len(prefix), prefix)
		if err != nil {
			return fmt.Errorf("delete meta %s*: %w", prefix, err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}
