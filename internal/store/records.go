package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Record is one stored document keyed by its identifier.
type Record struct {
	ID  string
	Doc json.RawMessage
}

// NewRecord marshals v as the document for id.
func NewRecord(id string, v any) (Record, error) {
	if id == "" {
		return Record{}, errors.New("record id is required")
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("encode record %s: %w", id, err)
	}
	return Record{ID: id, Doc: doc}, nil
}

// Decode unmarshals the document into v.
func (r Record) Decode(v any) error {
	return json.Unmarshal(r.Doc, v)
}

// IndexFilter selects records whose Field equals Value. Secondary index
// fields use the index; any other field is matched by scanning.
type IndexFilter struct {
	Field string
	Value string
}

func lookup(collection string) (collectionSpec, error) {
	spec, ok := collections[collection]
	if !ok {
		return collectionSpec{}, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return spec, nil
}

// Get returns the record with id. The boolean is false when absent.
func (s *Store) Get(ctx context.Context, collection, id string) (Record, bool, error) {
	conn, err := s.db()
	if err != nil {
		return Record{}, false, err
	}
	if _, err := lookup(collection); err != nil {
		return Record{}, false, err
	}

	var doc string
	err = conn.QueryRowContext(ctx, fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", collection), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return Record{ID: id, Doc: json.RawMessage(doc)}, true, nil
}

// GetAll returns every record in collection, optionally narrowed by filter.
func (s *Store) GetAll(ctx context.Context, collection string, filter *IndexFilter) ([]Record, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}
	spec, err := lookup(collection)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT id, doc FROM %s", collection)
	var args []any
	scan := false
	if filter != nil {
		if spec.hasIndex(filter.Field) {
			query += fmt.Sprintf(" WHERE %s = ?", filter.Field)
			args = append(args, filter.Value)
		} else {
			scan = true
		}
	}
	query += " ORDER BY rowid"

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		if scan && fieldValue([]byte(doc), filter.Field) != filter.Value {
			continue
		}
		out = append(out, Record{ID: id, Doc: json.RawMessage(doc)})
	}
	return out, rows.Err()
}

// Put upserts rec, replacing any record with the same id.
func (s *Store) Put(ctx context.Context, collection string, rec Record) error {
	return s.PutMany(ctx, collection, []Record{rec})
}

// PutMany upserts every record in one transaction. On any failure nothing
// is applied and the error is returned.
func (s *Store) PutMany(ctx context.Context, collection string, recs []Record) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	spec, err := lookup(collection)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	stmt := upsertSQL(collection, spec)
	return s.withWriteLock(func() error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for _, rec := range recs {
			if rec.ID == "" {
				return fmt.Errorf("put %s: record id is required", collection)
			}
			args := []any{rec.ID, string(rec.Doc)}
			for _, idx := range spec.indexes {
				args = append(args, nullable(fieldValue(rec.Doc, idx)))
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return fmt.Errorf("put %s/%s: %w", collection, rec.ID, err)
			}
		}
		return tx.Commit()
	})
}

func upsertSQL(collection string, spec collectionSpec) string {
	cols := append([]string{"id", "doc"}, spec.indexes...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	var sets []string
	for _, c := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		collection, strings.Join(cols, ", "), marks, strings.Join(sets, ", "))
}

// Delete removes the record with id. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	if _, err := lookup(collection); err != nil {
		return err
	}
	return s.withWriteLock(func() error {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", collection), id); err != nil {
			return fmt.Errorf("delete %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

// ClearAll wipes every collection and the sync queue in one transaction.
// Persisted monitor flags survive.
func (s *Store) ClearAll(ctx context.Context) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	return s.withWriteLock(func() error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for _, name := range append(collectionOrder, "sync_queue") {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+name); err != nil {
				return fmt.Errorf("clear %s: %w", name, err)
			}
		}
		return tx.Commit()
	})
}

// fieldValue extracts the string value of a top-level document field.
// References stored as {_id, name} objects yield their identifier.
func fieldValue(doc []byte, field string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return ""
	}
	raw, ok := fields[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var ref struct {
		ServerID string `json:"_id"`
		ID       string `json:"id"`
	}
	if err := json.Unmarshal(raw, &ref); err == nil {
		if ref.ServerID != "" {
			return ref.ServerID
		}
		return ref.ID
	}
	return strings.Trim(string(raw), `"`)
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
