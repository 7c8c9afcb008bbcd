package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/pavelanni/tutor/internal/recordstore"
)

var _ recordstore.Store = (*Store)(nil)

// Get returns the records of a collection matching every filter field, in
// insertion order. Upserts keep a record's original position.
func (s *Store) Get(ctx context.Context, c recordstore.Collection, f recordstore.Filter) ([]recordstore.Record, error) {
	query := `SELECT fields FROM records WHERE collection = ?`
	args := []any{string(c)}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		query += ` AND IFNULL(json_extract(fields, ?), '') = ?`
		args = append(args, jsonPath(k), f[k])
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, recordstore.Unavailable("get "+string(c), err)
	}
	defer rows.Close()

	var out []recordstore.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, recordstore.Unavailable("get "+string(c), err)
		}
		var r recordstore.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", c, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, recordstore.Unavailable("get "+string(c), err)
	}
	return out, nil
}

// Upsert replaces the record stored under key, or inserts it.
func (s *Store) Upsert(ctx context.Context, c recordstore.Collection, key string, r recordstore.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", c, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (collection, key, fields) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET fields = excluded.fields`,
		string(c), key, string(raw),
	)
	return recordstore.Unavailable("upsert "+string(c), err)
}

// Append adds a keyless record.
func (s *Store) Append(ctx context.Context, c recordstore.Collection, r recordstore.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", c, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (collection, key, fields) VALUES (?, NULL, ?)`,
		string(c), string(raw),
	)
	return recordstore.Unavailable("append "+string(c), err)
}

// jsonPath quotes a field name as an SQLite JSON path.
func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

