// Package recordstore defines the key-value record store the adaptive engine
// persists to, plus in-memory and Redis backends.
package recordstore

import (
	"context"
	"errors"
	"fmt"
)

// Collection names a group of records.
type Collection string

const (
	// Weaknesses holds one record per (student, keyword), keyed by model.WeaknessKey.
	Weaknesses Collection = "weaknesses"
	// Answers is append-only.
	Answers Collection = "answers"
	// Problems is read-only to the tutoring core.
	Problems Collection = "problems"
)

// Record maps field names to values.
type Record map[string]string

// Clone returns a copy that does not share storage with r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter selects records whose fields equal every given value.
// An empty filter matches all records.
type Filter map[string]string

// Match reports whether r satisfies the filter.
func (f Filter) Match(r Record) bool {
	for k, v := range f {
		if r[k] != v {
			return false
		}
	}
	return true
}

// ErrUnavailable wraps every failure to reach a backend.
var ErrUnavailable = errors.New("record store unavailable")

var errClosed = errors.New("store closed")

// Store is the record store contract. Get returns records in insertion order.
type Store interface {
	Get(ctx context.Context, c Collection, f Filter) ([]Record, error)
	Upsert(ctx context.Context, c Collection, key string, r Record) error
	Append(ctx context.Context, c Collection, r Record) error
	Close() error
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
