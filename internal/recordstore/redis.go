package recordstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Redis stores each record as a hash and keeps a sorted index per collection
// so Get can return records in insertion order.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// Compile-time check: *Redis satisfies the Store interface.
var _ Store = (*Redis)(nil)

// NewRedis connects to addr and verifies the connection with PING.
func NewRedis(ctx context.Context, addr, password string, db int, prefix string) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if prefix == "" {
		prefix = "tutor"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("connected to redis record store", "addr", addr, "prefix", prefix)
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) indexKey(c Collection) string {
	return r.prefix + ":" + string(c) + ":index"
}

func (r *Redis) seqKey(c Collection) string {
	return r.prefix + ":" + string(c) + ":seq"
}

func (r *Redis) recordKey(c Collection, key string) string {
	return r.prefix + ":" + string(c) + ":rec:" + key
}

// Get loads every record of the collection and applies the filter client-side.
func (r *Redis) Get(ctx context.Context, c Collection, f Filter) ([]Record, error) {
	keys, err := r.rdb.ZRange(ctx, r.indexKey(c), 0, -1).Result()
	if err != nil {
		return nil, Unavailable("redis get index", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(keys))
	_, err = r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HGetAll(ctx, r.recordKey(c, k))
		}
		return nil
	})
	if err != nil {
		return nil, Unavailable("redis get records", err)
	}

	var out []Record
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, Unavailable("redis read record", err)
		}
		if len(fields) == 0 {
			continue
		}
		rec := Record(fields)
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Upsert replaces the hash under key. The index position of an existing key
// is kept.
func (r *Redis) Upsert(ctx context.Context, c Collection, key string, rec Record) error {
	seq, err := r.rdb.Incr(ctx, r.seqKey(c)).Result()
	if err != nil {
		return Unavailable("redis upsert seq", err)
	}

	values := make(map[string]any, len(rec))
	for k, v := range rec {
		values[k] = v
	}

	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZAddNX(ctx, r.indexKey(c), goredis.Z{Score: float64(seq), Member: key})
		p.Del(ctx, r.recordKey(c, key))
		if len(values) > 0 {
			p.HSet(ctx, r.recordKey(c, key), values)
		}
		return nil
	})
	if err != nil {
		return Unavailable("redis upsert", err)
	}
	return nil
}

// Append stores rec under a fresh key.
func (r *Redis) Append(ctx context.Context, c Collection, rec Record) error {
	return r.Upsert(ctx, c, uuid.NewString(), rec)
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
