package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresLogPrefix = "kv:postgres"

// PostgresStore is a Store backed by a single kv_entries table: a thin
// wrapper around a shared *pgxpool.Pool with one method per operation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore. The caller owns pool's
// lifecycle (see pkg/db.NewPool).
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_entries
		 WHERE key_hash = $1 AND (expires_at IS NULL OR expires_at > now())`,
		hashKey(key)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s - get: %w", postgresLogPrefix, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key Key, value []byte, opts SetOptions) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_entries (key_hash, key_path, value, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key_hash) DO UPDATE SET
		   value = EXCLUDED.value,
		   expires_at = EXCLUDED.expires_at`,
		hashKey(key), key.join(), value, expiresAt(opts.TTL))
	if err != nil {
		return fmt.Errorf("%s - set: %w", postgresLogPrefix, err)
	}
	return nil
}

// SetIfAbsent claims key atomically. The WHERE clause on the DO UPDATE
// branch only fires when the existing row has expired, so an expired
// entry is treated as absent without a separate delete pass. A row comes
// back from RETURNING only when the value was written (a fresh insert or
// the takeover of an expired row); a present, unexpired entry makes the
// conflict branch a no-op that returns no row, so one round trip does both
// the check and the claim. The returned xmax flag is false for the
// expired-row takeover, so it is not used as the result.
func (s *PostgresStore) SetIfAbsent(ctx context.Context, key Key, value []byte, opts SetOptions) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO kv_entries (key_hash, key_path, value, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key_hash) DO UPDATE SET
		   value = EXCLUDED.value,
		   expires_at = EXCLUDED.expires_at
		 WHERE kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now()
		 RETURNING (xmax = 0) AS inserted`,
		hashKey(key), key.join(), value, expiresAt(opts.TTL)).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict branch's WHERE clause did not match: the existing
		// entry is present and unexpired, so nothing was claimed.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s - setIfAbsent: %w", postgresLogPrefix, err)
	}
	return true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key_hash = $1`, hashKey(key)); err != nil {
		return fmt.Errorf("%s - delete: %w", postgresLogPrefix, err)
	}
	return nil
}

func expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().UTC().Add(ttl)
	return &t
}

// PruneExpired deletes rows past their expiry. It is safe to call
// periodically from a background goroutine; unlike MemStore, Postgres
// does not expire rows on its own.
func (s *PostgresStore) PruneExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("%s - pruneExpired: %w", postgresLogPrefix, err)
	}
	n := tag.RowsAffected()
	if n > 0 {
		slog.Debug(fmt.Sprintf("%s - pruned %d expired entries", postgresLogPrefix, n))
	}
	return n, nil
}
