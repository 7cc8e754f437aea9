package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"streetwatch/internal/cache"
)

// Load returns the snapshot stored for kind and routeTag. It satisfies
// cache.Backend.
func (db *DB) Load(ctx context.Context, kind cache.Kind, routeTag string) (cache.Entry, bool, error) {
	var (
		payload    []byte
		capturedAt int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT payload, captured_at FROM snapshots WHERE kind = ? AND route_tag = ?`,
		string(kind), routeTag).Scan(&payload, &capturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("load snapshot %s/%s: %w", kind, routeTag, err)
	}
	return cache.Entry{Payload: payload, CapturedAt: time.Unix(0, capturedAt)}, true, nil
}

// Store overwrites the snapshot for kind and routeTag.
func (db *DB) Store(ctx context.Context, kind cache.Kind, routeTag string, e cache.Entry) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (kind, route_tag, payload, captured_at) VALUES (?, ?, ?, ?)`,
		string(kind), routeTag, e.Payload, e.CapturedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("store snapshot %s/%s: %w", kind, routeTag, err)
	}
	return nil
}

// SnapshotCount returns the number of stored snapshots of a kind.
func (db *DB) SnapshotCount(ctx context.Context, kind cache.Kind) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE kind = ?`, string(kind)).Scan(&n)
	return n, err
}

// GetMetadata retrieves a value from the feed_metadata table.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM feed_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMetadata stores a key-value pair in the feed_metadata table.
func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO feed_metadata (key, value) VALUES (?, ?)`,
		key, value)
	return err
}
