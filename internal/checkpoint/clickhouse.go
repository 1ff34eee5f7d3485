package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createCheckpointsTableDDL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	venue        LowCardinality(String),
	symbol       LowCardinality(String),
	data_type    LowCardinality(String),
	last_ts      Int64,
	updated_at   Int64,
	status       LowCardinality(String),
	downloaded   Int64,
	error_message String,
	version      UInt64
)
ENGINE = ReplacingMergeTree(version)
PARTITION BY toYYYYMM(toDateTime(intDiv(updated_at, 1000)))
ORDER BY (venue, symbol, data_type)
`

// ClickHouseStore is the columnar Store backend: one ReplacingMergeTree row
// per write, deduplicated on read by version (wall-clock ms at write time),
// matching the version-based merge-engine semantics every columnar sink in
// this substrate uses.
type ClickHouseStore struct {
	conn driver.Conn
}

// NewClickHouseStore dials addr and ensures the checkpoints table exists.
func NewClickHouseStore(ctx context.Context, addr, database, username, password string) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	if err := conn.Exec(ctx, createCheckpointsTableDDL); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &ClickHouseStore{conn: conn}, nil
}

// Get returns the latest (highest-version) row for the key, querying with
// FINAL to collapse duplicate versions at read time.
func (s *ClickHouseStore) Get(ctx context.Context, venue, symbol, dataType string) (*Checkpoint, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT venue, symbol, data_type, last_ts, updated_at, status, downloaded, error_message
		FROM checkpoints FINAL
		WHERE venue = ? AND symbol = ? AND data_type = ?
	`, venue, symbol, dataType)

	var c Checkpoint
	var status string
	if err := row.Scan(&c.Venue, &c.Symbol, &c.DataType, &c.LastTimestamp, &c.UpdatedAt, &status, &c.DownloadedCount, &c.ErrorMessage); err != nil {
		return nil, nil
	}
	c.Status = Status(status)
	return &c, nil
}

// Save appends a new versioned row; the merge engine reconciles duplicates
// at read/merge time. The stored row is read first so that a save with an
// older UpdatedAt than the recorded one is dropped.
func (s *ClickHouseStore) Save(ctx context.Context, c Checkpoint) error {
	existing, err := s.Get(ctx, c.Venue, c.Symbol, c.DataType)
	if err != nil {
		return err
	}
	if existing != nil && c.UpdatedAt < existing.UpdatedAt {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO checkpoints")
	if err != nil {
		return fmt.Errorf("prepare checkpoint batch: %w", err)
	}

	version := uint64(time.Now().UnixMilli())
	if err := batch.Append(c.Venue, c.Symbol, c.DataType, c.LastTimestamp, c.UpdatedAt, string(c.Status), c.DownloadedCount, c.ErrorMessage, version); err != nil {
		return fmt.Errorf("append checkpoint row: %w", err)
	}
	return batch.Send()
}

// GetAll returns the latest row per key across the whole table.
func (s *ClickHouseStore) GetAll(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT venue, symbol, data_type, last_ts, updated_at, status, downloaded, error_message
		FROM checkpoints FINAL
	`)
	if err != nil {
		return nil, fmt.Errorf("query all checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		var status string
		if err := rows.Scan(&c.Venue, &c.Symbol, &c.DataType, &c.LastTimestamp, &c.UpdatedAt, &status, &c.DownloadedCount, &c.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		c.Status = Status(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes the key's rows with an ALTER TABLE ... DELETE mutation,
// which ClickHouse applies asynchronously in the background.
func (s *ClickHouseStore) Delete(ctx context.Context, venue, symbol, dataType string) error {
	return s.conn.Exec(ctx, `
		ALTER TABLE checkpoints DELETE WHERE venue = ? AND symbol = ? AND data_type = ?
	`, venue, symbol, dataType)
}

// Close releases the underlying connection pool.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
