// Package checkpoint persists per-task ingestion progress behind a single
// Store interface with two interchangeable backends: a local file store
// (one JSON file per key, atomic writes, in-memory cache) and a
// ClickHouse-backed columnar store using a deduplicating merge engine
// keyed by write version.
package checkpoint

import "context"

// Status is the lifecycle state of one ingestion task's checkpoint.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Checkpoint is the durable marker of ingestion progress for one
// (venue, symbol, dataType) key.
type Checkpoint struct {
	Venue           string
	Symbol          string
	DataType        string
	LastTimestamp   int64
	UpdatedAt       int64
	Status          Status
	DownloadedCount int64
	ErrorMessage    string
}

// Key identifies a checkpoint uniquely.
type Key struct {
	Venue    string
	Symbol   string
	DataType string
}

func keyOf(c Checkpoint) Key {
	return Key{Venue: c.Venue, Symbol: c.Symbol, DataType: c.DataType}
}

// Store is the capability every checkpoint backend implements. Save is an
// upsert and must be monotonic in UpdatedAt: a save with an older UpdatedAt
// than the last recorded one for the same key is a no-op.
type Store interface {
	Get(ctx context.Context, venue, symbol, dataType string) (*Checkpoint, error)
	Save(ctx context.Context, c Checkpoint) error
	GetAll(ctx context.Context) ([]Checkpoint, error)
	Delete(ctx context.Context, venue, symbol, dataType string) error
}
