// Package storage persists generation records.
package storage

import (
	"context"
	"time"
)

// Record statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

// DefaultListLimit is used by List when limit is not positive.
const DefaultListLimit = 50

// Record describes one finished generation request. Streaming records leave
// Response empty: only fragment and byte counts are kept.
type Record struct {
	ID             string    `json:"id"`
	Model          string    `json:"model"`
	Prompt         string    `json:"prompt"`
	Response       string    `json:"response,omitempty"`
	Streaming      bool      `json:"streaming"`
	Status         string    `json:"status"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Fragments      int       `json:"fragments"`
	Bytes          int       `json:"bytes"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Duration returns how long the generation took.
func (r *Record) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Driver defines the interface for persisting and retrieving generation
// records in a storage backend.
type Driver interface {
	// Put stores a record. Returns true if the record was newly inserted,
	// false if a record with the same ID already exists (a no-op).
	Put(ctx context.Context, record *Record) (bool, error)

	// Get retrieves a record by ID. Returns NotFoundError when missing.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns up to limit records, most recently started first.
	List(ctx context.Context, limit int) ([]*Record, error)

	// Close closes the store and releases any resources.
	Close() error
}
