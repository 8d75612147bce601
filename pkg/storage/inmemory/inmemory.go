// Package inmemory provides a map-backed storage driver.
package inmemory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/papercomputeco/lmgate/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu guards records
	mu sync.RWMutex

	// records is keyed by record ID
	records map[string]*storage.Record
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string]*storage.Record),
	}
}

// Put stores a copy of record. Returns false if the ID already exists.
func (s *Driver) Put(_ context.Context, record *storage.Record) (bool, error) {
	if record == nil {
		return false, errors.New("cannot store nil record")
	}
	if record.ID == "" {
		return false, errors.New("cannot store record without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; ok {
		return false, nil
	}

	stored := *record
	s.records[record.ID] = &stored
	return true, nil
}

// Get retrieves a record by ID.
func (s *Driver) Get(_ context.Context, id string) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	out := *record
	return &out, nil
}

// List returns up to limit records, newest first.
func (s *Driver) List(_ context.Context, limit int) ([]*storage.Record, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	s.mu.RLock()
	result := make([]*storage.Record, 0, len(s.records))
	for _, record := range s.records {
		out := *record
		result = append(result, &out)
	}
	s.mu.RUnlock()

	slices.SortFunc(result, func(a, b *storage.Record) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Close is a no-op.
func (s *Driver) Close() error {
	return nil
}
