package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chamada/internal/classify"
)

// MemoryRepository is a process-local Repository for tests and store-less
// dev runs.
type MemoryRepository struct {
	mu     sync.Mutex
	events []Event

	// Now stands in for the database server clock.
	Now func() time.Time
}

// NewMemoryRepository creates an empty in-memory repo.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{Now: time.Now}
}

// Insert implements Repository.
func (m *MemoryRepository) Insert(_ context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = m.Now()
	}
	m.events = append(m.events, evt)
	return nil
}

// CountByStudentAndDate implements Repository.
func (m *MemoryRepository) CountByStudentAndDate(_ context.Context, colecao classify.Bucket, studentID, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, evt := range m.events {
		if evt.Colecao == colecao && evt.StudentID == studentID && evt.CallDate == date {
			count++
		}
	}
	return count, nil
}

// ListSince implements Repository.
func (m *MemoryRepository) ListSince(_ context.Context, colecao classify.Bucket, cutoff time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, evt := range m.events {
		if evt.Colecao == colecao && !evt.CreatedAt.Before(cutoff) {
			out = append(out, evt)
		}
	}
	return out, nil
}

// DeleteOlderThan implements Repository.
func (m *MemoryRepository) DeleteOlderThan(_ context.Context, colecao classify.Bucket, cutoff time.Time, batch int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	kept := m.events[:0]
	for _, evt := range m.events {
		if deleted < batch && evt.Colecao == colecao && evt.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, evt)
	}
	m.events = kept
	return deleted, nil
}

// DeleteAll implements Repository.
func (m *MemoryRepository) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	return nil
}
