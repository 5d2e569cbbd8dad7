// Package ledger persists per-classroom attendance records. It is the
// only component that writes attendance history.
package ledger

import (
	"context"
	"sync"

	"kiosk/internal/attendance"
)

// Store is a keyed collection of student records, one collection per
// classroom. Get returns an empty collection for an unknown key; Reset
// destroys a classroom's entire collection.
type Store interface {
	Get(ctx context.Context, classroomKey string) ([]attendance.Student, error)
	Set(ctx context.Context, classroomKey string, students []attendance.Student) error
	Upsert(ctx context.Context, classroomKey string, student attendance.Student) error
	Reset(ctx context.Context, classroomKey string) error
}

// upsert replaces the record matching student.LRN or appends it,
// keeping each LRN at most once per classroom.
func upsert(students []attendance.Student, student attendance.Student) []attendance.Student {
	for i := range students {
		if students[i].LRN == student.LRN {
			students[i] = student
			return students
		}
	}
	return append(students, student)
}

// MemoryStore keeps ledgers in process memory. Used in dev mode and
// tests.
type MemoryStore struct {
	mu      sync.RWMutex
	ledgers map[string][]attendance.Student
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: map[string][]attendance.Student{}}
}

// Get returns the classroom's records, empty when none exist.
func (m *MemoryStore) Get(_ context.Context, classroomKey string) ([]attendance.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.ledgers[classroomKey]), nil
}

// Set overwrites the classroom's records.
func (m *MemoryStore) Set(_ context.Context, classroomKey string, students []attendance.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[classroomKey] = cloneAll(students)
	return nil
}

// Upsert applies a single-record read-modify-write under the store lock.
func (m *MemoryStore) Upsert(_ context.Context, classroomKey string, student attendance.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[classroomKey] = upsert(m.ledgers[classroomKey], student.Clone())
	return nil
}

// Reset removes the classroom's ledger entirely.
func (m *MemoryStore) Reset(_ context.Context, classroomKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ledgers, classroomKey)
	return nil
}

func cloneAll(students []attendance.Student) []attendance.Student {
	out := make([]attendance.Student, len(students))
	for i, s := range students {
		out[i] = s.Clone()
	}
	return out
}
