// Package roster resolves student identifiers against per-classroom
// roster partitions. Rosters are read-only here; attendance history is
// the ledger's business.
package roster

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"kiosk/internal/attendance"
)

// Source supplies student records for classroom partitions.
type Source interface {
	// Keys lists every configured classroom key, e.g. "grade7-tesla".
	Keys() []string
	// Partition returns the students of one classroom.
	Partition(ctx context.Context, key string) ([]attendance.Student, error)
}

type indexed struct {
	student   attendance.Student
	classroom string
}

// Index is a precomputed LRN → record map built by walking every
// partition once, so a scan costs a single lookup instead of a
// multi-partition probe.
type Index struct {
	source Source
	logger *zap.Logger

	mu    sync.RWMutex
	byLRN map[string]indexed
}

// NewIndex wraps a source. Call Refresh before the first lookup.
func NewIndex(source Source, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{source: source, logger: logger, byLRN: map[string]indexed{}}
}

// Refresh rebuilds the index from all configured partitions. A partition
// that fails to load is skipped and logged, not fatal; Refresh errors
// only when every partition failed.
func (ix *Index) Refresh(ctx context.Context) error {
	keys := ix.source.Keys()
	built := make(map[string]indexed, 64)
	var skipped int

	for _, key := range keys {
		students, err := ix.source.Partition(ctx, key)
		if err != nil {
			ix.logger.Warn("roster partition unavailable, skipping",
				zap.String("classroom", key), zap.Error(err))
			skipped++
			continue
		}
		for _, s := range students {
			if s.LRN == "" {
				continue
			}
			// First partition to claim an LRN wins.
			if _, dup := built[s.LRN]; dup {
				ix.logger.Warn("duplicate LRN across partitions",
					zap.String("lrn", s.LRN), zap.String("classroom", key))
				continue
			}
			built[s.LRN] = indexed{student: s, classroom: key}
		}
	}

	if len(keys) > 0 && skipped == len(keys) {
		return fmt.Errorf("roster refresh: all %d partitions failed to load", skipped)
	}

	ix.mu.Lock()
	ix.byLRN = built
	ix.mu.Unlock()

	ix.logger.Info("roster index built",
		zap.Int("students", len(built)),
		zap.Int("partitions", len(keys)-skipped),
		zap.Int("skipped", skipped))
	return nil
}

// FindByLRN resolves an identifier to its roster record and classroom
// key. A miss is a normal outcome, not an error.
func (ix *Index) FindByLRN(lrn string) (attendance.Student, string, bool) {
	if lrn == "" {
		return attendance.Student{}, "", false
	}
	ix.mu.RLock()
	hit, ok := ix.byLRN[lrn]
	ix.mu.RUnlock()
	if !ok {
		return attendance.Student{}, "", false
	}
	return hit.student.Clone(), hit.classroom, true
}

// Size reports how many students the index currently resolves.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byLRN)
}
