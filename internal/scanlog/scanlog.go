// Package scanlog keeps the running feed of processed scans, newest
// first, the way the kiosk display shows it.
package scanlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"kiosk/internal/attendance"
)

// Line is one rendered log entry.
type Line struct {
	ID        string            `json:"id"`
	At        time.Time         `json:"at"`
	LRN       string            `json:"lrn"`
	FullName  string            `json:"fullName"`
	Classroom string            `json:"classroom"`
	Status    attendance.Status `json:"status"`
}

// NewLine stamps a line with an id and timestamp.
func NewLine(at time.Time, s attendance.Student, classroom string, status attendance.Status) Line {
	return Line{
		ID:        uuid.NewString(),
		At:        at.UTC(),
		LRN:       s.LRN,
		FullName:  s.FullName,
		Classroom: classroom,
		Status:    status,
	}
}

// Log is a bounded prepend-only feed.
type Log interface {
	Append(ctx context.Context, line Line) error
	// Recent returns up to n lines, newest first.
	Recent(ctx context.Context, n int) ([]Line, error)
}

// MemoryLog is an in-process feed for dev mode and tests.
type MemoryLog struct {
	max   int
	mu    sync.RWMutex
	lines []Line
}

// NewMemoryLog creates a feed bounded to max lines.
func NewMemoryLog(max int) *MemoryLog {
	if max <= 0 {
		max = 200
	}
	return &MemoryLog{max: max}
}

// Append prepends a line, dropping the oldest past the bound.
func (m *MemoryLog) Append(_ context.Context, line Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append([]Line{line}, m.lines...)
	if len(m.lines) > m.max {
		m.lines = m.lines[:m.max]
	}
	return nil
}

// Recent returns up to n lines, newest first.
func (m *MemoryLog) Recent(_ context.Context, n int) ([]Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.lines) {
		n = len(m.lines)
	}
	out := make([]Line, n)
	copy(out, m.lines[:n])
	return out, nil
}

// RedisLog keeps the feed in a redis list using LPUSH/LRANGE, trimmed
// to a bound so an always-on kiosk cannot grow it without limit.
type RedisLog struct {
	client *redis.Client
	key    string
	max    int64
}

// NewRedisLog builds a feed under the given list key.
func NewRedisLog(client *redis.Client, key string, max int64) *RedisLog {
	if key == "" {
		key = "kiosk:scanlog"
	}
	if max <= 0 {
		max = 500
	}
	return &RedisLog{client: client, key: key, max: max}
}

// Append prepends a line and trims the list to the bound.
func (r *RedisLog) Append(ctx context.Context, line Line) error {
	raw, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("scanlog: encode failed: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, raw)
	pipe.LTrim(ctx, r.key, 0, r.max-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("scanlog: append failed: %w", err)
	}
	return nil
}

// Recent returns up to n lines, newest first.
func (r *RedisLog) Recent(ctx context.Context, n int) ([]Line, error) {
	if n <= 0 || int64(n) > r.max {
		n = int(r.max)
	}
	raws, err := r.client.LRange(ctx, r.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("scanlog: range failed: %w", err)
	}
	lines := make([]Line, 0, len(raws))
	for _, raw := range raws {
		var line Line
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
