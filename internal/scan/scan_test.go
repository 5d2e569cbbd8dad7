package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/internal/attendance"
	"kiosk/internal/ledger"
	"kiosk/internal/roster"
	"kiosk/internal/scanlog"
)

type staticSource struct {
	partitions map[string][]attendance.Student
}

func (s staticSource) Keys() []string {
	keys := make([]string, 0, len(s.partitions))
	for k := range s.partitions {
		keys = append(keys, k)
	}
	return keys
}

func (s staticSource) Partition(_ context.Context, key string) ([]attendance.Student, error) {
	return s.partitions[key], nil
}

func newTestPipeline(t *testing.T, now time.Time) (*Pipeline, *ledger.MemoryStore, *scanlog.MemoryLog) {
	t.Helper()
	ix := roster.NewIndex(staticSource{partitions: map[string][]attendance.Student{
		"grade7-tesla": {{LRN: "123", FullName: "Ana Reyes", Grade: 7, Section: "Tesla", Phone: "0917"}},
	}}, nil)
	require.NoError(t, ix.Refresh(context.Background()))

	store := ledger.NewMemoryStore()
	feed := scanlog.NewMemoryLog(50)
	p := NewPipeline(ix, store, feed, nil, WithClock(func() time.Time { return now }))
	return p, store, feed
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		lrn     string
		wantErr error
	}{
		{"valid", "LRN:123456789012", "123456789012", nil},
		{"wrong tag", "ABC:123", "", ErrInvalidPayload},
		{"no tag", "123456789012", "", ErrInvalidPayload},
		{"empty identifier", "LRN:", "", ErrInvalidPayload},
		{"extra delimiter", "LRN:123:456", "", ErrInvalidPayload},
		{"empty payload", "", "", ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lrn, err := ParsePayload(tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lrn, lrn)
		})
	}
}

func TestProcessFirstScanMarksIn(t *testing.T) {
	morning := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	p, store, feed := newTestPipeline(t, morning)
	ctx := context.Background()

	res, err := p.Process(ctx, "LRN:123")
	require.NoError(t, err)

	assert.Equal(t, "grade7-tesla", res.Classroom)
	assert.Equal(t, attendance.StatusIn, res.Entry.Status)
	assert.Equal(t, "2024-01-10", res.Entry.Date)
	require.NotNil(t, res.Entry.TimeIn)
	assert.Equal(t, morning, *res.Entry.TimeIn)
	assert.Nil(t, res.Entry.TimeOut)

	persisted, err := store.Get(ctx, "grade7-tesla")
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Len(t, persisted[0].Attendance, 1)

	lines, err := feed.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, attendance.StatusIn, lines[0].Status)
	assert.Equal(t, "Ana Reyes", lines[0].FullName)
}

func TestProcessSecondScanMarksOut(t *testing.T) {
	morning := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	p, store, _ := newTestPipeline(t, morning)
	ctx := context.Background()

	_, err := p.Process(ctx, "LRN:123")
	require.NoError(t, err)

	evening := time.Date(2024, 1, 10, 17, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return evening }

	res, err := p.Process(ctx, "LRN:123")
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusOut, res.Entry.Status)
	require.NotNil(t, res.Entry.TimeIn)
	assert.Equal(t, morning, *res.Entry.TimeIn, "TimeIn from the morning scan survives")
	require.NotNil(t, res.Entry.TimeOut)
	assert.Equal(t, evening, *res.Entry.TimeOut)

	persisted, _ := store.Get(ctx, "grade7-tesla")
	require.Len(t, persisted, 1, "re-scan must not duplicate the ledger record")
	assert.Len(t, persisted[0].Attendance, 1, "same-day scans share one entry")
}

func TestProcessInvalidPayloadNoMutation(t *testing.T) {
	p, store, feed := newTestPipeline(t, time.Now())
	ctx := context.Background()

	_, err := p.Process(ctx, "ABC:123")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	persisted, _ := store.Get(ctx, "grade7-tesla")
	assert.Empty(t, persisted)
	lines, _ := feed.Recent(ctx, 10)
	assert.Empty(t, lines)
}

func TestProcessUnknownStudentNoMutation(t *testing.T) {
	p, store, _ := newTestPipeline(t, time.Now())
	ctx := context.Background()

	_, err := p.Process(ctx, "LRN:999")
	assert.ErrorIs(t, err, ErrStudentNotFound)

	persisted, _ := store.Get(ctx, "grade7-tesla")
	assert.Empty(t, persisted)
}

type blockingStore struct {
	*ledger.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) Get(ctx context.Context, key string) ([]attendance.Student, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.MemoryStore.Get(ctx, key)
}

func TestProcessSingleFlight(t *testing.T) {
	ix := roster.NewIndex(staticSource{partitions: map[string][]attendance.Student{
		"grade7-tesla": {{LRN: "123", Grade: 7, Section: "Tesla"}},
	}}, nil)
	require.NoError(t, ix.Refresh(context.Background()))

	store := &blockingStore{
		MemoryStore: ledger.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	p := NewPipeline(ix, store, scanlog.NewMemoryLog(10), nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), "LRN:123")
		done <- err
	}()

	<-store.entered
	_, err := p.Process(context.Background(), "LRN:123")
	assert.ErrorIs(t, err, ErrScanInFlight, "a second payload mid-flight is dropped")

	close(store.release)
	require.NoError(t, <-done)
}

type failingStore struct{ ledger.Store }

func (f failingStore) Upsert(context.Context, string, attendance.Student) error {
	return errors.New("redis down")
}

func TestProcessStorageFailureWrapped(t *testing.T) {
	ix := roster.NewIndex(staticSource{partitions: map[string][]attendance.Student{
		"grade7-tesla": {{LRN: "123", Grade: 7, Section: "Tesla"}},
	}}, nil)
	require.NoError(t, ix.Refresh(context.Background()))

	p := NewPipeline(ix, failingStore{ledger.NewMemoryStore()}, scanlog.NewMemoryLog(10), nil)

	_, err := p.Process(context.Background(), "LRN:123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPayload)
	assert.NotErrorIs(t, err, ErrStudentNotFound)
}

func TestResetClearsClassroomLedger(t *testing.T) {
	p, store, _ := newTestPipeline(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := p.Process(ctx, "LRN:123")
	require.NoError(t, err)

	require.NoError(t, p.Reset(ctx, "grade7-tesla"))

	persisted, err := store.Get(ctx, "grade7-tesla")
	require.NoError(t, err)
	assert.Empty(t, persisted, "reset wipes previously scanned students")

	// The student scans fresh after the reset.
	res, err := p.Process(ctx, "LRN:123")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusIn, res.Entry.Status)
}
