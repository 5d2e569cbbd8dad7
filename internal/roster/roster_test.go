package roster

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/internal/attendance"
)

type fakeSource struct {
	partitions map[string][]attendance.Student
	broken     map[string]bool
}

func (f *fakeSource) Keys() []string {
	keys := make([]string, 0, len(f.partitions))
	for k := range f.partitions {
		keys = append(keys, k)
	}
	for k := range f.broken {
		keys = append(keys, k)
	}
	return keys
}

func (f *fakeSource) Partition(_ context.Context, key string) ([]attendance.Student, error) {
	if f.broken[key] {
		return nil, errors.New("partition unavailable")
	}
	return f.partitions[key], nil
}

func TestIndexFindByLRN(t *testing.T) {
	src := &fakeSource{partitions: map[string][]attendance.Student{
		"grade7-tesla":   {{LRN: "123", FullName: "Ana Reyes", Grade: 7, Section: "Tesla"}},
		"grade8-charles": {{LRN: "456", FullName: "Ben Cruz", Grade: 8, Section: "Charles"}},
	}}
	ix := NewIndex(src, nil)
	require.NoError(t, ix.Refresh(context.Background()))

	student, classroom, ok := ix.FindByLRN("456")
	require.True(t, ok)
	assert.Equal(t, "Ben Cruz", student.FullName)
	assert.Equal(t, "grade8-charles", classroom)
	assert.Equal(t, 2, ix.Size())

	_, _, ok = ix.FindByLRN("999")
	assert.False(t, ok, "unknown LRN is a miss, not an error")

	_, _, ok = ix.FindByLRN("")
	assert.False(t, ok)
}

func TestIndexSkipsBrokenPartitions(t *testing.T) {
	src := &fakeSource{
		partitions: map[string][]attendance.Student{
			"grade7-tesla": {{LRN: "123", FullName: "Ana Reyes"}},
		},
		broken: map[string]bool{"grade7-darwin": true},
	}
	ix := NewIndex(src, nil)
	require.NoError(t, ix.Refresh(context.Background()))

	_, _, ok := ix.FindByLRN("123")
	assert.True(t, ok, "healthy partitions still load when one fails")
}

func TestIndexFailsWhenAllPartitionsFail(t *testing.T) {
	src := &fakeSource{broken: map[string]bool{"grade7-tesla": true, "grade7-darwin": true}}
	ix := NewIndex(src, nil)
	assert.Error(t, ix.Refresh(context.Background()))
}

func TestIndexLookupIsReadOnly(t *testing.T) {
	src := &fakeSource{partitions: map[string][]attendance.Student{
		"grade7-tesla": {{LRN: "123", FullName: "Ana Reyes", Grade: 7, Section: "Tesla"}},
	}}
	ix := NewIndex(src, nil)
	require.NoError(t, ix.Refresh(context.Background()))

	student, _, ok := ix.FindByLRN("123")
	require.True(t, ok)
	attendance.ApplyScan(&student, time.Now())

	again, _, _ := ix.FindByLRN("123")
	assert.Empty(t, again.Attendance, "mutating a lookup result must not leak into the index")
}

func TestHTTPSourcePartition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/grade7-tesla.json":
			w.Write([]byte(`{"students":[{"lrn":"123","fullName":"Ana Reyes","grade":7,"section":"Tesla","phone":"0917"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, []string{"grade7-tesla", "grade7-darwin"})

	students, err := src.Partition(context.Background(), "grade7-tesla")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "Ana Reyes", students[0].FullName)

	_, err = src.Partition(context.Background(), "grade7-darwin")
	assert.Error(t, err, "missing partition file surfaces as a skippable error")
}

func TestHTTPSourceFeedsIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/grade7-tesla.json" {
			w.Write([]byte(`{"students":[{"lrn":"123","fullName":"Ana Reyes","grade":7,"section":"Tesla"}]}`))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ix := NewIndex(NewHTTPSource(srv.URL, []string{"grade7-tesla", "grade8-charles"}), nil)
	require.NoError(t, ix.Refresh(context.Background()))

	_, classroom, ok := ix.FindByLRN("123")
	require.True(t, ok)
	assert.Equal(t, "grade7-tesla", classroom)
}
