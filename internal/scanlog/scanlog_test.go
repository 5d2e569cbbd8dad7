package scanlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/internal/attendance"
)

func TestMemoryLogNewestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog(10)

	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"Ana", "Ben", "Cara"} {
		line := NewLine(base.Add(time.Duration(i)*time.Minute),
			attendance.Student{LRN: "1", FullName: name}, "grade7-tesla", attendance.StatusIn)
		require.NoError(t, log.Append(ctx, line))
	}

	lines, err := log.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Cara", lines[0].FullName)
	assert.Equal(t, "Ben", lines[1].FullName)
}

func TestMemoryLogBounded(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog(3)

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, Line{FullName: string(rune('a' + i))}))
	}

	lines, err := log.Recent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "e", lines[0].FullName, "oldest lines fall off the end")
}

func TestNewLineStampsIDAndUTC(t *testing.T) {
	manila := time.FixedZone("PST", 8*3600)
	at := time.Date(2024, 1, 10, 17, 0, 0, 0, manila)

	line := NewLine(at, attendance.Student{LRN: "123", FullName: "Ana"}, "grade7-tesla", attendance.StatusOut)

	assert.NotEmpty(t, line.ID)
	assert.Equal(t, time.UTC, line.At.Location())
	assert.Equal(t, attendance.StatusOut, line.Status)
	assert.Equal(t, "grade7-tesla", line.Classroom)
}
