package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusDone(t *testing.T) {
	assert.True(t, StatusCompleted.Done())
	assert.True(t, StatusCancelled.Done())
	assert.False(t, StatusNotStarted.Done())
	assert.False(t, StatusInProgress.Done())
}

func TestParseTimeLayouts(t *testing.T) {
	cases := map[string]string{
		"rfc3339":      "2026-03-15T10:30:00Z",
		"rfc3339 nano": "2026-03-15T10:30:00.123456Z",
		"no zone":      "2026-03-15T10:30:00",
		"bare date":    "2026-03-15",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			got := ParseTime(input)
			require.NotNil(t, got)
			assert.Equal(t, 2026, got.Year())
			assert.Equal(t, time.March, got.Month())
			assert.Equal(t, 15, got.Day())
		})
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	assert.Nil(t, ParseTime(""))
	assert.Nil(t, ParseTime("next tuesday"))
	assert.Nil(t, ParseTime("2026-13-40"))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	assert.InDelta(t, 7.5, DaysBetween(a, b), 1e-9)
	assert.InDelta(t, -7.5, DaysBetween(b, a), 1e-9)
}

func TestSummarizeAllPreservesOrder(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	tasks := []Task{
		{ID: "t1", Title: "Book venue", Status: StatusInProgress, DueDate: &due},
		{ID: "t2", Title: "Send invites", Status: StatusNotStarted},
	}
	got := SummarizeAll(tasks)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, &due, got[0].DueDate)
	assert.Equal(t, "t2", got[1].ID)
	assert.Nil(t, got[1].DueDate)
}
