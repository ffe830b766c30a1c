package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwin/plantwin/internal/domain"
)

var histNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func done(id, bucket, title string, plannedDays, actualDays float64) domain.Task {
	start := histNow
	due := start.Add(time.Duration(plannedDays * 24 * float64(time.Hour)))
	completed := start.Add(time.Duration(actualDays * 24 * float64(time.Hour)))
	return domain.Task{
		ID: id, Title: title, BucketName: bucket, PercentComplete: 100,
		StartDate: &start, DueDate: &due, CompletedDate: &completed,
	}
}

func TestDurationBiasEmptyHistory(t *testing.T) {
	res := DurationBias(nil)
	assert.Empty(t, res.BucketStats)
	assert.Empty(t, res.TaskTypeStats)
	assert.Empty(t, res.BiasFactors())
}

func TestDurationBiasPerBucket(t *testing.T) {
	historical := []domain.Task{
		done("h1", "Venue", "Book hall", 10, 15),   // ratio 1.5
		done("h2", "Venue", "Book rooms", 10, 5),   // ratio 0.5
		done("h3", "Travel", "Book flights", 4, 8), // ratio 2.0
	}
	res := DurationBias(historical)

	venue, ok := res.BucketStats["Venue"]
	require.True(t, ok)
	assert.Equal(t, 2, venue.Samples)
	assert.InDelta(t, 1.0, venue.BiasFactor, 1e-9)
	assert.InDelta(t, 0.5, venue.Optimistic, 1e-9)
	assert.InDelta(t, 1.5, venue.Pessimistic, 1e-9)

	travel := res.BucketStats["Travel"]
	assert.InDelta(t, 2.0, travel.BiasFactor, 1e-9)

	// Task type keyed by the title's first word.
	book, ok := res.TaskTypeStats["Book"]
	require.True(t, ok)
	assert.Equal(t, 3, book.Samples)

	factors := res.BiasFactors()
	assert.InDelta(t, 2.0, factors["Travel"], 1e-9)
}

func TestDurationBiasSkipsIncompleteTasks(t *testing.T) {
	start := histNow
	due := histNow.Add(5 * 24 * time.Hour)
	historical := []domain.Task{
		{ID: "open", Title: "Open task", BucketName: "Venue", StartDate: &start, DueDate: &due},
		{ID: "undated", Title: "Undated", BucketName: "Venue"},
	}
	res := DurationBias(historical)
	assert.Empty(t, res.BucketStats)
}

func TestDurationBiasZeroPlannedIsNeutral(t *testing.T) {
	res := DurationBias([]domain.Task{done("h1", "Venue", "Same day", 0, 3)})
	assert.InDelta(t, 1.0, res.BucketStats["Venue"].BiasFactor, 1e-9)
}

func TestBottlenecksRankedByReach(t *testing.T) {
	tasks := []domain.Task{
		{ID: "a", Title: "Root", BucketName: "Venue"},
		{ID: "b", Title: "Mid"},
		{ID: "c", Title: "Leaf"},
		{ID: "lone", Title: "Standalone"},
	}
	edges := []domain.DependencyEdge{
		{TaskID: "b", DependsOnID: "a", Type: domain.DependencyTypeFS},
		{TaskID: "c", DependsOnID: "b", Type: domain.DependencyTypeFS},
	}
	out := Bottlenecks(tasks, edges)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].TaskID)
	assert.Equal(t, 2, out[0].DownstreamCount)
	assert.Equal(t, "b", out[1].TaskID)
	assert.Equal(t, 1, out[1].DownstreamCount)
}

func TestResourceThroughput(t *testing.T) {
	created := histNow
	completed := histNow.Add(3.5 * 24 * time.Hour)
	historical := []domain.Task{
		{ID: "h1", AssigneeIDs: []string{"u1"}, CreatedDate: &created, CompletedDate: &completed},
		{ID: "h2", AssigneeIDs: []string{"u1"}, CreatedDate: &created, CompletedDate: &completed},
		{ID: "h3", AssigneeIDs: []string{"u2"}},
	}
	out := ResourceThroughput(historical)
	require.Contains(t, out, "u1")
	assert.Equal(t, 2, out["u1"].TasksCompleted)
	assert.InDelta(t, 3.5, out["u1"].AvgDurationDays, 1e-9)
	assert.InDelta(t, 2.0, out["u1"].TasksPerWeek, 1e-9)
	assert.NotContains(t, out, "u2")
}

func TestBlockFrequency(t *testing.T) {
	due := histNow.Add(5 * 24 * time.Hour)
	lateCompletion := due.Add(10 * 24 * time.Hour)
	historical := []domain.Task{
		{ID: "stuck", Title: "Stuck", BucketName: "Venue", PercentComplete: 50, DueDate: &due},
		{ID: "late", Title: "Late finish", BucketName: "Venue", PercentComplete: 50, DueDate: &due, CompletedDate: &lateCompletion},
		{ID: "fine", Title: "Fine", BucketName: "Venue", PercentComplete: 100},
		{ID: "other", Title: "Other", BucketName: "Travel", PercentComplete: 20},
	}
	res := BlockFrequency(historical)
	assert.Equal(t, 2, res.TotalBlocked)
	assert.InDelta(t, 2.0/3.0, res.BlockRateByBucket["Venue"], 1e-9)
	assert.Zero(t, res.BlockRateByBucket["Travel"])
	require.Len(t, res.BlockedTasks, 2)
}
