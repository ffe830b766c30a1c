package simulate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwin/plantwin/internal/domain"
)

var simNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func chainPlan(n int, spanDays int, variance *float64) ([]domain.Task, []domain.DependencyEdge) {
	tasks := make([]domain.Task, n)
	var edges []domain.DependencyEdge
	for i := 0; i < n; i++ {
		start := simNow.Add(time.Duration(i*spanDays) * 24 * time.Hour)
		due := start.Add(time.Duration(spanDays) * 24 * time.Hour)
		tasks[i] = domain.Task{
			ID:           fmt.Sprintf("t%d", i),
			Title:        fmt.Sprintf("Step %d", i),
			Status:       domain.StatusNotStarted,
			StartDate:    ptr(start),
			DueDate:      ptr(due),
			VarianceDays: variance,
		}
		if i > 0 {
			edges = append(edges, domain.DependencyEdge{
				TaskID: tasks[i].ID, DependsOnID: tasks[i-1].ID, Type: domain.DependencyTypeFS,
			})
		}
	}
	return tasks, edges
}

func TestRunValidatesTrialCount(t *testing.T) {
	tasks, edges := chainPlan(3, 2, nil)
	for _, trials := range []int{0, 99, 2001} {
		_, err := Run("p1", tasks, edges, Options{Trials: trials, Now: simNow})
		var bad *domain.InvalidTrialCountError
		require.ErrorAs(t, err, &bad, "trials=%d", trials)
		assert.Equal(t, trials, bad.Trials)
	}
}

func TestRunEmptyPlan(t *testing.T) {
	_, err := Run("p1", nil, nil, Options{Trials: 100, Now: simNow})
	var empty *domain.NoTasksError
	require.ErrorAs(t, err, &empty)
}

func TestRunDeterministicWithSeed(t *testing.T) {
	tasks, edges := chainPlan(6, 3, nil)
	opts := Options{Trials: 500, Seed: ptr(int64(42)), Now: simNow}

	first, err := Run("p1", tasks, edges, opts)
	require.NoError(t, err)
	second, err := Run("p1", tasks, edges, opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRunZeroVarianceLinearChain(t *testing.T) {
	// A -> B -> C -> D, 2 days each, no noise: the plan always finishes in
	// exactly 8 days, so any event date 8+ days out is 100% on time.
	tasks, edges := chainPlan(4, 2, ptr(0.0))
	event := simNow.Add(9 * 24 * time.Hour)

	res, err := Run("p1", tasks, edges, Options{Trials: 200, Seed: ptr(int64(1)), EventDate: &event, Now: simNow})
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.ProbabilityOnTimePercent)
	assert.Equal(t, simNow.Add(8*24*time.Hour), res.PercentileEndDates.P50)
	assert.Equal(t, res.PercentileEndDates.P10, res.PercentileEndDates.P90)
}

func TestRunZeroVarianceMissedEventDate(t *testing.T) {
	tasks, edges := chainPlan(4, 2, ptr(0.0))
	event := simNow.Add(7 * 24 * time.Hour)

	res, err := Run("p1", tasks, edges, Options{Trials: 200, Seed: ptr(int64(1)), EventDate: &event, Now: simNow})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.ProbabilityOnTimePercent)
}

func TestRunLongerDurationNeverImprovesOnTime(t *testing.T) {
	event := simNow.Add(12 * 24 * time.Hour)
	seed := ptr(int64(42))

	tasks, edges := chainPlan(4, 2, nil)
	base, err := Run("p1", tasks, edges, Options{Trials: 500, Seed: seed, EventDate: &event, Now: simNow})
	require.NoError(t, err)

	// Push the last task's due date out, lengthening its base duration.
	stretched, stretchedEdges := chainPlan(4, 2, nil)
	stretched[3].DueDate = ptr(stretched[3].DueDate.Add(4 * 24 * time.Hour))
	worse, err := Run("p1", stretched, stretchedEdges, Options{Trials: 500, Seed: seed, EventDate: &event, Now: simNow})
	require.NoError(t, err)

	assert.LessOrEqual(t, worse.ProbabilityOnTimePercent, base.ProbabilityOnTimePercent)
}

func TestRunRiskTasksRestrictedToCriticalPath(t *testing.T) {
	tasks, edges := chainPlan(5, 2, nil)
	// Off-path task with huge variance must not appear.
	tasks = append(tasks, domain.Task{
		ID: "stray", Title: "Stray", Status: domain.StatusNotStarted,
		VarianceDays: ptr(50.0),
	})

	res, err := Run("p1", tasks, edges, Options{Trials: 100, Seed: ptr(int64(7)), Now: simNow})
	require.NoError(t, err)
	require.NotEmpty(t, res.RiskTasks)
	for _, rt := range res.RiskTasks {
		assert.NotEqual(t, "stray", rt.TaskID)
		assert.True(t, rt.OnCriticalPath)
	}
	// Sorted by variance descending.
	for i := 1; i < len(res.RiskTasks); i++ {
		assert.GreaterOrEqual(t, res.RiskTasks[i-1].VarianceDays, res.RiskTasks[i].VarianceDays)
	}
}

func TestRunSuggestionThresholds(t *testing.T) {
	// Impossible event date forces on-time probability to zero.
	tasks, edges := chainPlan(5, 2, nil)
	event := simNow.Add(-24 * time.Hour)

	res, err := Run("p1", tasks, edges, Options{Trials: 100, Seed: ptr(int64(3)), EventDate: &event, Now: simNow})
	require.NoError(t, err)

	ids := make([]string, 0, len(res.AgentSuggestions))
	for _, s := range res.AgentSuggestions {
		ids = append(ids, s.ID)
	}
	// <70% with a risk task, <85%, critical path >= 4, plus the re-sync hint.
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, ids)
	assert.Equal(t, res.RiskTasks[0].TaskID, res.AgentSuggestions[0].TaskID)
	assert.Equal(t, "high", res.AgentSuggestions[0].Priority)
}

func TestRunComfortablePlanOnlySyncSuggestion(t *testing.T) {
	// Two independent short tasks and a very late event date.
	tasks := []domain.Task{
		{ID: "a", Title: "A", StartDate: ptr(simNow), DueDate: ptr(simNow.Add(24 * time.Hour)), VarianceDays: ptr(0.1)},
		{ID: "b", Title: "B", StartDate: ptr(simNow), DueDate: ptr(simNow.Add(24 * time.Hour)), VarianceDays: ptr(0.1)},
	}
	event := simNow.Add(60 * 24 * time.Hour)

	res, err := Run("p1", tasks, nil, Options{Trials: 100, Seed: ptr(int64(5)), EventDate: &event, Now: simNow})
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.ProbabilityOnTimePercent)
	require.Len(t, res.AgentSuggestions, 1)
	assert.Equal(t, "s4", res.AgentSuggestions[0].ID)
}

func TestRunDefaultEventDateFromCriticalPath(t *testing.T) {
	tasks, edges := chainPlan(3, 2, ptr(0.0))
	res, err := Run("p1", tasks, edges, Options{Trials: 100, Seed: ptr(int64(9)), Now: simNow})
	require.NoError(t, err)
	// Last critical task's due date plus three days.
	assert.Equal(t, tasks[2].DueDate.Add(3*24*time.Hour), res.EventDate)
}

func TestRunIgnoresDanglingEdges(t *testing.T) {
	tasks, edges := chainPlan(3, 2, nil)
	edges = append(edges, domain.DependencyEdge{TaskID: "t1", DependsOnID: "ghost", Type: domain.DependencyTypeFS})

	res, err := Run("p1", tasks, edges, Options{Trials: 100, Seed: ptr(int64(11)), Now: simNow})
	require.NoError(t, err)
	assert.NotZero(t, res.PercentileEndDates.P50)
}

func BenchmarkRun(b *testing.B) {
	tasks, edges := chainPlan(20, 2, nil)
	opts := Options{Trials: 500, Seed: ptr(int64(42)), Now: simNow}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Run("p1", tasks, edges, opts); err != nil {
			b.Fatal(err)
		}
	}
}
