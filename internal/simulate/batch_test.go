package simulate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwin/plantwin/internal/domain"
)

func TestRunFullEmptyPlan(t *testing.T) {
	_, err := RunFull("p1", nil, nil, BatchOptions{Iterations: 100, Now: simNow})
	var empty *domain.NoTasksError
	require.ErrorAs(t, err, &empty)
}

func TestRunFullClampsIterations(t *testing.T) {
	tasks, edges := chainPlan(3, 2, nil)
	res, err := RunFull("p1", tasks, edges, BatchOptions{Iterations: 50000, Seed: 1, Now: simNow})
	require.NoError(t, err)
	assert.Equal(t, MaxIterations, res.Iterations)
}

func TestRunFullDeterministicAcrossWorkerCounts(t *testing.T) {
	tasks, edges := chainPlan(8, 3, nil)
	tasks[2].AssigneeIDs = []string{"u1"}
	tasks[3].AssigneeIDs = []string{"u1"}
	tasks[4].BucketName = "Travel & Accommodation"

	serial, err := RunFull("p1", tasks, edges, BatchOptions{Iterations: 300, Seed: 42, Now: simNow, Workers: 1})
	require.NoError(t, err)
	parallel, err := RunFull("p1", tasks, edges, BatchOptions{Iterations: 300, Seed: 42, Now: simNow, Workers: 8})
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

func TestRunFullPercentilesOrdered(t *testing.T) {
	tasks, edges := chainPlan(6, 2, nil)
	res, err := RunFull("p1", tasks, edges, BatchOptions{Iterations: 500, Seed: 7, Now: simNow})
	require.NoError(t, err)

	assert.False(t, res.Percentiles.P50.After(res.Percentiles.P75))
	assert.False(t, res.Percentiles.P75.After(res.Percentiles.P95))
}

func TestRunFullChainEndDominatesCriticalPath(t *testing.T) {
	tasks, edges := chainPlan(4, 2, nil)
	res, err := RunFull("p1", tasks, edges, BatchOptions{Iterations: 200, Seed: 13, Now: simNow})
	require.NoError(t, err)

	require.NotEmpty(t, res.CriticalPathProbability)
	byID := map[string]float64{}
	for _, p := range res.CriticalPathProbability {
		byID[p.TaskID] = p.Percent
	}
	// The chain's last task ends the plan in every trial; its direct
	// predecessor is counted as causally delaying it.
	assert.Equal(t, 100.0, byID["t3"])
	assert.Equal(t, 100.0, byID["t2"])
	assert.NotContains(t, byID, "t0")
}

func TestRunFullBottlenecksSortedBySpread(t *testing.T) {
	tasks, edges := chainPlan(5, 3, nil)
	res, err := RunFull("p1", tasks, edges, BatchOptions{Iterations: 200, Seed: 21, Now: simNow})
	require.NoError(t, err)

	require.NotEmpty(t, res.Bottlenecks)
	for i := 1; i < len(res.Bottlenecks); i++ {
		assert.GreaterOrEqual(t, res.Bottlenecks[i-1].SpreadDays, res.Bottlenecks[i].SpreadDays)
	}
}

func TestRunFullRiskHeatmapByBucket(t *testing.T) {
	tasks, edges := chainPlan(4, 2, nil)
	tasks[0].BucketName = "Venue & Logistics"
	tasks[1].BucketName = "Venue & Logistics"
	tasks[2].BucketName = "Speaker Management"

	res, err := RunFull("p1", tasks, edges, BatchOptions{Iterations: 200, Seed: 5, Now: simNow})
	require.NoError(t, err)

	assert.Contains(t, res.RiskHeatmap, "Venue & Logistics")
	assert.Contains(t, res.RiskHeatmap, "Speaker Management")
	assert.Contains(t, res.RiskHeatmap, "Unknown")
	for bucket, spread := range res.RiskHeatmap {
		assert.GreaterOrEqual(t, spread, 0.0, bucket)
	}
}

func TestRunFullBiasLengthensForecast(t *testing.T) {
	tasks, edges := chainPlan(5, 2, nil)

	neutral, err := RunFull("p1", tasks, edges, BatchOptions{Iterations: 300, Seed: 42, Now: simNow})
	require.NoError(t, err)
	biased, err := RunFull("p1", tasks, edges, BatchOptions{
		Iterations: 300, Seed: 42, Now: simNow,
		Bias: map[string]float64{"": 2.0},
	})
	require.NoError(t, err)

	assert.True(t, neutral.Percentiles.P50.Before(biased.Percentiles.P50))
}

func BenchmarkRunFull(b *testing.B) {
	tasks, edges := chainPlan(30, 2, nil)
	opts := BatchOptions{Iterations: 1000, Seed: 42, Now: simNow}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := RunFull("p1", tasks, edges, opts); err != nil {
			b.Fatal(err)
		}
	}
}
