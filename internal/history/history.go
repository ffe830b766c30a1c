// Package history fits estimation patterns from completed historical plans:
// duration bias (PERT multipliers), structural bottlenecks, per-assignee
// throughput, and blocked-task rates.
package history

import (
	"sort"
	"strings"
	"time"

	"github.com/plantwin/plantwin/internal/domain"
	"github.com/plantwin/plantwin/internal/graph"
)

// PERTParams are duration-ratio multipliers fitted from historical samples.
// An empty sample set reports zeros with a neutral bias factor.
type PERTParams struct {
	Optimistic  float64 `json:"optimistic"`
	MostLikely  float64 `json:"most_likely"`
	Pessimistic float64 `json:"pessimistic"`
	Mean        float64 `json:"mean"`
	BiasFactor  float64 `json:"bias_factor"`
	Samples     int     `json:"samples"`
}

// DurationBiasResult groups fitted multipliers per bucket and per coarse
// task type (first word of the title).
type DurationBiasResult struct {
	BucketStats   map[string]PERTParams `json:"bucket_stats"`
	TaskTypeStats map[string]PERTParams `json:"task_type_stats"`
}

// BiasFactors flattens the bucket stats into the multiplier map the
// simulators consume.
func (r DurationBiasResult) BiasFactors() map[string]float64 {
	out := make(map[string]float64, len(r.BucketStats))
	for bucket, p := range r.BucketStats {
		out[bucket] = p.BiasFactor
	}
	return out
}

// DurationBias computes the actual-to-planned duration ratio for every
// completed historical task and fits P10/P50/P90 multipliers per bucket and
// per task type. Tasks missing planned dates are skipped; a zero-length plan
// contributes a neutral ratio.
func DurationBias(historical []domain.Task) DurationBiasResult {
	bucketRatios := make(map[string][]float64)
	typeRatios := make(map[string][]float64)

	for _, t := range historical {
		if t.StartDate == nil || t.DueDate == nil || t.CompletedDate == nil {
			continue
		}
		planned := domain.DaysBetween(*t.StartDate, *t.DueDate)
		actual := domain.DaysBetween(*t.StartDate, *t.CompletedDate)
		ratio := 1.0
		if planned > 0 {
			ratio = actual / planned
		}

		bucket := t.BucketName
		if bucket == "" {
			bucket = "Unknown"
		}
		bucketRatios[bucket] = append(bucketRatios[bucket], ratio)

		taskType := "Unknown"
		if fields := strings.Fields(t.Title); len(fields) > 0 {
			taskType = fields[0]
		}
		typeRatios[taskType] = append(typeRatios[taskType], ratio)
	}

	res := DurationBiasResult{
		BucketStats:   make(map[string]PERTParams, len(bucketRatios)),
		TaskTypeStats: make(map[string]PERTParams, len(typeRatios)),
	}
	for bucket, ratios := range bucketRatios {
		res.BucketStats[bucket] = fitPERT(ratios)
	}
	for taskType, ratios := range typeRatios {
		res.TaskTypeStats[taskType] = fitPERT(ratios)
	}
	return res
}

func fitPERT(values []float64) PERTParams {
	if len(values) == 0 {
		return PERTParams{BiasFactor: 1.0}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	return PERTParams{
		Optimistic:  sorted[int(float64(n)*0.1)],
		MostLikely:  sorted[n/2],
		Pessimistic: sorted[int(float64(n)*0.9)],
		Mean:        mean,
		BiasFactor:  mean,
		Samples:     n,
	}
}

// BottleneckTask ranks a task by its transitive downstream reach.
type BottleneckTask struct {
	TaskID          string `json:"task_id"`
	Title           string `json:"title"`
	Bucket          string `json:"bucket"`
	DownstreamCount int    `json:"downstream_count"`
}

// Bottlenecks ranks tasks by how many tasks transitively depend on them,
// most first. Tasks with no downstream reach are omitted.
func Bottlenecks(tasks []domain.Task, edges []domain.DependencyEdge) []BottleneckTask {
	adj := graph.BuildAdjacency(tasks, edges)
	var out []BottleneckTask
	for _, t := range tasks {
		count := len(graph.Downstream(t.ID, adj))
		if count == 0 {
			continue
		}
		out = append(out, BottleneckTask{
			TaskID:          t.ID,
			Title:           t.Title,
			Bucket:          t.BucketName,
			DownstreamCount: count,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DownstreamCount > out[j].DownstreamCount })
	return out
}

// Throughput summarizes one assignee's historical completion rate.
type Throughput struct {
	TasksCompleted  int     `json:"tasks_completed"`
	AvgDurationDays float64 `json:"avg_duration_days"`
	TasksPerWeek    float64 `json:"tasks_per_week"`
}

// ResourceThroughput computes per-assignee completion rates from creation-
// to-completion spans of historical tasks.
func ResourceThroughput(historical []domain.Task) map[string]Throughput {
	durations := make(map[string][]float64)
	for _, t := range historical {
		if t.CreatedDate == nil || t.CompletedDate == nil || len(t.AssigneeIDs) == 0 {
			continue
		}
		days := domain.DaysBetween(*t.CreatedDate, *t.CompletedDate)
		for _, a := range t.AssigneeIDs {
			durations[a] = append(durations[a], days)
		}
	}

	out := make(map[string]Throughput, len(durations))
	for assignee, ds := range durations {
		sum := 0.0
		for _, d := range ds {
			sum += d
		}
		avg := sum / float64(len(ds))
		perWeek := 0.0
		if avg > 0 {
			perWeek = 7.0 / avg
		}
		out[assignee] = Throughput{
			TasksCompleted:  len(ds),
			AvgDurationDays: avg,
			TasksPerWeek:    perWeek,
		}
	}
	return out
}

// BlockFrequencyResult reports how often tasks get stuck at the halfway
// point, overall and per bucket.
type BlockFrequencyResult struct {
	TotalBlocked      int                `json:"total_blocked"`
	BlockRateByBucket map[string]float64 `json:"block_rate_by_bucket"`
	BlockedTasks      []BottleneckRef    `json:"blocked_tasks"`
}

// BottleneckRef identifies one blocked task.
type BottleneckRef struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Bucket string `json:"bucket"`
}

// BlockFrequency counts historical tasks stuck at 50% (never completed, or
// completed more than a week past due) and normalizes per bucket. The
// blocked-task list is capped at 20.
func BlockFrequency(historical []domain.Task) BlockFrequencyResult {
	res := BlockFrequencyResult{BlockRateByBucket: make(map[string]float64)}
	blocked := make(map[string]int)
	totals := make(map[string]int)

	for _, t := range historical {
		bucket := t.BucketName
		if bucket == "" {
			bucket = "Unknown"
		}
		totals[bucket]++

		if t.PercentComplete != 50 {
			continue
		}
		stuck := t.CompletedDate == nil
		if !stuck && t.DueDate != nil {
			stuck = t.CompletedDate.After(t.DueDate.Add(7 * 24 * time.Hour))
		}
		if stuck {
			blocked[bucket]++
			res.TotalBlocked++
			if len(res.BlockedTasks) < 20 {
				res.BlockedTasks = append(res.BlockedTasks, BottleneckRef{TaskID: t.ID, Title: t.Title, Bucket: bucket})
			}
		}
	}
	for bucket, total := range totals {
		res.BlockRateByBucket[bucket] = float64(blocked[bucket]) / float64(total)
	}
	return res
}
