package simulate

import (
	"math"
	"math/rand"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plantwin/plantwin/internal/domain"
	"github.com/plantwin/plantwin/internal/graph"
)

const (
	// MaxIterations bounds the batch path.
	MaxIterations = 10000

	contentionThreshold = 3
	contentionScaleDays = 0.5
)

// disruption models an external shock (flight cancellation, vendor slip,
// speaker no-response) hitting tasks of a bucket category.
type disruption struct {
	prefix      string
	probability float64
	minDays     float64
	maxDays     float64
}

var disruptions = []disruption{
	{prefix: "Travel", probability: 0.03, minDays: 2.0, maxDays: 5.0},
	{prefix: "Venue", probability: 0.05, minDays: 1.0, maxDays: 3.0},
	{prefix: "Speaker", probability: 0.08, minDays: 0.5, maxDays: 2.0},
}

// BatchOptions configures a full (offline) forecast run.
type BatchOptions struct {
	// Iterations is clamped to [1, MaxIterations]; zero means MaxIterations.
	Iterations int
	Seed       int64
	// Bias maps bucket name to a historical duration multiplier.
	Bias map[string]float64
	Now  time.Time
	// Workers bounds the trial pool; zero means GOMAXPROCS.
	Workers int
}

// TaskProbability reports how often a task determined the plan's end.
type TaskProbability struct {
	TaskID  string  `json:"task_id"`
	Title   string  `json:"title"`
	Percent float64 `json:"percent"`
}

// Bottleneck ranks a task by the spread of its sampled finish times.
type Bottleneck struct {
	TaskID                  string  `json:"task_id"`
	Title                   string  `json:"title"`
	Bucket                  string  `json:"bucket"`
	SpreadDays              float64 `json:"spread_days"`
	CriticalPathProbability float64 `json:"critical_path_probability"`
}

// BatchPercentiles are the full-path completion forecasts.
type BatchPercentiles struct {
	P50 time.Time `json:"p50"`
	P75 time.Time `json:"p75"`
	P95 time.Time `json:"p95"`
}

// FullResult is the aggregated output of a batch forecast.
type FullResult struct {
	PlanID                  string             `json:"plan_id"`
	Iterations              int                `json:"n_iterations"`
	Percentiles             BatchPercentiles   `json:"percentiles"`
	CriticalPathProbability []TaskProbability  `json:"critical_path_probability"`
	Bottlenecks             []Bottleneck       `json:"bottlenecks"`
	RiskHeatmap             map[string]float64 `json:"risk_heatmap"`
}

// trialResult is one iteration's outcome, collected off the worker pool.
type trialResult struct {
	planEnd  time.Time
	finishes []time.Time // indexed by task position
}

// RunFull executes the batch PERT forecast: topological propagation with
// resource-contention queuing delays and per-bucket disruption injection.
// Trials run on a worker pool; each trial derives its random stream from
// Seed plus the trial index, so results are reproducible regardless of
// scheduling order.
func RunFull(planID string, tasks []domain.Task, edges []domain.DependencyEdge, opts BatchOptions) (*FullResult, error) {
	if len(tasks) == 0 {
		return nil, &domain.NoTasksError{PlanID: planID}
	}
	iterations := opts.Iterations
	if iterations <= 0 || iterations > MaxIterations {
		iterations = MaxIterations
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	adj := graph.BuildAdjacency(tasks, edges)
	order, _ := graph.TopologicalOrder(tasks, adj)

	pos := make(map[string]int, len(tasks))
	byID := make(map[string]domain.Task, len(tasks))
	for i, t := range tasks {
		pos[t.ID] = i
		byID[t.ID] = t
	}

	// Static per-task inputs hoisted out of the trial loop.
	params := make([]pertParams, len(tasks))
	for i, t := range tasks {
		base, _ := durationParams(t, opts.Bias)
		params[i] = pertParams{
			optimistic:  base * 0.7,
			mostLikely:  base,
			pessimistic: base * 1.5,
		}
	}
	byAssignee := make(map[string][]int)
	for i, t := range tasks {
		for _, a := range t.AssigneeIDs {
			byAssignee[a] = append(byAssignee[a], i)
		}
	}

	results := make([]trialResult, iterations)
	var wg sync.WaitGroup
	trialCh := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for trial := range trialCh {
				rng := rand.New(rand.NewSource(opts.Seed + int64(trial)))
				results[trial] = runTrial(tasks, order, pos, adj, params, byAssignee, rng, now)
			}
		}()
	}
	for trial := 0; trial < iterations; trial++ {
		trialCh <- trial
	}
	close(trialCh)
	wg.Wait()

	return aggregate(planID, tasks, adj, iterations, results), nil
}

type pertParams struct {
	optimistic  float64
	mostLikely  float64
	pessimistic float64
}

// sample draws from the normal approximation of the PERT Beta, clamped to
// the optimistic/pessimistic bounds.
func (p pertParams) sample(rng *rand.Rand) float64 {
	mean := (p.optimistic + 4*p.mostLikely + p.pessimistic) / 6
	std := (p.pessimistic - p.optimistic) / 6
	s := mean + rng.NormFloat64()*std
	return math.Max(p.optimistic, math.Min(p.pessimistic, s))
}

func runTrial(
	tasks []domain.Task,
	order []string,
	pos map[string]int,
	adj graph.Adjacency,
	params []pertParams,
	byAssignee map[string][]int,
	rng *rand.Rand,
	now time.Time,
) trialResult {
	finishes := make([]time.Time, len(tasks))

	for _, id := range order {
		i := pos[id]
		t := tasks[i]

		start := now
		if t.StartDate != nil {
			start = *t.StartDate
		}
		for _, pred := range adj.Predecessors[id] {
			if pf := finishes[pos[pred]]; pf.After(start) {
				start = pf
			}
		}

		days := params[i].sample(rng)

		if len(t.AssigneeIDs) > 0 {
			load := assigneeLoad(t.AssigneeIDs[0], start, tasks, finishes, byAssignee)
			if load > contentionThreshold {
				overload := float64(load - contentionThreshold)
				days += rng.ExpFloat64() * overload * contentionScaleDays
			}
		}

		for _, d := range disruptions {
			if strings.HasPrefix(t.BucketName, d.prefix) {
				if rng.Float64() < d.probability {
					days += d.minDays + rng.Float64()*(d.maxDays-d.minDays)
				}
				break
			}
		}

		finishes[i] = start.Add(daysDur(days))
	}

	var planEnd time.Time
	for _, f := range finishes {
		if f.After(planEnd) {
			planEnd = f
		}
	}
	return trialResult{planEnd: planEnd, finishes: finishes}
}

// assigneeLoad counts an assignee's tasks running at t within this trial.
func assigneeLoad(assignee string, t time.Time, tasks []domain.Task, finishes []time.Time, byAssignee map[string][]int) int {
	load := 0
	for _, i := range byAssignee[assignee] {
		start := tasks[i].StartDate
		finish := finishes[i]
		if start == nil || finish.IsZero() {
			continue
		}
		if !start.After(t) && t.Before(finish) {
			load++
		}
	}
	return load
}

func aggregate(planID string, tasks []domain.Task, adj graph.Adjacency, iterations int, results []trialResult) *FullResult {
	endDates := make([]time.Time, 0, iterations)
	cpCounts := make(map[string]int, len(tasks))
	pos := make(map[string]int, len(tasks))
	for i, t := range tasks {
		pos[t.ID] = i
	}

	for _, r := range results {
		if r.planEnd.IsZero() {
			continue
		}
		endDates = append(endDates, r.planEnd)
		// A task counts toward critical-path membership when it (or a direct
		// successor) finishes exactly at the plan end.
		for i, t := range tasks {
			hit := r.finishes[i].Equal(r.planEnd)
			if !hit {
				for _, succ := range adj.Successors[t.ID] {
					if sf := r.finishes[pos[succ]]; sf.Equal(r.planEnd) {
						hit = true
						break
					}
				}
			}
			if hit {
				cpCounts[t.ID]++
			}
		}
	}
	sort.Slice(endDates, func(i, j int) bool { return endDates[i].Before(endDates[j]) })
	n := len(endDates)

	cpProb := make(map[string]float64, len(cpCounts))
	for id, count := range cpCounts {
		cpProb[id] = float64(count) / float64(n) * 100
	}

	probs := make([]TaskProbability, 0, len(cpProb))
	for _, t := range tasks {
		if p, ok := cpProb[t.ID]; ok {
			probs = append(probs, TaskProbability{TaskID: t.ID, Title: t.Title, Percent: p})
		}
	}
	sort.SliceStable(probs, func(i, j int) bool { return probs[i].Percent > probs[j].Percent })
	if len(probs) > 20 {
		probs = probs[:20]
	}

	bottlenecks := make([]Bottleneck, 0, len(tasks))
	heatSums := make(map[string]float64)
	heatCounts := make(map[string]int)
	for i, t := range tasks {
		minF, maxF := time.Time{}, time.Time{}
		for _, r := range results {
			f := r.finishes[i]
			if f.IsZero() {
				continue
			}
			if minF.IsZero() || f.Before(minF) {
				minF = f
			}
			if f.After(maxF) {
				maxF = f
			}
		}
		if minF.IsZero() {
			continue
		}
		spread := domain.DaysBetween(minF, maxF)
		bottlenecks = append(bottlenecks, Bottleneck{
			TaskID:                  t.ID,
			Title:                   t.Title,
			Bucket:                  t.BucketName,
			SpreadDays:              spread,
			CriticalPathProbability: cpProb[t.ID],
		})
		bucket := t.BucketName
		if bucket == "" {
			bucket = "Unknown"
		}
		heatSums[bucket] += spread
		heatCounts[bucket]++
	}
	sort.SliceStable(bottlenecks, func(i, j int) bool { return bottlenecks[i].SpreadDays > bottlenecks[j].SpreadDays })
	if len(bottlenecks) > 20 {
		bottlenecks = bottlenecks[:20]
	}

	heatmap := make(map[string]float64, len(heatSums))
	for bucket, sum := range heatSums {
		heatmap[bucket] = sum / float64(heatCounts[bucket])
	}

	return &FullResult{
		PlanID:     planID,
		Iterations: iterations,
		Percentiles: BatchPercentiles{
			P50: at(endDates, n/2),
			P75: at(endDates, int(float64(n)*0.75)),
			P95: at(endDates, int(float64(n)*0.95)),
		},
		CriticalPathProbability: probs,
		Bottlenecks:             bottlenecks,
		RiskHeatmap:             heatmap,
	}
}
