// Package simulate implements the Monte Carlo forecast engines: a fast
// interactive path (Gaussian perturbation of planned durations) and a batch
// path (PERT sampling with resource contention and disruption injection).
// Both are deterministic for a fixed seed.
package simulate

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/plantwin/plantwin/internal/domain"
	"github.com/plantwin/plantwin/internal/graph"
)

const (
	// MinTrials and MaxTrials bound the interactive path.
	MinTrials = 100
	MaxTrials = 2000

	defaultBaseDays     = 5.0
	defaultVarianceDays = 2.0
	minDurationDays     = 0.5
)

// Options configures an interactive forecast run.
type Options struct {
	Trials int
	// EventDate is the on-time target. Nil derives it from the critical
	// path's last due date plus 3 days, falling back to now+30d.
	EventDate *time.Time
	// Seed fixes the random stream. Nil seeds from the clock.
	Seed *int64
	// Bias maps bucket name to a historical duration multiplier.
	Bias map[string]float64
	Now  time.Time
}

// RiskTask is a critical-path task ranked by duration variance.
type RiskTask struct {
	TaskID         string    `json:"task_id"`
	Title          string    `json:"title"`
	VarianceDays   float64   `json:"variance_days"`
	P90Finish      time.Time `json:"p90_finish"`
	OnCriticalPath bool      `json:"on_critical_path"`
}

// Percentiles are the forecast plan-completion dates.
type Percentiles struct {
	P10 time.Time `json:"p10"`
	P50 time.Time `json:"p50"`
	P90 time.Time `json:"p90"`
}

// Result is the aggregated output of an interactive forecast.
type Result struct {
	PlanID                   string       `json:"plan_id"`
	Trials                   int          `json:"n_trials"`
	EventDate                time.Time    `json:"event_date"`
	ProbabilityOnTimePercent float64      `json:"probability_on_time_percent"`
	PercentileEndDates       Percentiles  `json:"percentile_end_dates"`
	RiskTasks                []RiskTask   `json:"risk_tasks"`
	AgentSuggestions         []Suggestion `json:"agent_suggestions"`
}

// Run executes the interactive Monte Carlo forecast. Trial counts outside
// [MinTrials, MaxTrials] and empty plans return explicit errors rather than
// degenerate output.
func Run(planID string, tasks []domain.Task, edges []domain.DependencyEdge, opts Options) (*Result, error) {
	if opts.Trials < MinTrials || opts.Trials > MaxTrials {
		return nil, &domain.InvalidTrialCountError{Trials: opts.Trials, Min: MinTrials, Max: MaxTrials}
	}
	if len(tasks) == 0 {
		return nil, &domain.NoTasksError{PlanID: planID}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	rng := newRNG(opts.Seed)

	adj := graph.BuildAdjacency(tasks, edges)
	criticalIDs := graph.CriticalPath(tasks, adj).Path
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	eventDate := resolveEventDate(opts.EventDate, criticalIDs, byID, now)

	endDates := make([]time.Time, 0, opts.Trials)
	finishSamples := make(map[string][]time.Time, len(tasks))

	for trial := 0; trial < opts.Trials; trial++ {
		finish := make(map[string]time.Time, len(tasks))
		// Multiple passes resolve dependency order without an explicit sort;
		// the bound guarantees termination when the graph is cyclic.
		for pass := 0; pass <= len(tasks); pass++ {
			for _, t := range tasks {
				if _, done := finish[t.ID]; done {
					continue
				}
				preds := adj.Predecessors[t.ID]
				if !allResolved(preds, finish) {
					continue
				}

				base, sigma := durationParams(t, opts.Bias)
				days := base
				if sigma > 0 {
					days += rng.NormFloat64() * sigma
				}
				if days < minDurationDays {
					days = minDurationDays
				}

				start := latestFinish(preds, finish)
				if start.IsZero() {
					if t.StartDate != nil {
						start = *t.StartDate
					} else {
						start = now
					}
				}
				finish[t.ID] = start.Add(daysDur(days))
				finishSamples[t.ID] = append(finishSamples[t.ID], finish[t.ID])
			}
		}

		planEnd := time.Time{}
		for _, f := range finish {
			if f.After(planEnd) {
				planEnd = f
			}
		}
		if !planEnd.IsZero() {
			endDates = append(endDates, planEnd)
		}
	}

	onTime := 0
	for _, d := range endDates {
		if !d.After(eventDate) {
			onTime++
		}
	}
	pOnTime := 0.0
	if len(endDates) > 0 {
		pOnTime = float64(onTime) / float64(len(endDates)) * 100
	}

	sort.Slice(endDates, func(i, j int) bool { return endDates[i].Before(endDates[j]) })

	riskTasks := rankRiskTasks(criticalIDs, byID, finishSamples)
	return &Result{
		PlanID:                   planID,
		Trials:                   opts.Trials,
		EventDate:                eventDate,
		ProbabilityOnTimePercent: math.Round(pOnTime*10) / 10,
		PercentileEndDates: Percentiles{
			P10: at(endDates, int(float64(len(endDates))*0.1)),
			P50: at(endDates, len(endDates)/2),
			P90: at(endDates, int(float64(len(endDates))*0.9)),
		},
		RiskTasks:        riskTasks,
		AgentSuggestions: buildSuggestions(pOnTime, riskTasks, len(criticalIDs)),
	}, nil
}

// rankRiskTasks ranks critical-path tasks by their variance, highest first,
// capped at 10.
func rankRiskTasks(criticalIDs []string, byID map[string]domain.Task, samples map[string][]time.Time) []RiskTask {
	out := make([]RiskTask, 0, len(criticalIDs))
	for _, id := range criticalIDs {
		t, ok := byID[id]
		if !ok {
			continue
		}
		s := samples[id]
		if len(s) == 0 {
			continue
		}
		sorted := append([]time.Time(nil), s...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		out = append(out, RiskTask{
			TaskID:         id,
			Title:          t.Title,
			VarianceDays:   varianceOf(t),
			P90Finish:      at(sorted, int(float64(len(sorted))*0.9)),
			OnCriticalPath: true,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VarianceDays > out[j].VarianceDays })
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

// durationParams returns the base duration and noise sigma for a task. Base
// is the planned span when both dates exist (floored at half a day), with a
// bucket bias multiplier when provided. A nil VarianceDays uses the default;
// an explicit zero makes the duration deterministic.
func durationParams(t domain.Task, bias map[string]float64) (base, sigma float64) {
	if t.StartDate != nil && t.DueDate != nil {
		base = math.Max(minDurationDays, domain.DaysBetween(*t.StartDate, *t.DueDate))
	} else {
		base = defaultBaseDays
	}
	if b, ok := bias[t.BucketName]; ok && b > 0 {
		base *= b
	}
	return base, varianceOf(t)
}

func varianceOf(t domain.Task) float64 {
	if t.VarianceDays == nil {
		return defaultVarianceDays
	}
	return *t.VarianceDays
}

func resolveEventDate(explicit *time.Time, criticalIDs []string, byID map[string]domain.Task, now time.Time) time.Time {
	if explicit != nil {
		return *explicit
	}
	if len(criticalIDs) > 0 {
		if t, ok := byID[criticalIDs[len(criticalIDs)-1]]; ok && t.DueDate != nil {
			return t.DueDate.Add(3 * 24 * time.Hour)
		}
	}
	return now.Add(30 * 24 * time.Hour)
}

func newRNG(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func allResolved(ids []string, finish map[string]time.Time) bool {
	for _, id := range ids {
		if _, ok := finish[id]; !ok {
			return false
		}
	}
	return true
}

func latestFinish(ids []string, finish map[string]time.Time) time.Time {
	var latest time.Time
	for _, id := range ids {
		if f, ok := finish[id]; ok && f.After(latest) {
			latest = f
		}
	}
	return latest
}

func daysDur(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}

// at indexes a sorted slice with clamping, so percentile lookups never panic
// on small sample counts.
func at(sorted []time.Time, i int) time.Time {
	if len(sorted) == 0 {
		return time.Time{}
	}
	if i < 0 {
		i = 0
	}
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}
