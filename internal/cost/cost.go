// Package cost computes the multi-objective plan cost:
// total = w1*schedule + w2*resource + w3*risk + w4*quality + w5*disruption.
// Every sub-cost is a pure function of (tasks, edges, now).
package cost

import (
	"math"
	"time"

	"github.com/plantwin/plantwin/internal/domain"
)

// Weights scales the five sub-costs.
type Weights struct {
	Schedule   float64 `json:"schedule"`
	Resource   float64 `json:"resource"`
	Risk       float64 `json:"risk"`
	Quality    float64 `json:"quality"`
	Disruption float64 `json:"disruption"`
}

// DefaultWeights returns the calibrated default weighting.
func DefaultWeights() Weights {
	return Weights{Schedule: 1.0, Resource: 0.8, Risk: 1.2, Quality: 0.5, Disruption: 0.3}
}

// Schedule-cost coefficients: quadratic tardiness, linear earliness credit,
// extra multiplier for high-downstream-impact tasks.
const (
	alpha = 1.0
	beta  = 0.5
	gamma = 3.0
)

// Resource-cost coefficients and utilization bounds.
const (
	delta   = 1.0
	epsilon = 0.5
	zeta    = 0.2
	maxUtil = 5.0
	minUtil = 1.0
)

// Risk-cost coefficient and the base delay probability for unstarted work.
const (
	eta                = 2.0
	unstartedDelayProb = 0.3
)

// Breakdown itemizes the sub-costs.
type Breakdown struct {
	Schedule   float64 `json:"schedule"`
	Resource   float64 `json:"resource"`
	Risk       float64 `json:"risk"`
	Quality    float64 `json:"quality"`
	Disruption float64 `json:"disruption"`
}

// Result is the weighted total plus its breakdown.
type Result struct {
	PlanID    string    `json:"plan_id"`
	TotalCost float64   `json:"total_cost"`
	Breakdown Breakdown `json:"cost_breakdown"`
	Weights   Weights   `json:"weights"`
}

// Total computes the weighted multi-objective cost for a plan snapshot.
func Total(planID string, tasks []domain.Task, edges []domain.DependencyEdge, w Weights, now time.Time) Result {
	b := Breakdown{
		Schedule:   Schedule(tasks, edges, now),
		Resource:   Resource(tasks),
		Risk:       Risk(tasks, edges, now),
		Quality:    Quality(tasks),
		Disruption: Disruption(tasks),
	}
	return Result{
		PlanID: planID,
		TotalCost: w.Schedule*b.Schedule + w.Resource*b.Resource + w.Risk*b.Risk +
			w.Quality*b.Quality + w.Disruption*b.Disruption,
		Breakdown: b,
		Weights:   w,
	}
}

// Schedule penalizes tardiness quadratically, credits earliness linearly,
// and adds a linear multiplier for late tasks with high downstream impact.
// Tasks missing either planned date are skipped.
func Schedule(tasks []domain.Task, edges []domain.DependencyEdge, now time.Time) float64 {
	downstream := downstreamCounts(edges)
	maxDownstream := 0
	for _, c := range downstream {
		if c > maxDownstream {
			maxDownstream = c
		}
	}
	criticalThreshold := float64(maxDownstream) * 0.7

	total := 0.0
	for _, t := range tasks {
		if t.DueDate == nil || t.StartDate == nil {
			continue
		}
		due := *t.DueDate

		var actualEnd time.Time
		switch {
		case t.CompletedDate != nil:
			actualEnd = *t.CompletedDate
		case t.PercentComplete >= 100:
			actualEnd = due
		default:
			planned := domain.DaysBetween(*t.StartDate, due)
			remaining := planned * (1 - float64(t.PercentComplete)/100)
			actualEnd = now.Add(time.Duration(remaining * 24 * float64(time.Hour)))
		}

		tardiness := math.Max(0, domain.DaysBetween(due, actualEnd))
		earliness := math.Max(0, domain.DaysBetween(actualEnd, due))

		total += alpha * tardiness * tardiness
		total -= beta * earliness

		if maxDownstream > 0 && float64(downstream[t.ID]) >= criticalThreshold && tardiness > 0 {
			total += gamma * tardiness
		}
	}
	return total
}

// Resource penalizes over-allocation quadratically, under-utilization
// linearly, and charges a context-switch fee per extra concurrent task, all
// per assignee.
func Resource(tasks []domain.Task) float64 {
	perAssignee := make(map[string]int)
	for _, t := range tasks {
		for _, a := range t.AssigneeIDs {
			perAssignee[a]++
		}
	}

	total := 0.0
	for _, n := range perAssignee {
		util := float64(n)
		if util > maxUtil {
			over := util - maxUtil
			total += delta * over * over
		}
		if util < minUtil {
			total += epsilon * (minUtil - util)
		}
		if util > 1 {
			total += zeta * (util - 1)
		}
	}
	return total
}

// Risk sums delay-probability times impact magnitude over incomplete tasks.
// Probability is inferred from schedule slip (elapsed beyond the progress-
// proportional expectation); impact combines priority urgency with direct
// downstream fan-out.
func Risk(tasks []domain.Task, edges []domain.DependencyEdge, now time.Time) float64 {
	downstream := downstreamCounts(edges)

	total := 0.0
	for _, t := range tasks {
		if t.DueDate == nil || t.StartDate == nil {
			continue
		}

		delayProb := 0.0
		if t.CompletedDate == nil {
			planned := domain.DaysBetween(*t.StartDate, *t.DueDate)
			elapsed := 0.0
			if t.StartDate.Before(now) {
				elapsed = domain.DaysBetween(*t.StartDate, now)
			}
			progress := float64(t.PercentComplete) / 100
			if progress > 0 {
				expectedElapsed := planned * progress
				if elapsed > expectedElapsed && planned > 0 {
					delayProb = math.Min(1.0, (elapsed-expectedElapsed)/planned)
				}
			} else {
				delayProb = unstartedDelayProb
			}
		}

		priority := t.Priority
		if priority == 0 {
			priority = 5
		}
		impact := float64(11-priority)/10.0 + float64(downstream[t.ID])*0.1

		if delayProb > 0 {
			total += eta * delayProb * impact
		}
	}
	return total
}

// Quality is an extension point for speaker/topic matching data; with no
// such inputs the cost is zero.
func Quality(tasks []domain.Task) float64 {
	return 0.0
}

// Disruption is an extension point for replan-cascade tracking; with no
// replay history the cost is zero.
func Disruption(tasks []domain.Task) float64 {
	return 0.0
}

// downstreamCounts counts direct dependents per task.
func downstreamCounts(edges []domain.DependencyEdge) map[string]int {
	counts := make(map[string]int)
	for _, e := range edges {
		counts[e.DependsOnID]++
	}
	return counts
}
