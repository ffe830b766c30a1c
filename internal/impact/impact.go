// Package impact estimates the downstream effect of editing a single task.
package impact

import (
	"sort"
	"time"

	"github.com/plantwin/plantwin/internal/domain"
	"github.com/plantwin/plantwin/internal/graph"
)

// Change is a proposed edit to a task: either an explicit slippage in days,
// or a new due date compared against the current one.
type Change struct {
	SlippageDays *int       `json:"slippage_days,omitempty"`
	NewDueDate   *time.Time `json:"due_date,omitempty"`
}

// AffectedTask identifies one transitively downstream task.
type AffectedTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Result reports the blast radius of a proposed edit.
type Result struct {
	PlanID              string         `json:"plan_id"`
	TaskID              string         `json:"task_id"`
	AffectedTasks       []AffectedTask `json:"affected_tasks"`
	AffectedCount       int            `json:"affected_count"`
	DownstreamDelayDays int            `json:"downstream_delay_days"`
	CriticalPathImpact  bool           `json:"critical_path_impact"`
}

// AnalyzeEdit walks the successor graph from taskID and reports every
// transitively affected task, the estimated delay in days (never negative;
// pulling a due date earlier is not an impact), and whether the edit touches
// the critical path. Unknown task IDs return a TaskNotFoundError.
func AnalyzeEdit(planID, taskID string, tasks []domain.Task, edges []domain.DependencyEdge, change Change) (*Result, error) {
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	target, ok := byID[taskID]
	if !ok {
		return nil, &domain.TaskNotFoundError{PlanID: planID, TaskID: taskID}
	}

	adj := graph.BuildAdjacency(tasks, edges)
	affectedIDs := graph.Downstream(taskID, adj)
	sort.Strings(affectedIDs)

	affected := make([]AffectedTask, 0, len(affectedIDs))
	for _, id := range affectedIDs {
		affected = append(affected, AffectedTask{ID: id, Title: byID[id].Title})
	}

	delay := 0
	switch {
	case change.SlippageDays != nil:
		delay = *change.SlippageDays
		if delay < 0 {
			delay = 0
		}
	case change.NewDueDate != nil && target.DueDate != nil:
		if d := int(domain.DaysBetween(*target.DueDate, *change.NewDueDate)); d > 0 {
			delay = d
		}
	}

	criticalIDs := make(map[string]bool)
	for _, id := range graph.CriticalPath(tasks, adj).Path {
		criticalIDs[id] = true
	}
	critical := criticalIDs[taskID]
	for _, id := range affectedIDs {
		if criticalIDs[id] {
			critical = true
			break
		}
	}

	return &Result{
		PlanID:              planID,
		TaskID:              taskID,
		AffectedTasks:       affected,
		AffectedCount:       len(affected),
		DownstreamDelayDays: delay,
		CriticalPathImpact:  critical,
	}, nil
}

// AnalyzeSlippage is AnalyzeEdit with a fixed slippage in days.
func AnalyzeSlippage(planID, taskID string, tasks []domain.Task, edges []domain.DependencyEdge, slippageDays int) (*Result, error) {
	return AnalyzeEdit(planID, taskID, tasks, edges, Change{SlippageDays: &slippageDays})
}
