// Package views derives read-only operational views (attention dashboard,
// dependency lens, milestone partition, change feed) from a plan snapshot.
// Every function is pure given (tasks, edges, now).
package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plantwin/plantwin/internal/domain"
	"github.com/plantwin/plantwin/internal/graph"
)

const (
	dueSoonWindow    = 7 * 24 * time.Hour
	recentWindow     = 24 * time.Hour
	defaultMilestone = 21 * 24 * time.Hour
	defaultLookback  = 24 * time.Hour
)

// Section is a count plus the summarized tasks behind it.
type Section struct {
	Count int                  `json:"count"`
	Tasks []domain.TaskSummary `json:"tasks"`
}

func section(tasks []domain.Task) Section {
	return Section{Count: len(tasks), Tasks: domain.SummarizeAll(tasks)}
}

// DashboardResult is the attention dashboard for one plan.
type DashboardResult struct {
	PlanID              string  `json:"plan_id"`
	Blockers            Section `json:"blockers"`
	Overdue             Section `json:"overdue"`
	DueNext7Days        Section `json:"due_next_7_days"`
	CriticalPathDueNext Section `json:"critical_path_due_next"`
	RecentlyChanged     Section `json:"recently_changed"`
}

// Dashboard classifies tasks into attention buckets as of now.
func Dashboard(planID string, tasks []domain.Task, edges []domain.DependencyEdge, now time.Time) DashboardResult {
	adj := graph.BuildAdjacency(tasks, edges)
	byID := indexTasks(tasks)
	criticalIDs := toSet(graph.CriticalPath(tasks, adj).Path)

	oneDayAgo := now.Add(-recentWindow)
	weekOut := now.Add(dueSoonWindow)

	var blockers, overdue, dueNext, criticalDueNext, recent []domain.Task
	for _, t := range tasks {
		done := t.Status == domain.StatusCompleted
		if !done && anyPredecessorIncomplete(t.ID, adj, byID) {
			blockers = append(blockers, t)
		}
		if t.DueDate != nil && !done {
			due := *t.DueDate
			if due.Before(now) {
				overdue = append(overdue, t)
			}
			if !due.Before(now) && !due.After(weekOut) {
				dueNext = append(dueNext, t)
				if criticalIDs[t.ID] {
					criticalDueNext = append(criticalDueNext, t)
				}
			}
		}
		if t.LastModifiedAt != nil && !t.LastModifiedAt.Before(oneDayAgo) {
			recent = append(recent, t)
		}
	}

	return DashboardResult{
		PlanID:              planID,
		Blockers:            section(blockers),
		Overdue:             section(overdue),
		DueNext7Days:        section(dueNext),
		CriticalPathDueNext: section(criticalDueNext),
		RecentlyChanged:     section(recent),
	}
}

// DependenciesResult is the dependency lens for one task.
type DependenciesResult struct {
	TaskID          string               `json:"task_id"`
	Upstream        []domain.TaskSummary `json:"upstream"`
	Downstream      []domain.TaskSummary `json:"downstream"`
	ImpactStatement string               `json:"impact_statement"`
}

// Dependencies returns the direct upstream and downstream neighbors of a
// task plus a human-readable slip impact statement. Unknown task IDs return
// a TaskNotFoundError so callers can render a 404.
func Dependencies(planID, taskID string, tasks []domain.Task, edges []domain.DependencyEdge) (DependenciesResult, error) {
	byID := indexTasks(tasks)
	if _, ok := byID[taskID]; !ok {
		return DependenciesResult{}, &domain.TaskNotFoundError{PlanID: planID, TaskID: taskID}
	}
	adj := graph.BuildAdjacency(tasks, edges)

	upstream := sortedSummaries(adj.Predecessors[taskID], byID)
	downstream := sortedSummaries(adj.Successors[taskID], byID)

	impact := "No downstream dependencies."
	if len(downstream) > 0 {
		titles := make([]string, 0, len(downstream))
		for _, s := range downstream {
			titles = append(titles, s.Title)
		}
		ellipsis := ""
		if len(titles) > 5 {
			titles = titles[:5]
			ellipsis = "…"
		}
		impact = fmt.Sprintf("If this task slips 3 days, %d downstream task(s) may move: %s%s.",
			len(downstream), strings.Join(titles, ", "), ellipsis)
	}

	return DependenciesResult{
		TaskID:          taskID,
		Upstream:        upstream,
		Downstream:      downstream,
		ImpactStatement: impact,
	}, nil
}

// ExecutionTask is a task enriched for the execution / dependency-lens view.
type ExecutionTask struct {
	domain.Task
	RiskBadges      []string `json:"risk_badges"`
	UpstreamCount   int      `json:"upstream_count"`
	DownstreamCount int      `json:"downstream_count"`
	OnCriticalPath  bool     `json:"on_critical_path"`
}

// ExecutionTasks annotates every task with risk badges (blocked, blocking,
// at_risk, overdue) and dependency counts. Badge order is fixed.
func ExecutionTasks(planID string, tasks []domain.Task, edges []domain.DependencyEdge, now time.Time) []ExecutionTask {
	adj := graph.BuildAdjacency(tasks, edges)
	byID := indexTasks(tasks)
	criticalIDs := toSet(graph.CriticalPath(tasks, adj).Path)

	atRiskIDs := make(map[string]bool)
	for _, at := range Milestone(planID, tasks, edges, nil, now).AtRiskTasks {
		atRiskIDs[at.ID] = true
	}

	// blocking = incomplete direct predecessor of a critical-path task.
	blockingIDs := make(map[string]bool)
	for id := range criticalIDs {
		for _, up := range adj.Predecessors[id] {
			if pred, ok := byID[up]; ok && pred.Status != domain.StatusCompleted {
				blockingIDs[up] = true
			}
		}
	}

	out := make([]ExecutionTask, 0, len(tasks))
	for _, t := range tasks {
		done := t.Status == domain.StatusCompleted
		var badges []string
		if !done && anyPredecessorIncomplete(t.ID, adj, byID) {
			badges = append(badges, "blocked")
		}
		if blockingIDs[t.ID] {
			badges = append(badges, "blocking")
		}
		if atRiskIDs[t.ID] {
			badges = append(badges, "at_risk")
		}
		if t.DueDate != nil && t.DueDate.Before(now) && !done {
			badges = append(badges, "overdue")
		}
		out = append(out, ExecutionTask{
			Task:            t,
			RiskBadges:      badges,
			UpstreamCount:   len(adj.Predecessors[t.ID]),
			DownstreamCount: len(adj.Successors[t.ID]),
			OnCriticalPath:  criticalIDs[t.ID],
		})
	}
	return out
}

// MilestoneTask is a summarized task in the milestone view. DaysAfterEvent is
// nil for at-risk tasks with no due date.
type MilestoneTask struct {
	domain.TaskSummary
	OnCriticalPath bool `json:"on_critical_path"`
	DaysAfterEvent *int `json:"days_after_event,omitempty"`
}

// MilestoneResult partitions a plan around an event/target date.
type MilestoneResult struct {
	PlanID           string          `json:"plan_id"`
	EventDate        time.Time       `json:"event_date"`
	TasksBeforeEvent []MilestoneTask `json:"tasks_before_event"`
	AtRiskTasks      []MilestoneTask `json:"at_risk_tasks"`
	AtRiskCount      int             `json:"at_risk_count"`
}

// Milestone partitions tasks into "due before the event" and "at risk"
// (incomplete with no due date, or due after the event). A nil eventDate
// defaults to 21 days from now.
func Milestone(planID string, tasks []domain.Task, edges []domain.DependencyEdge, eventDate *time.Time, now time.Time) MilestoneResult {
	event := now.Add(defaultMilestone)
	if eventDate != nil {
		event = *eventDate
	}
	adj := graph.BuildAdjacency(tasks, edges)
	criticalIDs := toSet(graph.CriticalPath(tasks, adj).Path)

	res := MilestoneResult{PlanID: planID, EventDate: event}
	for _, t := range tasks {
		done := t.Status == domain.StatusCompleted
		mt := MilestoneTask{TaskSummary: domain.Summarize(t), OnCriticalPath: criticalIDs[t.ID]}
		if t.DueDate != nil && !t.DueDate.After(event) {
			res.TasksBeforeEvent = append(res.TasksBeforeEvent, mt)
		}
		switch {
		case done:
		case t.DueDate == nil:
			res.AtRiskTasks = append(res.AtRiskTasks, mt)
		case t.DueDate.After(event):
			days := int(t.DueDate.Sub(event).Hours() / 24)
			mt.DaysAfterEvent = &days
			res.AtRiskTasks = append(res.AtRiskTasks, mt)
		}
	}
	res.AtRiskCount = len(res.AtRiskTasks)
	return res
}

// ChangedTask is a summarized task with its modification timestamp.
type ChangedTask struct {
	domain.TaskSummary
	LastModifiedAt *time.Time `json:"last_modified_at,omitempty"`
}

// ChangesResult lists tasks modified since the previous sync.
type ChangesResult struct {
	PlanID  string        `json:"plan_id"`
	Since   time.Time     `json:"since"`
	Changes []ChangedTask `json:"changes"`
	Count   int           `json:"count"`
}

// ChangesSince returns tasks whose last-modified timestamp is strictly after
// previousSync. A nil previousSync defaults to a 24h lookback from now.
func ChangesSince(planID string, tasks []domain.Task, previousSync *time.Time, now time.Time) ChangesResult {
	since := now.Add(-defaultLookback)
	if previousSync != nil {
		since = *previousSync
	}
	res := ChangesResult{PlanID: planID, Since: since}
	for _, t := range tasks {
		if t.LastModifiedAt != nil && t.LastModifiedAt.After(since) {
			res.Changes = append(res.Changes, ChangedTask{
				TaskSummary:    domain.Summarize(t),
				LastModifiedAt: t.LastModifiedAt,
			})
		}
	}
	res.Count = len(res.Changes)
	return res
}

func indexTasks(tasks []domain.Task) map[string]domain.Task {
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	return byID
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func anyPredecessorIncomplete(id string, adj graph.Adjacency, byID map[string]domain.Task) bool {
	for _, up := range adj.Predecessors[id] {
		if pred, ok := byID[up]; ok && pred.Status != domain.StatusCompleted {
			return true
		}
	}
	return false
}

func sortedSummaries(ids []string, byID map[string]domain.Task) []domain.TaskSummary {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make([]domain.TaskSummary, 0, len(sorted))
	for _, id := range sorted {
		if t, ok := byID[id]; ok {
			out = append(out, domain.Summarize(t))
		}
	}
	return out
}
