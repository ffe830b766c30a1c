package domain

import "time"

// Status represents a task's advisory workflow state. PercentComplete and
// CompletedDate are authoritative for derived logic; Status may lag behind.
type Status string

const (
	StatusNotStarted Status = "notStarted"
	StatusInProgress Status = "inProgress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Done returns true for states in which the task no longer needs work.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// DependencyTypeFS is the default Finish-to-Start dependency type. Other PM
// types (SS, FF, SF) are accepted and stored but not behaviorally
// distinguished by the analytics core.
const DependencyTypeFS = "FS"

// Task is one schedulable unit of work, keyed by (PlanID, ID).
//
// Optional timestamps are nil when unknown. VarianceDays is nil when the plan
// carries no variance estimate (simulators then use a 2-day default); an
// explicit 0 means the duration is deterministic.
type Task struct {
	PlanID          string     `json:"plan_id"`
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	BucketID        string     `json:"bucket_id,omitempty"`
	BucketName      string     `json:"bucket_name,omitempty"`
	Status          Status     `json:"status"`
	PercentComplete int        `json:"percent_complete"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	CompletedDate   *time.Time `json:"completed_date,omitempty"`
	CreatedDate     *time.Time `json:"created_date,omitempty"`
	AssigneeIDs     []string   `json:"assignee_ids,omitempty"`
	AssigneeNames   []string   `json:"assignee_names,omitempty"`
	Priority        int        `json:"priority"` // 1-10, lower = more urgent
	Description     string     `json:"description,omitempty"`
	VarianceDays    *float64   `json:"variance_days,omitempty"`
	LastModifiedAt  *time.Time `json:"last_modified_at,omitempty"`
}

// DependencyEdge is a directed "TaskID depends on DependsOnID" relation
// scoped to a plan.
type DependencyEdge struct {
	TaskID      string `json:"task_id"`
	DependsOnID string `json:"depends_on_id"`
	Type        string `json:"type"`
}

// Plan is a named collection of tasks, edges, and bucket definitions.
type Plan struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	EventDate *time.Time `json:"event_date,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Bucket is a named workstream grouping with no lifecycle of its own.
type Bucket struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TaskSummary is the condensed task shape returned inside derived views.
type TaskSummary struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Status        Status     `json:"status"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	AssigneeNames []string   `json:"assignee_names,omitempty"`
}

// Summarize condenses a task for view responses.
func Summarize(t Task) TaskSummary {
	return TaskSummary{
		ID:            t.ID,
		Title:         t.Title,
		Status:        t.Status,
		DueDate:       t.DueDate,
		AssigneeNames: t.AssigneeNames,
	}
}

// SummarizeAll condenses a slice of tasks, preserving order.
func SummarizeAll(tasks []Task) []TaskSummary {
	out := make([]TaskSummary, len(tasks))
	for i, t := range tasks {
		out[i] = Summarize(t)
	}
	return out
}
