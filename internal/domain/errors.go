package domain

import (
	"fmt"
	"time"
)

// TaskNotFoundError is returned when a task ID does not exist in a plan.
type TaskNotFoundError struct {
	PlanID string
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found in plan %s: %s", e.PlanID, e.TaskID)
}

// PlanNotFoundError is returned when a plan ID does not exist.
type PlanNotFoundError struct {
	PlanID string
}

func (e *PlanNotFoundError) Error() string {
	return fmt.Sprintf("plan not found: %s", e.PlanID)
}

// NoTasksError is returned when an analysis is requested against an empty plan.
type NoTasksError struct {
	PlanID string
}

func (e *NoTasksError) Error() string {
	return fmt.Sprintf("plan %s has no tasks to analyze", e.PlanID)
}

// LockHeldError is returned when an edit lock is already held by another owner.
type LockHeldError struct {
	TaskID    string
	Owner     string
	ExpiresAt time.Time
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("task %s is locked by %s until %s", e.TaskID, e.Owner, e.ExpiresAt.Format(time.RFC3339))
}

// InvalidTrialCountError is returned when an interactive forecast asks for a
// trial count outside the accepted range.
type InvalidTrialCountError struct {
	Trials int
	Min    int
	Max    int
}

func (e *InvalidTrialCountError) Error() string {
	return fmt.Sprintf("trial count %d out of range [%d, %d]", e.Trials, e.Min, e.Max)
}
