package simulate

import "fmt"

// Suggestion is a rule-based recommendation derived from forecast output.
type Suggestion struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Priority   string `json:"priority"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	TaskID     string `json:"task_id,omitempty"`
	ActionHint string `json:"action_hint"`
}

// buildSuggestions applies fixed thresholds to the aggregated forecast:
// below 70% on-time with a known risk driver, below 85% on-time, and a long
// critical path each trigger one suggestion; a re-sync hint is always added.
func buildSuggestions(pOnTime float64, riskTasks []RiskTask, criticalLen int) []Suggestion {
	var out []Suggestion

	if pOnTime < 70 && len(riskTasks) > 0 {
		top := riskTasks[0]
		out = append(out, Suggestion{
			ID:       "s1",
			Type:     "enhancement",
			Priority: "high",
			Title:    "Add buffer to highest-variance critical task",
			Detail: fmt.Sprintf("Task '%s' (id: %s) has high variance. Add a 1-2 day buffer or parallel prep to protect the event date.",
				top.Title, top.TaskID),
			TaskID:     top.TaskID,
			ActionHint: "Consider shifting a predecessor or adding a backup owner.",
		})
	}

	if pOnTime < 85 {
		out = append(out, Suggestion{
			ID:       "s2",
			Type:     "modification",
			Priority: "medium",
			Title:    "Tighten due dates on downstream tasks",
			Detail: fmt.Sprintf("On-time probability is %.0f%%. Bring forward due dates for non-critical tasks to create slack on the critical path.",
				pOnTime),
			ActionHint: "Review late-stage logistics and handover dates.",
		})
	}

	if criticalLen >= 4 {
		out = append(out, Suggestion{
			ID:         "s3",
			Type:       "enhancement",
			Priority:   "medium",
			Title:      "Parallelize where possible",
			Detail:     "The critical path has multiple tasks. Independent workstreams could run in parallel to reduce end-to-end duration.",
			ActionHint: "Check the dependency graph for tasks that can start earlier.",
		})
	}

	out = append(out, Suggestion{
		ID:         "s4",
		Type:       "modification",
		Priority:   "low",
		Title:      "Re-sync plan data and re-run the forecast",
		Detail:     "After a re-sync, run the forecast again to see the updated on-time probability with the latest percent-complete and due dates.",
		ActionHint: "Trigger a sync and refresh this view.",
	})

	return out
}
