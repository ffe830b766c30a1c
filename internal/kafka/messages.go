// Package kafka carries batch forecast requests between the api,
// scheduler, and simworker services.
package kafka

import "time"

// Topics for the batch forecast pipeline.
const (
	TopicForecastRequests = "forecasts.requests"
	TopicForecastDLQ      = "forecasts.dlq"
)

// ForecastRequest asks the simworker to run a batch Monte Carlo
// forecast for a plan. RunID keys the cached result; ScheduleID is set
// when the scheduler enqueued the request.
type ForecastRequest struct {
	RunID       string             `json:"run_id"`
	PlanID      string             `json:"plan_id"`
	Iterations  int                `json:"iterations"`
	Seed        int64              `json:"seed"`
	Bias        map[string]float64 `json:"bias,omitempty"`
	ScheduleID  string             `json:"schedule_id,omitempty"`
	RequestedAt time.Time          `json:"requested_at"`
}
