// Package markov models task lifecycles as a finite Markov chain: a state
// classifier, an empirically-fitted transition matrix with documented
// defaults, and a bounded random walk estimating time to completion.
package markov

import (
	"math/rand"
	"strings"
	"time"

	"github.com/plantwin/plantwin/internal/domain"
)

// State is a task's position in the lifecycle chain.
type State string

const (
	NotStarted  State = "NotStarted"
	Planning    State = "Planning"
	InProgress  State = "InProgress"
	Blocked     State = "Blocked"
	UnderReview State = "UnderReview"
	Completed   State = "Completed"
	Cancelled   State = "Cancelled"
)

// States lists every state in canonical order.
var States = []State{NotStarted, Planning, InProgress, Blocked, UnderReview, Completed, Cancelled}

// Absorbing reports whether the chain never leaves this state.
func (s State) Absorbing() bool {
	return s == Completed || s == Cancelled
}

const (
	defaultBaseDays = 10.0
	maxWalkSteps    = 100
	blockedGrace    = 7 * 24 * time.Hour
)

// stateDurationFraction is each non-absorbing state's contribution to the
// expected completion time, as a fraction of the task's base duration.
var stateDurationFraction = map[State]float64{
	NotStarted:  0,
	Planning:    0.2,
	InProgress:  0.6,
	Blocked:     0.3,
	UnderReview: 0.2,
	Completed:   0,
	Cancelled:   0,
}

// Classify maps a task snapshot to its chain state. Percent-complete and the
// completion date are authoritative; status only decides cancellation.
func Classify(t domain.Task, now time.Time) State {
	switch {
	case t.PercentComplete >= 100:
		return Completed
	case t.Status == domain.StatusCancelled || containsCancelMarker(t.Description):
		return Cancelled
	case t.PercentComplete == 50:
		// Stuck at the midpoint well past due with no completion looks blocked.
		if t.DueDate != nil && t.CompletedDate == nil && now.After(t.DueDate.Add(blockedGrace)) {
			return Blocked
		}
		return InProgress
	case t.PercentComplete > 0:
		return InProgress
	case len(t.AssigneeIDs) > 0:
		return Planning
	default:
		return NotStarted
	}
}

func containsCancelMarker(desc string) bool {
	return strings.Contains(strings.ToLower(desc), "cancel")
}

// Matrix maps from-state to its outgoing probability row. Rows preserve a
// fixed state order so sampling is deterministic for a fixed random stream.
type Matrix map[State][]TransitionProb

// TransitionProb is one outgoing edge of the chain.
type TransitionProb struct {
	To          State   `json:"to"`
	Probability float64 `json:"probability"`
}

// defaultRows are the calibrated fallbacks for states with no observed
// transitions.
var defaultRows = map[State][]TransitionProb{
	NotStarted:  {{Planning, 0.7}, {NotStarted, 0.3}},
	Planning:    {{InProgress, 0.8}, {Planning, 0.2}},
	InProgress:  {{UnderReview, 0.4}, {Blocked, 0.15}, {InProgress, 0.45}},
	Blocked:     {{InProgress, 0.6}, {Blocked, 0.4}},
	UnderReview: {{Completed, 0.7}, {InProgress, 0.3}},
	Completed:   {{Completed, 1.0}},
	Cancelled:   {{Cancelled, 1.0}},
}

// BuildMatrix fits the transition matrix from historical task snapshots.
// Lifecycle transitions are inferred from each task's terminal evidence
// (completion date, blocked classification); any from-state with no observed
// transitions keeps its default row, and absorbing states always self-map.
func BuildMatrix(historical []domain.Task, now time.Time) Matrix {
	counts := make(map[State]map[State]int)
	bump := func(from, to State) {
		if counts[from] == nil {
			counts[from] = make(map[State]int)
		}
		counts[from][to]++
	}

	for _, t := range historical {
		state := Classify(t, now)
		switch {
		case t.CompletedDate != nil || state == Completed:
			bump(NotStarted, Planning)
			bump(Planning, InProgress)
			bump(InProgress, Completed)
		case state == Blocked:
			bump(InProgress, Blocked)
			bump(Blocked, InProgress)
		case state == InProgress:
			bump(Planning, InProgress)
		}
	}

	m := make(Matrix, len(States))
	for _, from := range States {
		if from.Absorbing() {
			m[from] = []TransitionProb{{from, 1.0}}
			continue
		}
		observed := counts[from]
		total := 0
		for _, c := range observed {
			total += c
		}
		if total == 0 {
			m[from] = append([]TransitionProb(nil), defaultRows[from]...)
			continue
		}
		var row []TransitionProb
		for _, to := range States {
			if c := observed[to]; c > 0 {
				row = append(row, TransitionProb{to, float64(c) / float64(total)})
			}
		}
		m[from] = row
	}
	return m
}

// Expectation is the estimated time to absorption from a state.
type Expectation struct {
	CurrentState           State   `json:"current_state"`
	ExpectedCompletionDays float64 `json:"expected_completion_days"`
	Variance               float64 `json:"variance"`
}

// ExpectedCompletion walks the chain from state, accumulating each visited
// non-absorbing state's duration fraction of baseDays. The walk is bounded
// and guards against revisiting a state, so it terminates even on a
// degenerate matrix. Variance is a fixed 0.3 multiple of the expectation.
func ExpectedCompletion(state State, m Matrix, baseDays float64, rng *rand.Rand) Expectation {
	if baseDays <= 0 {
		baseDays = defaultBaseDays
	}
	expected := 0.0
	current := state
	visited := make(map[State]bool, len(States))

	for step := 0; step < maxWalkSteps; step++ {
		if current.Absorbing() || visited[current] {
			break
		}
		visited[current] = true
		expected += stateDurationFraction[current] * baseDays

		row := m[current]
		if len(row) == 0 {
			break
		}
		r := rng.Float64()
		cum := 0.0
		for _, tp := range row {
			cum += tp.Probability
			if r <= cum {
				current = tp.To
				break
			}
		}
	}

	return Expectation{
		CurrentState:           state,
		ExpectedCompletionDays: expected,
		Variance:               expected * 0.3,
	}
}

// TaskAnalysis is one task's state and completion estimate.
type TaskAnalysis struct {
	TaskID                 string  `json:"task_id"`
	Title                  string  `json:"title"`
	CurrentState           State   `json:"current_state"`
	ExpectedCompletionDays float64 `json:"expected_completion_days"`
}

// Analysis is the Markov view of a plan or a single task.
type Analysis struct {
	PlanID           string         `json:"plan_id"`
	TaskID           string         `json:"task_id,omitempty"`
	CurrentState     State          `json:"current_state,omitempty"`
	TransitionMatrix Matrix         `json:"transition_matrix"`
	Expected         *Expectation   `json:"expected_completion,omitempty"`
	TaskAnalyses     []TaskAnalysis `json:"task_analyses,omitempty"`
}

// Analyze classifies tasks and estimates completion. With a taskID it
// reports that task alone (unknown IDs return TaskNotFoundError); otherwise
// it covers the whole plan.
func Analyze(planID string, tasks []domain.Task, taskID string, m Matrix, now time.Time, rng *rand.Rand) (*Analysis, error) {
	if taskID != "" {
		for _, t := range tasks {
			if t.ID != taskID {
				continue
			}
			state := Classify(t, now)
			exp := ExpectedCompletion(state, m, baseDuration(t), rng)
			return &Analysis{
				PlanID:           planID,
				TaskID:           taskID,
				CurrentState:     state,
				TransitionMatrix: m,
				Expected:         &exp,
			}, nil
		}
		return nil, &domain.TaskNotFoundError{PlanID: planID, TaskID: taskID}
	}

	analyses := make([]TaskAnalysis, 0, len(tasks))
	for _, t := range tasks {
		state := Classify(t, now)
		exp := ExpectedCompletion(state, m, baseDuration(t), rng)
		analyses = append(analyses, TaskAnalysis{
			TaskID:                 t.ID,
			Title:                  t.Title,
			CurrentState:           state,
			ExpectedCompletionDays: exp.ExpectedCompletionDays,
		})
	}
	return &Analysis{PlanID: planID, TransitionMatrix: m, TaskAnalyses: analyses}, nil
}

func baseDuration(t domain.Task) float64 {
	if t.StartDate != nil && t.DueDate != nil {
		return domain.DaysBetween(*t.StartDate, *t.DueDate)
	}
	return defaultBaseDays
}
