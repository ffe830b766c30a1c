package markov

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwin/plantwin/internal/domain"
)

var mkNow = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestClassify(t *testing.T) {
	pastDue := mkNow.Add(-10 * 24 * time.Hour)
	recentDue := mkNow.Add(-2 * 24 * time.Hour)

	cases := []struct {
		name string
		task domain.Task
		want State
	}{
		{"completed by percent", domain.Task{PercentComplete: 100, Status: domain.StatusInProgress}, Completed},
		{"cancelled status", domain.Task{Status: domain.StatusCancelled}, Cancelled},
		{"cancel marker in description", domain.Task{Description: "Session CANCELLED by speaker"}, Cancelled},
		{"stuck at 50 long past due", domain.Task{PercentComplete: 50, DueDate: &pastDue}, Blocked},
		{"at 50 recently due", domain.Task{PercentComplete: 50, DueDate: &recentDue}, InProgress},
		{"at 50 no due date", domain.Task{PercentComplete: 50}, InProgress},
		{"at 50 but completed", domain.Task{PercentComplete: 50, DueDate: &pastDue, CompletedDate: &recentDue}, InProgress},
		{"partially done", domain.Task{PercentComplete: 30}, InProgress},
		{"assigned not started", domain.Task{AssigneeIDs: []string{"u1"}}, Planning},
		{"unassigned not started", domain.Task{}, NotStarted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.task, mkNow))
		})
	}
}

func TestBuildMatrixDefaults(t *testing.T) {
	m := BuildMatrix(nil, mkNow)

	assert.Equal(t, []TransitionProb{{Planning, 0.7}, {NotStarted, 0.3}}, m[NotStarted])
	assert.Equal(t, []TransitionProb{{InProgress, 0.8}, {Planning, 0.2}}, m[Planning])
	assert.Equal(t, []TransitionProb{{Completed, 1.0}}, m[Completed])
	assert.Equal(t, []TransitionProb{{Cancelled, 1.0}}, m[Cancelled])

	for _, from := range States {
		total := 0.0
		for _, tp := range m[from] {
			total += tp.Probability
		}
		assert.InDelta(t, 1.0, total, 1e-9, "row %s", from)
	}
}

func TestBuildMatrixObservedTransitions(t *testing.T) {
	done := mkNow.Add(-24 * time.Hour)
	historical := []domain.Task{
		{ID: "h1", PercentComplete: 100, CompletedDate: &done},
		{ID: "h2", PercentComplete: 100, CompletedDate: &done},
	}
	m := BuildMatrix(historical, mkNow)

	// Every completed task contributes the full lifecycle path, so observed
	// rows replace the defaults with certainty.
	assert.Equal(t, []TransitionProb{{Planning, 1.0}}, m[NotStarted])
	assert.Equal(t, []TransitionProb{{InProgress, 1.0}}, m[Planning])
	assert.Equal(t, []TransitionProb{{Completed, 1.0}}, m[InProgress])
	// States with no observations keep their defaults.
	assert.Equal(t, []TransitionProb{{InProgress, 0.6}, {Blocked, 0.4}}, m[Blocked])
}

func TestExpectedCompletionAbsorbing(t *testing.T) {
	m := BuildMatrix(nil, mkNow)
	rng := rand.New(rand.NewSource(1))

	exp := ExpectedCompletion(Completed, m, 10, rng)
	assert.Zero(t, exp.ExpectedCompletionDays)
	assert.Zero(t, exp.Variance)
}

func TestExpectedCompletionTerminates(t *testing.T) {
	// A matrix that always stays in place would loop forever without the
	// visited guard.
	m := Matrix{InProgress: {{InProgress, 1.0}}}
	rng := rand.New(rand.NewSource(1))

	exp := ExpectedCompletion(InProgress, m, 10, rng)
	assert.InDelta(t, 6.0, exp.ExpectedCompletionDays, 1e-9)
	assert.InDelta(t, 1.8, exp.Variance, 1e-9)
}

func TestExpectedCompletionPositiveForPendingStates(t *testing.T) {
	m := BuildMatrix(nil, mkNow)
	rng := rand.New(rand.NewSource(42))

	for _, s := range []State{Planning, InProgress, Blocked, UnderReview} {
		exp := ExpectedCompletion(s, m, 10, rng)
		assert.Greater(t, exp.ExpectedCompletionDays, 0.0, "state %s", s)
		assert.InDelta(t, exp.ExpectedCompletionDays*0.3, exp.Variance, 1e-9)
	}
}

func TestAnalyzeSingleTask(t *testing.T) {
	start := mkNow.Add(-5 * 24 * time.Hour)
	due := mkNow.Add(5 * 24 * time.Hour)
	tasks := []domain.Task{
		{ID: "a", Title: "Design", PercentComplete: 30, StartDate: &start, DueDate: &due},
		{ID: "b", Title: "Build"},
	}
	m := BuildMatrix(nil, mkNow)

	res, err := Analyze("p1", tasks, "a", m, mkNow, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, "a", res.TaskID)
	assert.Equal(t, InProgress, res.CurrentState)
	require.NotNil(t, res.Expected)
	assert.Greater(t, res.Expected.ExpectedCompletionDays, 0.0)
}

func TestAnalyzeUnknownTask(t *testing.T) {
	m := BuildMatrix(nil, mkNow)
	_, err := Analyze("p1", []domain.Task{{ID: "a"}}, "ghost", m, mkNow, rand.New(rand.NewSource(1)))
	var notFound *domain.TaskNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestAnalyzeWholePlan(t *testing.T) {
	tasks := []domain.Task{
		{ID: "a", Title: "Design", PercentComplete: 100},
		{ID: "b", Title: "Build", PercentComplete: 25},
		{ID: "c", Title: "Review", AssigneeIDs: []string{"u1"}},
	}
	m := BuildMatrix(nil, mkNow)

	res, err := Analyze("p1", tasks, "", m, mkNow, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, res.TaskAnalyses, 3)
	assert.Equal(t, Completed, res.TaskAnalyses[0].CurrentState)
	assert.Equal(t, InProgress, res.TaskAnalyses[1].CurrentState)
	assert.Equal(t, Planning, res.TaskAnalyses[2].CurrentState)
}
