package store

import (
	"time"

	"github.com/plantwin/plantwin/internal/domain"
)

func days(now time.Time, n int) *time.Time {
	t := now.AddDate(0, 0, n)
	return &t
}

func fptr(v float64) *float64 { return &v }

// seedTasks lays out a three-week event plan around now: some work is
// done, one task is blocked behind an overdue predecessor, and the rest
// falls inside the attention windows.
func seedTasks(now time.Time) []domain.Task {
	return []domain.Task{
		{
			PlanID: SeedPlanID, ID: "seed-01", Title: "Book venue",
			BucketID: "b-venue", BucketName: "Venue", Status: domain.StatusCompleted,
			PercentComplete: 100, Priority: 2,
			StartDate: days(now, -14), DueDate: days(now, -10),
			CompletedDate: days(now, -9), CreatedDate: days(now, -21),
			AssigneeIDs: []string{"u-ana"}, AssigneeNames: []string{"Ana"},
			LastModifiedAt: days(now, -9),
		},
		{
			PlanID: SeedPlanID, ID: "seed-02", Title: "Sign venue contract",
			BucketID: "b-venue", BucketName: "Venue", Status: domain.StatusInProgress,
			PercentComplete: 50, Priority: 3,
			StartDate: days(now, -8), DueDate: days(now, -2),
			CreatedDate: days(now, -21), VarianceDays: fptr(3),
			AssigneeIDs: []string{"u-ana"}, AssigneeNames: []string{"Ana"},
			LastModifiedAt: days(now, -1),
		},
		{
			PlanID: SeedPlanID, ID: "seed-03", Title: "Arrange catering",
			BucketID: "b-venue", BucketName: "Venue", Status: domain.StatusNotStarted,
			PercentComplete: 0, Priority: 4,
			StartDate: days(now, 1), DueDate: days(now, 6),
			CreatedDate: days(now, -21),
			AssigneeIDs: []string{"u-ben"}, AssigneeNames: []string{"Ben"},
		},
		{
			PlanID: SeedPlanID, ID: "seed-04", Title: "Invite keynote speaker",
			BucketID: "b-speakers", BucketName: "Speakers", Status: domain.StatusCompleted,
			PercentComplete: 100, Priority: 1,
			StartDate: days(now, -12), DueDate: days(now, -5),
			CompletedDate: days(now, -6), CreatedDate: days(now, -21),
			AssigneeIDs: []string{"u-cho"}, AssigneeNames: []string{"Cho"},
		},
		{
			PlanID: SeedPlanID, ID: "seed-05", Title: "Collect speaker slides",
			BucketID: "b-speakers", BucketName: "Speakers", Status: domain.StatusInProgress,
			PercentComplete: 25, Priority: 5,
			StartDate: days(now, -3), DueDate: days(now, 5),
			CreatedDate: days(now, -18), VarianceDays: fptr(2),
			AssigneeIDs: []string{"u-cho"}, AssigneeNames: []string{"Cho"},
			LastModifiedAt: days(now, 0),
		},
		{
			PlanID: SeedPlanID, ID: "seed-06", Title: "Book travel for speakers",
			BucketID: "b-travel", BucketName: "Travel", Status: domain.StatusNotStarted,
			PercentComplete: 0, Priority: 4,
			StartDate: days(now, 2), DueDate: days(now, 9),
			CreatedDate: days(now, -18),
			AssigneeIDs: []string{"u-ben"}, AssigneeNames: []string{"Ben"},
		},
		{
			PlanID: SeedPlanID, ID: "seed-07", Title: "Announce agenda",
			BucketID: "b-marketing", BucketName: "Marketing", Status: domain.StatusNotStarted,
			PercentComplete: 0, Priority: 6,
			StartDate: days(now, 7), DueDate: days(now, 12),
			CreatedDate: days(now, -15),
			AssigneeIDs: []string{"u-dee"}, AssigneeNames: []string{"Dee"},
		},
		{
			PlanID: SeedPlanID, ID: "seed-08", Title: "Open registration",
			BucketID: "b-marketing", BucketName: "Marketing", Status: domain.StatusNotStarted,
			PercentComplete: 0, Priority: 3,
			StartDate: days(now, 8), DueDate: days(now, 15),
			CreatedDate: days(now, -15), VarianceDays: fptr(1),
			AssigneeIDs: []string{"u-dee"}, AssigneeNames: []string{"Dee"},
		},
		{
			PlanID: SeedPlanID, ID: "seed-09", Title: "Run event day",
			BucketID: "b-ops", BucketName: "Operations", Status: domain.StatusNotStarted,
			PercentComplete: 0, Priority: 1,
			StartDate: days(now, 20), DueDate: days(now, 21),
			CreatedDate: days(now, -15),
			AssigneeIDs: []string{"u-ana", "u-ben"}, AssigneeNames: []string{"Ana", "Ben"},
		},
		{
			PlanID: SeedPlanID, ID: "seed-10", Title: "Send post-event survey",
			BucketID: "b-ops", BucketName: "Operations", Status: domain.StatusNotStarted,
			PercentComplete: 0, Priority: 8,
			StartDate: days(now, 22), DueDate: days(now, 24),
			CreatedDate: days(now, -15),
			AssigneeIDs: []string{"u-dee"}, AssigneeNames: []string{"Dee"},
		},
	}
}

func seedEdges() []domain.DependencyEdge {
	fs := domain.DependencyTypeFS
	return []domain.DependencyEdge{
		{TaskID: "seed-02", DependsOnID: "seed-01", Type: fs},
		{TaskID: "seed-03", DependsOnID: "seed-02", Type: fs},
		{TaskID: "seed-05", DependsOnID: "seed-04", Type: fs},
		{TaskID: "seed-06", DependsOnID: "seed-04", Type: fs},
		{TaskID: "seed-07", DependsOnID: "seed-05", Type: fs},
		{TaskID: "seed-08", DependsOnID: "seed-07", Type: fs},
		{TaskID: "seed-09", DependsOnID: "seed-03", Type: fs},
		{TaskID: "seed-09", DependsOnID: "seed-06", Type: fs},
		{TaskID: "seed-09", DependsOnID: "seed-08", Type: fs},
		{TaskID: "seed-10", DependsOnID: "seed-09", Type: fs},
	}
}
