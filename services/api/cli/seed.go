package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/plantwin/plantwin/internal/postgres"
	"github.com/plantwin/plantwin/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo plan into PostgreSQL",
	Long: `Insert the built-in demo event plan (tasks and dependencies) into the
database, with dates anchored at the current time. Re-running refreshes
the demo plan in place.`,
	RunE: runSeed,
}

func runSeed(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, viper.GetString("postgres_dsn"))
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	seed := store.NewSeedStore(time.Now().UTC())
	tasks, err := seed.Tasks(ctx, store.SeedPlanID)
	if err != nil {
		return fmt.Errorf("seed tasks: %w", err)
	}
	edges, err := seed.Dependencies(ctx, store.SeedPlanID)
	if err != nil {
		return fmt.Errorf("seed dependencies: %w", err)
	}

	count, err := repo.UpsertTasks(ctx, store.SeedPlanID, tasks)
	if err != nil {
		return fmt.Errorf("upsert tasks: %w", err)
	}
	if err := repo.ReplaceDependencies(ctx, store.SeedPlanID, edges); err != nil {
		return fmt.Errorf("replace dependencies: %w", err)
	}

	fmt.Printf("seeded plan %q: %d tasks, %d dependencies\n", store.SeedPlanID, count, len(edges))
	return nil
}
