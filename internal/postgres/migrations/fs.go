// Package migrations embeds the SQL schema applied by the migrate
// subcommand.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in apply order.
var Files = []string{
	"001_create_plans.sql",
	"002_create_plan_tasks.sql",
	"003_create_plan_dependencies.sql",
	"004_create_plan_sync_state.sql",
	"005_create_scheduled_forecasts.sql",
	"006_create_forecast_runs.sql",
}
