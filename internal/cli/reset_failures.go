package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/anemtools/rdvwatcher/internal/infra/storage/postgres"
)

var resetFailuresCmd = &cobra.Command{
	Use:   "reset-failures",
	Short: "Zero every member's consecutive failure counter",
	Run:   runResetFailures,
}

func init() {
	rootCmd.AddCommand(resetFailuresCmd)
}

func runResetFailures(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if cfg.Database.URL == "" {
		slog.Error("reset-failures requires a configured database")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := postgres.NewMemberRepo(db).ResetFailures(ctx); err != nil {
		slog.Error("Failed to reset failure counters", "error", err)
		os.Exit(1)
	}

	fmt.Println("Successfully reset all member failure counters")
}
