package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anemtools/rdvwatcher/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current status of all roster members",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if cfg.Database.URL == "" {
		slog.Error("status requires a configured database")
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

	members, err := postgres.NewMemberRepo(db).Load(ctx)
	if err != nil {
		slog.Error("Failed to load roster", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "MEMBER\tNAME\tSTATUS\tFAILURES\tDETAIL")

	for _, m := range members {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			m.WassitNumber, m.FullNameAr(), m.Status, m.ConsecutiveFailures, m.Detail)
	}
	_ = w.Flush()
}
