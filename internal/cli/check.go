package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/anemtools/rdvwatcher/internal/control"
)

var checkCmd = &cobra.Command{
	Use:   "check [wassit_number]",
	Short: "Run the full pipeline once for a single member",
	Args:  cobra.ExactArgs(1),
	Run:   runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	mem, err := app.Monitor().CheckNow(ctx, args[0])
	if err != nil {
		slog.Error("Check failed", "member", args[0], "error", err)
		if mem == nil {
			os.Exit(1)
		}
	}

	fmt.Printf("member:  %s\n", mem.WassitNumber)
	fmt.Printf("status:  %s\n", mem.Status)
	fmt.Printf("detail:  %s\n", mem.FullDetail)
	if mem.AppointmentDate != "" {
		fmt.Printf("appointment: %s\n", mem.AppointmentDate)
	}
}
