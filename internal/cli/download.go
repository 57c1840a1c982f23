package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/anemtools/rdvwatcher/internal/control"
)

var downloadDocsCmd = &cobra.Command{
	Use:   "download-docs [wassit_number]",
	Short: "Fetch both confirmation documents for one member",
	Args:  cobra.ExactArgs(1),
	Run:   runDownloadDocs,
}

func init() {
	rootCmd.AddCommand(downloadDocsCmd)
}

func runDownloadDocs(cmd *cobra.Command, args []string) {
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

	mem, err := app.Monitor().DownloadAllDocuments(ctx, args[0])
	if err != nil {
		slog.Error("Document download failed", "member", args[0], "error", err)
		os.Exit(1)
	}

	fmt.Printf("engagement report: %s\n", mem.HonneurDocPath)
	if mem.RdvDocPath != "" {
		fmt.Printf("appointment report: %s\n", mem.RdvDocPath)
	}
}
