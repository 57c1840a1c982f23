package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
	"github.com/anemtools/rdvwatcher/internal/infra/storage"
	"github.com/anemtools/rdvwatcher/internal/infra/storage/postgres"
)

var (
	addCCP   string
	addPhone string
)

var addMemberCmd = &cobra.Command{
	Use:   "add [wassit_number] [identity_doc]",
	Short: "Add a member to the roster",
	Args:  cobra.ExactArgs(2),
	Run:   runAddMember,
}

var removeMemberCmd = &cobra.Command{
	Use:   "remove [wassit_number]",
	Short: "Remove a member from the roster",
	Args:  cobra.ExactArgs(1),
	Run:   runRemoveMember,
}

func init() {
	addMemberCmd.Flags().StringVar(&addCCP, "ccp", "", "payment account number")
	addMemberCmd.Flags().StringVar(&addPhone, "phone", "", "contact phone number")
	rootCmd.AddCommand(addMemberCmd)
	rootCmd.AddCommand(removeMemberCmd)
}

func openRepo(ctx context.Context) (*postgres.MemberRepo, *postgres.DB) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("roster management requires a configured database")
		os.Exit(1)
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return postgres.NewMemberRepo(db), db
}

func runAddMember(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	repo, db := openRepo(ctx)
	defer func() {
		_ = db.Close()
	}()

	m := domain.NewMember(args[0], args[1], addCCP, addPhone)
	if err := repo.Upsert(ctx, m); err != nil {
		slog.Error("Failed to add member", "error", err)
		os.Exit(1)
	}
	fmt.Printf("added member %s\n", m.WassitNumber)
}

func runRemoveMember(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	repo, db := openRepo(ctx)
	defer func() {
		_ = db.Close()
	}()

	if err := repo.Delete(ctx, args[0]); err != nil {
		if errors.Is(err, storage.ErrMemberNotFound) {
			slog.Error("Member not found", "member", args[0])
		} else {
			slog.Error("Failed to remove member", "error", err)
		}
		os.Exit(1)
	}
	fmt.Printf("removed member %s\n", args[0])
}
