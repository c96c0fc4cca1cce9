package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/app"
	"github.com/noah-isme/course-portal-api/pkg/config"
	"github.com/noah-isme/course-portal-api/pkg/logger"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "provisionctl",
	Short: "Course portal provisioning CLI",
	Long: `provisionctl runs the course portal's provisioning operations from a shell.
It reads the same environment as the API server (DB_*, REDIS_*, GITHUB_*, SDMM_*, PROVISION_*).
Bulk assignment commands are idempotent: rerunning one only performs the steps that are still missing.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func registerCommands() {
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(learnerCmd())
	rootCmd.AddCommand(gradeCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(deliverableCmd())
	rootCmd.AddCommand(membersCmd())
}

// withApp loads configuration, connects every backing service and runs fn.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Logs go to stderr next to the tables on stdout.
	cfg.Log.Format = "console"
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(ctx, cfg, logr.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
