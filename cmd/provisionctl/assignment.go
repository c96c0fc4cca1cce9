package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/course-portal-api/internal/app"
	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
)

func assignmentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "assignment", Short: "Run bulk assignment lifecycle operations"}
	cmd.AddCommand(batchCmd(models.BatchInitialize, "Create every student's team and repository"))
	cmd.AddCommand(batchCmd(models.BatchPublish, "Grant every student push access"))
	cmd.AddCommand(batchCmd(models.BatchClose, "Drop every student to read-only access"))
	cmd.AddCommand(batchCmd(models.BatchDelete, "Delete every repository and team of the assignment"))
	cmd.AddCommand(assignmentStatusCmd())
	cmd.AddCommand(assignmentDeleteRepoCmd())
	cmd.AddCommand(assignmentRosterCmd())
	return cmd
}

func batchCmd(op models.BatchOperation, short string) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   string(op) + " <deliverable-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if op == models.BatchDelete && !confirmed {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Assignments.Run(ctx, op, args[0])
				if res != nil {
					if perr := printBatch(os.Stdout, res); perr != nil {
						return perr
					}
				}
				if err != nil {
					return err
				}
				if !res.OK() {
					return fmt.Errorf("%d subjects failed; rerun to retry", len(res.Failures))
				}
				return nil
			})
		},
	}
	if op == models.BatchDelete {
		cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm deletion of hosted repositories")
	}
	return cmd
}

func assignmentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <deliverable-id>",
		Short: "Recompute and show the aggregate assignment status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report, err := a.Assignments.UpdateAssignmentStatus(ctx, args[0])
				if err != nil {
					return err
				}
				rows, err := a.Assignments.Roster(ctx, args[0])
				if err != nil {
					return err
				}
				return printAssignmentStatus(os.Stdout, report, rows)
			})
		},
	}
}

func assignmentDeleteRepoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-repo <deliverable-id> <repository-id>",
		Short: "Delete one repository of the assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Assignments.DeleteAssignmentRepository(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "deleted %s\n", args[1])
				return nil
			})
		},
	}
}

func assignmentRosterCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "roster <deliverable-id>",
		Short: "Export the repository status of every student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := service.ParseFormat(format)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				file, err := a.Exports.AssignmentRoster(ctx, args[0], f)
				if err != nil {
					return err
				}
				return writeFile(out, file)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (defaults to the export's file name)")
	return cmd
}
