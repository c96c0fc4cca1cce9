package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/course-portal-api/internal/app"
	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
)

func gradeCmd() *cobra.Command {
	var comment, source string
	cmd := &cobra.Command{
		Use:   "grade <person-id> <deliverable-id> <score>",
		Short: "Record a grade",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid score %q", args[2])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Grades.Record(ctx, service.GradeRequest{
					PersonID:      args[0],
					DeliverableID: args[1],
					Score:         &score,
					Comment:       comment,
					Source:        models.GradeSource(source),
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(os.Stdout, res)
				}
				stage := "-"
				if res.Stage != nil {
					stage = res.Stage.String()
				}
				fmt.Fprintf(os.Stdout, "%s %s changed=%t stage=%s\n", args[0], args[1], res.Changed, stage)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "grade comment")
	cmd.Flags().StringVar(&source, "source", string(models.GradeSourceStaff), "STAFF or AUTOTEST")
	return cmd
}

func rosterCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Export every learner's ladder stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := service.ParseFormat(format)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				file, err := a.Exports.LadderRoster(ctx, f)
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

func deliverableCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "deliverable", Short: "Manage deliverable definitions"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List deliverables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Stores.Deliverables.List(ctx)
				if err != nil {
					return err
				}
				return printDeliverables(os.Stdout, items)
			})
		},
	})

	var file string
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a deliverable from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var d models.Deliverable
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			if d.ID == "" {
				return fmt.Errorf("%s: deliverable id required", file)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Stores.Deliverables.Upsert(ctx, &d); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "saved %s\n", d.ID)
				return nil
			})
		},
	}
	put.Flags().StringVarP(&file, "file", "f", "", "deliverable JSON file")
	_ = put.MarkFlagRequired("file")
	cmd.AddCommand(put)
	return cmd
}

func membersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "members", Short: "Reconcile students with the hosting organisation"}
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Withdraw students who are no longer organisation members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Membership.Sync(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(os.Stdout, res)
				}
				fmt.Fprintf(os.Stdout, "active=%d withdrawn=%d\n", len(res.Active), res.Withdrawn)
				return nil
			})
		},
	})
	return cmd
}
