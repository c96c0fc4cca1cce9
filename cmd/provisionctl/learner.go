package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/course-portal-api/internal/app"
	"github.com/noah-isme/course-portal-api/internal/service"
)

func learnerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "learner", Short: "Inspect and move learners on the milestone ladder"}
	cmd.AddCommand(learnerResolveCmd())
	cmd.AddCommand(learnerProvisionCmd())
	cmd.AddCommand(learnerPullRequestCmd())
	cmd.AddCommand(learnerTokenCmd())
	return cmd
}

func learnerResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <person-id>...",
		Short: "Resolve the ladder stage of one or more learners",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var reports []stageRow
				for _, id := range args {
					report, err := a.Resolver.Resolve(ctx, id)
					if err != nil {
						reports = append(reports, stageRow{PersonID: id, Err: err})
						continue
					}
					reports = append(reports, stageRow{PersonID: id, Report: report})
				}
				return printStages(os.Stdout, reports)
			})
		},
	}
}

func learnerProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision <deliverable-id> <person-id>...",
		Short: "Provision a deliverable repository for a learner or pair",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Provisioning.Provision(ctx, service.ProvisionRequest{DeliverableID: args[0], MemberIDs: args[1:]})
				if err != nil {
					return err
				}
				return printProvision(os.Stdout, res)
			})
		},
	}
}

func learnerPullRequestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull-request <repository-id>",
		Short: "Record the milestone pull request of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				changed, err := a.Provisioning.RecordPullRequest(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(os.Stdout, map[string]interface{}{"repository_id": args[0], "changed": changed})
				}
				fmt.Fprintf(os.Stdout, "%s pull request recorded (changed=%t)\n", args[0], changed)
				return nil
			})
		},
	}
}

func learnerTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <person-id>",
		Short: "Issue an API token for a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				person, err := a.Stores.People.FindByID(ctx, args[0])
				if err != nil {
					return fmt.Errorf("load person %s: %w", args[0], err)
				}
				token, err := a.Tokens.Issue(person)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(os.Stdout, token)
				}
				fmt.Fprintln(os.Stdout, token.Token)
				return nil
			})
		},
	}
}
