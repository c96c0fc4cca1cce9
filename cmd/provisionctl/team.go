package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/course-portal-api/internal/app"
	"github.com/noah-isme/course-portal-api/internal/service"
)

func teamCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "team", Short: "Form teams for team deliverables"}
	cmd.AddCommand(teamFormCmd())
	return cmd
}

func teamFormCmd() *cobra.Command {
	var override bool
	cmd := &cobra.Command{
		Use:   "form <deliverable-id> <person-id>...",
		Short: "Form a team; rerunning with the same members returns the existing team",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Teams.FormTeam(ctx, service.FormTeamRequest{
					DeliverableID: args[0],
					MemberIDs:     args[1:],
					AdminOverride: override,
				})
				if err != nil {
					return err
				}
				return printTeam(os.Stdout, res)
			})
		},
	}
	cmd.Flags().BoolVar(&override, "override", false, "skip size, self-forming, enrolment and lab checks")
	return cmd
}
