package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

type stageRow struct {
	PersonID string              `json:"person_id"`
	Report   *models.StageReport `json:"report,omitempty"`
	Err      error               `json:"-"`
	Error    string              `json:"error,omitempty"`
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printBatch(w io.Writer, res *models.BatchResult) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	tw := newTable(w)
	tw.SetTitle(fmt.Sprintf("%s %s: %d attempted", res.Operation, res.DeliverableID, res.Attempted))
	tw.AppendHeader(table.Row{"Subject", "Outcome", "Reason"})
	for _, id := range res.Succeeded {
		tw.AppendRow(table.Row{id, "done", ""})
	}
	for _, id := range res.Skipped {
		tw.AppendRow(table.Row{id, "skipped", ""})
	}
	for _, f := range res.Failures {
		outcome := "failed"
		if f.Retryable {
			outcome = "failed (retryable)"
		}
		tw.AppendRow(table.Row{f.SubjectID, outcome, f.Reason})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d ok / %d skipped / %d failed", len(res.Succeeded), len(res.Skipped), len(res.Failures)), ""})
	tw.Render()
	return nil
}

func printAssignmentStatus(w io.Writer, report *models.AssignmentStatusReport, rows []models.SubjectStatus) error {
	if jsonOutput {
		return printJSON(w, map[string]interface{}{"report": report, "repositories": rows})
	}
	tw := newTable(w)
	tw.SetTitle(fmt.Sprintf("%s: %s (%d/%d provided)", report.DeliverableID, report.Aggregate, report.ProvidedCount, report.TotalSubjects))
	tw.AppendHeader(table.Row{"Student", "Repository", "Status", "URL"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.SubjectID, r.RepositoryID, r.Status, r.RepositoryURL})
	}
	tw.Render()
	return nil
}

func printStages(w io.Writer, rows []stageRow) error {
	if jsonOutput {
		for i := range rows {
			if rows[i].Err != nil {
				rows[i].Error = stageError(rows[i].Err)
			}
		}
		return printJSON(w, rows)
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Person", "Stage", "D0", "D1", "D2", "D3"})
	for _, r := range rows {
		if r.Err != nil {
			tw.AppendRow(table.Row{r.PersonID, stageError(r.Err), "", "", "", ""})
			continue
		}
		tw.AppendRow(table.Row{r.PersonID, r.Report.Stage, score(r.Report.D0), score(r.Report.D1), score(r.Report.D2), score(r.Report.D3)})
	}
	tw.Render()
	return nil
}

func printProvision(w io.Writer, res *models.ProvisionResult) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	tw := newTable(w)
	tw.AppendRows([]table.Row{
		{"Stage", res.Stage},
		{"Message", res.Message},
		{"Team", res.TeamID},
		{"Repository", res.RepositoryID},
		{"URL", res.RepositoryURL},
		{"Changed", res.Changed},
	})
	tw.Render()
	return nil
}

func printTeam(w io.Writer, res *service.FormTeamResult) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	tw := newTable(w)
	tw.AppendRows([]table.Row{
		{"Team", res.Team.ID},
		{"Deliverable", res.Team.DeliverableID},
		{"Members", strings.Join(res.Team.PersonIDs, ", ")},
		{"Status", res.Team.Status},
		{"Created", res.Created},
	})
	tw.Render()
	return nil
}

func printDeliverables(w io.Writer, items []models.Deliverable) error {
	if jsonOutput {
		return printJSON(w, items)
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Team size", "Prefixes", "Assignment"})
	for _, d := range items {
		assignment := "-"
		if d.IsAssignment() {
			assignment = d.AssignmentStatus().String()
		}
		tw.AppendRow(table.Row{d.ID, fmt.Sprintf("%d-%d", d.TeamMinSize, d.TeamMaxSize), strings.TrimSpace(d.TeamPrefix + " " + d.RepoPrefix), assignment})
	}
	tw.Render()
	return nil
}

func writeFile(out string, file *service.RenderedFile) error {
	if out == "" {
		out = file.Filename
	}
	if out == "-" {
		_, err := os.Stdout.Write(file.Payload)
		return err
	}
	if err := os.WriteFile(out, file.Payload, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", out, len(file.Payload))
	return nil
}

func score(g models.GradePayload) string {
	if g.Score == nil {
		return ""
	}
	return fmt.Sprintf("%g", *g.Score)
}

func stageError(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return err.Error()
}
