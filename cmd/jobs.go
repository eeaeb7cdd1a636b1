package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bulkload/internal/clix"
	"bulkload/internal/models"
)

var (
	jobsOutput    string
	jobsTargetOrg string
)

// runView is the --output json|yaml rendering of a run history record.
type runView struct {
	RunID                 string    `json:"runId" yaml:"runId"`
	JobID                 string    `json:"jobId,omitempty" yaml:"jobId,omitempty"`
	Object                string    `json:"object" yaml:"object"`
	Operation             string    `json:"operation" yaml:"operation"`
	DataSourcePath        string    `json:"dataSourcePath" yaml:"dataSourcePath"`
	DataSourceSize        int64     `json:"dataSourceSize" yaml:"dataSourceSize"`
	UploadStatus          string    `json:"uploadStatus" yaml:"uploadStatus"`
	JobState              string    `json:"jobState,omitempty" yaml:"jobState,omitempty"`
	RecordsProcessed      int64     `json:"recordsProcessed" yaml:"recordsProcessed"`
	RecordsFailed         int64     `json:"recordsFailed" yaml:"recordsFailed"`
	SuccessfulResults     int       `json:"successfulResults" yaml:"successfulResults"`
	FailedResults         int       `json:"failedResults" yaml:"failedResults"`
	SuccessfulResultsPath string    `json:"successfulResultsPath,omitempty" yaml:"successfulResultsPath,omitempty"`
	FailedResultsPath     string    `json:"failedResultsPath,omitempty" yaml:"failedResultsPath,omitempty"`
	Warnings              []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error                 string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt             time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt" yaml:"updatedAt"`
}

func newRunView(r *models.RunRecord) runView {
	v := runView{
		RunID:                 r.RunID.String(),
		JobID:                 r.JobID,
		Object:                r.Object,
		Operation:             r.Operation,
		DataSourcePath:        r.DataSourcePath,
		DataSourceSize:        r.DataSourceSize,
		UploadStatus:          r.UploadStatus,
		JobState:              r.JobState,
		RecordsProcessed:      r.RecordsProcessed,
		RecordsFailed:         r.RecordsFailed,
		SuccessfulResults:     r.SuccessfulResults,
		FailedResults:         r.FailedResults,
		SuccessfulResultsPath: r.SuccessfulResultsPath,
		FailedResultsPath:     r.FailedResultsPath,
		Error:                 r.Error,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
	v.Warnings = splitWarnings(r.Warnings)
	return v
}

// splitWarnings undoes the newline join used when a run is recorded.
func splitWarnings(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect recorded ingest runs and abort remote jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded ingest runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(jobsOutput); err != nil {
			return err
		}
		ctx := cmd.Context()
		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		page, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return err
		}
		state, err := clix.ParseJobState(cmd.Flags())
		if err != nil {
			return err
		}

		runs, err := appInstance.RunService.ListRuns(ctx, page.Limit, page.Offset, string(state))
		if err != nil {
			return err
		}

		if jobsOutput != outputTable {
			views := make([]runView, 0, len(runs))
			for _, r := range runs {
				views = append(views, newRunView(r))
			}
			return writeStructured(cmd.OutOrStdout(), jobsOutput, views)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		renderRunsTable(cmd.OutOrStdout(), runs)
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <run-id|job-id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(jobsOutput); err != nil {
			return err
		}
		ctx := cmd.Context()
		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		run, err := appInstance.RunService.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		if jobsOutput != outputTable {
			return writeStructured(cmd.OutOrStdout(), jobsOutput, newRunView(run))
		}
		renderRunDetail(cmd.OutOrStdout(), run)
		return nil
	},
}

var jobsAbortCmd = &cobra.Command{
	Use:   "abort <job-id>",
	Short: "Abort a remote ingest job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		info, err := appInstance.IngestService.Abort(ctx, args[0], jobsTargetOrg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s\n", info.ID, colorState(string(info.State)))
		return nil
	},
}

func renderRunsTable(w io.Writer, runs []*models.RunRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run ID", "Job ID", "Object", "State", "Upload", "Processed", "Failed", "Size", "Created"})
	table.SetAutoWrapText(false)
	table.SetBorder(true)

	for _, r := range runs {
		table.Append([]string{
			r.RunID.String(),
			orDash(r.JobID),
			orDash(r.Object),
			colorState(r.JobState),
			orDash(r.UploadStatus),
			strconv.FormatInt(r.RecordsProcessed, 10),
			strconv.FormatInt(r.RecordsFailed, 10),
			humanize.Bytes(uint64(r.DataSourceSize)),
			humanize.Time(r.CreatedAt),
		})
	}
	table.Render()
}

func renderRunDetail(w io.Writer, r *models.RunRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.SetBorder(true)

	table.AppendBulk([][]string{
		{"Run ID", r.RunID.String()},
		{"Job ID", orDash(r.JobID)},
		{"Object", orDash(r.Object)},
		{"Operation", orDash(r.Operation)},
		{"Data source", fmt.Sprintf("%s (%s)", r.DataSourcePath, humanize.Bytes(uint64(r.DataSourceSize)))},
		{"Upload", orDash(r.UploadStatus)},
		{"State", colorState(r.JobState)},
		{"Processed", strconv.FormatInt(r.RecordsProcessed, 10)},
		{"Failed", strconv.FormatInt(r.RecordsFailed, 10)},
		{"Successful results", fmt.Sprintf("%d -> %s", r.SuccessfulResults, orDash(r.SuccessfulResultsPath))},
		{"Failed results", fmt.Sprintf("%d -> %s", r.FailedResults, orDash(r.FailedResultsPath))},
		{"Created", r.CreatedAt.Local().Format(time.RFC3339)},
		{"Updated", r.UpdatedAt.Local().Format(time.RFC3339)},
	})
	table.Render()

	for _, warning := range splitWarnings(r.Warnings) {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("Warning:"), warning)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "%s %s\n", color.RedString("Error:"), r.Error)
	}
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsAbortCmd)

	jobsCmd.PersistentFlags().StringVar(&jobsOutput, "output", outputTable, "Output format: table, json, yaml")

	jobsListCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	jobsListCmd.Flags().Int("offset", 0, "Number of runs to skip")
	jobsListCmd.Flags().String("state", "", "Only show runs in this job state, e.g. JobComplete")

	jobsAbortCmd.Flags().StringVarP(&jobsTargetOrg, "target-org", "o", "", "Org alias used to resolve the connection through the CLI")
}
