package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bulkload/internal/clix"
	"bulkload/internal/models"
	"bulkload/internal/services"
)

var (
	ingestObject     string
	ingestDelimiter  string
	ingestLineEnding string
	ingestTargetOrg  string
	ingestOutput     string
)

// ingestView is the --output json|yaml rendering of a finished run.
type ingestView struct {
	RunID                 string                 `json:"runId" yaml:"runId"`
	JobID                 string                 `json:"jobId,omitempty" yaml:"jobId,omitempty"`
	DataSourcePath        string                 `json:"dataSourcePath" yaml:"dataSourcePath"`
	DataSourceSize        int64                  `json:"dataSourceSize" yaml:"dataSourceSize"`
	UploadStatus          string                 `json:"uploadStatus" yaml:"uploadStatus"`
	Job                   *models.JobInfo        `json:"job,omitempty" yaml:"job,omitempty"`
	SuccessfulResults     []models.SuccessRecord `json:"successfulResults" yaml:"successfulResults"`
	FailedResults         []models.FailureRecord `json:"failedResults" yaml:"failedResults"`
	SuccessfulResultsPath string                 `json:"successfulResultsPath" yaml:"successfulResultsPath"`
	FailedResultsPath     string                 `json:"failedResultsPath" yaml:"failedResultsPath"`
	Warnings              []string               `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error                 string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Duration              string                 `json:"duration" yaml:"duration"`
}

func newIngestView(status *models.BulkOperationStatus, runErr error) ingestView {
	v := ingestView{
		RunID:                 status.RunID.String(),
		JobID:                 status.JobID(),
		DataSourcePath:        status.DataSourcePath,
		DataSourceSize:        status.DataSourceSize,
		UploadStatus:          string(status.UploadStatus),
		Job:                   status.CurrentJobStatus,
		SuccessfulResults:     status.SuccessfulResults,
		FailedResults:         status.FailedResults,
		SuccessfulResultsPath: status.SuccessfulResultsPath,
		FailedResultsPath:     status.FailedResultsPath,
		Warnings:              status.Warnings(),
	}
	if runErr != nil {
		v.Error = runErr.Error()
	}
	if !status.FinishedAt.IsZero() {
		v.Duration = status.FinishedAt.Sub(status.StartedAt).Round(time.Millisecond).String()
	}
	return v
}

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [csv file]",
	Short: "Insert the records of a CSV file with a bulk ingest job",
	Long: `Validates the CSV file, creates an insert job for --object, uploads the file, closes the
job and waits for it to finish. Successful and failed results are written next to the input
as <file>.successfulResults and <file>.failedResults.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(ingestOutput); err != nil {
			return err
		}
		ctx := cmd.Context()
		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		svc := appInstance.IngestService
		ic := appInstance.IngestConfig()
		polling, err := clix.ParsePolling(cmd.Flags(), ic.PollInterval, ic.PollTimeout)
		if err != nil {
			return err
		}
		if polling.Overridden {
			ic.PollInterval, ic.PollTimeout = polling.Interval, polling.Timeout
			svc = appInstance.NewIngestService(ic)
		}

		status, runErr := svc.Insert(ctx, args[0], services.IngestParams{
			Object:          ingestObject,
			ColumnDelimiter: ingestDelimiter,
			LineEnding:      ingestLineEnding,
			TargetOrg:       ingestTargetOrg,
		})
		if status == nil {
			return runErr
		}

		if ingestOutput == outputTable {
			renderIngestTable(cmd.OutOrStdout(), status)
		} else if err := writeStructured(cmd.OutOrStdout(), ingestOutput, newIngestView(status, runErr)); err != nil {
			return err
		}
		return runErr
	},
}

func renderIngestTable(w io.Writer, status *models.BulkOperationStatus) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.SetBorder(true)

	processed, failed, object := "-", "-", "-"
	if job := status.CurrentJobStatus; job != nil {
		processed = strconv.FormatInt(job.NumberRecordsProcessed, 10)
		failed = strconv.FormatInt(job.NumberRecordsFailed, 10)
		object = orDash(job.Object)
	}
	duration := "-"
	if !status.FinishedAt.IsZero() {
		duration = status.FinishedAt.Sub(status.StartedAt).Round(time.Millisecond).String()
	}

	table.AppendBulk([][]string{
		{"Run ID", status.RunID.String()},
		{"Job ID", orDash(status.JobID())},
		{"Object", object},
		{"Data source", fmt.Sprintf("%s (%s)", status.DataSourcePath, humanize.Bytes(uint64(status.DataSourceSize)))},
		{"Upload", string(status.UploadStatus)},
		{"State", colorState(string(status.State()))},
		{"Processed", processed},
		{"Failed", failed},
		{"Successful results", resultCell(len(status.SuccessfulResults), status.SuccessfulResultsPath, status.SuccessfulResultsError)},
		{"Failed results", resultCell(len(status.FailedResults), status.FailedResultsPath, status.FailedResultsError)},
		{"Duration", duration},
	})
	table.Render()

	for _, warning := range status.Warnings() {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("Warning:"), warning)
	}
}

func resultCell(n int, path string, err error) string {
	if err != nil {
		return color.YellowString("unavailable")
	}
	return fmt.Sprintf("%d -> %s", n, path)
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestObject, "object", "s", "", "Target object, e.g. Account (required)")
	ingestCmd.Flags().StringVar(&ingestDelimiter, "delimiter", "", "Column delimiter: BACKQUOTE, CARET, COMMA, PIPE, SEMICOLON, TAB (default from config)")
	ingestCmd.Flags().StringVar(&ingestLineEnding, "line-ending", "", "Line ending: LF or CRLF (default from config)")
	ingestCmd.Flags().StringVarP(&ingestTargetOrg, "target-org", "o", "", "Org alias used to resolve the connection through the CLI")
	ingestCmd.Flags().Duration("poll-interval", 0, "Interval between job status checks (default from config)")
	ingestCmd.Flags().DurationP("wait", "w", 0, "Maximum time to wait for the job to finish (default from config)")
	ingestCmd.Flags().StringVar(&ingestOutput, "output", outputTable, "Output format: table, json, yaml")
	_ = ingestCmd.MarkFlagRequired("object")
}
