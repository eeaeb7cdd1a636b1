package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bulkload/internal/classifier"
	"bulkload/internal/cmdresult"
	"bulkload/internal/executor"
	"bulkload/internal/services"
)

var (
	execOutput     string
	execOutputFile string
	execDir        string
)

const payloadPreview = 400

// execView is the --output json|yaml rendering of a classified command.
type execView struct {
	Name           string          `json:"name" yaml:"name"`
	State          string          `json:"state" yaml:"state"`
	Classification string          `json:"classification" yaml:"classification"`
	ExitCode       any             `json:"exitCode" yaml:"exitCode"`
	Payload        json.RawMessage `json:"payload,omitempty" yaml:"-"`
	PayloadText    string          `json:"-" yaml:"payload,omitempty"`
	Stderr         string          `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Error          string          `json:"error,omitempty" yaml:"error,omitempty"`
}

func newExecView(res *cmdresult.Result) execView {
	d := res.Details()
	v := execView{
		Name:     res.Name(),
		State:    res.State().String(),
		ExitCode: d[services.DetailExitCode],
	}
	v.Classification, _ = d[services.DetailClassification].(string)
	v.Stderr, _ = d[services.DetailStderr].(string)
	if raw, ok := d[services.DetailPayload].(json.RawMessage); ok {
		v.Payload = raw
		v.PayloadText = string(raw)
	}
	if err := res.Err(); err != nil {
		v.Error = err.Error()
	}
	return v
}

// execExitCode maps a classification to the process exit status.
func execExitCode(classification string) int {
	switch classification {
	case classifier.KindSuccess.String():
		return 0
	case classifier.KindRemote.String():
		return 1
	}
	return 2
}

var execCmd = &cobra.Command{
	Use:   "exec -- <command> [args...]",
	Short: "Run an external command and classify its JSON envelope",
	Long: `Runs the command with the configured CLI environment, looks for a JSON object carrying a
numeric "status" in its output and classifies the run as success, remote error or transport error.
Exit status is 0 for success, 1 for a remote error and 2 for a transport error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(execOutput); err != nil {
			return err
		}
		ctx := cmd.Context()
		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		res := appInstance.CommandService.Run(ctx, filepath.Base(args[0]), executor.Command{
			Path:       args[0],
			Args:       args[1:],
			Dir:        execDir,
			OutputFile: execOutputFile,
		})

		view := newExecView(res)
		if execOutput == outputTable {
			renderExecTable(cmd.OutOrStdout(), view)
		} else if err := writeStructured(cmd.OutOrStdout(), execOutput, view); err != nil {
			return err
		}

		if res.IsSuccess() {
			return nil
		}
		runErr := res.Err()
		if runErr == nil {
			runErr = errors.New("command did not succeed")
		}
		return &exitCodeError{code: execExitCode(view.Classification), err: runErr}
	},
}

func renderExecTable(w io.Writer, v execView) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.SetBorder(true)

	state := v.State
	switch v.Classification {
	case classifier.KindSuccess.String():
		state = color.GreenString(state)
	case classifier.KindRemote.String():
		state = color.YellowString(state)
	default:
		state = color.RedString(state)
	}

	table.AppendBulk([][]string{
		{"Command", v.Name},
		{"State", state},
		{"Exit code", fmt.Sprint(v.ExitCode)},
		{"Classification", v.Classification},
		{"Payload", orDash(truncate(v.PayloadText, payloadPreview))},
	})
	table.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().StringVar(&execOutput, "output", outputTable, "Output format: table, json, yaml")
	execCmd.Flags().StringVar(&execOutputFile, "output-file", "", "Redirect the command's stdout to this file")
	execCmd.Flags().StringVar(&execDir, "dir", "", "Working directory for the command")
	execCmd.Flags().SetInterspersed(false)
}
