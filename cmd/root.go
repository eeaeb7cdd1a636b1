package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bulkload/internal/app"
	"bulkload/internal/config"
	"bulkload/internal/store/primary"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "bulkload",
	Short: "Bulk CSV ingestion CLI",
	Long: `bulkload loads CSV files into a remote org through the asynchronous bulk ingest API.
It creates a job, uploads the data, waits for processing and saves the split results
next to the input file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is given, print help.
		cmd.Help()
	},
	// PersistentPreRunE runs before any subcommand's RunE
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Don't run initialization for help command or potentially others
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd == cmd.Root() {
			return nil
		}

		// Load configuration once
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := setupLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}

		appInstance, err := app.NewApp(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		// Store the app instance in the command's context
		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
}

// exitCodeError carries a process exit status through cobra's error return.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runRoot(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}

// runRoot executes the command tree and closes the app afterwards. Cobra skips post-run
// hooks when RunE fails, so the close happens here.
func runRoot(ctx context.Context) error {
	cmd, err := rootCmd.ExecuteContextC(ctx)
	if cmd == nil || cmd.Context() == nil {
		return err
	}
	if appInstance, appErr := GetAppFromContext(cmd.Context()); appErr == nil {
		if closeErr := appInstance.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close app: %w", closeErr)
		}
	}
	return err
}

// Define a custom type for the context key to avoid collisions.
type contextKey string

const appKey contextKey = "app"

// Helper function to retrieve the app instance from context
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		// This should not happen if PersistentPreRunE ran successfully
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

func setupLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./bulkload.yaml or $HOME/.config/bulkload/bulkload.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(doctorCmd)
	// ingest, exec and jobs are added in their own files' init()
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the CLI binary and run-history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		failed := false
		bin := appInstance.Config.CLI.Bin
		fmt.Printf("Checking CLI binary %q...\n", bin)
		if path, err := exec.LookPath(bin); err != nil {
			fmt.Printf("  %s %v\n", color.RedString("FAIL"), err)
			failed = true
		} else {
			fmt.Printf("  %s %s\n", color.GreenString("OK"), path)
		}

		fmt.Println("Checking run-history database connectivity...")
		if err := appInstance.RunStore.Ping(ctx); err != nil {
			fmt.Printf("  %s %v\n", color.RedString("FAIL"), err)
			failed = true
		} else {
			fmt.Printf("  %s %s\n", color.GreenString("OK"), primary.DriverFor(appInstance.Config.Database.DSN))
		}

		if failed {
			return errors.New("doctor found problems")
		}
		fmt.Println("All checks passed.")
		return nil
	},
}
