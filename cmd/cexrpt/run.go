package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benputley1/cex-reporter-sub000/internal/config"
	"github.com/benputley1/cex-reporter-sub000/internal/engine"
)

// Exit codes for the run and validate commands.
const (
	ExitSuccess  = 0
	ExitFailure  = 1 // runtime error or missing result
	ExitRejected = 2 // validation rejected the script
	ExitTimedOut = 3 // run exceeded its budget
)

var (
	runConfigPath  string
	runJSON        bool
	runBypassCache bool
	runBudget      int
)

var runCmd = &cobra.Command{
	Use:   "run [script file]",
	Short: "Validate and execute one analysis script",
	Long: `Validate an analysis script and, if it passes, execute it in the
sandbox against the configured portfolio data. Reads from stdin when no
file is given. The script must assign its final value to "result".

Examples:
  cexrpt run report.star
  cat report.star | cexrpt run
  cexrpt run --json --bypass-cache report.star

Exit codes:
  0  script succeeded
  1  runtime error or missing result
  2  validation rejected the script
  3  run exceeded its budget`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit the full result as JSON")
	runCmd.Flags().BoolVar(&runBypassCache, "bypass-cache", false, "load fresh data, skipping the dataset cache")
	runCmd.Flags().IntVar(&runBudget, "budget", 0, "wall clock budget in seconds (0 = configured default)")
}

func runRun(_ *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig(runConfigPath, logger)
	if err != nil {
		return err
	}
	if runBudget > 0 {
		cfg.Sandbox.BudgetSeconds = runBudget
	}

	code, err := readScript(args)
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopMaintenance, err := sc.Engine.Start(ctx)
	if err != nil {
		return err
	}
	defer stopMaintenance()

	result := sc.Engine.Submit(ctx, engine.Submission{
		Code:        code,
		BypassCache: runBypassCache,
	})

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	} else {
		printResult(result)
	}

	if code := exitCode(result.Outcome); code != ExitSuccess {
		// os.Exit skips the deferred cleanups; run them first.
		stopMaintenance()
		sc.Cleanup()
		os.Exit(code)
	}
	return nil
}

// readScript loads the script from the file argument, or stdin when no
// argument (or "-") is given.
func readScript(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading script from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(data), nil
}

func printResult(res engine.ExecutionResult) {
	fmt.Printf("outcome: %s (%.2fs)\n", res.Outcome, res.Elapsed.Seconds())
	if res.Output != "" {
		fmt.Println("--- output ---")
		fmt.Print(res.Output)
		fmt.Println("--------------")
	}
	if res.Succeeded() {
		val, err := json.MarshalIndent(res.Value, "", "  ")
		if err != nil {
			fmt.Printf("result: %v\n", res.Value)
			return
		}
		fmt.Printf("result: %s\n", val)
		return
	}
	fmt.Printf("detail: %s\n", res.Detail)
}

func exitCode(outcome engine.Outcome) int {
	switch outcome {
	case engine.OutcomeSucceeded:
		return ExitSuccess
	case engine.OutcomeValidationFailed:
		return ExitRejected
	case engine.OutcomeTimedOut:
		return ExitTimedOut
	default:
		return ExitFailure
	}
}
