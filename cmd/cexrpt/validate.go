package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
	"github.com/benputley1/cex-reporter-sub000/internal/config"
	"github.com/benputley1/cex-reporter-sub000/internal/scriptlib"
	"github.com/benputley1/cex-reporter-sub000/internal/validator"
)

var (
	validateConfigPath string
	validateJSON       bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [script file]",
	Short: "Check a script against the sandbox rules without executing it",
	Long: `Run the static gate alone: the literal token scan and the
syntax-tree checks. Nothing is executed and no data is loaded, so this
is safe to call on completely untrusted input as a pre-flight check.

Examples:
  cexrpt validate report.star
  cat report.star | cexrpt validate --json

Exit codes:
  0  script is allowed
  2  script was rejected`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "emit the verdict as JSON")
}

func runValidate(_ *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig(validateConfigPath, logger)
	if err != nil {
		return err
	}

	code, err := readScript(args)
	if err != nil {
		return err
	}

	v := validator.New(validator.Config{
		MaxScriptBytes: cfg.Engine.MaxScriptBytes,
		Capabilities:   capability.Names(),
		Modules:        scriptlib.ModuleNames(),
	})
	verdict := v.Check(code)

	if validateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(verdict); err != nil {
			return fmt.Errorf("encoding verdict: %w", err)
		}
	} else if verdict.OK {
		fmt.Println("ok")
	} else {
		fmt.Printf("rejected: %s\n", verdict.Reason())
	}

	if !verdict.OK {
		os.Exit(ExitRejected)
	}
	return nil
}
