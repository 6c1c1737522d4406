// cexrpt — sandboxed script-execution engine for exchange portfolio reporting.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cexrpt",
	Short: "cexrpt — sandboxed Starlark analysis over exchange portfolio data.",
	Long: `cexrpt validates and executes untrusted analysis scripts against
read-only portfolio data. Scripts run in a positive-allow-list sandbox
with a hard wall clock budget; everything they may touch is injected,
everything else is rejected before execution.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd, validateCmd, seedCmd, statusCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
