package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benputley1/cex-reporter-sub000/internal/config"
)

var (
	statusConfigPath string
	statusJSON       bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run the readiness checks and report cache state",
	Long: `Probe the configured dependencies — ledger reachability and a
trivial sandbox run — and report the dataset cache state. Useful as a
deploy smoke test before pointing the assistant at this instance.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit the report as JSON")
}

func runStatus(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig(statusConfigPath, logger)
	if err != nil {
		return err
	}
	// Status always probes everything available, regardless of what the
	// config enables for the embedded health surface.
	if cfg.Observability == nil {
		cfg.Observability = &config.ObservabilityConfig{}
	}
	cfg.Observability.Health = &config.HealthConfig{
		IncludeLedger:  true,
		IncludeSandbox: true,
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := sc.Obs.Health.CheckReady(ctx)
	stats := sc.Engine.CacheStats()

	if statusJSON {
		report := map[string]any{
			"readiness": ready,
			"cache": map[string]any{
				"entries": stats.Entries,
				"hits":    stats.Hits,
				"misses":  stats.Misses,
				"ttl":     stats.TTL.String(),
			},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding status: %w", err)
		}
	} else {
		fmt.Printf("status: %s\n", ready.Status)
		for name, check := range ready.Checks {
			line := fmt.Sprintf("  %-8s %s", name, check.Status)
			if check.Message != "" {
				line += " (" + check.Message + ")"
			}
			fmt.Println(line)
		}
		fmt.Printf("cache: %d entries, %d hits, %d misses (ttl %s)\n",
			stats.Entries, stats.Hits, stats.Misses, stats.TTL)
	}

	if ready.Status != "ok" {
		os.Exit(ExitFailure)
	}
	return nil
}
