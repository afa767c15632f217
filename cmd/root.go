// cmd/root.go
// Cobra root command: shared flags, .env loading, and logging setup.

package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"splitserve/shared"
)

var (
	configPath string // path to the YAML server config
	logLevel   string // log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "splitserve",
	Short: "Orchestrator for disaggregated prefill/decode text generation",
	Long: `splitserve coordinates two-phase text generation: a compute-heavy
prefill stage on one class of nodes and a bandwidth-heavy decode stage on
another, stitched together over HTTP with per-request health probing and a
strict disaggregated → single-node → failed degradation chain.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env overrides are optional; missing file is fine
		_ = godotenv.Load()
		if configPath == "" {
			configPath = os.Getenv("SPLITSERVE_CONFIG")
		}
		if configPath == "" {
			configPath = "splitserve.yaml"
		}
		if logLevel != "" {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
		}
		return nil
	},
}

// Execute runs the CLI. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "server config file (default splitserve.yaml, or $SPLITSERVE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// loadConfig reads the config file and applies flag/env log level on top.
func loadConfig() (*shared.Config, error) {
	cfg, err := shared.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if listen := os.Getenv("SPLITSERVE_LISTEN"); listen != "" {
		cfg.Listen = listen
	}
	if logLevel == "" {
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logrus.SetLevel(level)
		}
	}
	return cfg, nil
}
