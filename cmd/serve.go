// cmd/serve.go
// Runs the orchestrator HTTP service.

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"splitserve/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			logrus.Fatalf("[Orchestrator] %v", err)
		}
		if err := orchestrator.NewServer(cfg).Run(); err != nil {
			logrus.Fatalf("[Orchestrator] Server error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
