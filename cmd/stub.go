// cmd/stub.go
// Runs a stand-in backend speaking the prefill/decode/generate contract.
// Handy for local development: launch a few stubs on different ports and
// point the orchestrator's config at them.

package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"splitserve/shared"
	"splitserve/stub"
)

var (
	stubPort    int
	stubModel   string
	stubBackend string
	stubWarmupS int
	stubDelayMs int
)

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a fake backend server for development and demos",
	Run: func(cmd *cobra.Command, args []string) {
		srv := stub.NewServer(stub.Config{
			Port:      stubPort,
			Model:     stubModel,
			Backend:   shared.BackendKind(stubBackend),
			WarmupS:   stubWarmupS,
			StepDelay: time.Duration(stubDelayMs) * time.Millisecond,
		})
		if err := srv.Run(); err != nil {
			logrus.Fatalf("[Stub] Server error: %v", err)
		}
	},
}

func init() {
	stubCmd.Flags().IntVar(&stubPort, "port", 8001, "port to listen on")
	stubCmd.Flags().StringVar(&stubModel, "model", "qwen", "model name to report")
	stubCmd.Flags().StringVar(&stubBackend, "backend", string(shared.BackendTextPriming),
		"backend kind: tensor_cache or text_priming")
	stubCmd.Flags().IntVar(&stubWarmupS, "warmup", 0, "seconds to report loading before healthy")
	stubCmd.Flags().IntVar(&stubDelayMs, "delay", 0, "simulated per-token delay in milliseconds")
	rootCmd.AddCommand(stubCmd)
}
