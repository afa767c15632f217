// cmd/status.go
// Standalone health table: probes every configured server once and exits 0
// only if the whole fleet is healthy. Useful in scripts and CI gates.

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"splitserve/orchestrator"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe all configured servers and print a health table",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			logrus.Fatalf("[Status] %v", err)
		}

		servers := cfg.Descriptors()
		monitor := orchestrator.NewHealthMonitor(cfg.HealthTimeout())
		health := monitor.Refresh(context.Background(), servers)

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SERVER\tMODEL\tROLE\tBACKEND\tHEALTHY\tDETAIL")

		allHealthy := true
		for _, srv := range servers {
			st := health[srv.ID]
			detail := st.Error
			if st.Healthy {
				detail = st.Model
			} else {
				allHealthy = false
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
				srv.ID, srv.ModelType, srv.Role, srv.Backend, st.Healthy, detail)
		}
		tw.Flush()

		if !allHealthy {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
