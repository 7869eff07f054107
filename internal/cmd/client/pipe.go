package client

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	piperun "github.com/primlo/nibbana/internal/cmd/pipe"
	"github.com/primlo/nibbana/internal/runtime"
)

// newPipeCommand constructs the `pipe` command.
func newPipeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Record stdin lines as log entries and upload them periodically",
		RunE: func(cmd *cobra.Command, _ []string) error {
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			interval, _ := cmd.Flags().GetDuration("interval")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			cmd.SetContext(ctx)

			return withRuntime(cmd, func(rt *runtime.Runtime) error {
				cfg := rt.Config()
				if metricsAddr == "" {
					metricsAddr = cfg.MetricsAddr
				}
				if interval <= 0 {
					interval = cfg.UploadInterval.Std()
				}
				return piperun.Run(ctx, rt, piperun.Options{
					In:          cmd.InOrStdin(),
					Interval:    interval,
					MetricsAddr: metricsAddr,
				})
			})
		},
	}
	cmd.Flags().String("metrics-addr", "", "Serve metrics and the local status API on this address, e.g. :9464")
	cmd.Flags().Duration("interval", 0, "Upload interval (defaults to uploadInterval from config)")
	return cmd
}
