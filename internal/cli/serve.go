package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/cashloop/internal/engine"
	"github.com/gkobilansky/cashloop/internal/server"
)

var (
	port       int
	noSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the cycle scheduler",
	Long: `Start the cashloop HTTP API and run the optimization cycle on a schedule.

The server provides:
  - A/B test, trend, template and product endpoints under /api
  - Prometheus metrics at /metrics
  - Health check at /health

The cycle runs every cycle_interval_hours unless --no-schedule is given.

Example:
  cashloop serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides http_port)")
	serveCmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the API without running cycles")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		listen := a.cfg.HTTPPort
		if port > 0 {
			listen = port
		}

		srv := server.New(server.Deps{
			Store:     a.store,
			AB:        a.ab,
			Ranker:    a.ranker,
			Optimizer: a.optimizer,
			Engine:    a.engine,
			Config:    a.cfg,
			Logger:    a.log,
		}, listen, os.Getenv("CASHLOOP_TOKEN"), tokenFilePath(a.cfg.DBPath))

		if !noSchedule {
			sched := engine.NewScheduler(a.engine, a.log)
			if err := sched.Every(time.Duration(a.cfg.CycleIntervalHours) * time.Hour); err != nil {
				return err
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				sched.Stop(stopCtx)
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Next cycle: %s\n", sched.Next().Format(time.RFC3339))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "API running at http://localhost:%d\n", listen)
		fmt.Fprintf(cmd.OutOrStdout(), "API token: %s\n", srv.Token())
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

		return srv.Run(ctx)
	})
}
