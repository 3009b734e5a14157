package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"volley/internal/metrics"
	"volley/internal/runner"
	"volley/internal/server"
)

var (
	serveAddr     string
	serveMaxConns int
	serveInsecure bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST + WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer env.close()

		addr := env.settings.Server.Address
		if cmd.Flags().Changed("address") {
			addr = serveAddr
		}

		history, err := env.openHistory()
		if err != nil {
			return err
		}
		defer history.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		controller := runner.NewController(
			runner.NewNetClient(serveMaxConns, serveInsecure),
			nil,
			history,
			metrics.NewCollector(reg),
			env.logger,
		)

		srv := server.New(server.Options{
			Controller: controller,
			History:    history,
			Gatherer:   reg,
			Logger:     env.logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return srv.Run(gctx, addr)
		})

		g.Go(func() error {
			<-gctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
			defer cancel()

			env.logger.Info("stopping active tests", zap.Int("active", controller.Registry().Len()))
			return controller.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "address", "a", ":3000", "Listen address (overrides server.address)")
	serveCmd.Flags().IntVar(&serveMaxConns, "max-conns", 1000, "Maximum connections per target host")
	serveCmd.Flags().BoolVarP(&serveInsecure, "insecure", "k", false, "Skip TLS certificate verification")
}
