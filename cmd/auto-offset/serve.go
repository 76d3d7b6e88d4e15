package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"auto-offset-go/pkg/history"
	"auto-offset-go/pkg/metrics"
	"auto-offset-go/pkg/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the measurement engine over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := setup(root)
			if err != nil {
				return err
			}
			defer h.close()

			registry := prometheus.NewRegistry()
			metrics.New(registry).Observe(h.engine.Events())

			var hist *history.Store
			if h.cfg.HistoryPath != "" {
				hist = history.NewStore(h.cfg.HistoryPath, h.lg.Child("history"))
				hist.Observe(h.engine.Events())
			}

			srv := server.New(server.Config{
				Addr:     addr,
				Engine:   h.engine,
				History:  hist,
				Registry: registry,
				Logger:   h.lg.Child("api"),
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				h.lg.Infof("received %v, shutting down", sig)
			}

			h.engine.Abort()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":7130", "HTTP listen address")
	return cmd
}
