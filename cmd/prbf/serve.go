package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/prbf/go-engine/internal/rpc"
)

// #region serve
func newServeCmd() *cobra.Command {
	var runID, addr, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions of a persisted population over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()
			if addr != "" {
				e.cfg.Serve.Addr = addr
			}
			if metricsAddr != "" {
				e.cfg.Serve.MetricsAddr = metricsAddr
			}

			runner, err := loadRunner(e, runID)
			if err != nil {
				return err
			}
			defer runner.Close()

			lis, err := net.Listen("tcp", e.cfg.Serve.Addr)
			if err != nil {
				return err
			}
			grpcSrv := grpc.NewServer()
			rpc.Register(grpcSrv, rpc.NewServer(runner, e.cfg.Data.InputSize, e.logger))

			var metricsSrv *http.Server
			if e.cfg.Serve.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsSrv = &http.Server{Addr: e.cfg.Serve.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				e.logger.Info("serving predictions", "addr", lis.Addr().String(), "run_id", runner.RunID())
				return grpcSrv.Serve(lis)
			})
			if metricsSrv != nil {
				g.Go(func() error {
					e.logger.Info("serving metrics", "addr", metricsSrv.Addr)
					if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
			}
			g.Go(func() error {
				<-ctx.Done()
				grpcSrv.GracefulStop()
				if metricsSrv != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return metricsSrv.Shutdown(shutdownCtx)
				}
				return nil
			})

			err = g.Wait()
			e.logger.Info("server stopped")
			return err
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run whose population to serve (default latest)")
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC listen address (overrides serve.addr)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address (overrides serve.metrics_addr)")
	return cmd
}

// #endregion serve
