package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/MMOzz/OSTKanBridge/internal/bridge"
	"github.com/MMOzz/OSTKanBridge/internal/export"
	"github.com/MMOzz/OSTKanBridge/internal/idgen"
	"github.com/MMOzz/OSTKanBridge/internal/schedule"
	"github.com/MMOzz/OSTKanBridge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the Kanboard webhook and run the sync jobs on a timer",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireWebhook(); err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		srv := server.New(a.bridge, a.store, cfg.WebhookSecret, logger)

		// Optional gRPC health listener.
		var grpcServer *grpc.Server
		if cfg.GRPCAddr != "" {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}
			grpcServer = srv.NewGRPCServer()
			go func() {
				logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("gRPC server error", "err", err)
				}
			}()
		}

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var schedulers []*schedule.Scheduler
		if cfg.SyncInterval > 0 {
			s := schedule.New(cfg.SyncInterval, logger,
				schedule.Job{Name: "sync_outbound", Run: func(ctx context.Context) error {
					_, err := a.bridge.RunOutbound(bridge.WithRunID(ctx, idgen.RunID()))
					return err
				}},
				schedule.Job{Name: "sync_inbound", Run: func(ctx context.Context) error {
					_, err := a.bridge.RunInbound(bridge.WithRunID(ctx, idgen.RunID()))
					return err
				}},
			)
			s.Start()
			schedulers = append(schedulers, s)
			logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
		}

		if cfg.ExportEnabled() {
			if dests := exportDestinations(context.Background()); len(dests) > 0 {
				s := schedule.New(cfg.ExportInterval, logger, schedule.Job{
					Name: "export",
					Run: func(ctx context.Context) error {
						n, err := export.ToDestinations(ctx, a.store, dests, cfg.ExportEvents)
						if err == nil {
							logger.Debug("export written", "bytes", n, "destinations", len(dests))
						}
						return err
					},
				})
				s.Start()
				schedulers = append(schedulers, s)
				logger.Info("export scheduler started", "interval", cfg.ExportInterval)
			}
		}

		logger.Info("kbridge server started", "http_addr", cfg.HTTPAddr, "grpc_addr", cfg.GRPCAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		for _, s := range schedulers {
			s.Stop()
		}
		logger.Info("schedulers stopped")

		if grpcServer != nil {
			grpcServer.GracefulStop()
			logger.Info("gRPC server stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		logger.Info("shutdown complete")
		return nil
	},
}
