package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cafetrace/internal/archive"
	"github.com/alfredjeanlab/cafetrace/internal/config"
	"github.com/alfredjeanlab/cafetrace/internal/events"
	"github.com/alfredjeanlab/cafetrace/internal/hooks"
	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/presence"
	"github.com/alfredjeanlab/cafetrace/internal/server"
	"github.com/alfredjeanlab/cafetrace/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Start the ledger server (gRPC and HTTP)",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Connect to Postgres; migrations run on open.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		logger.Info("database ready", "schema_version", store.SchemaVersion())

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (CAFETRACE_NATS_URL not set)")
		}
		stream := server.NewEventStream(publisher, logger)

		// Create server components.
		svc := ledger.New(store, stream, ledger.Options{
			Authorizer:  ledger.NewStaticAuthorizer(cfg.AdminActors),
			Logger:      logger,
			MaxAttempts: cfg.AppendMaxAttempts,
			BaseBackoff: cfg.AppendBackoff,
		})
		ledgerServer := server.NewLedgerServer(svc, logger).WithEventStream(stream)

		var tracker *presence.Tracker
		if cfg.PresenceIdle > 0 {
			tracker = presence.New()
			tracker.StartReaper(&presence.ReaperConfig{
				IdleThreshold: cfg.PresenceIdle,
				OnIdle: func(actor string) {
					logger.Info("actor idle", "actor", actor)
				},
			})
			ledgerServer = ledgerServer.WithPresence(tracker)
		}
		grpcServer := server.NewGRPCServer(ledgerServer, cfg.AuthToken)

		// Start gRPC listener.
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			stream.Close()
			store.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: ledgerServer.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Periodic chain verification and certification expiry.
		var sweeper *ledger.Sweeper
		if cfg.VerifyInterval > 0 {
			sweeper = ledger.NewSweeper(svc, cfg.VerifyInterval, logger)
			sweeper.Start()
			logger.Info("integrity sweeper started", "interval", cfg.VerifyInterval)
		}

		// Start archive scheduler if any destinations are configured.
		var scheduler *archive.Scheduler
		if cfg.ArchiveInterval > 0 {
			var dests []archive.Destination

			if cfg.ArchiveS3Bucket != "" {
				s3Dest, err := archive.NewS3Destination(
					context.Background(),
					cfg.ArchiveS3Bucket,
					cfg.ArchiveS3Key,
					cfg.ArchiveS3Region,
					cfg.ArchiveS3Endpoint,
				)
				if err != nil {
					logger.Error("failed to create S3 archive destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("archive S3 destination enabled", "bucket", cfg.ArchiveS3Bucket, "key", cfg.ArchiveS3Key)
				}
			}

			if cfg.ArchiveGitRepo != "" {
				dests = append(dests, archive.NewGitDestination(cfg.ArchiveGitRepo, cfg.ArchiveGitFile, cfg.ArchiveGitBranch))
				logger.Info("archive git destination enabled", "repo", cfg.ArchiveGitRepo, "file", cfg.ArchiveGitFile)
			}

			if len(dests) > 0 {
				scheduler = archive.NewScheduler(store, dests, cfg.ArchiveInterval, logger)
				scheduler.Start()
				logger.Info("archive scheduler started", "interval", cfg.ArchiveInterval)
			}
		}

		// Start operator hooks if a hooks file is configured and NATS is available.
		var hooksCancel context.CancelFunc
		if cfg.HooksFile != "" {
			if cfg.NATSURL == "" {
				logger.Warn("CAFETRACE_HOOKS_FILE is set but CAFETRACE_NATS_URL is not; hooks disabled")
			} else if defs, err := hooks.LoadFile(cfg.HooksFile); err != nil {
				logger.Error("failed to load hooks", "file", cfg.HooksFile, "err", err)
			} else if hooksSub, err := events.NewNATSSubscriber(cfg.NATSURL); err != nil {
				logger.Error("failed to create hooks subscriber", "err", err)
			} else {
				hooksHandler := hooks.NewHandler(defs, logger)
				var hooksCtx context.Context
				hooksCtx, hooksCancel = context.WithCancel(context.Background())
				go func() {
					if err := hooksHandler.StartSubscriber(hooksCtx, hooksSub); err != nil {
						logger.Error("hooks subscriber error", "err", err)
					}
					if n := hooksSub.Dropped(); n > 0 {
						logger.Warn("hooks subscriber dropped events", "count", n)
					}
					hooksSub.Close()
				}()
				logger.Info("hooks subscriber started", "hooks", len(defs))
			}
		}

		logger.Info("cafetrace server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if hooksCancel != nil {
			hooksCancel()
			logger.Info("hooks subscriber stopped")
		}

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("archive scheduler stopped")
		}

		if sweeper != nil {
			sweeper.Stop()
			logger.Info("integrity sweeper stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if tracker != nil {
			tracker.Stop()
		}

		if err := stream.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
