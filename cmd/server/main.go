package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/wavesync/internal/config"
	"github.com/DoyleJ11/wavesync/internal/coord"
	"github.com/DoyleJ11/wavesync/internal/httpapi"
	"github.com/DoyleJ11/wavesync/internal/locks"
	"github.com/DoyleJ11/wavesync/internal/logging"
	"github.com/DoyleJ11/wavesync/internal/metrics"
	"github.com/DoyleJ11/wavesync/internal/presence"
	"github.com/DoyleJ11/wavesync/internal/router"
	"github.com/DoyleJ11/wavesync/internal/ws"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "wavesync",
		Short:         "Real-time presence and editing-lock coordinator",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	cmd.Flags().String("addr", ":5000", "listen address")
	cmd.Flags().String("log-level", "info", "debug, info, warn or error")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))
	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	promReg := metrics.NewRegistry()
	metrics.Register(promReg)
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	reg := presence.NewRegistry()
	tr := ws.NewTransport(cfg.WS.OutboxSize, log.Named("ws"))
	rt := router.New(reg, tr, router.Options{
		Timeout:     cfg.Coord.DeliveryTimeout,
		Concurrency: cfg.Coord.DeliveryConcurrency,
		Logger:      log.Named("router"),
	})
	// the coordinator outlives the signal so in-flight disconnects still land
	svc := coord.NewService(context.Background(), reg, locks.NewTable(), rt, coord.Options{
		InboxSize:     cfg.Coord.InboxSize,
		LockTTL:       cfg.Locks.TTL,
		SweepInterval: cfg.Locks.SweepInterval,
		Logger:        log.Named("coord"),
	})

	wsHandler := ws.Handler(svc, tr, ws.Options{
		OriginPatterns: cfg.WS.OriginPatterns,
		WriteTimeout:   cfg.WS.WriteTimeout,
		PingInterval:   cfg.WS.PingInterval,
		Logger:         log.Named("ws"),
	})
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Directory: svc,
		WS:        wsHandler,
		Unlocker:  svc,
		Gatherer:  promReg,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", zap.Error(err))
			svc.Stop()
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	svc.Stop()
	log.Info("stopped")
	return nil
}
