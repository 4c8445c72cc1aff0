package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/nainya/codexindex/internal/config"
	"github.com/nainya/codexindex/internal/logger"
	"github.com/nainya/codexindex/internal/metrics"
	"github.com/nainya/codexindex/internal/server"
	"github.com/nainya/codexindex/pkg/engine"
)

var (
	servePort        int
	serveMetricsPort int
	serveDataDir     string
	serveLogLevel    string
	servePretty      bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC index service",
		RunE:  runServe,
	}
)

func init() {
	f := serveCmd.Flags()
	f.IntVar(&servePort, "port", 50051, "gRPC listen port")
	f.IntVar(&serveMetricsPort, "metrics-port", 9090, "Observability HTTP port, 0 disables it")
	f.StringVar(&serveDataDir, "data-dir", "./data", "Journal and snapshot directory, empty for in-memory")
	f.StringVar(&serveLogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.BoolVar(&servePretty, "pretty", false, "Human readable console logs")
}

// loadServeConfig reads the config file and applies flags the user set
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Server.Port = servePort
	}
	if f.Changed("metrics-port") {
		cfg.Server.MetricsPort = serveMetricsPort
	}
	if f.Changed("data-dir") {
		cfg.Storage.DataDir = serveDataDir
	}
	if f.Changed("log-level") {
		cfg.Log.Level = serveLogLevel
	}
	if f.Changed("pretty") {
		cfg.Log.Pretty = servePretty
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.InitGlobalLogger(cfg.Log)
	log.LogServerStart(cfg.Server.Port, cfg.Server.MetricsPort, cfg.Storage.DataDir)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Open(ctx, cfg.Engine(),
		engine.WithLogger(log.Component("engine").Zerolog()),
		engine.WithObserver(m),
	)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	srv := server.NewServer(eng, log)
	gs := server.NewGRPCServer(srv, m, log, server.GRPCOptions{
		Reflection:      cfg.Server.Reflection,
		MaxRecvMsgBytes: cfg.Server.MaxRecvMsgBytes,
	})

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		_ = eng.Close(context.Background())
		return fmt.Errorf("listen on port %d: %w", cfg.Server.Port, err)
	}

	var obs *server.ObservabilityServer
	if cfg.Server.MetricsPort > 0 {
		obs = server.NewObservabilityServer(cfg.Server.MetricsPort, reg, srv.Ready, log)
		go func() {
			if err := obs.Start(); err != nil {
				log.Error().Err(err).Msg("Observability server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()
	log.LogServerReady(lis.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
		log.LogServerShutdown("signal received")
	case serveErr = <-errCh:
		log.LogServerShutdown("listener failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	gracefulStop(shutdownCtx, gs)
	if obs != nil {
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Observability shutdown incomplete")
		}
	}
	if err := eng.Close(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("close engine: %w", err))
	}
	return serveErr
}

// gracefulStop drains in-flight calls, forcing a stop when ctx expires
func gracefulStop(ctx context.Context, gs *grpc.Server) {
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		gs.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
