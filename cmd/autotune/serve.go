package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/iso3dfd-st7/autotune/internal/metrics"
	"github.com/iso3dfd-st7/autotune/internal/results"
	"github.com/iso3dfd-st7/autotune/internal/tunerd"
	"github.com/iso3dfd-st7/autotune/pkg/logger"
	"google.golang.org/grpc"
)

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file (defaults when empty)")
	grpcAddr := fs.String("grpc-addr", "", "gRPC listen address (overrides config)")
	httpAddr := fs.String("http-addr", "", "HTTP listen address (overrides config)")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	setupLogging(cfg, *logLevel, stderr)

	store, err := results.NewStore(cfg.Results)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	runs := tunerd.NewRunStore()
	executor := tunerd.NewRunExecutor(runs, newOracle, store).
		WithNotifier(tunerd.NewNotifier()).
		WithExporter(metrics.NewExporter())

	grpcServer := grpc.NewServer()
	tunerd.RegisterTunerServiceServer(grpcServer, tunerd.NewTunerGRPCServer(runs, executor))

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen for gRPC", "addr", cfg.Server.GRPCAddr, "error", err)
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           tunerd.NewHTTPServer(runs, executor).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")

	if n := executor.StopAll(); n > 0 {
		logger.Info("cancelled active runs", "count", n)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	return nil
}
