package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	"github.com/becomeliminal/nim-recall/server"
)

// runServe serves HTTP and gRPC health until ctx is cancelled or either
// listener fails, then shuts both down within the configured timeout.
func runServe(ctx context.Context, a *app) error {
	srv := server.New(a.memory, a.pipeline, a.metrics,
		server.WithLogger(a.logger),
		server.WithMaxResults(a.cfg.MaxResults),
	)
	httpServer := &http.Server{
		Addr:              a.cfg.BindAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", a.cfg.GRPCBindAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	health := server.NewHealthService(a.memory, 10*time.Second, a.logger)
	health.Register(grpcServer)

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go health.Run(healthCtx)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("grpc health listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		a.logger.Info("http listening", "addr", a.cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case serveErr = <-errCh:
		a.logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	return serveErr
}
