package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the standard gRPC health service so orchestrators can
// probe the relay. Statuses are set by the health reporter worker.
type HealthServer struct {
	log    *slog.Logger
	addr   string
	server *grpc.Server
	Health *health.Server
}

func NewHealthServer(log *slog.Logger, addr string) *HealthServer {
	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	return &HealthServer{log: log, addr: addr, server: s, Health: h}
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *HealthServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.server.GracefulStop()
	}()

	s.log.Info("Starting gRPC health server", "address", s.addr)
	err = s.server.Serve(listener)
	if ctx.Err() != nil {
		<-stopped
		return nil
	}
	return err
}
