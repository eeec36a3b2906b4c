// Package healthrpc serves the standard gRPC health protocol. The
// "doorpin.reader" service reports whether credential capture is running.
package healthrpc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ReaderService = "doorpin.reader"

type Server struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func New(addr string, logger *slog.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus(ReaderService, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		addr:   addr,
		grpc:   gs,
		health: hs,
		logger: logger.With(slog.String("component", "healthrpc")),
	}
}

// SetReader records the reader state. Its signature matches
// service.Reader.OnStatus.
func (s *Server) SetReader(running bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ReaderService, status)
	s.logger.Debug("reader health", slog.String("status", status.String()))
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("healthrpc listen %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health listening", slog.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains open streams.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
