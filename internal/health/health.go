// Package health serves the standard gRPC health checking protocol.
package health

import (
	"context"
	"net"

	"devspace-backend/log"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer() *Server {
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_recovery.UnaryServerInterceptor(),
			grpc_zap.UnaryServerInterceptor(log.Logger),
		)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_recovery.StreamServerInterceptor(),
			grpc_zap.StreamServerInterceptor(log.Logger),
		)),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpc: gs, health: hs}
}

// Check sets the overall serving status from ping.
func (s *Server) Check(ctx context.Context, ping Pinger) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := ping(ctx); err != nil {
		log.Logger.Warn("health check failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
}

func (s *Server) Serve(lis net.Listener) error {
	log.Logger.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
