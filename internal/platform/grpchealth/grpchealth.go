// Package grpchealth serves the standard grpc.health.v1 service and keeps its
// status in step with a readiness probe.
package grpchealth

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server wraps a gRPC server exposing only health and reflection.
type Server struct {
	Addr     string
	Service  string
	Probe    func(ctx context.Context) error
	Interval time.Duration
	Log      *zap.Logger

	health *health.Server
}

func New(addr, service string, probe func(ctx context.Context) error, log *zap.Logger) *Server {
	return &Server{
		Addr:     addr,
		Service:  service,
		Probe:    probe,
		Interval: 15 * time.Second,
		Log:      log,
		health:   health.NewServer(),
	}
}

// Run serves until ctx is cancelled, then stops gracefully (forcefully after 10s).
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, s.health)
	reflection.Register(grpcSrv)

	s.check(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			grpcSrv.Stop()
		}
	}()

	s.Log.Info("grpc server starting", zap.String("addr", s.Addr))
	return grpcSrv.Serve(lis)
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Server) check(ctx context.Context) {
	status := s.Status(ctx)
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.Service, status)
}

// Status runs the probe once.
func (s *Server) Status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if s.Probe == nil {
		return healthpb.HealthCheckResponse_SERVING
	}
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.Probe(probeCtx); err != nil {
		s.Log.Warn("health probe failed", zap.Error(err))
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
