package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/parking-monitor/internal/logger"
)

// ServicePrefix prefixes the lot name to build the health service name.
const ServicePrefix = "parking."

// Server publishes the monitor state through grpc.health.v1.Health.
type Server struct {
	// health is the stock health implementation.
	health *grpchealth.Server
	// service is the name clients query for the monitored lot.
	service string
}

// NewServer creates a health server for the lot named lot. The lot starts NOT_SERVING.
func NewServer(lot string) *Server {
	s := &Server{
		health:  grpchealth.NewServer(),
		service: ServicePrefix + lot,
	}

	s.health.SetServingStatus(s.service, healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

// Service returns the health service name of the monitored lot.
func (s *Server) Service() string {
	return s.service
}

// SetServing flips both the lot and the overall ("") status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus(s.service, status)
	s.health.SetServingStatus("", status)
}

// Check answers a health check without going through the network.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}

	return resp.GetStatus(), nil
}

// Register attaches the health service to registrar.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Serve listens on address and serves health checks until ctx is canceled.
func (s *Server) Serve(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return s.ServeListener(ctx, lis)
}

// ServeListener is Serve on an already open listener.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	s.Register(grpcServer)

	logger.InfoKV(ctx, "Health server listening", "listen_address", lis.Addr().String(), "service", s.service)

	// Closed after GracefulStop so Serve returns only once the server is down.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down health server")
		s.health.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Health server stopped")

	return nil
}
