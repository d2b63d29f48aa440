package health

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/oshokin/swupdate-httpd/internal/logger"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "swupdate.Catalog"

// DefaultProbeInterval is how often Watch runs the probe.
const DefaultProbeInterval = 10 * time.Second

// ProbeFunc returns nil when the service can answer update requests.
type ProbeFunc func(ctx context.Context) error

// Server tracks readiness and serves it over gRPC.
type Server struct {
	// health is the stock grpc health implementation holding the statuses.
	health *grpchealth.Server
	// probe decides whether the catalog can be read.
	probe ProbeFunc
}

// NewServer creates a Server that starts out NOT_SERVING until the first probe.
func NewServer(probe ProbeFunc) *Server {
	s := &Server{
		health: grpchealth.NewServer(),
		probe:  probe,
	}

	s.set(healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

// Register attaches the health service to a gRPC server.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Probe runs the probe once and records the result.
func (s *Server) Probe(ctx context.Context) error {
	if s.probe == nil {
		s.set(healthpb.HealthCheckResponse_SERVING)
		return nil
	}

	if err := s.probe(ctx); err != nil {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}

	s.set(healthpb.HealthCheckResponse_SERVING)

	return nil
}

// Watch probes immediately and then every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Probe(ctx); err != nil {
			logger.WarnKV(ctx, "Health probe failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown marks every service NOT_SERVING so clients drain before the listener closes.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// Check returns the overall status as a protobuf message.
func (s *Server) Check(ctx context.Context) (*healthpb.HealthCheckResponse, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return nil, fmt.Errorf("check health: %w", err)
	}

	return resp, nil
}

// CheckJSON renders Check as protobuf JSON, e.g. {"status":"SERVING"}.
func (s *Server) CheckJSON(ctx context.Context) ([]byte, bool, error) {
	resp, err := s.Check(ctx)
	if err != nil {
		return nil, false, err
	}

	data, err := protojson.Marshal(resp)
	if err != nil {
		return nil, false, fmt.Errorf("encode health: %w", err)
	}

	return data, resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
