package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/becomeliminal/nim-recall/observability"
)

// HealthServiceName is the gRPC service name reported alongside "".
const HealthServiceName = "recall.Assistant"

// Pinger reports whether a dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService publishes the standard gRPC health protocol, serving while
// the memory store answers pings.
type HealthService struct {
	server   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger
}

// NewHealthService creates a health service probing p every interval.
func NewHealthService(p Pinger, interval time.Duration, logger *slog.Logger) *HealthService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &HealthService{
		server:   health.NewServer(),
		pinger:   p,
		interval: interval,
		logger:   logger.With("component", "grpc-health"),
	}
}

// Register attaches the health service to a gRPC server.
func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Check pings the store once and updates the published status.
func (h *HealthService) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.Warn("memory store unhealthy", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(HealthServiceName, status)
	return status
}

// Run checks periodically until ctx is done, then marks everything as not serving.
func (h *HealthService) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
