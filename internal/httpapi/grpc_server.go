package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"fractionball.org/internal/obs"
)

// HealthServer mirrors store readiness into the standard gRPC health service.
type HealthServer struct {
	*health.Server
	readiness readinessChecker
}

func NewHealthServer(r readinessChecker) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	return &HealthServer{Server: health.NewServer(), readiness: r}
}

// Refresh runs the readiness check once and publishes the result for both
// the overall server and the named service.
func (h *HealthServer) Refresh(ctx context.Context) error {
	status := healthpb.HealthCheckResponse_SERVING
	err := h.readiness.Check(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(err == nil)
	h.SetServingStatus("", status)
	h.SetServingStatus(serviceName, status)
	return err
}

// Run refreshes on every tick until ctx is done, then marks everything NOT_SERVING.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	_ = h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-ticker.C:
			_ = h.Refresh(ctx)
		}
	}
}

// NewGRPCServer builds the gRPC server carrying the health service.
func NewGRPCServer(h *HealthServer, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, h)
	reflection.Register(srv)
	return srv
}
