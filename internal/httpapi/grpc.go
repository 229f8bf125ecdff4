package httpapi

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"schoolcore.org/internal/obs"
)

const grpcServiceName = "schoolcore.api"

// GRPCServer exposes the standard gRPC health service, fed by the same
// readiness probe the HTTP /readyz endpoint uses.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	probe  ReadyProbe
}

func NewGRPCServer(rp ReadyProbe) *GRPCServer {
	g := &GRPCServer{
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		probe:  rp,
	}
	healthpb.RegisterHealthServer(g.srv, g.health)
	return g
}

// Serve blocks until the listener closes or Stop is called.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.srv.Serve(lis)
}

func (g *GRPCServer) Stop() {
	g.srv.GracefulStop()
}

// UpdateReadiness probes once and publishes the result.
func (g *GRPCServer) UpdateReadiness(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	ready := true
	if err := g.probe.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		ready = false
	}
	g.health.SetServingStatus(grpcServiceName, status)
	g.health.SetServingStatus("", status)
	obs.SetReady(ready)
}

// WatchReadiness re-probes on an interval until the context is cancelled.
func (g *GRPCServer) WatchReadiness(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	g.UpdateReadiness(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.UpdateReadiness(ctx)
		}
	}
}
