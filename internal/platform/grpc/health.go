// Package grpc hosts the gRPC health endpoint operators probe to learn
// whether the verification service is serving.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService reports SERVING for the empty service name and every named
// service while the process accepts callbacks.
type HealthService struct {
	server   *gogrpc.Server
	health   *health.Server
	services []string
}

// NewHealthService builds a gRPC server exposing only grpc.health.v1.
func NewHealthService(services ...string) *HealthService {
	server := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	h := &HealthService{server: server, health: healthServer, services: services}
	h.SetServing(true)
	return h
}

// SetServing flips every registered service between SERVING and NOT_SERVING.
func (h *HealthService) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	for _, service := range h.services {
		h.health.SetServingStatus(service, status)
	}
}

// Serve blocks serving health checks on lis.
func (h *HealthService) Serve(lis net.Listener) error {
	return h.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight checks.
func (h *HealthService) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}

// Probe dials addr once and reports whether service is SERVING.
func Probe(ctx context.Context, addr, service string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := gogrpc.NewClient(addr,
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return fmt.Errorf("dial health %s: %w", addr, err)
	}
	defer conn.Close()

	callCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	response, err := grpc_health_v1.NewHealthClient(conn).Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return fmt.Errorf("check health %s: %w", addr, err)
	}
	if response.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("health status %s", response.GetStatus().String())
	}
	return nil
}
