package handler

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
)

// GRPCServer exposes grpc.health.v1 and reflection for the service
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	services []string
	log      *logger.Logger
}

// NewGRPCServer creates a gRPC server. services are reported individually by
// the health service in addition to the overall "" entry.
func NewGRPCServer(log *logger.Logger, services ...string) *GRPCServer {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLogging(log)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	// NOT_SERVING until Serve is called
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, name := range services {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return &GRPCServer{
		server:   srv,
		health:   hs,
		services: services,
		log:      log,
	}
}

// Serve marks every service SERVING and blocks serving lis
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.setStatus(healthpb.HealthCheckResponse_SERVING)
	g.log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
	return g.server.Serve(lis)
}

// MarkNotServing flips every health entry to NOT_SERVING
func (g *GRPCServer) MarkNotServing() {
	g.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Stop marks the server NOT_SERVING and stops it gracefully
func (g *GRPCServer) Stop() {
	g.MarkNotServing()
	g.server.GracefulStop()
}

func (g *GRPCServer) setStatus(s healthpb.HealthCheckResponse_ServingStatus) {
	g.health.SetServingStatus("", s)
	for _, name := range g.services {
		g.health.SetServingStatus(name, s)
	}
}
