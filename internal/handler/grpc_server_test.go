package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
)

func startGRPC(t *testing.T, services ...string) (*GRPCServer, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(logger.Nop(), services...)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func healthStatus(t *testing.T, hc healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check %q: %v", service, err)
	}
	return resp.Status
}

func TestGRPCServer_Health(t *testing.T) {
	srv, hc := startGRPC(t, "freightdocs.sales-rfq")

	// Serve runs in a goroutine; wait for it to flip the status
	deadline := time.Now().Add(2 * time.Second)
	for healthStatus(t, hc, "") != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("server never reported SERVING")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := healthStatus(t, hc, "freightdocs.sales-rfq"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("service status = %s", got)
	}

	srv.MarkNotServing()
	if got := healthStatus(t, hc, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after MarkNotServing status = %s", got)
	}
}

func TestGRPCServer_UnknownService(t *testing.T) {
	_, hc := startGRPC(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %s, want NotFound", status.Code(err))
	}
}

func TestUnaryLogging_PassesThrough(t *testing.T) {
	interceptor := UnaryLogging(logger.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/freightdocs.Test/Echo"}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDKey, "req-1"))

	resp, err := interceptor(ctx, "ping", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return req.(string) + "-pong", nil
	})
	if err != nil || resp != "ping-pong" {
		t.Errorf("resp = %v, err = %v", resp, err)
	}

	want := status.Error(codes.Unavailable, "down")
	_, err = interceptor(ctx, "ping", info, func(context.Context, interface{}) (interface{}, error) {
		return nil, want
	})
	if err != want {
		t.Errorf("err = %v, want %v", err, want)
	}
}
