package control

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/internal/observability"
)

func dialBufconn(t *testing.T, server *grpc.Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func checkHealth(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthTracksSessionState(t *testing.T) {
	f := newControlFixture(t)
	reg := prometheus.NewRegistry()
	collector, err := observability.NewControlCollector(reg)
	if err != nil {
		t.Fatalf("NewControlCollector: %v", err)
	}

	server, _ := NewGRPCServer(f.engine.Scheduler, collector, nil)
	client := healthpb.NewHealthClient(dialBufconn(t, server))

	if got := checkHealth(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status = %s, want SERVING", got)
	}
	if got := checkHealth(t, client, SessionServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("idle session status = %s, want NOT_SERVING", got)
	}

	ctx := context.Background()
	if _, err := f.engine.Scheduler.StartSession(ctx); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if got := checkHealth(t, client, SessionServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("running session status = %s, want SERVING", got)
	}

	if _, err := f.engine.Scheduler.EndSession(ctx); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if got := checkHealth(t, client, SessionServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("ended session status = %s, want NOT_SERVING", got)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 4 {
		t.Fatalf("control_rpc_requests_total = %v, want 4", got)
	}
}

type capturingLogger struct {
	logging.Logger
	fields []logging.Field
}

func (c *capturingLogger) With(fields ...logging.Field) logging.Logger {
	c.fields = append(c.fields, fields...)
	return c
}

func TestRequestIDInterceptor(t *testing.T) {
	base := &capturingLogger{Logger: logging.Noop()}
	interceptor := RequestIDUnaryServerInterceptor(base)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "req-42"))
	var got logging.Logger
	_, err := interceptor(ctx, struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		got = logging.LoggerFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got == nil {
		t.Fatalf("handler context carries no logger")
	}

	fields := map[string]any{}
	for _, f := range base.fields {
		fields[f.Key] = f.Value
	}
	if fields["request_id"] != "req-42" || fields["method"] != info.FullMethod {
		t.Fatalf("logger fields = %v", fields)
	}
}

func TestRequestIDInterceptorGeneratesID(t *testing.T) {
	base := &capturingLogger{Logger: logging.Noop()}
	interceptor := RequestIDUnaryServerInterceptor(base)
	_, _ = interceptor(context.Background(), nil, nil, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, nil
	})
	for _, f := range base.fields {
		if f.Key == "request_id" {
			if id, _ := f.Value.(string); id == "" {
				t.Fatalf("generated request id is empty")
			}
			return
		}
	}
	t.Fatalf("no request_id field attached")
}
