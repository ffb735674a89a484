package control

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/study-session-simulator/core"
	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/internal/observability"
)

// SessionServiceName is the health-check service whose status follows the
// session: SERVING while a session runs, NOT_SERVING otherwise.
const SessionServiceName = "study.session"

const requestIDMetadataKey = "x-request-id"

// SnapshotSource publishes parameter snapshots.
type SnapshotSource interface {
	Snapshot() core.ParameterSnapshot
	Subscribe(fn func(core.ParameterSnapshot))
}

// NewGRPCServer builds the control gRPC server with the standard health
// service registered. The overall status ("") is always SERVING.
func NewGRPCServer(src SnapshotSource, collector *observability.ControlCollector, log logging.Logger) (*grpc.Server, *health.Server) {
	if log == nil {
		log = logging.Noop()
	}
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	TrackSession(hs, src)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}

// TrackSession keeps the session health status in step with src.
func TrackSession(hs *health.Server, src SnapshotSource) {
	if hs == nil || src == nil {
		return
	}
	apply := func(snap core.ParameterSnapshot) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if snap.Running {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus(SessionServiceName, status)
	}
	apply(src.Snapshot())
	src.Subscribe(apply)
}

// RequestIDUnaryServerInterceptor attaches a per-request logger annotated
// with request_id and method. The ID comes from inbound metadata when the
// caller sets one.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			id = firstHeader(md, requestIDMetadataKey)
		}
		if id == "" {
			id = uuid.NewString()
		}

		method := ""
		if info != nil {
			method = info.FullMethod
		}
		reqLog := base.With(logging.String("request_id", id), logging.String("method", method))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		return handler(ctx, req)
	}
}

func firstHeader(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
