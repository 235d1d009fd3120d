package envserver

import (
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// NewGRPCServer builds a gRPC server with request-id, tracing and metrics
// interceptors and registers svc on it. collector may be nil.
func NewGRPCServer(svc *EnvironmentService, collector *observability.EnvCollector, log logging.Logger, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
		svc.Registry().Subscribe(func(ev Event) {
			collector.SetActiveSessions(ev.Active)
		})
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}, opts...)

	server := grpc.NewServer(serverOpts...)
	RegisterEnvironmentServer(server, svc)
	return server
}
