package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the ledger service, the health service and reflection, and returns the
// server ready to serve.
func NewGRPCServer(ls *LedgerServer, authToken string) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		RecoveryInterceptor(ls.logger),
		LoggingInterceptor(ls.logger),
		AuthInterceptor(authToken),
	}
	if ls.presence != nil {
		interceptors = append(interceptors, ActivityInterceptor(ls.presence))
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))

	srv.RegisterService(&LedgerServiceDesc, ls)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)

	return srv
}
