// Package grpcserver hosts the internal gRPC listener: health service plus
// recovery, logging and bearer authentication interceptors.
package grpcserver

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// New builds a gRPC server with the interceptor chain and a registered health service.
// Services registered later on the returned server are guarded by p.
func New(guard Guard, p Policy, hs *health.Server, log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
			AuthUnary(guard, p),
		),
		grpc.ChainStreamInterceptor(
			AuthStream(guard, p),
		),
	)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, hs)
	return s
}
