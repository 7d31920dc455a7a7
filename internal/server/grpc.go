package server

import (
	grpchandler "overlay-core/internal/handler/grpc"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer 初始化并注册 gRPC 服务
func NewGRPCServer(ledger grpchandler.LedgerReader, log *zap.Logger) *grpc.Server {
	s := grpc.NewServer()

	// 注册 LedgerService
	grpchandler.RegisterLedgerServiceServer(s, grpchandler.NewLedgerHandler(ledger, log))

	// 标准健康检查
	hs := health.NewServer()
	hs.SetServingStatus(grpchandler.LedgerServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s)
	return s
}
