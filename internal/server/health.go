package server

import (
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GameServiceName is the health service name reported for the game listener.
const GameServiceName = "tictactoe.Game"

// Admin is the gRPC admin endpoint. It serves the standard grpc.health.v1
// Health service and server reflection.
type Admin struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewAdmin creates an Admin that will listen on addr. Both the overall ("")
// and GameServiceName statuses start as NOT_SERVING.
//
// Precondition: logger must be non-nil.
func NewAdmin(addr string, logger *zap.Logger) *Admin {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(GameServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &Admin{
		addr:   addr,
		grpc:   gs,
		health: hs,
		logger: logger,
	}
}

// SetServing marks the game as serving or not serving.
func (a *Admin) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus("", status)
	a.health.SetServingStatus(GameServiceName, status)
	a.logger.Info("health status changed", zap.Stringer("status", status))
}

// Start listens on the configured address and serves until Stop.
func (a *Admin) Start() error {
	lis, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.addr, err)
	}
	return a.Serve(lis)
}

// Serve serves on lis until Stop.
func (a *Admin) Serve(lis net.Listener) error {
	a.logger.Info("admin gRPC server listening", zap.String("addr", lis.Addr().String()))
	if err := a.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving admin gRPC: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING to watchers and stops the gRPC server.
func (a *Admin) Stop() {
	a.health.Shutdown()
	a.grpc.GracefulStop()
}
