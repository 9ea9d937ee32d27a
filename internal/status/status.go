// Package status publishes headband connection state over the standard gRPC
// health checking protocol, so supervisors can watch the bridge with
// grpc_health_probe or any health client.
package status

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/packet"
)

// HeadbandService is the health service name tracking the headband link.
// The empty service name reports the bridge process itself.
const HeadbandService = "museosc.Headband"

var logf = monitoring.Prefixed("status")

// Server owns a gRPC server exposing the health service.
type Server struct {
	health *health.Server
	server *grpc.Server

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer returns a Server with the bridge SERVING and the headband
// NOT_SERVING until a connection event says otherwise.
func NewServer() *Server {
	s := &Server{
		health: health.NewServer(),
		server: grpc.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HeadbandService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("status server already running")
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logf("gRPC health listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			logf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// ConnectionChanged updates the headband service status. Only CONNECTED
// counts as serving.
func (s *Server) ConnectionChanged(evt packet.ConnectionEvent) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if evt.Current == packet.StateConnected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HeadbandService, st)
}

// Stop marks every service NOT_SERVING, notifies watchers and stops the
// server.
func (s *Server) Stop() {
	s.health.Shutdown()
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.server.GracefulStop()
	s.wg.Wait()
	logf("gRPC health stopped")
}
