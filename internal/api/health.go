package api

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/ground.control/internal/link"
)

// LinkService is the health service name that tracks the serial link. The
// overall ("") status follows it.
const LinkService = "groundcontrol.Link"

// HealthServer exposes the standard gRPC health service. It reports SERVING
// only while the link is Connected.
type HealthServer struct {
	addr   string
	link   *link.Manager
	health *health.Server

	server   *grpc.Server
	listener net.Listener
	subID    string
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewHealthServer returns a health server for m that will listen on addr.
func NewHealthServer(addr string, m *link.Manager) *HealthServer {
	return &HealthServer{
		addr:   addr,
		link:   m,
		health: health.NewServer(),
	}
}

// Start binds the listener and serves in the background.
func (h *HealthServer) Start() error {
	if h.running.Load() {
		return fmt.Errorf("health server already running")
	}

	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	h.listener = lis
	h.server = grpc.NewServer()
	healthpb.RegisterHealthServer(h.server, h.health)

	id, states := h.link.Subscribe()
	h.subID = id
	h.setStatus(h.link.State())
	h.running.Store(true)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for s := range states {
			h.setStatus(s)
		}
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		logf("gRPC health listening on %s", lis.Addr())
		if err := h.server.Serve(lis); err != nil && h.running.Load() {
			logf("gRPC health server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (h *HealthServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *HealthServer) setStatus(s link.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s == link.Connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(LinkService, status)
}

// Stop unsubscribes from the link and stops the gRPC server gracefully.
func (h *HealthServer) Stop() {
	if !h.running.Swap(false) {
		return
	}
	h.link.Unsubscribe(h.subID)
	h.health.Shutdown()
	h.server.GracefulStop()
	h.wg.Wait()
	logf("gRPC health server stopped")
}
