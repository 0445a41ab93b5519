package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Broker is the part of the transport the health checks look at.
type Broker interface {
	Connected() bool
}

type healthHandler struct {
	broker Broker
	view   *View
}

func NewHealthHandler(b Broker, v *View) http.Handler {
	return &healthHandler{broker: b, view: v}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string `json:"status"`
		BrokerConnected bool   `json:"broker_connected"`
		ViewActive      bool   `json:"view_active"`
		Mode            Mode   `json:"mode"`
	}
	st := status{
		BrokerConnected: h.broker != nil && h.broker.Connected(),
		ViewActive:      viewActive(h.view),
		Mode:            h.view.Mode(),
	}
	switch {
	case st.BrokerConnected && st.ViewActive:
		st.Status = "ok"
	case st.BrokerConnected || st.ViewActive:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// /readyz: 200 only with a live broker link and an active view.
type readyHandler struct {
	broker Broker
	view   *View
}

func NewReadyHandler(b Broker, v *View) http.Handler {
	return &readyHandler{broker: b, view: v}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.broker != nil && h.broker.Connected() && viewActive(h.view)
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}

func viewActive(v *View) bool {
	select {
	case <-v.stopped:
		return false
	case <-v.started:
		return true
	default:
		return false
	}
}

// WatchHealth keeps the gRPC health status of service in step with the broker link
// until ctx is done.
func WatchHealth(ctx context.Context, srv *health.Server, service string, b Broker, every time.Duration) {
	set := func() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if b.Connected() {
			st = healthpb.HealthCheckResponse_SERVING
		}
		srv.SetServingStatus(service, st)
		srv.SetServingStatus("", st)
	}
	set()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-t.C:
			set()
		}
	}
}
