package handler

import (
	"net/http"

	"github.com/zkx401/pulse/monitor"
	"github.com/zkx401/pulse/pkg/httpkit"
)

const (
	GetPriceMonitorRoute   = http.MethodGet + " " + "/api/monitor/price"
	GetNetworkMonitorRoute = http.MethodGet + " " + "/api/monitor/network"
)

// Monitors exposes the latest scheduled samples
type Monitors interface {
	Price() monitor.PriceView
	Network() monitor.NetworkView
}

type Monitor struct {
	monitors Monitors
}

func NewMonitor(monitors Monitors) *Monitor {
	return &Monitor{monitors: monitors}
}

func (h *Monitor) AddRoutes(m *http.ServeMux) {
	m.Handle(GetPriceMonitorRoute, httpkit.HandlerFunc(h.GetPrice))
	m.Handle(GetNetworkMonitorRoute, httpkit.HandlerFunc(h.GetNetwork))
}

func (h *Monitor) GetPrice(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(h.monitors.Price())
}

func (h *Monitor) GetNetwork(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(h.monitors.Network())
}
