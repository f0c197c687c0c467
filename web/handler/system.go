package handler

import (
	"net/http"
)

const (
	StreamRoute  = http.MethodGet + " " + "/ws"
	MetricsRoute = http.MethodGet + " " + "/metrics"
)

// System mounts the push stream and the metrics exposition
type System struct {
	stream  http.Handler
	metrics http.Handler
}

func NewSystem(stream, metrics http.Handler) *System {
	return &System{
		stream:  stream,
		metrics: metrics,
	}
}

func (h *System) AddRoutes(m *http.ServeMux) {
	m.Handle(StreamRoute, h.stream)
	m.Handle(MetricsRoute, h.metrics)
}
