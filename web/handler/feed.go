package handler

import (
	"context"
	"net/http"

	"github.com/zkx401/pulse/feed"
	"github.com/zkx401/pulse/pkg/httpkit"
	"github.com/zkx401/pulse/web/api"
	"github.com/zkx401/pulse/web/handler/bind"
)

const (
	GetFeedRoute       = http.MethodGet + " " + "/api/feed"
	LoadMoreFeedRoute  = http.MethodPost + " " + "/api/feed/more"
	RefreshFeedRoute   = http.MethodPost + " " + "/api/feed/refresh"
	SetRealtimeRoute   = http.MethodPut + " " + "/api/feed/realtime"
	IntersectFeedRoute = http.MethodPost + " " + "/api/feed/intersect"
)

// FeedStore is the incremental activity window
type FeedStore interface {
	View() feed.View
	LoadMore(ctx context.Context) bool
	Refresh(ctx context.Context) feed.View
	SetRealtime(enabled bool)
}

// FeedTrigger turns sentinel positions into window growth
type FeedTrigger interface {
	Observe(ctx context.Context, in feed.Intersection) bool
}

type Feed struct {
	store   FeedStore
	trigger FeedTrigger
}

func NewFeed(store FeedStore, trigger FeedTrigger) *Feed {
	return &Feed{
		store:   store,
		trigger: trigger,
	}
}

func (h *Feed) AddRoutes(m *http.ServeMux) {
	m.Handle(GetFeedRoute, httpkit.HandlerFunc(h.GetFeed))
	m.Handle(LoadMoreFeedRoute, httpkit.HandlerFunc(h.LoadMore))
	m.Handle(RefreshFeedRoute, httpkit.HandlerFunc(h.Refresh))
	m.Handle(SetRealtimeRoute, httpkit.HandlerFunc(h.SetRealtime))
	m.Handle(IntersectFeedRoute, httpkit.HandlerFunc(h.Intersect))
}

func (h *Feed) GetFeed(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(h.store.View())
}

func (h *Feed) LoadMore(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	loaded := h.store.LoadMore(r.Context())
	return httpkit.JSON(api.FeedResponse{View: h.store.View(), Loaded: loaded})
}

func (h *Feed) Refresh(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(h.store.Refresh(r.Context()))
}

func (h *Feed) SetRealtime(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	enabled, err := bind.Enabled(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	h.store.SetRealtime(enabled)
	return httpkit.JSON(h.store.View())
}

// Intersect reports the scroll sentinel position; the window grows when
// enough of the sentinel is visible.
func (h *Feed) Intersect(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	in, err := bind.Intersection(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	loaded := h.trigger.Observe(r.Context(), in)
	return httpkit.JSON(api.FeedResponse{View: h.store.View(), Loaded: loaded})
}
