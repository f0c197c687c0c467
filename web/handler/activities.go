package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/httpkit"
	"github.com/zkx401/pulse/poller"
	"github.com/zkx401/pulse/search"
	"github.com/zkx401/pulse/web/api"
	"github.com/zkx401/pulse/web/handler/bind"
	"github.com/zkx401/pulse/web/listing"
)

const GetActivitiesRoute = http.MethodGet + " " + "/api/activities"

// ActivitiesStore provides the activity list of the last fetch
type ActivitiesStore interface {
	State() poller.State
}

type Activities struct {
	store ActivitiesStore
	opts  options

	mu      sync.Mutex
	index   *search.Index[dashboard.Activity]
	version activitiesVersion
}

// activitiesVersion identifies the list last copied into the index
type activitiesVersion struct {
	updated time.Time
	count   int
	head    string
}

func NewActivities(store ActivitiesStore, opts ...Option) *Activities {
	o := newOptions(opts)
	return &Activities{
		store: store,
		opts:  o,
		index: search.NewActivityIndex(nil, search.WithClock(o.clock)),
	}
}

func (h *Activities) AddRoutes(m *http.ServeMux) {
	m.Handle(GetActivitiesRoute, httpkit.HandlerFunc(h.GetActivities))
}

func (h *Activities) GetActivities(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	req, err := bind.GetActivitiesRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	perPage, err := listing.ParsePerPage(req.PerPage)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	result := h.search(req.Query)
	if req.Query != "" {
		h.opts.recorder.Searched("activities")
	}

	matched := dashboard.FilterActivities(result.Items, dashboard.FilterOptions{
		From:         req.From,
		To:           req.To,
		Kinds:        req.Kinds,
		MinAmount:    req.MinAmount,
		MaxAmount:    req.MaxAmount,
		Facilitators: req.Facilitators,
	})
	sorted := dashboard.SortActivities(matched, dashboard.SortConfig{Field: req.Sort, Direction: req.Direction})
	page := listing.Paginate(sorted, listing.ParsePage(req.Page), perPage)

	// Build GitHub-style Link header for navigation
	if linkHeader := buildPaginationLinks(page, r.URL); linkHeader != "" {
		w.Header().Set("Link", linkHeader)
	}

	return httpkit.JSON(api.ActivitiesResponse{
		Data:        page.Items,
		Total:       page.Total,
		Page:        page.Number.Uint64(),
		PerPage:     page.Size.Uint64(),
		Suggestions: result.Suggestions,
		DidYouMean:  result.DidYouMean,
	})
}

// search runs q against the latest activity list, copying the list into
// the index only when the store replaced it.
func (h *Activities) search(q string) search.Result[dashboard.Activity] {
	state := h.store.State()
	version := activitiesVersion{updated: state.LastUpdated, count: len(state.Activities)}
	if len(state.Activities) > 0 {
		version.head = state.Activities[0].ID
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if version != h.version {
		h.index.SetItems(state.Activities)
		h.version = version
	}
	return h.index.Search(q)
}

// buildPaginationLinks creates GitHub-style Link header for pagination navigation
func buildPaginationLinks[T any](page listing.Window[T], baseURL *url.URL) string {
	var links []string

	// Keep the filters of the current request
	u := *baseURL
	query := u.Query()

	if page.HasPrevious() {
		query.Set("page", fmt.Sprintf("%d", page.Number-1))
		query.Set("per_page", fmt.Sprintf("%d", page.Size))
		u.RawQuery = query.Encode()
		links = append(links, fmt.Sprintf(`<%s>; rel="prev"`, u.String()))
	}

	if page.HasNext() {
		query.Set("page", fmt.Sprintf("%d", page.Number+1))
		query.Set("per_page", fmt.Sprintf("%d", page.Size))
		u.RawQuery = query.Encode()
		links = append(links, fmt.Sprintf(`<%s>; rel="next"`, u.String()))
	}

	return strings.Join(links, ", ")
}
