package handler

import (
	"net/http"
	"sync"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/export"
	"github.com/zkx401/pulse/pkg/httpkit"
	"github.com/zkx401/pulse/search"
	"github.com/zkx401/pulse/web/api"
	"github.com/zkx401/pulse/web/handler/bind"
)

const (
	GetFacilitatorsRoute    = http.MethodGet + " " + "/api/facilitators"
	ExportFacilitatorsRoute = http.MethodGet + " " + "/api/facilitators/export"
)

type Facilitators struct {
	opts options

	mu    sync.Mutex
	index *search.Index[dashboard.Facilitator]
}

func NewFacilitators(rows []dashboard.Facilitator, opts ...Option) *Facilitators {
	o := newOptions(opts)
	return &Facilitators{
		opts:  o,
		index: search.NewFacilitatorIndex(rows, search.WithClock(o.clock)),
	}
}

func (h *Facilitators) AddRoutes(m *http.ServeMux) {
	m.Handle(GetFacilitatorsRoute, httpkit.HandlerFunc(h.GetFacilitators))
	m.Handle(ExportFacilitatorsRoute, httpkit.HandlerFunc(h.ExportFacilitators))
}

func (h *Facilitators) GetFacilitators(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	req, err := bind.GetFacilitatorsRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	result := h.search(req.Query)
	rows := dashboard.SortFacilitators(result.Items, req.Sort, req.Direction)

	return httpkit.JSON(api.FacilitatorsResponse{
		Data:          rows,
		Highlighted:   alignHighlights(rows, result.Highlighted),
		Suggestions:   result.Suggestions,
		DidYouMean:    result.DidYouMean,
		SearchHistory: result.History,
	})
}

// ExportFacilitators downloads the table as filtered and sorted on screen
func (h *Facilitators) ExportFacilitators(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	req, err := bind.GetFacilitatorsRequest(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	rows := dashboard.SortFacilitators(h.search(req.Query).Items, req.Sort, req.Direction)
	file, err := export.Facilitators(rows)
	if err != nil {
		return exportFailed(err)
	}

	h.opts.recorder.Exported("facilitators", string(export.FormatCSV))
	return httpkit.Attachment(file.Name, file.ContentType, file.Body)
}

func (h *Facilitators) search(q string) search.Result[dashboard.Facilitator] {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := h.index.Search(q)
	if len(result.History) > 0 && result.History[0] == q {
		h.opts.recorder.Searched("facilitators")
	}
	return result
}

// alignHighlights orders the marked-up fields like rows. It returns nil
// when the query produced no highlights.
func alignHighlights(rows []dashboard.Facilitator, highlighted []search.Highlighted[dashboard.Facilitator]) []map[string]string {
	if len(highlighted) == 0 {
		return nil
	}

	byName := make(map[string]map[string]string, len(highlighted))
	for _, h := range highlighted {
		byName[h.Item.Name] = h.Fields
	}

	out := make([]map[string]string, len(rows))
	for i, row := range rows {
		out[i] = byName[row.Name]
	}
	return out
}
