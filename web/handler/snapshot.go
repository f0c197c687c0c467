package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/export"
	"github.com/zkx401/pulse/pkg/httpkit"
	"github.com/zkx401/pulse/poller"
	"github.com/zkx401/pulse/web/api"
	"github.com/zkx401/pulse/web/handler/bind"
)

const (
	GetSnapshotRoute     = http.MethodGet + " " + "/api/snapshot"
	RefreshSnapshotRoute = http.MethodPost + " " + "/api/snapshot/refresh"
	RetrySnapshotRoute   = http.MethodPost + " " + "/api/snapshot/retry"
	ExportSnapshotRoute  = http.MethodGet + " " + "/api/export"
)

// Sentinel errors
var (
	ErrExportFailed = errors.New("failed to export snapshot")
)

// SnapshotStore is the polling store behind the snapshot routes
type SnapshotStore interface {
	State() poller.State
	Refresh(ctx context.Context) poller.State
	Retry(ctx context.Context) poller.State
}

type Snapshot struct {
	store SnapshotStore
	opts  options
}

func NewSnapshot(store SnapshotStore, opts ...Option) *Snapshot {
	return &Snapshot{
		store: store,
		opts:  newOptions(opts),
	}
}

func (h *Snapshot) AddRoutes(m *http.ServeMux) {
	m.Handle(GetSnapshotRoute, httpkit.HandlerFunc(h.GetSnapshot))
	m.Handle(RefreshSnapshotRoute, httpkit.HandlerFunc(h.RefreshSnapshot))
	m.Handle(RetrySnapshotRoute, httpkit.HandlerFunc(h.RetrySnapshot))
	m.Handle(ExportSnapshotRoute, httpkit.HandlerFunc(h.ExportSnapshot))
}

func (h *Snapshot) GetSnapshot(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(h.store.State())
}

// RefreshSnapshot answers with the resulting state; a failed fetch is
// reported in the state error, not as an HTTP error.
func (h *Snapshot) RefreshSnapshot(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(h.store.Refresh(r.Context()))
}

func (h *Snapshot) RetrySnapshot(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(h.store.Retry(r.Context()))
}

func (h *Snapshot) ExportSnapshot(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	format, err := bind.ExportFormat(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	var snap *dashboard.Snapshot
	if state := h.store.State(); !state.LastUpdated.IsZero() {
		snap = &state.Snapshot
	}

	file, err := export.Snapshot(snap, format, h.opts.clock.Now())
	if err != nil {
		return exportFailed(err)
	}

	h.opts.recorder.Exported("snapshot", string(format))
	return httpkit.Attachment(file.Name, file.ContentType, file.Body)
}

// exportFailed answers an empty export with 204 so nothing is downloaded
func exportFailed(err error) http.HandlerFunc {
	if errors.Is(err, export.ErrNothingToExport) {
		return httpkit.NoContent()
	}
	return httpkit.JsonError(api.InternalServerError(fmt.Errorf("%w: %w", ErrExportFailed, err)))
}
