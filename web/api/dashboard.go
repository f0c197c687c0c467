package api

import (
	"time"

	"github.com/zkx401/pulse/boundary"
	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/feed"
	"github.com/zkx401/pulse/monitor"
)

// ActivitiesRequest represents the query parameters for GET /api/activities
type ActivitiesRequest struct {
	Kinds        []dashboard.Kind    // type, comma separated
	Facilitators []string            // facilitator, comma separated
	From         time.Time           // RFC 3339, zero means unbounded
	To           time.Time           // RFC 3339, zero means unbounded
	MinAmount    *float64            // min_amount
	MaxAmount    *float64            // max_amount
	Sort         dashboard.SortField // sort (default: timestamp)
	Direction    dashboard.Direction // direction (default: desc)
	Page         uint64              // page (default: 1)
	PerPage      uint64              // per_page (default: 20, max: 100)
	Query        string              // q, substring search
}

// ActivitiesResponse represents the API response format for GET /api/activities
type ActivitiesResponse struct {
	Data        []dashboard.Activity `json:"data"`
	Total       int                  `json:"total"`
	Page        uint64               `json:"page"`
	PerPage     uint64               `json:"perPage"`
	Suggestions []string             `json:"suggestions,omitempty"`
	DidYouMean  []string             `json:"didYouMean,omitempty"`
}

// FeedResponse represents the API response format of the feed commands
type FeedResponse struct {
	feed.View
	Loaded bool `json:"loaded"` // whether the command grew the window
}

// FacilitatorsRequest represents the query parameters for GET /api/facilitators
type FacilitatorsRequest struct {
	Query     string
	Sort      dashboard.FacilitatorSortField
	Direction dashboard.Direction
}

// FacilitatorsResponse represents the API response format for GET /api/facilitators
type FacilitatorsResponse struct {
	Data          []dashboard.Facilitator `json:"data"`
	Highlighted   []map[string]string     `json:"highlighted,omitempty"`
	Suggestions   []string                `json:"suggestions"`
	DidYouMean    []string                `json:"didYouMean"`
	SearchHistory []string                `json:"searchHistory"`
}

// OverviewResponse represents the API response format for GET /api/overview.
// Every section renders independently behind its own error boundary.
type OverviewResponse struct {
	Network  boundary.View[dashboard.NetworkStats]    `json:"networkStats"`
	Protocol boundary.View[dashboard.ProtocolMetrics] `json:"x402Metrics"`
	Proofs   boundary.View[dashboard.ProofStats]      `json:"proofStats"`
	Price    boundary.View[monitor.PriceView]         `json:"priceMonitor"`
	Health   boundary.View[monitor.NetworkView]       `json:"networkMonitor"`
}
