package poller

import (
	"context"
	"errors"
	"time"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/realtime"
)

// Sentinel errors for failure cases
var (
	ErrFetchFailed     = errors.New("fetch failed")
	ErrNetworkStats    = errors.New("network stats unavailable")
	ErrProtocolMetrics = errors.New("protocol metrics unavailable")
	ErrProofStats      = errors.New("proof stats unavailable")
	ErrPriceInfo       = errors.New("price info unavailable")
	ErrVolumeHistory   = errors.New("volume history unavailable")
	ErrActivities      = errors.New("activities unavailable")
	ErrRealtimeOpen    = errors.New("realtime stream unavailable")
	ErrInvalidEvent    = errors.New("invalid realtime event")
	ErrCacheLoad       = errors.New("cache load failed")
	ErrCacheSave       = errors.New("cache save failed")
)

// Default configuration values
const (
	DefaultPollInterval  = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = time.Second
	DefaultMaxActivities = 100
	DefaultWorkers       = 8
)

// Source fetches the snapshot sub-records
// ---------------------------------------
type Source interface {
	NetworkStats(ctx context.Context) (dashboard.NetworkStats, error)
	ProtocolMetrics(ctx context.Context) (dashboard.ProtocolMetrics, error)
	ProofStats(ctx context.Context) (dashboard.ProofStats, error)
	PriceInfo(ctx context.Context) (dashboard.PriceInfo, error)
	VolumeHistory(ctx context.Context) ([]int64, error)
}

// ActivitySource fetches the activity list alongside the snapshot
type ActivitySource interface {
	Activities(ctx context.Context) ([]dashboard.Activity, error)
}

// Cache keeps the last known good snapshot between runs
type Cache interface {
	// Load returns the cached snapshot and whether one was found
	Load(ctx context.Context) (dashboard.Snapshot, bool, error)
	// Save stores snap as the last known good snapshot
	Save(ctx context.Context, snap dashboard.Snapshot) error
}

// Clock abstracts time for production and testing
// ------------------------------------------------
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

// Trigger records why a fetch was issued
type Trigger string

const (
	TriggerInitial  Trigger = "initial"
	TriggerManual   Trigger = "manual"
	TriggerInterval Trigger = "interval"
	TriggerRetry    Trigger = "retry"
)

// State is a consistent view of the store
type State struct {
	Snapshot    dashboard.Snapshot   `json:"data"`
	Activities  []dashboard.Activity `json:"activities"`
	Loading     bool                 `json:"isLoading"`
	Refreshing  bool                 `json:"isRefreshing"`
	Error       string               `json:"error,omitempty"`
	LastUpdated time.Time            `json:"lastUpdated"`
	Connected   bool                 `json:"isConnected"`
	Streaming   bool                 `json:"isStreaming"`
	RetryCount  int                  `json:"retryCount"`
	Exhausted   bool                 `json:"retriesExhausted"`
}

// Event represents a service lifecycle event
// ------------------------------------------
type Event any

type FetchStarted struct {
	Trigger Trigger
}

type FetchSucceeded struct {
	Trigger    Trigger
	Cycle      uint64
	Activities int
	Duration   time.Duration
}

type FetchFailed struct {
	Trigger    Trigger
	Err        error
	RetryCount int
}

type FetchCancelled struct {
	Trigger Trigger
}

type RetryScheduled struct {
	Attempt int
	Delay   time.Duration
}

type RetriesExhausted struct {
	Attempts int
	Err      error
}

type RealtimeApplied struct {
	Type realtime.Type
}

type RealtimeError struct {
	Err error
}

type CacheSeeded struct {
	Cycle     uint64
	FetchedAt time.Time
}

type CacheError struct {
	Err error
}

type Shutdown struct {
	Reason error // Why shutdown occurred (ctx.Err())
}
