// Package cache stores the last known good dashboard snapshot so a restart
// or an upstream outage can serve recent data instead of fallback constants.
package cache

import (
	"errors"
	"time"
)

// Sentinel errors for failure cases
var (
	ErrEncode  = errors.New("failed to encode snapshot")
	ErrDecode  = errors.New("failed to decode snapshot")
	ErrBackend = errors.New("cache backend unavailable")
)

// Default configuration values
const (
	DefaultTTL = 5 * time.Minute
	DefaultKey = "zkx401:dashboard:snapshot"
)

// Clock abstracts time for production and testing
type Clock interface {
	Now() time.Time
}
