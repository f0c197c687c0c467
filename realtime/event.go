// Package realtime defines push events and the sources that produce them.
package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/zkx401/pulse/dashboard"
)

// Type identifies the payload carried by an Event
type Type string

const (
	TypeTransaction Type = "transaction"
	TypePrice       Type = "price_update"
	TypeStats       Type = "network_stats"
	TypeActivity    Type = "activity"
)

// Sentinel errors for event sources
var (
	ErrAlreadyOpen     = errors.New("event source already open")
	ErrDial            = errors.New("event source dial failed")
	ErrSubscribe       = errors.New("event source subscription failed")
	ErrDecode          = errors.New("event decode failed")
	ErrDisconnected    = errors.New("event source disconnected")
	ErrReconnectFailed = errors.New("event source reconnect attempts exhausted")
)

// Transaction is a confirmed on-chain payment
type Transaction struct {
	Signature string  `json:"signature"`
	Slot      int64   `json:"slot"`
	Amount    float64 `json:"amount"`
	Fee       float64 `json:"fee"`
	Status    string  `json:"status"`
}

// Event is a single push update. Exactly one payload matches Type.
type Event struct {
	Type        Type                    `json:"type"`
	Timestamp   time.Time               `json:"timestamp"`
	Transaction *Transaction            `json:"transaction,omitempty"`
	Price       *dashboard.PriceInfo    `json:"price,omitempty"`
	Stats       *dashboard.NetworkStats `json:"stats,omitempty"`
	Activity    *dashboard.Activity     `json:"activity,omitempty"`
}

// Valid reports whether the payload for Type is present.
func (e Event) Valid() bool {
	switch e.Type {
	case TypeTransaction:
		return e.Transaction != nil
	case TypePrice:
		return e.Price != nil
	case TypeStats:
		return e.Stats != nil
	case TypeActivity:
		return e.Activity != nil
	default:
		return false
	}
}

// Source produces push events until its context is cancelled or Close is called.
// The returned channel is closed when the source stops.
type Source interface {
	Open(ctx context.Context) (<-chan Event, error)
	Close() error
	Connected() bool
}
