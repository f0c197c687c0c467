package realtime

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/zkx401/pulse/dashboard"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LamportsPerSOL converts account balances to SOL
const LamportsPerSOL = 1_000_000_000

// Envelope is the wire form of an Event: {"type", "data", "timestamp"}.
type Envelope struct {
	Type      Type                `json:"type"`
	Data      jsoniter.RawMessage `json:"data"`
	Timestamp time.Time           `json:"timestamp"`
}

// inbound covers every message shape a stream may deliver
type inbound struct {
	Type      string              `json:"type"`
	Data      jsoniter.RawMessage `json:"data"`
	Timestamp *time.Time          `json:"timestamp"`
	Method    string              `json:"method"`
	Params    *struct {
		Result struct {
			Context struct {
				Slot int64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Lamports int64 `json:"lamports"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Encode renders ev as an Envelope
func Encode(ev Event) ([]byte, error) {
	var payload any
	switch ev.Type {
	case TypeTransaction:
		payload = ev.Transaction
	case TypePrice:
		payload = ev.Price
	case TypeStats:
		payload = ev.Stats
	case TypeActivity:
		payload = ev.Activity
	}
	if !ev.Valid() {
		return nil, fmt.Errorf("%w: no payload for %q", ErrDecode, ev.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return json.Marshal(Envelope{Type: ev.Type, Data: data, Timestamp: ev.Timestamp})
}

// Decode parses one stream message. Control messages such as pongs and
// subscription confirmations yield ok=false.
func Decode(msg []byte, now time.Time) (ev Event, ok bool, err error) {
	var in inbound
	if err := json.Unmarshal(msg, &in); err != nil {
		return Event{}, false, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if in.Method == "accountNotification" && in.Params != nil {
		return Event{
			Type:      TypeTransaction,
			Timestamp: now,
			Transaction: &Transaction{
				Slot:   in.Params.Result.Context.Slot,
				Amount: float64(in.Params.Result.Value.Lamports) / LamportsPerSOL,
				Status: "confirmed",
			},
		}, true, nil
	}

	ev = Event{Type: normalize(in.Type), Timestamp: now}
	if in.Timestamp != nil {
		ev.Timestamp = *in.Timestamp
	}

	var target any
	switch ev.Type {
	case TypeTransaction:
		ev.Transaction = &Transaction{}
		target = ev.Transaction
	case TypePrice:
		ev.Price = &dashboard.PriceInfo{}
		target = ev.Price
	case TypeStats:
		ev.Stats = &dashboard.NetworkStats{}
		target = ev.Stats
	case TypeActivity:
		ev.Activity = &dashboard.Activity{}
		target = ev.Activity
	default:
		// pong, subscription result and unknown types
		return Event{}, false, nil
	}

	if len(in.Data) == 0 {
		return Event{}, false, fmt.Errorf("%w: %q without data", ErrDecode, in.Type)
	}
	if err := json.Unmarshal(in.Data, target); err != nil {
		return Event{}, false, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return ev, true, nil
}

// normalize accepts the short type names used by browser clients
func normalize(t string) Type {
	switch t {
	case "price":
		return TypePrice
	case "stats":
		return TypeStats
	default:
		return Type(t)
	}
}
