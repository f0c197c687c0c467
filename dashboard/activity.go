package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an activity record
type Kind string

const (
	KindTransaction Kind = "transaction"
	KindProof       Kind = "proof"
	KindEndpoint    Kind = "endpoint"
	KindUser        Kind = "user"
	KindAPI         Kind = "api"
)

// ErrUnknownKind is returned when parsing an unsupported activity kind
var ErrUnknownKind = errors.New("unknown activity kind")

// Kinds lists every activity kind in display order
func Kinds() []Kind {
	return []Kind{KindTransaction, KindProof, KindEndpoint, KindUser, KindAPI}
}

// ParseKind converts s to a Kind, ignoring case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Metadata carries optional activity details
type Metadata struct {
	Amount          float64 `json:"amount,omitempty"`
	Facilitator     string  `json:"facilitator,omitempty"`
	UserID          string  `json:"userId,omitempty"`
	TransactionHash string  `json:"transactionHash,omitempty"`
}

// Activity is an immutable entry of the live feed
type Activity struct {
	ID        string    `json:"id"`
	Type      Kind      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// Amount returns the metadata amount or zero.
func (a Activity) Amount() float64 {
	if a.Metadata == nil {
		return 0
	}
	return a.Metadata.Amount
}

// Facilitator returns the metadata facilitator or an empty string.
func (a Activity) Facilitator() string {
	if a.Metadata == nil {
		return ""
	}
	return a.Metadata.Facilitator
}

// PrependActivities puts fresh records in front of current, dropping
// records whose id is already present and trimming to limit entries.
// A non-positive limit keeps everything.
func PrependActivities(current []Activity, limit int, fresh ...Activity) []Activity {
	total := len(current) + len(fresh)
	if limit <= 0 || limit > total {
		limit = total
	}
	seen := make(map[string]struct{}, total)
	out := make([]Activity, 0, limit)
	for _, list := range [][]Activity{fresh, current} {
		for _, a := range list {
			if len(out) == limit {
				return out
			}
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}
