package dashboard

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Direction orders sorted output
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// SortField names an activity attribute to sort by
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByType      SortField = "type"
	SortByAmount    SortField = "amount"
)

// Sort validation errors
var (
	ErrUnknownSortField = errors.New("unknown sort field")
	ErrUnknownDirection = errors.New("unknown sort direction")
)

// ParseDirection converts s to a Direction. Empty input yields def.
func ParseDirection(s string, def Direction) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case "":
		return def, nil
	case Ascending, Descending:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
	}
}

// ParseSortField converts s to an activity SortField. Empty input sorts by timestamp.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(s); f {
	case "":
		return SortByTimestamp, nil
	case SortByTimestamp, SortByType, SortByAmount:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSortField, s)
	}
}

// SortConfig selects the activity ordering; the zero value is newest first.
type SortConfig struct {
	Field     SortField
	Direction Direction
}

// FilterOptions narrows an activity list. Zero values disable a criterion.
type FilterOptions struct {
	From         time.Time
	To           time.Time
	Kinds        []Kind
	MinAmount    *float64
	MaxAmount    *float64
	Facilitators []string
}

// Match reports whether a satisfies every enabled criterion.
func (f FilterOptions) Match(a Activity) bool {
	if !f.From.IsZero() && a.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.Timestamp.After(f.To) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, a.Type) {
		return false
	}
	if f.MinAmount != nil && a.Amount() < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && a.Amount() > *f.MaxAmount {
		return false
	}
	if len(f.Facilitators) > 0 && !slices.ContainsFunc(f.Facilitators, func(name string) bool {
		return strings.EqualFold(name, a.Facilitator())
	}) {
		return false
	}
	return true
}

// FilterActivities returns the records matching f, preserving order.
func FilterActivities(items []Activity, f FilterOptions) []Activity {
	out := make([]Activity, 0, len(items))
	for _, a := range items {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

// SortActivities returns a sorted copy of items.
func SortActivities(items []Activity, cfg SortConfig) []Activity {
	out := slices.Clone(items)

	var compare func(a, b Activity) int
	switch cfg.Field {
	case SortByType:
		compare = func(a, b Activity) int { return cmp.Compare(a.Type, b.Type) }
	case SortByAmount:
		compare = func(a, b Activity) int { return cmp.Compare(a.Amount(), b.Amount()) }
	default:
		compare = func(a, b Activity) int { return a.Timestamp.Compare(b.Timestamp) }
	}

	dir := cfg.Direction
	if dir == "" {
		dir = Descending
	}
	slices.SortStableFunc(out, func(a, b Activity) int {
		if dir == Descending {
			return compare(b, a)
		}
		return compare(a, b)
	})
	return out
}
