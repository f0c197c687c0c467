package dashboard

import (
	"bytes"
	"cmp"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed facilitators.yaml
var facilitatorsYAML []byte

// PrivacyLevel grades how much a facilitator reveals about payments
type PrivacyLevel string

const (
	PrivacyHigh   PrivacyLevel = "High"
	PrivacyMedium PrivacyLevel = "Medium"
	PrivacyLow    PrivacyLevel = "Low"
)

// Facilitator is a read-only row of the comparison table
type Facilitator struct {
	Name              string       `yaml:"name" json:"name"`
	MarketCap         float64      `yaml:"marketCap" json:"marketCap"`
	ActiveWallets     int          `yaml:"activeWallets" json:"activeWallets"`
	TransactionFeeBps int          `yaml:"transactionFeeBps" json:"transactionFeeBps"`
	TrustScore        float64      `yaml:"trustScore" json:"trustScore"`
	PrivacyLevel      PrivacyLevel `yaml:"privacyLevel" json:"privacyLevel"`
	APIEndpoints      int          `yaml:"apiEndpoints" json:"apiEndpoints"`
	Uptime            float64      `yaml:"uptime" json:"uptime"` // percent
	ZKx401            bool         `yaml:"zkx401" json:"zkx401"`
	MarketCapTrend    float64      `yaml:"marketCapTrend" json:"marketCapTrend"` // percent
	PerformanceScore  int          `yaml:"performanceScore" json:"performanceScore"`
}

// Facilitator errors
var (
	ErrFacilitatorsDecode      = errors.New("failed to decode facilitators")
	ErrInvalidFacilitator      = errors.New("invalid facilitator")
	ErrUnknownFacilitatorField = errors.New("unknown facilitator sort field")
)

// LoadFacilitators decodes a YAML list of facilitators.
func LoadFacilitators(r io.Reader) ([]Facilitator, error) {
	var rows []Facilitator
	if err := yaml.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFacilitatorsDecode, err)
	}
	for i, row := range rows {
		if row.Name == "" {
			return nil, fmt.Errorf("%w: row %d has no name", ErrInvalidFacilitator, i)
		}
		switch row.PrivacyLevel {
		case PrivacyHigh, PrivacyMedium, PrivacyLow:
		default:
			return nil, fmt.Errorf("%w: %s has privacy level %q", ErrInvalidFacilitator, row.Name, row.PrivacyLevel)
		}
	}
	return rows, nil
}

// Facilitators returns a fresh copy of the built-in comparison table.
func Facilitators() []Facilitator {
	rows, err := LoadFacilitators(bytes.NewReader(facilitatorsYAML))
	if err != nil {
		panic(err) // embedded data is validated by tests
	}
	return rows
}

// FacilitatorNames lists the built-in facilitator names in table order.
func FacilitatorNames() []string {
	rows := Facilitators()
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = row.Name
	}
	return names
}

// FacilitatorSortField names a column of the comparison table
type FacilitatorSortField string

const (
	SortFacilitatorsByName           FacilitatorSortField = "name"
	SortFacilitatorsByTrustScore     FacilitatorSortField = "trustScore"
	SortFacilitatorsByAPIEndpoints   FacilitatorSortField = "apiEndpoints"
	SortFacilitatorsByMarketCapTrend FacilitatorSortField = "marketCapTrend"
)

// ParseFacilitatorSortField converts s to a column. Empty input sorts by trust score.
func ParseFacilitatorSortField(s string) (FacilitatorSortField, error) {
	switch f := FacilitatorSortField(s); f {
	case "":
		return SortFacilitatorsByTrustScore, nil
	case SortFacilitatorsByName, SortFacilitatorsByTrustScore, SortFacilitatorsByAPIEndpoints, SortFacilitatorsByMarketCapTrend:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFacilitatorField, s)
	}
}

// SortFacilitators returns a sorted copy of rows. The zero direction is descending.
func SortFacilitators(rows []Facilitator, field FacilitatorSortField, dir Direction) []Facilitator {
	out := slices.Clone(rows)

	var compare func(a, b Facilitator) int
	switch field {
	case SortFacilitatorsByName:
		compare = func(a, b Facilitator) int { return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) }
	case SortFacilitatorsByAPIEndpoints:
		compare = func(a, b Facilitator) int { return cmp.Compare(a.APIEndpoints, b.APIEndpoints) }
	case SortFacilitatorsByMarketCapTrend:
		compare = func(a, b Facilitator) int { return cmp.Compare(a.MarketCapTrend, b.MarketCapTrend) }
	default:
		compare = func(a, b Facilitator) int { return cmp.Compare(a.TrustScore, b.TrustScore) }
	}

	slices.SortStableFunc(out, func(a, b Facilitator) int {
		if dir == Ascending {
			return compare(a, b)
		}
		return compare(b, a)
	})
	return out
}
