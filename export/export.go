// Package export serializes dashboard data into downloadable files.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/zkx401/pulse/dashboard"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sentinel errors for failure cases
var (
	ErrNothingToExport   = errors.New("nothing to export")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrSerialization     = errors.New("export serialization failed")
)

// Format is an export file format
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Filenames of the exported files
const (
	SnapshotPrefix      = "zkx401-dashboard-"
	FacilitatorFilename = "zkx401-facilitator-comparison.csv"
)

// ParseFormat validates a format name. An empty name selects JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// File is a serialized export ready for download
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Snapshot serializes snap in the given format. The file name embeds the
// UTC date of now.
func Snapshot(snap *dashboard.Snapshot, format Format, now time.Time) (File, error) {
	if snap == nil {
		return File{}, ErrNothingToExport
	}

	var (
		body []byte
		err  error
	)
	switch format {
	case FormatJSON:
		body, err = json.MarshalIndent(snap, "", "  ")
	case FormatCSV:
		body, err = writeCSV(snapshotRows(snap))
	default:
		return File{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return File{}, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	return File{
		Name:        SnapshotPrefix + now.UTC().Format(time.DateOnly) + "." + string(format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

func snapshotRows(snap *dashboard.Snapshot) [][]string {
	return [][]string{
		{"Metric", "Value"},
		{"Solana TPS", number(snap.Network.TPS)},
		{"Gas Fee", number(snap.Network.FeePerTransaction)},
		{"Block Height", strconv.FormatInt(snap.Network.BlockHeight, 10)},
		{"x402 Transactions", strconv.FormatInt(snap.Protocol.TotalTransactions, 10)},
		{"Active Facilitators", strconv.Itoa(snap.Protocol.ActiveFacilitators)},
		{"Market Cap", number(snap.Protocol.MarketCap)},
		{"USDC Price", number(snap.Price.Price)},
	}
}

// Facilitators serializes the comparison table as CSV
func Facilitators(rows []dashboard.Facilitator) (File, error) {
	if len(rows) == 0 {
		return File{}, ErrNothingToExport
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, []string{
		"Facilitator", "Market Cap", "Active Wallets", "Transaction Fee", "Trust Score",
		"Privacy Level", "API Endpoints", "Uptime", "Market Cap Trend",
	})
	for _, f := range rows {
		records = append(records, []string{
			f.Name,
			MarketCap(f.MarketCap),
			strconv.Itoa(f.ActiveWallets),
			FeeFromBps(f.TransactionFeeBps),
			number(f.TrustScore),
			string(f.PrivacyLevel),
			strconv.Itoa(f.APIEndpoints),
			number(f.Uptime) + "%",
			Trend(f.MarketCapTrend),
		})
	}

	body, err := writeCSV(records)
	if err != nil {
		return File{}, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return File{Name: FacilitatorFilename, ContentType: FormatCSV.ContentType(), Body: body}, nil
}

func writeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// number renders v without exponent or float noise
func number(v float64) string {
	return decimal.NewFromFloat(v).String()
}

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// MarketCap abbreviates a dollar amount, e.g. 48000000 as $48M.
func MarketCap(v float64) string {
	d := decimal.NewFromFloat(v)
	switch {
	case d.GreaterThanOrEqual(billion):
		return "$" + d.Div(billion).Round(1).String() + "B"
	case d.GreaterThanOrEqual(million):
		return "$" + d.Div(million).Round(1).String() + "M"
	case d.GreaterThanOrEqual(thousand):
		return "$" + d.Div(thousand).Round(1).String() + "K"
	default:
		return "$" + d.Round(2).String()
	}
}

// FeeFromBps renders basis points as a percentage, e.g. 25 as 0.25%.
func FeeFromBps(bps int) string {
	return decimal.New(int64(bps), -2).String() + "%"
}

// Trend renders a signed percentage change, e.g. +12.5%.
func Trend(pct float64) string {
	d := decimal.NewFromFloat(pct).Round(1)
	if d.IsPositive() {
		return "+" + d.String() + "%"
	}
	return d.String() + "%"
}
