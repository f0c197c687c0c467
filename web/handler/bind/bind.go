package bind

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/export"
	"github.com/zkx401/pulse/feed"
	"github.com/zkx401/pulse/pkg/httpkit"
	"github.com/zkx401/pulse/web/api"
)

// Sentinel errors for request binding
var (
	ErrInvalidType      = errors.New("invalid type parameter")
	ErrInvalidFrom      = errors.New("invalid from parameter")
	ErrInvalidTo        = errors.New("invalid to parameter")
	ErrInvalidMinAmount = errors.New("invalid min_amount parameter")
	ErrInvalidMaxAmount = errors.New("invalid max_amount parameter")
	ErrInvalidSort      = errors.New("invalid sort parameter")
	ErrInvalidDirection = errors.New("invalid direction parameter")
	ErrInvalidPage      = errors.New("invalid page parameter")
	ErrInvalidPerPage   = errors.New("invalid per_page parameter")
	ErrInvalidFormat    = errors.New("invalid format parameter")
	ErrInvalidEnabled   = errors.New("invalid enabled parameter")
	ErrInvalidRange     = errors.New("invalid range")
	ErrInvalidBody      = errors.New("invalid request body")

	// Specific validation errors
	ErrNotNumeric      = errors.New("must be numeric")
	ErrNotPositive     = errors.New("must be positive")
	ErrNotTimestamp    = errors.New("must be an RFC 3339 timestamp")
	ErrPerPageTooLarge = errors.New("per_page must be between 1 and 100")
	ErrFromAfterTo     = errors.New("from must not be after to")
	ErrMinAboveMax     = errors.New("min_amount must not exceed max_amount")
)

// maxPerPage mirrors listing.MaxPerPage at the binding layer
const maxPerPage = 100

// GetActivitiesRequest binds HTTP request to ActivitiesRequest with defaults
func GetActivitiesRequest(r *http.Request) (api.ActivitiesRequest, error) {
	query := r.URL.Query()
	req := api.ActivitiesRequest{
		Page:    1,
		PerPage: 20,
		Query:   query.Get("q"),
	}

	for _, raw := range splitList(query.Get("type")) {
		kind, err := dashboard.ParseKind(raw)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidType, err)
		}
		req.Kinds = append(req.Kinds, kind)
	}
	req.Facilitators = splitList(query.Get("facilitator"))

	var err error
	if req.From, err = parseTimestamp(query.Get("from")); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidFrom, err)
	}
	if req.To, err = parseTimestamp(query.Get("to")); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidTo, err)
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.From.After(req.To) {
		return req, fmt.Errorf("%w: %w", ErrInvalidRange, ErrFromAfterTo)
	}

	if req.MinAmount, err = parseAmount(query.Get("min_amount")); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidMinAmount, err)
	}
	if req.MaxAmount, err = parseAmount(query.Get("max_amount")); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidMaxAmount, err)
	}
	if req.MinAmount != nil && req.MaxAmount != nil && *req.MinAmount > *req.MaxAmount {
		return req, fmt.Errorf("%w: %w", ErrInvalidRange, ErrMinAboveMax)
	}

	if req.Sort, err = dashboard.ParseSortField(query.Get("sort")); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidSort, err)
	}
	if req.Direction, err = dashboard.ParseDirection(query.Get("direction"), dashboard.Descending); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidDirection, err)
	}

	if pageParam := query.Get("page"); pageParam != "" {
		page, err := parsePositive(pageParam)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPage, err)
		}
		req.Page = page
	}

	if perPageParam := query.Get("per_page"); perPageParam != "" {
		perPage, err := parsePositive(perPageParam)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPerPage, err)
		}
		if perPage > maxPerPage {
			return req, fmt.Errorf("%w: %w", ErrInvalidPerPage, ErrPerPageTooLarge)
		}
		req.PerPage = perPage
	}

	return req, nil
}

// GetFacilitatorsRequest binds HTTP request to FacilitatorsRequest
func GetFacilitatorsRequest(r *http.Request) (api.FacilitatorsRequest, error) {
	query := r.URL.Query()
	req := api.FacilitatorsRequest{Query: query.Get("q")}

	var err error
	if req.Sort, err = dashboard.ParseFacilitatorSortField(query.Get("sort")); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidSort, err)
	}
	if req.Direction, err = dashboard.ParseDirection(query.Get("direction"), dashboard.Descending); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidDirection, err)
	}
	return req, nil
}

// ExportFormat binds the format parameter; JSON is the default
func ExportFormat(r *http.Request) (export.Format, error) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return format, nil
}

// Enabled binds the required boolean enabled parameter
func Enabled(r *http.Request) (bool, error) {
	on, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		return false, fmt.Errorf("%w: must be true or false", ErrInvalidEnabled)
	}
	return on, nil
}

// Intersection binds the JSON body of a scroll sentinel report
func Intersection(r *http.Request) (feed.Intersection, error) {
	var in feed.Intersection
	if err := httpkit.DecodeJSON(r, &in); err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if in.Height < 0 {
		return in, fmt.Errorf("%w: height %w", ErrInvalidBody, ErrNotPositive)
	}
	return in, nil
}

// splitList splits a comma separated parameter, dropping blanks
func splitList(param string) []string {
	var out []string
	for _, part := range strings.Split(param, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTimestamp(param string) (time.Time, error) {
	if param == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, param)
	if err != nil {
		return time.Time{}, ErrNotTimestamp
	}
	return t, nil
}

func parseAmount(param string) (*float64, error) {
	if param == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(param, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, ErrNotNumeric
	}
	return &v, nil
}

// parsePositive validates that param is a positive integer
func parsePositive(param string) (uint64, error) {
	v, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return 0, ErrNotNumeric
	}
	if v == 0 {
		return 0, ErrNotPositive
	}
	return v, nil
}
