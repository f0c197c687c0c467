// Package coingecko reads token quotes from the CoinGecko simple price API.
package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sentinel errors for failure cases
var (
	ErrRequest = errors.New("coingecko request failed")
	ErrStatus  = errors.New("unexpected status code")
	ErrDecode  = errors.New("decoding response")
	ErrNoQuote = errors.New("quote missing from response")
)

// Well-known values
const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	USDCoin        = "usd-coin"
	USD            = "usd"
)

// Client represents a CoinGecko API client
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new CoinGecko client with custom HTTP client and base URL
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

// Quote is the market summary of one coin
type Quote struct {
	Price       float64
	MarketCap   float64
	Volume24h   float64
	Change24h   float64 // percent
	LastUpdated time.Time
}

// SimplePrice returns the quote of coin id in the vs currency
func (c *Client) SimplePrice(ctx context.Context, id, vs string) (Quote, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", vs)
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")
	q.Set("include_24hr_change", "true")
	q.Set("include_last_updated_at", "true")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: creating request: %w", ErrRequest, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	fields, ok := body[id]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, id)
	}
	price, ok := fields[vs]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s/%s", ErrNoQuote, id, vs)
	}

	return Quote{
		Price:       price,
		MarketCap:   fields[vs+"_market_cap"],
		Volume24h:   fields[vs+"_24h_vol"],
		Change24h:   fields[vs+"_24h_change"],
		LastUpdated: time.Unix(int64(fields["last_updated_at"]), 0).UTC(),
	}, nil
}
