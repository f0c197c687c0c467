// Package solana is a minimal Solana JSON-RPC client covering the calls the
// dashboard reads network statistics from.
package solana

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sentinel errors for failure cases
var (
	ErrRequest = errors.New("solana rpc request failed")
	ErrStatus  = errors.New("unexpected status code")
	ErrDecode  = errors.New("decoding response")
	ErrRPC     = errors.New("solana rpc error")
)

// DefaultBaseURL is the public mainnet endpoint
const DefaultBaseURL = "https://api.mainnet-beta.solana.com"

// Client represents a Solana JSON-RPC client
type Client struct {
	httpClient *http.Client
	baseURL    string
	nextID     atomic.Uint64
}

// NewClient creates a new Solana RPC client with custom HTTP client and base URL
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// PerformanceSample is one entry of getRecentPerformanceSamples
type PerformanceSample struct {
	Slot             int64 `json:"slot"`
	NumTransactions  int64 `json:"numTransactions"`
	NumSlots         int64 `json:"numSlots"`
	SamplePeriodSecs int64 `json:"samplePeriodSecs"`
}

// RPCError is the error object of a JSON-RPC response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result jsoniter.RawMessage `json:"result"`
	Error  *RPCError           `json:"error"`
}

// RecentPerformanceSamples returns up to limit samples, newest first
func (c *Client) RecentPerformanceSamples(ctx context.Context, limit int) ([]PerformanceSample, error) {
	var samples []PerformanceSample
	if err := c.Call(ctx, "getRecentPerformanceSamples", []any{limit}, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// Slot returns the current slot
func (c *Client) Slot(ctx context.Context) (int64, error) {
	var slot int64
	if err := c.Call(ctx, "getSlot", []any{}, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// Call performs one JSON-RPC call and decodes its result into out
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrRequest, method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ErrRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequest, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: %d", ErrStatus, method, resp.StatusCode)
	}

	var rpcResp response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s: %w", ErrRPC, method, rpcResp.Error)
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("%w: %s result: %w", ErrDecode, method, err)
	}
	return nil
}
