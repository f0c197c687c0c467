// Package dashboard holds the domain model shared by the dashboard stores:
// metric snapshots, activity records and facilitator reference data.
package dashboard

import "time"

// NetworkStats describes Solana network throughput
type NetworkStats struct {
	TPS               float64 `json:"tps"`
	BlockHeight       int64   `json:"blockHeight"`
	AverageSlotTime   int64   `json:"averageSlotTime"` // milliseconds
	TotalTransactions int64   `json:"totalTransactions"`
	FeePerTransaction float64 `json:"feePerTransaction"` // SOL
}

// ProtocolMetrics describes x402 protocol activity
type ProtocolMetrics struct {
	TotalTransactions  int64   `json:"totalTransactions"`
	TotalVolume        float64 `json:"totalVolume"`
	ActiveFacilitators int     `json:"activeFacilitators"`
	AverageFee         float64 `json:"averageFee"`
	MarketCap          float64 `json:"marketCap"`
}

// ProofStats describes proof generation throughput
type ProofStats struct {
	ProofsGenerated       int64   `json:"proofsGenerated"`
	SuccessRate           float64 `json:"successRate"`           // percent
	AverageGenerationTime float64 `json:"averageGenerationTime"` // seconds
	ActiveProvers         int     `json:"activeProvers"`
}

// PriceInfo describes the USDC quote
type PriceInfo struct {
	Price       float64   `json:"price"`
	Change24h   float64   `json:"change24h"`
	MarketCap   float64   `json:"marketCap"`
	Volume24h   float64   `json:"volume24h"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Snapshot is an internally consistent bundle of sub-records captured in one
// fetch cycle. It is replaced wholesale; real-time events produce modified copies.
type Snapshot struct {
	Network       NetworkStats    `json:"networkStats"`
	Protocol      ProtocolMetrics `json:"x402Metrics"`
	Proofs        ProofStats      `json:"proofStats"`
	Price         PriceInfo       `json:"priceInfo"`
	VolumeHistory []int64         `json:"volumeHistory"`
	Cycle         uint64          `json:"cycle"`
	FetchedAt     time.Time       `json:"fetchedAt"`
}

// VolumeHistoryLength is the number of hourly points in a snapshot
const VolumeHistoryLength = 24

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.VolumeHistory = append([]int64(nil), s.VolumeHistory...)
	return out
}

// WithNetwork returns a copy with the network stats replaced.
func (s Snapshot) WithNetwork(n NetworkStats) Snapshot {
	out := s.Clone()
	out.Network = n
	return out
}

// WithPrice returns a copy with the price info replaced.
func (s Snapshot) WithPrice(p PriceInfo) Snapshot {
	out := s.Clone()
	out.Price = p
	return out
}
