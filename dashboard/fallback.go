package dashboard

import (
	"math"
	"time"
)

// Fallback values substituted when a live fetch fails
var (
	FallbackNetwork = NetworkStats{
		TPS:               2800,
		BlockHeight:       294567832,
		AverageSlotTime:   400,
		TotalTransactions: 145000000,
		FeePerTransaction: 0.000005,
	}

	FallbackProtocol = ProtocolMetrics{
		TotalTransactions:  594000,
		TotalVolume:        640000000,
		ActiveFacilitators: 23,
		AverageFee:         0.003,
		MarketCap:          1.2e9,
	}

	FallbackProofs = ProofStats{
		ProofsGenerated:       12847,
		SuccessRate:           99.7,
		AverageGenerationTime: 2.3,
		ActiveProvers:         156,
	}

	FallbackPrice = PriceInfo{
		Price:     1.0008,
		Change24h: 0.02,
		MarketCap: 32e9,
		Volume24h: 5.2e9,
	}
)

// FallbackVolumeBase is the mean hourly volume of the fallback history
const FallbackVolumeBase = 25000

// FallbackVolumeHistory returns a deterministic daily curve around FallbackVolumeBase.
func FallbackVolumeHistory() []int64 {
	history := make([]int64, VolumeHistoryLength)
	for i := range history {
		phase := float64(i) / VolumeHistoryLength * 2 * math.Pi
		history[i] = int64(math.Round(FallbackVolumeBase * (math.Sin(phase)*0.3 + 1)))
	}
	return history
}

// Fallback returns the snapshot served before any fetch succeeds.
func Fallback(now time.Time) Snapshot {
	price := FallbackPrice
	price.LastUpdated = now
	return Snapshot{
		Network:       FallbackNetwork,
		Protocol:      FallbackProtocol,
		Proofs:        FallbackProofs,
		Price:         price,
		VolumeHistory: FallbackVolumeHistory(),
		FetchedAt:     now,
	}
}
