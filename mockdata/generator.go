// Package mockdata generates randomized dashboard snapshots and activity records.
package mockdata

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock"
)

// ActivityCount is the size of a generated activity list
const ActivityCount = 50

// LiveBatchSize is the number of records in a live transaction batch
const LiveBatchSize = 5

var (
	addresses = []string{
		"DEF...789", "GHI...456", "JKL...123", "MNO...987", "PQR...654",
		"STU...321", "VWX...876", "YZA...543", "BCD...210", "EFG...789",
	}

	messages = []string{
		"ZK proof generated for wallet",
		"x402 transaction completed",
		"New seller endpoint registered",
		"Wallet joined x402 network",
		"API integration completed",
		"Transaction fee optimized",
		"Block confirmation received",
		"Smart contract deployed",
	}
)

// Option configures the Generator
type Option func(*Generator)

// WithSeed makes the generated values reproducible
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithClock injects a custom Clock for timestamps
func WithClock(c clock.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithIDs overrides activity identifier generation
func WithIDs(fn func() string) Option {
	return func(g *Generator) { g.newID = fn }
}

// Generator produces randomized values inside the dashboard's plausible ranges.
// It is safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock clock.Clock
	newID func() string
}

// NewGenerator constructs a Generator seeded from the runtime by default.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		clock: clock.SystemClock{},
		newID: func() string { return "activity-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) float(lo, hi float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Generator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Network returns network stats with 2000–3000 TPS.
func (g *Generator) Network() dashboard.NetworkStats {
	return dashboard.NetworkStats{
		TPS:               float64(2000 + g.intn(1000)),
		BlockHeight:       280_000_000 + int64(g.intn(1_000_000)),
		AverageSlotTime:   dashboard.FallbackNetwork.AverageSlotTime,
		TotalTransactions: dashboard.FallbackNetwork.TotalTransactions + int64(g.intn(1_000_000)),
		FeePerTransaction: dashboard.FallbackNetwork.FeePerTransaction,
	}
}

// Protocol returns x402 metrics with 50k–150k transactions.
func (g *Generator) Protocol() dashboard.ProtocolMetrics {
	return dashboard.ProtocolMetrics{
		TotalTransactions:  50_000 + int64(g.intn(100_000)),
		TotalVolume:        float64(5_000_000 + g.intn(10_000_000)),
		ActiveFacilitators: 45 + g.intn(100),
		AverageFee:         dashboard.FallbackProtocol.AverageFee,
		MarketCap:          dashboard.FallbackProtocol.MarketCap,
	}
}

// Proofs returns proof stats with a 98–100% success rate.
func (g *Generator) Proofs() dashboard.ProofStats {
	return dashboard.ProofStats{
		ProofsGenerated:       500 + int64(g.intn(1000)),
		SuccessRate:           round(g.float(98, 100), 1),
		AverageGenerationTime: round(g.float(1, 4), 1),
		ActiveProvers:         100 + g.intn(100),
	}
}

// Price returns a USDC quote within half a basis point of 0.999847.
func (g *Generator) Price() dashboard.PriceInfo {
	return dashboard.PriceInfo{
		Price:       0.999847 + g.float(-0.0005, 0.0005),
		Change24h:   g.float(-0.005, 0.005),
		MarketCap:   dashboard.FallbackPrice.MarketCap,
		Volume24h:   dashboard.FallbackPrice.Volume24h,
		LastUpdated: g.clock.Now(),
	}
}

// VolumeHistory returns 24 hourly volumes between 20000 and 70000.
func (g *Generator) VolumeHistory() []int64 {
	history := make([]int64, dashboard.VolumeHistoryLength)
	for i := range history {
		history[i] = 20_000 + int64(g.intn(50_000))
	}
	return history
}

// Snapshot returns a complete snapshot stamped with cycle.
func (g *Generator) Snapshot(cycle uint64) dashboard.Snapshot {
	return dashboard.Snapshot{
		Network:       g.Network(),
		Protocol:      g.Protocol(),
		Proofs:        g.Proofs(),
		Price:         g.Price(),
		VolumeHistory: g.VolumeHistory(),
		Cycle:         cycle,
		FetchedAt:     g.clock.Now(),
	}
}

// TransactionHash derives a stable pseudo hash from seed.
func TransactionHash(seed string) string {
	return fmt.Sprintf("0x%016x", xxh3.HashString(seed))
}

// FormatAmount renders a dollar amount with thousands separators and cents.
func FormatAmount(amount float64) string {
	return "$" + humanize.FormatFloat("#,###.##", amount)
}

// Activity returns one record of a random kind stamped at the given time.
func (g *Generator) Activity(at time.Time) dashboard.Activity {
	kinds := dashboard.Kinds()
	facilitators := dashboard.FacilitatorNames()

	id := g.newID()
	kind := kinds[g.intn(len(kinds))]
	facilitator := facilitators[g.intn(len(facilitators))]
	amount := round(g.float(0, 1000), 2)

	return dashboard.Activity{
		ID:        id,
		Type:      kind,
		Message:   fmt.Sprintf("New %s activity via %s - %s", kind, facilitator, FormatAmount(amount)),
		Timestamp: at.UTC(),
		Metadata: &dashboard.Metadata{
			Amount:          amount,
			Facilitator:     facilitator,
			UserID:          fmt.Sprintf("user-%d", g.intn(10_000)),
			TransactionHash: TransactionHash(id),
		},
	}
}

// Activities returns n records from the last hour, newest first.
func (g *Generator) Activities(n int) []dashboard.Activity {
	now := g.clock.Now()
	out := make([]dashboard.Activity, n)
	for i := range out {
		out[i] = g.Activity(now.Add(-time.Duration(g.float(0, float64(time.Hour)))))
	}
	return dashboard.SortActivities(out, dashboard.SortConfig{})
}

// LiveBatch returns LiveBatchSize records spaced 30s apart cycling through every kind.
func (g *Generator) LiveBatch() []dashboard.Activity {
	now := g.clock.Now()
	kinds := dashboard.Kinds()
	out := make([]dashboard.Activity, LiveBatchSize)
	for i := range out {
		id := g.newID()
		amount := round(g.float(100, 1100), 2)
		out[i] = dashboard.Activity{
			ID:        id,
			Type:      kinds[i%len(kinds)],
			Message:   fmt.Sprintf("%s %s - %s", messages[i%len(messages)], addresses[i], FormatAmount(amount)),
			Timestamp: now.Add(-time.Duration(i) * 30 * time.Second).UTC(),
			Metadata: &dashboard.Metadata{
				Amount:          amount,
				UserID:          addresses[i],
				TransactionHash: TransactionHash(id),
			},
		}
	}
	return out
}

// Jitter returns a duration uniformly drawn from [lo, hi).
func (g *Generator) Jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(g.float(0, float64(hi-lo)))
}

// Chance reports true with probability p.
func (g *Generator) Chance(p float64) bool {
	return g.float(0, 1) < p
}

const signatureAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Signature returns an 88 character pseudo transaction signature.
func (g *Generator) Signature() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := make([]byte, 88)
	for i := range b {
		b[i] = signatureAlphabet[g.rng.IntN(len(signatureAlphabet))]
	}
	return string(b)
}

// Slot returns a plausible recent Solana slot.
func (g *Generator) Slot() int64 {
	return 294_567_000 + int64(g.intn(1000))
}
