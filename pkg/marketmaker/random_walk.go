package marketmaker

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// minPrice is the smallest price the book can represent
const minPrice = 0.001

// randomWalkPriceFetcher moves the reference price by a normally distributed
// percentage on every fetch.
type randomWalkPriceFetcher struct {
	mu     sync.Mutex
	price  float64
	vol    float64
	rng    *rand.Rand
	logger *zap.Logger
}

// NewRandomWalkPriceFetcher starts a walk at cfg.ReferencePrice. A zero seed
// picks one from the clock.
func NewRandomWalkPriceFetcher(cfg *Config, logger *zap.Logger) PriceFetcher {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &randomWalkPriceFetcher{
		price:  cfg.ReferencePrice,
		vol:    cfg.VolatilityPercent / 100,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger.With(zap.String("component", "randomWalkPriceFetcher")),
	}
}

// FetchPrice implements PriceFetcher
func (f *randomWalkPriceFetcher) FetchPrice(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.price * (1 + f.rng.NormFloat64()*f.vol)
	f.price = math.Max(roundPrice(next), minPrice)

	f.logger.Debug("Reference price moved", zap.Float64("price", f.price))
	return f.price, nil
}

// Close implements PriceFetcher
func (f *randomWalkPriceFetcher) Close() error {
	return nil
}

// roundPrice rounds to the book's three fractional digits
func roundPrice(p float64) float64 {
	return math.Round(p*1000) / 1000
}
