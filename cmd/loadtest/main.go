package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/erain9/tradesim/pkg/api"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
)

// loadConfig describes one run
type loadConfig struct {
	Product      string
	Workers      int
	Orders       int // per worker
	Rate         float64
	FOKRatio     float64
	BasePrice    float64
	PriceSpread  int // ticks either side of the base price
	MaxQuantity  int64
	Seed         int64
	RequestLimit time.Duration
}

// result aggregates what the workers observed
type result struct {
	Attempted int64
	Succeeded int64
	Failed    int64
	Filled    int64
	Rejected  int64
	Duration  time.Duration
	Latency   *hdrhistogram.Histogram
	FirstErr  error
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	grpcAddr := flag.String("grpc-addr", "localhost:50051", "gRPC server address")
	cfg := loadConfig{}
	flag.StringVar(&cfg.Product, "product", "AAPL", "Product to trade")
	flag.IntVar(&cfg.Workers, "workers", 50, "Concurrent workers")
	flag.IntVar(&cfg.Orders, "orders", 200, "Orders per worker")
	flag.Float64Var(&cfg.Rate, "rate", 2000, "Maximum orders per second across all workers")
	flag.Float64Var(&cfg.FOKRatio, "fok", 0.1, "Fraction of orders sent fill-or-kill")
	flag.Float64Var(&cfg.BasePrice, "price", 100, "Centre of the price distribution")
	flag.IntVar(&cfg.PriceSpread, "spread", 10, "Price ticks either side of the centre")
	flag.Int64Var(&cfg.MaxQuantity, "max-qty", 100, "Largest order quantity")
	flag.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "Random seed")
	flag.DurationVar(&cfg.RequestLimit, "timeout", 5*time.Second, "Per-request timeout")
	flag.Parse()

	conn, err := api.Dial(*grpcAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().
		Int("workers", cfg.Workers).
		Int("orders_per_worker", cfg.Orders).
		Float64("rate", cfg.Rate).
		Str("product", cfg.Product).
		Msg("Starting load test")

	res := run(ctx, api.NewClient(conn), cfg)
	report(os.Stdout, res)

	if res.Failed > 0 {
		log.Error().Err(res.FirstErr).Int64("failed", res.Failed).Msg("Load test saw errors")
		os.Exit(1)
	}
}

// orderPlacer is the slice of the client the load test drives
type orderPlacer interface {
	CreateOrder(ctx context.Context, in *api.CreateOrderRequest, opts ...grpc.CallOption) (*api.OrderResponse, error)
}

func run(ctx context.Context, client orderPlacer, cfg loadConfig) *result {
	limiter := rate.NewLimiter(rate.Limit(cfg.Rate), max(int(cfg.Rate/10), 1))
	res := &result{
		// one microsecond to one minute at three significant figures
		Latency: hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3),
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errOnce sync.Once
	)

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(cfg.Seed + int64(worker)))
			local := hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3)
			defer func() {
				mu.Lock()
				res.Latency.Merge(local)
				mu.Unlock()
			}()

			for i := 0; i < cfg.Orders; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				req := randomOrder(rng, cfg)

				atomic.AddInt64(&res.Attempted, 1)
				callCtx, cancel := context.WithTimeout(ctx, cfg.RequestLimit)
				began := time.Now()
				resp, err := client.CreateOrder(callCtx, req)
				elapsed := time.Since(began)
				cancel()

				_ = local.RecordValue(max(elapsed.Microseconds(), 1))
				if err != nil {
					atomic.AddInt64(&res.Failed, 1)
					errOnce.Do(func() { res.FirstErr = err })
					continue
				}
				atomic.AddInt64(&res.Succeeded, 1)
				switch resp.Status {
				case "FILLED":
					atomic.AddInt64(&res.Filled, 1)
				case "REJECTED":
					atomic.AddInt64(&res.Rejected, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	res.Duration = time.Since(start)
	return res
}

func randomOrder(rng *rand.Rand, cfg loadConfig) *api.CreateOrderRequest {
	side := "BUY"
	if rng.Intn(2) == 0 {
		side = "SELL"
	}
	expiry := "GTC"
	if rng.Float64() < cfg.FOKRatio {
		expiry = "FOK"
	}
	ticks := 0
	if cfg.PriceSpread > 0 {
		ticks = rng.Intn(2*cfg.PriceSpread+1) - cfg.PriceSpread
	}
	price := max(cfg.BasePrice+float64(ticks)*0.01, 0.01)

	return &api.CreateOrderRequest{
		Product:  cfg.Product,
		Side:     side,
		Price:    fpdecimal.FromFloat(price).String(),
		Quantity: rng.Int63n(max(cfg.MaxQuantity, 1)) + 1,
		Expiry:   expiry,
		Account:  fmt.Sprintf("load-%d", rng.Intn(16)),
	}
}

func report(w io.Writer, res *result) {
	throughput := float64(res.Succeeded) / res.Duration.Seconds()
	fmt.Fprintf(w, "Load test completed in %v\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Orders attempted:  %d\n", res.Attempted)
	fmt.Fprintf(w, "Orders succeeded:  %d (%.0f/s)\n", res.Succeeded, throughput)
	fmt.Fprintf(w, "Filled on arrival: %d\n", res.Filled)
	fmt.Fprintf(w, "FOK rejected:      %d\n", res.Rejected)
	fmt.Fprintf(w, "Errors:            %d\n", res.Failed)
	if res.Latency.TotalCount() == 0 {
		return
	}
	fmt.Fprintln(w, "Latency (µs):")
	for _, q := range []float64{50, 90, 99, 99.9} {
		fmt.Fprintf(w, "  p%-5v %d\n", q, res.Latency.ValueAtQuantile(q))
	}
	fmt.Fprintf(w, "  max    %d\n", res.Latency.Max())
}
