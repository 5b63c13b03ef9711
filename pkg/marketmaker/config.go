package marketmaker

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the market maker service
type Config struct {
	// gRPC connection settings
	GRPCAddr       string
	RequestTimeout time.Duration

	// Market settings
	Product string // e.g. "AAPL"
	Account string // account the quotes are booked to

	// Reference price random walk
	ReferencePrice    float64
	VolatilityPercent float64 // standard deviation of each step
	Seed              int64

	// Market making parameters
	NumLevels         int
	BaseSpreadPercent float64
	PriceStepPercent  float64
	OrderSize         int64
	UpdateInterval    time.Duration

	// OrdersPerSecond caps the request rate against the server
	OrdersPerSecond float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("TRADESIM_GRPC_ADDR", "localhost:50051")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 5)
	v.SetDefault("MM_PRODUCT", "AAPL")
	v.SetDefault("MM_ACCOUNT", "mm-01")
	v.SetDefault("REFERENCE_PRICE", 100.0)
	v.SetDefault("VOLATILITY_PERCENT", 0.2)
	v.SetDefault("SEED", 0)
	v.SetDefault("NUM_LEVELS", 3)
	v.SetDefault("BASE_SPREAD_PERCENT", 0.1)
	v.SetDefault("PRICE_STEP_PERCENT", 0.05)
	v.SetDefault("ORDER_SIZE", 10)
	v.SetDefault("UPDATE_INTERVAL_SECONDS", 5)
	v.SetDefault("ORDERS_PER_SECOND", 50.0)

	v.AutomaticEnv()

	cfg := &Config{
		GRPCAddr:          v.GetString("TRADESIM_GRPC_ADDR"),
		RequestTimeout:    time.Duration(v.GetInt("REQUEST_TIMEOUT_SECONDS")) * time.Second,
		Product:           v.GetString("MM_PRODUCT"),
		Account:           v.GetString("MM_ACCOUNT"),
		ReferencePrice:    v.GetFloat64("REFERENCE_PRICE"),
		VolatilityPercent: v.GetFloat64("VOLATILITY_PERCENT"),
		Seed:              v.GetInt64("SEED"),
		NumLevels:         v.GetInt("NUM_LEVELS"),
		BaseSpreadPercent: v.GetFloat64("BASE_SPREAD_PERCENT"),
		PriceStepPercent:  v.GetFloat64("PRICE_STEP_PERCENT"),
		OrderSize:         v.GetInt64("ORDER_SIZE"),
		UpdateInterval:    time.Duration(v.GetInt("UPDATE_INTERVAL_SECONDS")) * time.Second,
		OrdersPerSecond:   v.GetFloat64("ORDERS_PER_SECOND"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.GRPCAddr == "" {
		return fmt.Errorf("TRADESIM_GRPC_ADDR must not be empty")
	}
	if cfg.Product == "" {
		return fmt.Errorf("MM_PRODUCT must not be empty")
	}
	if cfg.Account == "" {
		return fmt.Errorf("MM_ACCOUNT must not be empty")
	}
	if cfg.ReferencePrice <= 0 {
		return fmt.Errorf("REFERENCE_PRICE must be positive")
	}
	if cfg.VolatilityPercent < 0 {
		return fmt.Errorf("VOLATILITY_PERCENT must not be negative")
	}
	if cfg.NumLevels <= 0 {
		return fmt.Errorf("NUM_LEVELS must be positive")
	}
	if cfg.BaseSpreadPercent <= 0 {
		return fmt.Errorf("BASE_SPREAD_PERCENT must be positive")
	}
	if cfg.PriceStepPercent <= 0 {
		return fmt.Errorf("PRICE_STEP_PERCENT must be positive")
	}
	if cfg.OrderSize <= 0 {
		return fmt.Errorf("ORDER_SIZE must be positive")
	}
	if cfg.UpdateInterval <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL_SECONDS must be positive")
	}
	if cfg.OrdersPerSecond <= 0 {
		return fmt.Errorf("ORDERS_PER_SECOND must be positive")
	}
	return nil
}
