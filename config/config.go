package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Accounts AccountsConfig `mapstructure:"accounts" yaml:"accounts"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka" yaml:"kafka"`
	Otel     OtelConfig     `mapstructure:"otel" yaml:"otel"`

	// PrintConfig asks the caller to dump the effective config and exit
	PrintConfig bool `mapstructure:"-" yaml:"-"`
}

// ServerConfig controls the listeners and logging
type ServerConfig struct {
	GRPCAddr        string        `mapstructure:"grpc_addr" yaml:"grpc_addr"`
	HTTPAddr        string        `mapstructure:"http_addr" yaml:"http_addr"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat       string        `mapstructure:"log_format" yaml:"log_format"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// EngineConfig controls the matching engine
type EngineConfig struct {
	Products           []string `mapstructure:"products" yaml:"products"`
	AutoCreateProducts bool     `mapstructure:"auto_create_products" yaml:"auto_create_products"`
	// IDs is "uuid" or "sequence"
	IDs        string `mapstructure:"ids" yaml:"ids"`
	FeedBuffer int    `mapstructure:"feed_buffer" yaml:"feed_buffer"`
}

// Holding is one starting position
type Holding struct {
	Account  string `mapstructure:"account" yaml:"account"`
	Product  string `mapstructure:"product" yaml:"product"`
	Quantity int64  `mapstructure:"quantity" yaml:"quantity"`
}

// AccountsConfig seeds the holdings ledger. Positions are a list rather than
// a map because viper lower-cases map keys and symbols are case sensitive.
type AccountsConfig struct {
	InitialHoldings []Holding `mapstructure:"initial_holdings" yaml:"initial_holdings"`
}

// HoldingsMap groups the initial holdings by account then product
func (a AccountsConfig) HoldingsMap() map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	for _, h := range a.InitialHoldings {
		if out[h.Account] == nil {
			out[h.Account] = make(map[string]int64)
		}
		out[h.Account][h.Product] += h.Quantity
	}
	return out
}

// RedisConfig enables the Redis top-of-book mirror
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// Kafka drivers
const (
	DriverKafkaGo = "kafka-go"
	DriverSarama  = "sarama"
)

// KafkaConfig enables publishing executions
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
	Driver      string   `mapstructure:"driver" yaml:"driver"`
	Brokers     []string `mapstructure:"brokers" yaml:"brokers"`
	Topic       string   `mapstructure:"topic" yaml:"topic"`
	Buffer      int      `mapstructure:"buffer" yaml:"buffer"`
	DevConsumer bool     `mapstructure:"dev_consumer" yaml:"dev_consumer"`
}

// OtelConfig points the exporters at a collector
type OtelConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	MetricInterval time.Duration `mapstructure:"metric_interval" yaml:"metric_interval"`
}

// EnvPrefix prefixes environment overrides, e.g. TRADESIM_SERVER_LOG_LEVEL
const EnvPrefix = "TRADESIM"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_addr", ":50051")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "pretty")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("engine.products", []string{"AAPL", "MSFT", "GOOG"})
	v.SetDefault("engine.auto_create_products", false)
	v.SetDefault("engine.ids", "uuid")
	v.SetDefault("engine.feed_buffer", 16)

	v.SetDefault("accounts.initial_holdings", []Holding{})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "tradesim")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.driver", DriverKafkaGo)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "tradesim-matches")
	v.SetDefault("kafka.buffer", 1024)
	v.SetDefault("kafka.dev_consumer", false)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.metric_interval", 10*time.Second)
}

// LoadConfig builds the configuration from defaults, an optional YAML file,
// TRADESIM_* environment variables and finally command line flags.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tradesim", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to config file (YAML)")
	grpcPort := fs.Int("grpc_port", 50051, "The gRPC server port")
	httpPort := fs.Int("http_port", 8080, "The HTTP server port")
	logLevel := fs.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log_format", "pretty", "Log format: json, pretty")
	products := fs.String("products", "", "Comma separated list of tradable products")
	printConfig := fs.Bool("print-config", false, "Print the effective configuration and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// explicit flags win over everything else
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "grpc_port":
			v.Set("server.grpc_addr", fmt.Sprintf(":%d", *grpcPort))
		case "http_port":
			v.Set("server.http_addr", fmt.Sprintf(":%d", *httpPort))
		case "log_level":
			v.Set("server.log_level", *logLevel)
		case "log_format":
			v.Set("server.log_format", *logFormat)
		case "products":
			v.Set("engine.products", splitList(*products))
		}
	})

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// env values for list keys arrive as one comma separated string
	cfg.Engine.Products = flattenList(cfg.Engine.Products)
	cfg.Kafka.Brokers = flattenList(cfg.Kafka.Brokers)
	cfg.PrintConfig = *printConfig

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	var errs []error
	if c.Server.GRPCAddr == "" {
		errs = append(errs, errors.New("server.grpc_addr must not be empty"))
	}
	if len(c.Engine.Products) == 0 && !c.Engine.AutoCreateProducts {
		errs = append(errs, errors.New("engine.products must list at least one product unless auto_create_products is set"))
	}
	if c.Engine.IDs != "uuid" && c.Engine.IDs != "sequence" {
		errs = append(errs, fmt.Errorf("engine.ids must be uuid or sequence, got %q", c.Engine.IDs))
	}
	for _, h := range c.Accounts.InitialHoldings {
		if h.Account == "" || h.Product == "" {
			errs = append(errs, errors.New("accounts.initial_holdings entries need account and product"))
			break
		}
	}
	if c.Kafka.Enabled {
		if c.Kafka.Driver != DriverKafkaGo && c.Kafka.Driver != DriverSarama {
			errs = append(errs, fmt.Errorf("kafka.driver must be %s or %s, got %q", DriverKafkaGo, DriverSarama, c.Kafka.Driver))
		}
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	return errors.Join(errs...)
}

// Dump writes the effective configuration as YAML
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func flattenList(in []string) []string {
	var out []string
	for _, s := range in {
		out = append(out, splitList(s)...)
	}
	return out
}
