package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, cfg.Engine.Products)
	assert.Equal(t, "uuid", cfg.Engine.IDs)
	assert.Equal(t, DriverKafkaGo, cfg.Kafka.Driver)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadConfigFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tradesim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  log_level: debug
  grpc_addr: ":6000"
engine:
  products: [IBM, ORCL]
  ids: sequence
accounts:
  initial_holdings:
    - {account: alice, product: IBM, quantity: 100}
    - {account: alice, product: ORCL, quantity: 5}
kafka:
  enabled: true
  driver: sarama
  topic: fills
`), 0o600))

	t.Setenv("TRADESIM_REDIS_ADDR", "redis:6380")

	cfg, err := LoadConfig([]string{"-config", path, "-http_port", "9090"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, ":6000", cfg.Server.GRPCAddr)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, []string{"IBM", "ORCL"}, cfg.Engine.Products)
	assert.Equal(t, "sequence", cfg.Engine.IDs)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, DriverSarama, cfg.Kafka.Driver)
	assert.Equal(t, "fills", cfg.Kafka.Topic)
	assert.Equal(t, map[string]map[string]int64{
		"alice": {"IBM": 100, "ORCL": 5},
	}, cfg.Accounts.HoldingsMap())
}

func TestLoadConfigProductsFlag(t *testing.T) {
	cfg, err := LoadConfig([]string{"-products", "AAPL, TSLA,,", "-grpc_port", "7000"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "TSLA"}, cfg.Engine.Products)
	assert.Equal(t, ":7000", cfg.Server.GRPCAddr)
	assert.False(t, cfg.PrintConfig)

	cfg, err = LoadConfig([]string{"-print-config"})
	require.NoError(t, err)
	assert.True(t, cfg.PrintConfig)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "failed to read config file")

	t.Setenv("TRADESIM_ENGINE_IDS", "random")
	_, err = LoadConfig(nil)
	assert.ErrorContains(t, err, "engine.ids")
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	cfg.Kafka.Enabled = true
	cfg.Kafka.Driver = "confluent"
	cfg.Engine.Products = nil
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.driver")
	assert.Contains(t, err.Error(), "engine.products")

	cfg.Engine.AutoCreateProducts = true
	cfg.Kafka.Driver = DriverSarama
	assert.NoError(t, cfg.Validate())
}

func TestDump(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.Dump(&buf))

	var decoded Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, cfg.Server.GRPCAddr, decoded.Server.GRPCAddr)
	assert.Equal(t, cfg.Engine.Products, decoded.Engine.Products)
	assert.Contains(t, buf.String(), "grpc_addr:")
}
