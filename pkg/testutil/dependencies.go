// Package testutil holds helpers for tests that need external services.
package testutil

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// RedisAddr returns the Redis address used by integration tests
func RedisAddr() string {
	if addr := os.Getenv("TRADESIM_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// KafkaAddr returns the Kafka broker address used by integration tests
func KafkaAddr() string {
	if addr := os.Getenv("TRADESIM_TEST_KAFKA_ADDR"); addr != "" {
		return addr
	}
	return "localhost:9092"
}

// SkipIfRedisUnavailable skips the test if Redis does not answer PING on redisAddr
func SkipIfRedisUnavailable(t testing.TB, redisAddr string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping test: Redis not available at %s - %v", redisAddr, err)
	}
}

// SkipIfKafkaUnavailable skips the test if no Kafka broker responds on kafkaAddr
func SkipIfKafkaUnavailable(t testing.TB, kafkaAddr string) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", kafkaAddr, 2*time.Second)
	if err != nil {
		t.Skipf("Skipping test: Kafka not available at %s - %v", kafkaAddr, err)
		return
	}
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	kconn, err := kafka.DialContext(ctx, "tcp", kafkaAddr)
	if err != nil {
		t.Skipf("Skipping test: Kafka at %s refused the protocol handshake - %v", kafkaAddr, err)
		return
	}
	defer kconn.Close()

	if _, err := kconn.Brokers(); err != nil && !errors.Is(err, io.EOF) {
		t.Skipf("Skipping test: Kafka at %s is not responding correctly - %v", kafkaAddr, err)
	}
}

// SkipIfDependenciesUnavailable skips the test if either Redis or Kafka is unavailable
func SkipIfDependenciesUnavailable(t testing.TB, redisAddr, kafkaAddr string) {
	t.Helper()
	SkipIfRedisUnavailable(t, redisAddr)
	SkipIfKafkaUnavailable(t, kafkaAddr)
}
