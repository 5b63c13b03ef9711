// Command redis follows the top-of-book snapshots a tradesim server mirrors
// to Redis (run the server with redis.enabled=true).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/erain9/tradesim/pkg/core"
	redisfeed "github.com/erain9/tradesim/pkg/feed/redis"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "localhost:6379", "Redis address")
	prefix := flag.String("prefix", "tradesim", "Channel prefix configured on the server")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := redisfeed.NewClient(redisfeed.Options{Addr: *addr})
	defer client.Close()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	logger.Info("Redis connection established", zap.String("reply", pong))

	// no products on the command line means every product
	sub, err := redisfeed.Subscribe(ctx, client, *prefix, logger, flag.Args()...)
	if err != nil {
		logger.Fatal("Failed to subscribe", zap.Error(err))
	}
	defer sub.Close()

	_ = sub.Run(ctx, func(tob core.TopOfBook) {
		fmt.Printf("%s #%d bids=%s asks=%s\n", tob.Product, tob.Sequence, levels(tob.Bids), levels(tob.Asks))
	})
}

func levels(ls []core.LevelSummary) string {
	parts := make([]string, 0, len(ls))
	for _, l := range ls {
		parts = append(parts, fmt.Sprintf("%d@%s", l.Quantity, l.Price))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
