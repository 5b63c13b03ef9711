// Package redis mirrors top-of-book snapshots onto Redis pub/sub channels so
// consumers outside the server process can follow the books.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erain9/tradesim/pkg/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options represents configuration options for the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewClient creates a go-redis client from opts
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Channel returns the channel snapshots of product are published on
func Channel(prefix, product string) string {
	return fmt.Sprintf("%s:tob:%s", prefix, product)
}

// Publisher forwards engine top-of-book updates to Redis. It implements
// core.Listener; publishing happens off the engine goroutine.
type Publisher struct {
	client  *redis.Client
	prefix  string
	logger  *zap.Logger
	timeout time.Duration
	queue   chan core.TopOfBook
	done    chan struct{}
}

// NewPublisher starts a publisher with a bounded queue. Snapshots are dropped
// with a warning when Redis cannot keep up.
func NewPublisher(client *redis.Client, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		client:  client,
		prefix:  prefix,
		logger:  logger,
		timeout: time.Second,
		queue:   make(chan core.TopOfBook, 1024),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer close(p.done)
	for tob := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.Publish(ctx, tob); err != nil {
			p.logger.Error("failed to publish top of book",
				zap.String("product", tob.Product),
				zap.Uint64("sequence", tob.Sequence),
				zap.Error(err))
		}
		cancel()
	}
}

// Publish writes one snapshot synchronously
func (p *Publisher) Publish(ctx context.Context, tob core.TopOfBook) error {
	data, err := json.Marshal(tob)
	if err != nil {
		return fmt.Errorf("encode top of book: %w", err)
	}
	return p.client.Publish(ctx, Channel(p.prefix, tob.Product), data).Err()
}

// OnExecution implements core.Listener
func (p *Publisher) OnExecution(context.Context, core.Execution) {}

// OnTopOfBook implements core.Listener
func (p *Publisher) OnTopOfBook(_ context.Context, tob core.TopOfBook) {
	select {
	case p.queue <- tob:
	default:
		p.logger.Warn("redis publish queue full, dropping snapshot",
			zap.String("product", tob.Product),
			zap.Uint64("sequence", tob.Sequence))
	}
}

// Close drains queued snapshots and stops the worker. The client is left open.
func (p *Publisher) Close() {
	close(p.queue)
	<-p.done
}

// Subscriber decodes snapshots published by a Publisher
type Subscriber struct {
	pubsub *redis.PubSub
	prefix string
	logger *zap.Logger
}

// Subscribe listens to the given products, or to every product when none are named
func Subscribe(ctx context.Context, client *redis.Client, prefix string, logger *zap.Logger, products ...string) (*Subscriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var pubsub *redis.PubSub
	if len(products) == 0 {
		pubsub = client.PSubscribe(ctx, Channel(prefix, "*"))
	} else {
		channels := make([]string, 0, len(products))
		for _, product := range products {
			channels = append(channels, Channel(prefix, product))
		}
		pubsub = client.Subscribe(ctx, channels...)
	}

	// wait for the subscription confirmation so no message is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &Subscriber{pubsub: pubsub, prefix: prefix, logger: logger}, nil
}

// Run delivers decoded snapshots to fn until ctx is done or the subscription closes
func (s *Subscriber) Run(ctx context.Context, fn func(core.TopOfBook)) error {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var tob core.TopOfBook
			if err := json.Unmarshal([]byte(msg.Payload), &tob); err != nil {
				s.logger.Warn("failed to decode top of book",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			if tob.Product == "" {
				tob.Product = strings.TrimPrefix(msg.Channel, s.prefix+":tob:")
			}
			fn(tob)
		}
	}
}

// Close ends the subscription
func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}
