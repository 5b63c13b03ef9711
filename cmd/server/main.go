package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erain9/tradesim/config"
	"github.com/erain9/tradesim/pkg/account"
	"github.com/erain9/tradesim/pkg/core"
	"github.com/erain9/tradesim/pkg/db/queue"
	"github.com/erain9/tradesim/pkg/feed"
	redisfeed "github.com/erain9/tradesim/pkg/feed/redis"
	"github.com/erain9/tradesim/pkg/logging"
	"github.com/erain9/tradesim/pkg/messaging"
	"github.com/erain9/tradesim/pkg/messaging/kafka"
	"github.com/erain9/tradesim/pkg/otel"
	"github.com/erain9/tradesim/pkg/server"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.PrintConfig {
		if err := cfg.Dump(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print configuration: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})
	ctx := logger.WithContext(context.Background())

	cleanup, err := otel.Init(ctx, otel.Config{
		Endpoint:         cfg.Otel.Endpoint,
		MetricInterval:   cfg.Otel.MetricInterval,
		CollectorEnabled: cfg.Otel.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer cleanup()
	if cfg.Otel.Enabled {
		if err := otel.StartRuntimeMetrics(); err != nil {
			logger.Warn().Err(err).Msg("Runtime metrics unavailable")
		}
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build server")
	}

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("Failed to listen")
	}
	go func() {
		logger.Info().Str("addr", cfg.Server.GRPCAddr).Msg("Starting gRPC server")
		if err := a.grpcServer.Serve(grpcLis); err != nil {
			logger.Fatal().Err(err).Msg("Failed to serve gRPC")
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	a.Close(shutdownCtx)

	logger.Info().Msg("Servers shutdown complete")
}

// app holds everything the server process wires together
type app struct {
	engine      *core.MatchingEngine
	ledger      *account.Ledger
	broker      *feed.Broker
	grpcServer  *grpc.Server
	httpHandler http.Handler

	closers []func(context.Context)
	logger  zerolog.Logger
}

// newApp builds the engine, its listeners and both API surfaces. Optional
// Kafka and Redis outputs are attached when enabled.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{
		ledger: account.NewLedger(),
		broker: feed.NewBroker(),
		logger: logger,
	}
	a.ledger.Seed(cfg.Accounts.HoldingsMap())

	opts := []core.EngineOption{
		core.WithProducts(cfg.Engine.Products...),
		core.WithAutoCreateProducts(cfg.Engine.AutoCreateProducts),
		core.WithListener(a.ledger),
		core.WithListener(a.broker),
	}
	if cfg.Engine.IDs == "sequence" {
		opts = append(opts, core.WithIDProvider(&core.SequenceIDProvider{}))
	}
	a.closers = append(a.closers, func(context.Context) { a.broker.Close() })

	if cfg.Kafka.Enabled {
		sender, err := newMessageSender(cfg.Kafka)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		dispatcher := messaging.NewDispatcher(sender, cfg.Kafka.Buffer, logger)
		opts = append(opts, core.WithListener(dispatcher))
		a.closers = append(a.closers, func(ctx context.Context) {
			if err := dispatcher.Close(ctx); err != nil {
				logger.Error().Err(err).Msg("Failed to flush match messages")
			}
		})
		logger.Info().Str("driver", cfg.Kafka.Driver).Str("topic", cfg.Kafka.Topic).Msg("Publishing executions to Kafka")

		// The consumer is for developer purpose which helps pretty print the
		// messages in the queue.
		if cfg.Kafka.DevConsumer {
			consumerCtx, stop := context.WithCancel(ctx)
			reader := kafka.SetupConsumer(consumerCtx, cfg.Kafka.Brokers, cfg.Kafka.Topic, "tradesim-dev", logger)
			a.closers = append(a.closers, func(context.Context) {
				stop()
				_ = reader.Close()
			})
		}
	}

	if cfg.Redis.Enabled {
		zl, err := newZapLogger(cfg.Server.LogFormat)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		client := redisfeed.NewClient(redisfeed.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			a.Close(ctx)
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		publisher := redisfeed.NewPublisher(client, cfg.Redis.Prefix, zl)
		opts = append(opts, core.WithListener(publisher))
		a.closers = append(a.closers, func(context.Context) {
			publisher.Close()
			_ = client.Close()
			_ = zl.Sync()
		})
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Mirroring top of book to Redis")
	}

	a.engine = core.NewMatchingEngine(opts...)

	svc := server.NewTradingService(a.engine, a.ledger, a.broker)
	svc.SetFeedBuffer(cfg.Engine.FeedBuffer)
	a.grpcServer = server.NewGRPCServer()
	server.RegisterTradingService(a.grpcServer, svc)

	a.httpHandler = server.NewHTTPHandler(a.engine, a.ledger, cfg.Server.GRPCAddr, logger)

	logger.Info().Strs("products", a.engine.Products()).Msg("Matching engine ready")
	return a, nil
}

// Close stops the gRPC server and flushes the optional outputs in reverse
// order of creation.
func (a *app) Close(ctx context.Context) {
	if a.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			a.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			a.logger.Warn().Msg("Graceful stop timed out, forcing")
			a.grpcServer.Stop()
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

func newMessageSender(cfg config.KafkaConfig) (messaging.MessageSender, error) {
	switch cfg.Driver {
	case config.DriverSarama:
		return queue.NewQueueMessageSender(queue.Config{Brokers: cfg.Brokers, Topic: cfg.Topic})
	default:
		return kafka.NewKafkaMessageSender(cfg.Brokers, cfg.Topic)
	}
}

func newZapLogger(format string) (*zap.Logger, error) {
	if format == "pretty" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
