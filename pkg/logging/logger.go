// Package logging configures zerolog and carries request-scoped loggers.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const (
	// RequestIDKey is the key used to store request IDs in context
	RequestIDKey contextKey = "request_id"

	requestIDHeader = "x-request-id"
)

// Config defines logging configuration
type Config struct {
	// Level is the logging level (debug, info, warn, error)
	Level string
	// Format is "json" or "pretty"
	Format string
	// Output defaults to os.Stdout
	Output io.Writer
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stdout,
	}
}

// Setup configures the global logger and returns it
func Setup(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return log.Logger
}

// WithRequestID stores a request id for FromContext to pick up
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// FromContext returns the logger attached to ctx (or the global one),
// annotated with the request id when present.
func FromContext(ctx context.Context) zerolog.Logger {
	logger := log.Logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = *l
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return logger.With().Str("request_id", requestID).Logger()
	}
	return logger
}

func requestIDFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	if ids := md.Get(requestIDHeader); len(ids) > 0 && ids[0] != "" {
		return ids[0], true
	}
	return "", false
}

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

// logCompletion logs client errors at warn, server errors at error and the rest at info
func logCompletion(logger zerolog.Logger, err error, start time.Time, msg string) {
	code := codeOf(err)

	var event *zerolog.Event
	switch code {
	case codes.OK:
		event = logger.Info()
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.FailedPrecondition, codes.Canceled:
		event = logger.Warn().Err(err)
	default:
		event = logger.Error().Err(err)
	}

	event.Str("grpc.code", code.String()).
		Dur("duration", time.Since(start)).
		Msg(msg)
}

// UnaryServerInterceptor logs every unary call and propagates x-request-id
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		logger := log.With().Str("grpc.method", info.FullMethod).Logger()

		if requestID, ok := requestIDFromMetadata(ctx); ok {
			ctx = WithRequestID(ctx, requestID)
		}
		ctx = logger.WithContext(ctx)

		resp, err := handler(ctx, req)
		logCompletion(FromContext(ctx), err, start, "Request completed")
		return resp, err
	}
}

// StreamServerInterceptor logs the lifetime of every stream
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger := log.With().Str("grpc.method", info.FullMethod).Bool("grpc.stream", true).Logger()

		ctx := stream.Context()
		if requestID, ok := requestIDFromMetadata(ctx); ok {
			ctx = WithRequestID(ctx, requestID)
		}
		ctx = logger.WithContext(ctx)

		streamLogger := FromContext(ctx)
		streamLogger.Debug().Msg("Stream started")
		err := handler(srv, &wrappedServerStream{ServerStream: stream, ctx: ctx})
		logCompletion(FromContext(ctx), err, start, "Stream completed")
		return err
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a modified context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapper's modified context
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
