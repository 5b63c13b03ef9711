package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(line, &entry))
		out = append(out, entry)
	}
	return out
}

func TestSetupLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: "warn", Format: "json", Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := FromContext(context.Background())
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestFromContextRequestID(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: "debug", Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx := WithRequestID(context.Background(), "req-42")
	logger := FromContext(ctx)
	logger.Info().Msg("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-42", lines[0]["request_id"])
}

func TestUnaryServerInterceptor(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: "debug", Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	interceptor := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/tradesim.TradingService/GetOrder"}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "abc"))

	var seen string
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		seen, _ = ctx.Value(RequestIDKey).(string)
		return nil, status.Error(codes.NotFound, "order not found")
	})
	require.Error(t, err)
	assert.Equal(t, "abc", seen)

	lines := decodeLines(t, &buf)
	require.NotEmpty(t, lines)
	last := lines[len(lines)-1]
	assert.Equal(t, "warn", last["level"])
	assert.Equal(t, "NotFound", last["grpc.code"])
	assert.Equal(t, "abc", last["request_id"])
	assert.Equal(t, "/tradesim.TradingService/GetOrder", last["grpc.method"])
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context {
	return s.ctx
}

func TestStreamServerInterceptor(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: "debug", Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	interceptor := StreamServerInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/tradesim.TradingService/SubscribeTopOfBook", IsServerStream: true}
	stream := &fakeServerStream{
		ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "xyz")),
	}

	var seen string
	err := interceptor(nil, stream, info, func(srv interface{}, ss grpc.ServerStream) error {
		seen, _ = ss.Context().Value(RequestIDKey).(string)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "xyz", seen)

	byMessage := map[string]map[string]interface{}{}
	for _, line := range decodeLines(t, &buf) {
		msg, _ := line["message"].(string)
		byMessage[msg] = line
	}
	require.Contains(t, byMessage, "Stream started")
	require.Contains(t, byMessage, "Stream completed")
	assert.Equal(t, "debug", byMessage["Stream started"]["level"])
	assert.Equal(t, "xyz", byMessage["Stream started"]["request_id"])
	assert.Equal(t, true, byMessage["Stream completed"]["grpc.stream"])
}
