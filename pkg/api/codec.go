// Package api defines the TradingService wire contract: request and response
// messages, the gRPC service descriptor and a typed client.
package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName is the gRPC content-subtype the service speaks (application/grpc+json)
const CodecName = "json"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec encodes protobuf well-known types with protojson and plain messages
// with encoding/json.
type Codec struct{}

// Marshal implements encoding.Codec
func (Codec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal implements encoding.Codec
func (Codec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

// Name implements encoding.Codec
func (Codec) Name() string {
	return CodecName
}
