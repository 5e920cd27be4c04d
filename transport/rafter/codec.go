// Package rafter is the binary gRPC transport for the replication RPCs.
// It carries raft's wire structs directly over the wire instead of
// protobuf messages: there is no .proto file and no generated stub in
// this pack, so the service is hand-registered against grpc's codec
// extension point with encoding/gob standing in for protobuf framing.
package rafter

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the codec's registered name, negotiated per-call via the
// grpc.CallContentSubtype option so it never collides with the
// default "proto" codec other services on the same process may use.
const Name = "gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// gobCodec implements google.golang.org/grpc/encoding.Codec by
// marshaling with encoding/gob. Any concrete struct type works,
// unlike protobuf's codec this requires no generated message types.
type gobCodec struct{}

func (gobCodec) Name() string { return Name }

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("rafter: gob encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("rafter: gob decode failed: %w", err)
	}
	return nil
}
