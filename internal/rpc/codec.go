// Package rpc declares the gRPC services of the conflict engine.
//
// Messages travel as google.protobuf.Struct. Each request and response has a
// Go type in this package; Encode and Decode convert between the two through
// protojson, so the JSON field names of the Go types are the wire contract.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Encode converts v into a Struct message
func Encode(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return msg, nil
}

// Decode fills v from a Struct message
func Decode(msg *structpb.Struct, v interface{}) error {
	if msg == nil {
		msg = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
