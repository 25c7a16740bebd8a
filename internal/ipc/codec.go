package ipc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is negotiated over grpc's "grpc-encoding" / content-subtype
// mechanism in place of the usual "proto". No protoc-generated message
// types exist in this tree (out of scope per §1), so request/response
// structs are plain Go values serialized with encoding/json rather than
// proto.Message.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
