package remotekv

import (
	"fmt"

	"github.com/golang/protobuf/proto"
)

// legacyMessage is the classic pre-apiv2 protoc-gen-go message interface,
// satisfied by remotekvpb.Cursor and remotekvpb.Pair.
type legacyMessage interface {
	Reset()
	String() string
	ProtoMessage()
}

// Codec marshals remotekvpb messages through github.com/golang/protobuf's
// legacy-compatible proto.Marshal/Unmarshal instead of grpc's built-in
// "proto" codec, which requires a protoreflect.ProtoMessage (a descriptor
// this hand-maintained package never generates). Passed to every call via
// grpc.ForceCodec.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(legacyMessage)
	if !ok {
		return nil, fmt.Errorf("remotekv: cannot marshal %T: not a legacy protobuf message", v)
	}
	return proto.Marshal(m.(proto.Message))
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(legacyMessage)
	if !ok {
		return fmt.Errorf("remotekv: cannot unmarshal into %T: not a legacy protobuf message", v)
	}
	return proto.Unmarshal(data, m.(proto.Message))
}

func (Codec) Name() string { return "remotekv-legacy-proto" }
