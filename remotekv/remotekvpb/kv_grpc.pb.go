package remotekvpb

import (
	"context"

	"google.golang.org/grpc"
)

// KVClient is the hand-maintained client stub for the remotekvpb.KV
// service's single bidirectional method, mirroring the shape
// protoc-gen-go-grpc emits for a service with one "stream(stream) returns
// (stream)" RPC.
type KVClient interface {
	Tx(ctx context.Context, opts ...grpc.CallOption) (KV_TxClient, error)
}

type kVClient struct {
	cc   *grpc.ClientConn
	opts []grpc.CallOption
}

// NewKVClient wraps an established connection to the KV server. extraOpts
// is prepended to every call's CallOptions — in practice this is always
// []grpc.CallOption{grpc.ForceCodec(Codec{})}, since these hand-maintained
// messages bypass grpc's protoreflect-based "proto" codec entirely.
func NewKVClient(cc *grpc.ClientConn, extraOpts ...grpc.CallOption) KVClient {
	return &kVClient{cc: cc, opts: extraOpts}
}

var kVTxStreamDesc = grpc.StreamDesc{
	StreamName:    "Tx",
	ServerStreams: true,
	ClientStreams: true,
}

func (c *kVClient) Tx(ctx context.Context, opts ...grpc.CallOption) (KV_TxClient, error) {
	allOpts := append(append([]grpc.CallOption{}, c.opts...), opts...)
	stream, err := c.cc.NewStream(ctx, &kVTxStreamDesc, "/remotekvpb.KV/Tx", allOpts...)
	if err != nil {
		return nil, err
	}
	return &kVTxClient{stream}, nil
}

// KV_TxClient is the bidi stream handle callers Send/Recv on.
type KV_TxClient interface {
	Send(*Cursor) error
	Recv() (*Pair, error)
	grpc.ClientStream
}

type kVTxClient struct {
	grpc.ClientStream
}

func (x *kVTxClient) Send(m *Cursor) error {
	return x.ClientStream.SendMsg(m)
}

func (x *kVTxClient) Recv() (*Pair, error) {
	m := new(Pair)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
