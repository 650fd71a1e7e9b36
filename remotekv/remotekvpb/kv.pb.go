// Package remotekvpb holds the wire messages for the remote KV Tx stream
// (spec.md §6 "KV wire protocol"), hand-maintained in the pre-apiv2
// protoc-gen-go style: plain structs with protobuf struct tags and the
// classic Reset/String/ProtoMessage trio, rather than a generated
// descriptor-backed message. See remotekv/codec.go for why: the toolchain
// that would normally emit a FileDescriptorProto for these messages isn't
// available here, and legacy-shape messages are exactly what
// github.com/golang/protobuf's proto.Marshal/Unmarshal are built to accept.
package remotekvpb

import "fmt"

// Op enumerates the cursor operation requested by one Cursor message,
// matching the wire enum of spec.md §6.
type Op int32

const (
	Op_OPEN            Op = 0
	Op_SEEK            Op = 1
	Op_SEEK_EXACT      Op = 2
	Op_SEEK_BOTH       Op = 3
	Op_SEEK_BOTH_EXACT Op = 4
	Op_CURRENT         Op = 5
	Op_NEXT            Op = 6
	Op_NEXT_DUP        Op = 7
	Op_PREV            Op = 8
	Op_LAST            Op = 9
	Op_FIRST           Op = 10
	Op_CLOSE           Op = 11
)

var opName = map[Op]string{
	Op_OPEN: "OPEN", Op_SEEK: "SEEK", Op_SEEK_EXACT: "SEEK_EXACT",
	Op_SEEK_BOTH: "SEEK_BOTH", Op_SEEK_BOTH_EXACT: "SEEK_BOTH_EXACT",
	Op_CURRENT: "CURRENT", Op_NEXT: "NEXT", Op_NEXT_DUP: "NEXT_DUP",
	Op_PREV: "PREV", Op_LAST: "LAST", Op_FIRST: "FIRST", Op_CLOSE: "CLOSE",
}

func (o Op) String() string {
	if n, ok := opName[o]; ok {
		return n
	}
	return fmt.Sprintf("Op(%d)", int32(o))
}

// Cursor is one client->server request frame on the Tx stream.
type Cursor struct {
	Op         Op     `protobuf:"varint,1,opt,name=op,proto3,enum=remotekvpb.Op" json:"op,omitempty"`
	Cursor     uint32 `protobuf:"varint,2,opt,name=cursor,proto3" json:"cursor,omitempty"`
	BucketName string `protobuf:"bytes,3,opt,name=bucket_name,json=bucketName,proto3" json:"bucket_name,omitempty"`
	K          []byte `protobuf:"bytes,4,opt,name=k,proto3" json:"k,omitempty"`
	V          []byte `protobuf:"bytes,5,opt,name=v,proto3" json:"v,omitempty"`
}

func (m *Cursor) Reset()         { *m = Cursor{} }
func (m *Cursor) String() string { return fmt.Sprintf("%+v", *m) }
func (*Cursor) ProtoMessage()    {}

// Pair is one server->client response frame on the Tx stream.
type Pair struct {
	TxId     uint64 `protobuf:"varint,1,opt,name=tx_id,json=txId,proto3" json:"tx_id,omitempty"`
	CursorId uint32 `protobuf:"varint,2,opt,name=cursor_id,json=cursorId,proto3" json:"cursor_id,omitempty"`
	K        []byte `protobuf:"bytes,3,opt,name=k,proto3" json:"k,omitempty"`
	V        []byte `protobuf:"bytes,4,opt,name=v,proto3" json:"v,omitempty"`
}

func (m *Pair) Reset()         { *m = Pair{} }
func (m *Pair) String() string { return fmt.Sprintf("%+v", *m) }
func (*Pair) ProtoMessage()    {}
