// Package remotekv is the Remote KV Client (spec.md §4.5): a bidirectional
// streaming client that opens one consistent read transaction against a
// remote key-value database and drives cursor operations over it.
package remotekv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/erigontech/silkrpc-sub000/internal/metrics"
	"github.com/erigontech/silkrpc-sub000/remotekv/remotekvpb"
)

// ErrClosed is returned by any operation issued after the stream has ended
// or failed; per spec.md §4.5, callers must re-open rather than retry.
var ErrClosed = errors.New("remotekv: tx stream closed")

// Client dials the KV server and opens Tx streams.
type Client struct {
	conn *grpc.ClientConn
	stub remotekvpb.KVClient
}

// Dial connects to the remote KV server at target.
func Dial(ctx context.Context, target string, dialOpts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("remotekv: dial %s: %w", target, err)
	}
	return &Client{conn: conn, stub: remotekvpb.NewKVClient(conn, grpc.ForceCodec(Codec{}))}, nil
}

// Close tears down the underlying connection. In-flight Tx streams become
// invalid.
func (c *Client) Close() error { return c.conn.Close() }

// Tx is one open bidirectional stream: a consistent read transaction plus
// whatever cursors are opened against it. All operations on one Tx are
// strictly serialized — the mutex below is the Go idiom for spec.md §4.5's
// "the client enforces a single in-flight operation at a time" (a
// background router task is unnecessary here precisely because nothing
// may be in flight concurrently to route between).
type Tx struct {
	mu     sync.Mutex
	stream remotekvpb.KV_TxClient
	txID   uint64
	closed bool
	err    error
}

// Start opens a new Tx stream and reads back the server-assigned
// transaction id, the first leg of spec.md §4.5's lifecycle state machine
// (IDLE --start-call--> STARTED --read-tx-id--> READY).
func (c *Client) Start(ctx context.Context) (*Tx, error) {
	stream, err := c.stub.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("remotekv: start stream: %w", err)
	}
	// The tx id is the stream's first message; nothing is sent before it.
	pair, err := stream.Recv()
	if err != nil {
		return nil, fmt.Errorf("remotekv: read tx id: %w", err)
	}
	return &Tx{stream: stream, txID: pair.TxId}, nil
}

// TxID returns the server-assigned transaction id established by Start.
func (t *Tx) TxID() uint64 { return t.txID }

// roundTrip sends one Cursor and waits for the paired Pair response,
// serialized by t.mu. Any transport error marks the stream permanently
// closed, per spec.md §4.5's "subsequent operations on the same stream
// are undefined — callers must re-open."
func (t *Tx) roundTrip(req *remotekvpb.Cursor) (*remotekvpb.Pair, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	start := time.Now()
	if err := t.stream.Send(req); err != nil {
		t.closed, t.err = true, err
		metrics.KVErrors.Inc(1)
		return nil, fmt.Errorf("remotekv: send %s: %w", req.Op, err)
	}
	pair, err := t.stream.Recv()
	metrics.KVRoundtrip.UpdateSince(start)
	if err != nil {
		t.closed, t.err = true, err
		metrics.KVErrors.Inc(1)
		return nil, fmt.Errorf("remotekv: recv for %s: %w", req.Op, err)
	}
	return pair, nil
}

// OpenCursor implements open_cursor(bucket).
func (t *Tx) OpenCursor(bucket string) (uint32, error) {
	pair, err := t.roundTrip(&remotekvpb.Cursor{Op: remotekvpb.Op_OPEN, BucketName: bucket})
	if err != nil {
		return 0, err
	}
	return pair.CursorId, nil
}

// Seek implements seek(cursor, key): a key prefix, returns the
// first {key,value} with key >= prefix, or an empty pair if none.
func (t *Tx) Seek(cursor uint32, key []byte) (k, v []byte, err error) {
	pair, err := t.roundTrip(&remotekvpb.Cursor{Op: remotekvpb.Op_SEEK, Cursor: cursor, K: key})
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

// SeekExact implements seek_exact(cursor, key).
func (t *Tx) SeekExact(cursor uint32, key []byte) (k, v []byte, err error) {
	pair, err := t.roundTrip(&remotekvpb.Cursor{Op: remotekvpb.Op_SEEK_EXACT, Cursor: cursor, K: key})
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

// SeekBoth implements seek_both(cursor, key, sub): a dup-sorted lookup
// returning the matching value.
func (t *Tx) SeekBoth(cursor uint32, key, sub []byte) (v []byte, err error) {
	pair, err := t.roundTrip(&remotekvpb.Cursor{Op: remotekvpb.Op_SEEK_BOTH, Cursor: cursor, K: key, V: sub})
	if err != nil {
		return nil, err
	}
	return pair.V, nil
}

// SeekBothExact implements seek_both_exact(cursor, key, sub); returns the
// full {key,value} pair it landed on via get_both_range semantics.
func (t *Tx) SeekBothExact(cursor uint32, key, sub []byte) (k, v []byte, err error) {
	pair, err := t.roundTrip(&remotekvpb.Cursor{Op: remotekvpb.Op_SEEK_BOTH_EXACT, Cursor: cursor, K: key, V: sub})
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

// Next implements next(cursor): advance and return {key,value}, or an
// empty pair when the cursor is exhausted.
func (t *Tx) Next(cursor uint32) (k, v []byte, err error) {
	pair, err := t.roundTrip(&remotekvpb.Cursor{Op: remotekvpb.Op_NEXT, Cursor: cursor})
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

// CloseCursor implements close_cursor(cursor).
func (t *Tx) CloseCursor(cursor uint32) error {
	_, err := t.roundTrip(&remotekvpb.Cursor{Op: remotekvpb.Op_CLOSE, Cursor: cursor})
	return err
}

// End implements end(): terminates the stream from the client side,
// moving the state machine from READY to CLOSED.
func (t *Tx) End() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.stream.CloseSend(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("remotekv: close send: %w", err)
	}
	return nil
}
