// Package rpcapi registers the debug_/trace_ JSON-RPC namespaces of
// spec.md §6 the way go-ethereum's own internal/ethapi and eth/tracers
// packages register theirs: plain structs whose exported methods are
// discovered by go-ethereum/rpc's reflection-based namespace convention.
package rpcapi

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/erigontech/silkrpc-sub000/executor"
	"github.com/erigontech/silkrpc-sub000/internal/metrics"
	"github.com/erigontech/silkrpc-sub000/tracers/jsonshape"
)

// BlockResolver decodes an RPC block tag/hash and the transactions/reward
// credits it carries. Block and transaction JSON decoding is a transport
// concern (executor.BlockRef's own doc comment); this interface is the
// seam between the two.
type BlockResolver interface {
	ResolveBlock(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*executor.BlockRef, []executor.Tx, []executor.RewardEntry, error)
	ResolveTransaction(ctx context.Context, txHash common.Hash) (*executor.BlockRef, []executor.Tx, int, error)
}

// TransactionArgs is the decoded JSON-RPC "call object": an alias of
// executor.CallParams, so rpcapi and executor share one type.
type TransactionArgs = executor.CallParams

// TraceConfig is the decoded debug_trace* config object.
type TraceConfig = executor.DebugConfig

// ErrBlockNotFound is returned by a BlockResolver that cannot locate the
// requested block tag/hash.
var ErrBlockNotFound = errors.New("rpcapi: block not found")

// DebugAPI implements the debug_trace* namespace.
type DebugAPI struct {
	exec *executor.Executor
	blk  BlockResolver
	log  log.Logger
}

// NewDebugAPI constructs the debug_* namespace handler.
func NewDebugAPI(exec *executor.Executor, blk BlockResolver) *DebugAPI {
	return &DebugAPI{exec: exec, blk: blk, log: log.New("module", "rpcapi/debug")}
}

// TraceTransaction implements debug_traceTransaction.
func (api *DebugAPI) TraceTransaction(ctx context.Context, hash common.Hash, config *TraceConfig) (*jsonshape.DebugTrace, error) {
	block, txs, idx, err := api.blk.ResolveTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	cfg := TraceConfig{}
	if config != nil {
		cfg = *config
	}
	res, err := api.exec.DebugTraceTransaction(ctx, block, txs, idx, cfg)
	if err != nil {
		metrics.ExecutorErrors.Inc(1)
		return nil, err
	}
	if res.PreCheckError != "" {
		return nil, errors.New(res.PreCheckError)
	}
	return &res.Trace, nil
}

// TraceCall implements debug_traceCall.
func (api *DebugAPI) TraceCall(ctx context.Context, args TransactionArgs, blockNrOrHash rpc.BlockNumberOrHash, config *TraceConfig) (*jsonshape.DebugTrace, error) {
	block, _, _, err := api.blk.ResolveBlock(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	cfg := TraceConfig{}
	if config != nil {
		cfg = *config
	}
	res, err := api.exec.DebugTraceCall(ctx, block, args, cfg)
	if err != nil {
		metrics.ExecutorErrors.Inc(1)
		return nil, err
	}
	if res.PreCheckError != "" {
		return nil, errors.New(res.PreCheckError)
	}
	return &res.Trace, nil
}

// TraceBlockByNumber implements debug_traceBlockByNumber.
func (api *DebugAPI) TraceBlockByNumber(ctx context.Context, number rpc.BlockNumber, config *TraceConfig) ([]*jsonshape.DebugTrace, error) {
	return api.traceBlock(ctx, rpc.BlockNumberOrHash{BlockNumber: &number}, config)
}

// TraceBlockByHash implements debug_traceBlockByHash.
func (api *DebugAPI) TraceBlockByHash(ctx context.Context, hash common.Hash, config *TraceConfig) ([]*jsonshape.DebugTrace, error) {
	return api.traceBlock(ctx, rpc.BlockNumberOrHash{BlockHash: &hash}, config)
}

func (api *DebugAPI) traceBlock(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash, config *TraceConfig) ([]*jsonshape.DebugTrace, error) {
	block, txs, _, err := api.blk.ResolveBlock(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	cfg := TraceConfig{}
	if config != nil {
		cfg = *config
	}
	results, err := api.exec.DebugTraceBlock(ctx, block, txs, cfg)
	if err != nil {
		metrics.ExecutorErrors.Inc(1)
		return nil, err
	}
	out := make([]*jsonshape.DebugTrace, len(results))
	for i, r := range results {
		if r.PreCheckError != "" {
			api.log.Debug("tx pre-check failed during block trace", "index", i, "err", r.PreCheckError)
			out[i] = &jsonshape.DebugTrace{}
			continue
		}
		out[i] = &r.Trace
	}
	return out, nil
}

// TraceModes is the decoded {"vmTrace","trace","stateDiff"} mode array.
type TraceModes = executor.Modes

// TraceAPI implements the trace_* (Parity-style) namespace.
type TraceAPI struct {
	exec *executor.Executor
	blk  BlockResolver
	log  log.Logger
}

// NewTraceAPI constructs the trace_* namespace handler.
func NewTraceAPI(exec *executor.Executor, blk BlockResolver) *TraceAPI {
	return &TraceAPI{exec: exec, blk: blk, log: log.New("module", "rpcapi/trace")}
}

// Call implements trace_call.
func (api *TraceAPI) Call(ctx context.Context, args TransactionArgs, modes []string, blockNrOrHash rpc.BlockNumberOrHash) (*jsonshape.TraceCallTraces, error) {
	block, _, _, err := api.blk.ResolveBlock(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	out, err := api.exec.ReplayCall(ctx, block, args, decodeModes(modes))
	if err != nil {
		metrics.ExecutorErrors.Inc(1)
	}
	return out, err
}

// CallMany implements trace_callMany.
func (api *TraceAPI) CallMany(ctx context.Context, calls []TraceCallManyEntry, blockNrOrHash rpc.BlockNumberOrHash) ([]*jsonshape.TraceCallTraces, error) {
	block, _, _, err := api.blk.ResolveBlock(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	args := make([]TransactionArgs, len(calls))
	modesList := make([]TraceModes, len(calls))
	for i, c := range calls {
		args[i] = c.Call
		modesList[i] = decodeModes(c.Modes)
	}
	out, err := api.exec.ReplayCallMany(ctx, block, args, modesList)
	if err != nil {
		metrics.ExecutorErrors.Inc(1)
	}
	return out, err
}

// TraceCallManyEntry is one (call, modes) pair of trace_callMany's array
// parameter.
type TraceCallManyEntry struct {
	Call  TransactionArgs
	Modes []string
}

// ReplayTransaction implements trace_replayTransaction.
func (api *TraceAPI) ReplayTransaction(ctx context.Context, hash common.Hash, modes []string) (*jsonshape.TraceCallTraces, error) {
	block, txs, idx, err := api.blk.ResolveTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	out, err := api.exec.ReplayTransaction(ctx, block, txs, idx, decodeModes(modes))
	if err != nil {
		metrics.ExecutorErrors.Inc(1)
	}
	return out, err
}

// ReplayBlockTransactions implements trace_replayBlockTransactions.
func (api *TraceAPI) ReplayBlockTransactions(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash, modes []string) ([]*jsonshape.TraceCallTraces, error) {
	block, txs, _, err := api.blk.ResolveBlock(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	out, err := api.exec.ReplayBlockTransactions(ctx, block, txs, decodeModes(modes))
	if err != nil {
		metrics.ExecutorErrors.Inc(1)
	}
	return out, err
}

// Transaction implements trace_transaction.
func (api *TraceAPI) Transaction(ctx context.Context, hash common.Hash) ([]jsonshape.Trace, error) {
	block, txs, idx, err := api.blk.ResolveTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	res, err := api.exec.TraceTransaction(ctx, block, txs, idx, TraceModes{Trace: true})
	if err != nil {
		metrics.ExecutorErrors.Inc(1)
		return nil, err
	}
	if res.PreCheckError != "" {
		return nil, errors.New(res.PreCheckError)
	}
	return res.Trace, nil
}

// Block implements trace_block.
func (api *TraceAPI) Block(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) ([]jsonshape.Trace, error) {
	block, txs, rewards, err := api.blk.ResolveBlock(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	out, err := api.exec.TraceBlock(ctx, block, txs, rewards)
	if err != nil {
		metrics.ExecutorErrors.Inc(1)
	}
	return out, err
}

func decodeModes(modes []string) TraceModes {
	var m TraceModes
	for _, mode := range modes {
		switch mode {
		case "vmTrace":
			m.VMTrace = true
		case "trace":
			m.Trace = true
		case "stateDiff":
			m.StateDiff = true
		}
	}
	return m
}
