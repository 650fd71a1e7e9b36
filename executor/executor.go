package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/erigontech/silkrpc-sub000/chain"
	"github.com/erigontech/silkrpc-sub000/internal/metrics"
	"github.com/erigontech/silkrpc-sub000/remotekv"
	"github.com/erigontech/silkrpc-sub000/state"
	"github.com/erigontech/silkrpc-sub000/tracers/calltrace"
	"github.com/erigontech/silkrpc-sub000/tracers/debuglogger"
	"github.com/erigontech/silkrpc-sub000/tracers/jsonshape"
	"github.com/erigontech/silkrpc-sub000/tracers/statediff"
	"github.com/erigontech/silkrpc-sub000/tracers/vmtrace"
)

// instrument records one executor entrypoint's call count and duration
// under github.com/ethereum/go-ethereum/metrics, per spec.md §6's ambient
// metrics addition. Call as: defer instrument("TraceCall", time.Now())
func instrument(name string, start time.Time) {
	metrics.ExecutorCalls.Inc(1)
	metrics.ExecutorDuration.UpdateSince(start)
}

const tableConfig = "Config"

// Executor is the Replay Executor (spec.md §4.1). One instance is shared
// process-wide; every method call below borrows exactly one KV Tx for the
// lifetime of the request, per spec.md §4.5's consistency guarantee.
type Executor struct {
	Chain *chain.Cache
	KV    *remotekv.Client

	// Code is the process-wide bytecode cache shared by every request's
	// Reader. Left nil, each request only caches code for its own
	// lifetime.
	Code *state.CodeCache

	// GetHash resolves a historical block number to its hash for the
	// BLOCKHASH opcode. Left nil it resolves to the zero hash — callers
	// serving chains where contracts rely on BLOCKHASH should supply a
	// real implementation backed by the Header table.
	GetHash func(n uint64) common.Hash
}

// Modes enumerates trace_* mode bits (spec.md §6 "vmTrace, trace, stateDiff").
type Modes struct {
	VMTrace   bool
	Trace     bool
	StateDiff bool
}

// DebugConfig mirrors spec.md §4.2's recognized config.
type DebugConfig struct {
	DisableStorage bool
	DisableMemory  bool
	DisableStack   bool
}

// PreCheckError is returned when a transaction fails validation before
// the interpreter runs at all (spec.md §7 taxonomy #1).
type PreCheckError struct{ Msg string }

func (e *PreCheckError) Error() string { return e.Msg }

func (e *Executor) loadChainConfig(tx *remotekv.Tx, genesisHash common.Hash) (*params.ChainConfig, error) {
	cur, err := tx.OpenCursor(tableConfig)
	if err != nil {
		return nil, fmt.Errorf("executor: open Config cursor: %w", err)
	}
	_, v, err := tx.SeekExact(cur, genesisHash[:])
	if err != nil {
		return nil, fmt.Errorf("executor: read chain config for genesis %s: %w", genesisHash, err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("executor: no chain config stored for genesis %s", genesisHash)
	}
	cfg := new(params.ChainConfig)
	if err := json.Unmarshal(v, cfg); err != nil {
		return nil, fmt.Errorf("executor: decode chain config: %w", err)
	}
	return cfg, nil
}

func (e *Executor) resolveChain(tx *remotekv.Tx, genesisHash common.Hash) (*chain.Config, error) {
	return e.Chain.Lookup(genesisHash, func(h common.Hash) (*params.ChainConfig, error) {
		return e.loadChainConfig(tx, h)
	})
}

func (e *Executor) getHash(n uint64) common.Hash {
	if e.GetHash != nil {
		return e.GetHash(n)
	}
	return common.Hash{}
}

func (e *Executor) blockContext(block *BlockRef, cfg *chain.Config) vm.BlockContext {
	bc := vm.BlockContext{
		CanTransfer: func(db vm.StateDB, addr common.Address, amount *uint256.Int) bool {
			return db.GetBalance(addr).Cmp(amount) >= 0
		},
		Transfer: func(db vm.StateDB, from, to common.Address, amount *uint256.Int) {
			db.SubBalance(from, amount, tracing.BalanceChangeTransfer)
			db.AddBalance(to, amount, tracing.BalanceChangeTransfer)
		},
		GetHash:     e.getHash,
		Coinbase:    block.Coinbase,
		GasLimit:    block.GasLimit,
		BlockNumber: new(big.Int).SetUint64(block.Number),
		Time:        block.Time,
		Difficulty:  block.Difficulty,
		BaseFee:     block.BaseFee,
		Random:      block.Random,
	}
	return bc
}

// txContext builds the per-transaction EVM context.
func txContext(from common.Address, gasPrice *big.Int) vm.TxContext {
	return vm.TxContext{Origin: from, GasPrice: gasPrice}
}

// runMessage drives one call/transaction through core.ApplyMessage,
// distinguishing pre-check failures (spec.md §7 #1) from an
// ExecutionResult carrying a runtime error (spec.md §7 #2).
func runMessage(evm *vm.EVM, msg *core.Message, gasLimit uint64) (*core.ExecutionResult, error) {
	gp := new(core.GasPool).AddGas(gasLimit)
	result, err := core.ApplyMessage(evm, msg, gp)
	if err != nil {
		return nil, &PreCheckError{Msg: err.Error()}
	}
	return result, nil
}

func messageFromCall(call CallParams, gasLimit uint64) *core.Message {
	gas := gasLimit
	if call.Gas != nil {
		gas = *call.Gas
	}
	gasPrice := call.GasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}
	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return &core.Message{
		From:      call.From,
		To:        call.To,
		Value:     value,
		GasLimit:  gas,
		GasPrice:  gasPrice,
		GasFeeCap: gasPrice,
		GasTipCap: gasPrice,
		Data:      call.Data,
	}
}

func messageFromTx(tx *types.Transaction, sender common.Address, baseFee *big.Int) *core.Message {
	msg, err := core.TransactionToMessage(tx, types.LatestSignerForChainID(tx.ChainId()), baseFee)
	if err != nil {
		// Sender was already resolved by the caller (spec.md §4.1 step 3);
		// fall back to a manually assembled message rather than fail here.
		return &core.Message{
			From:      sender,
			To:        tx.To(),
			Value:     tx.Value(),
			GasLimit:  tx.Gas(),
			GasPrice:  tx.GasPrice(),
			GasFeeCap: tx.GasFeeCap(),
			GasTipCap: tx.GasTipCap(),
			Data:      tx.Data(),
			Nonce:     tx.Nonce(),
		}
	}
	msg.From = sender
	return msg
}

// replayPreceding replays transactions [0, targetIndex) against sdb with
// no tracer attached (spec.md §4.1 step 3's Null Tracer).
func (e *Executor) replayPreceding(block *BlockRef, cfg *chain.Config, sdb *state.StateDB, txs []Tx, targetIndex int) error {
	blockCtx := e.blockContext(block, cfg)
	for _, t := range txs {
		if t.Index >= targetIndex {
			break
		}
		msg := messageFromTx(t.Tx, t.Sender, block.BaseFee)
		evm := vm.NewEVM(blockCtx, txContext(t.Sender, msg.GasPrice), sdb, cfg.Params, vm.Config{})
		if _, err := runMessage(evm, msg, t.Tx.Gas()); err != nil {
			return fmt.Errorf("executor: replay tx %d: %w", t.Index, err)
		}
	}
	return nil
}

// DebugResult is the outcome of a debug_trace* operation.
type DebugResult struct {
	PreCheckError string
	Trace         jsonshape.DebugTrace
}

// TraceResult is the outcome of a trace_* operation.
type TraceResult struct {
	PreCheckError string
	Output        []byte
	VMTrace       *jsonshape.VMTrace
	Trace         []jsonshape.Trace
	StateDiff     jsonshape.StateDiff
}

// DebugTraceTransaction implements spec.md §4.1's debug-flavored
// trace_transaction: replay [0,k) silently, then run tx k under the
// Debug Tracer.
func (e *Executor) DebugTraceTransaction(ctx context.Context, block *BlockRef, txs []Tx, index int, cfg DebugConfig) (*DebugResult, error) {
	defer instrument("DebugTraceTransaction", time.Now())
	tx, err := e.KV.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.End()

	chainCfg, err := e.resolveChain(tx, block.GenesisHash)
	if err != nil {
		return nil, err
	}
	reader, err := state.NewReader(tx, block.Number-1, e.Code)
	if err != nil {
		return nil, err
	}
	sdb := state.NewStateDB(reader)
	if err := e.replayPreceding(block, chainCfg, sdb, txs, index); err != nil {
		return nil, err
	}

	target := txs[index]
	logger := debuglogger.New(debuglogger.Config{
		DisableStorage: cfg.DisableStorage,
		DisableMemory:  cfg.DisableMemory,
		DisableStack:   cfg.DisableStack,
	})
	msg := messageFromTx(target.Tx, target.Sender, block.BaseFee)
	blockCtx := e.blockContext(block, chainCfg)
	evm := vm.NewEVM(blockCtx, txContext(target.Sender, msg.GasPrice), sdb, chainCfg.Params, vm.Config{Tracer: logger.Hooks()})

	result, err := runMessage(evm, msg, target.Tx.Gas())
	if err != nil {
		var pc *PreCheckError
		if ok := asPreCheck(err, &pc); ok {
			return &DebugResult{PreCheckError: pc.Msg}, nil
		}
		return nil, err
	}
	_ = result
	return &DebugResult{Trace: logger.Result()}, nil
}

// DebugTraceCall implements debug_traceCall: call is traced as if
// appended to block, starting from block's own post-state (N =
// block.Number, not block.Number-1 — there is nothing to replay).
func (e *Executor) DebugTraceCall(ctx context.Context, block *BlockRef, call CallParams, cfg DebugConfig) (*DebugResult, error) {
	defer instrument("DebugTraceCall", time.Now())
	tx, err := e.KV.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.End()

	chainCfg, err := e.resolveChain(tx, block.GenesisHash)
	if err != nil {
		return nil, err
	}
	reader, err := state.NewReader(tx, block.Number, e.Code)
	if err != nil {
		return nil, err
	}
	sdb := state.NewStateDB(reader)

	logger := debuglogger.New(debuglogger.Config{
		DisableStorage: cfg.DisableStorage,
		DisableMemory:  cfg.DisableMemory,
		DisableStack:   cfg.DisableStack,
	})
	msg := messageFromCall(call, block.GasLimit)
	blockCtx := e.blockContext(block, chainCfg)
	evm := vm.NewEVM(blockCtx, txContext(call.From, msg.GasPrice), sdb, chainCfg.Params, vm.Config{Tracer: logger.Hooks()})

	if _, err := runMessage(evm, msg, msg.GasLimit); err != nil {
		var pc *PreCheckError
		if asPreCheck(err, &pc) {
			return &DebugResult{PreCheckError: pc.Msg}, nil
		}
		return nil, err
	}
	return &DebugResult{Trace: logger.Result()}, nil
}

// DebugTraceBlock implements debug_traceBlockByNumber/debug_traceBlockByHash:
// every transaction in the block replayed in order against the same
// evolving StateDB, each producing its own Debug Trace.
func (e *Executor) DebugTraceBlock(ctx context.Context, block *BlockRef, txs []Tx, cfg DebugConfig) ([]*DebugResult, error) {
	defer instrument("DebugTraceBlock", time.Now())
	tx, err := e.KV.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.End()

	chainCfg, err := e.resolveChain(tx, block.GenesisHash)
	if err != nil {
		return nil, err
	}
	reader, err := state.NewReader(tx, block.Number-1, e.Code)
	if err != nil {
		return nil, err
	}
	sdb := state.NewStateDB(reader)
	blockCtx := e.blockContext(block, chainCfg)

	out := make([]*DebugResult, len(txs))
	for i, t := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger := debuglogger.New(debuglogger.Config{
			DisableStorage: cfg.DisableStorage,
			DisableMemory:  cfg.DisableMemory,
			DisableStack:   cfg.DisableStack,
		})
		msg := messageFromTx(t.Tx, t.Sender, block.BaseFee)
		evm := vm.NewEVM(blockCtx, txContext(t.Sender, msg.GasPrice), sdb, chainCfg.Params, vm.Config{Tracer: logger.Hooks()})
		if _, err := runMessage(evm, msg, t.Tx.Gas()); err != nil {
			var pc *PreCheckError
			if asPreCheck(err, &pc) {
				out[i] = &DebugResult{PreCheckError: pc.Msg}
				continue
			}
			return nil, fmt.Errorf("executor: debug_traceBlock tx %d: %w", t.Index, err)
		}
		out[i] = &DebugResult{Trace: logger.Result()}
	}
	return out, nil
}

// TraceCall implements trace_call: same pre-state rule as
// DebugTraceCall, under the Parity-style tracer set selected by modes.
func (e *Executor) TraceCall(ctx context.Context, block *BlockRef, call CallParams, modes Modes) (*TraceResult, error) {
	defer instrument("TraceCall", time.Now())
	tx, err := e.KV.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.End()

	chainCfg, err := e.resolveChain(tx, block.GenesisHash)
	if err != nil {
		return nil, err
	}
	reader, err := state.NewReader(tx, block.Number, e.Code)
	if err != nil {
		return nil, err
	}
	sdb := state.NewStateDB(reader)
	return e.runCallTraced(block, chainCfg, sdb, call, modes)
}

// TraceTransaction replays transactions [0,index) and runs txs[index] under
// the tracers selected by modes. trace_transaction passes only the call
// tree; ReplayTransaction passes the caller's modes.
func (e *Executor) TraceTransaction(ctx context.Context, block *BlockRef, txs []Tx, index int, modes Modes) (*TraceResult, error) {
	defer instrument("TraceTransaction", time.Now())
	tx, err := e.KV.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.End()

	chainCfg, err := e.resolveChain(tx, block.GenesisHash)
	if err != nil {
		return nil, err
	}
	reader, err := state.NewReader(tx, block.Number-1, e.Code)
	if err != nil {
		return nil, err
	}
	sdb := state.NewStateDB(reader)
	if err := e.replayPreceding(block, chainCfg, sdb, txs, index); err != nil {
		return nil, err
	}

	target := txs[index]
	return e.runTraced(block, chainCfg, sdb, target, modes)
}

// runTraced attaches the requested tracer set to one already-pre-stated
// transaction and runs it.
func (e *Executor) runTraced(block *BlockRef, chainCfg *chain.Config, sdb *state.StateDB, target Tx, modes Modes) (*TraceResult, error) {
	var vmt *vmtrace.Tracer
	var sdt *statediff.Tracer
	var ct *calltrace.Tracer
	var hooksList []*tracing.Hooks

	var initialSnapshot *state.StateDB
	if modes.StateDiff {
		// spec.md §4.4: capture the pre-transaction snapshot before any
		// mutation from this transaction lands.
		initialSnapshot = sdb.Snapshot0()
		sdt = statediff.New()
		hooksList = append(hooksList, sdt.Hooks())
	}
	if modes.VMTrace {
		prefix := fmt.Sprintf("%d-", target.Index)
		if target.Index == 0 {
			prefix = ""
		}
		vmt = vmtrace.New(prefix)
		hooksList = append(hooksList, vmt.Hooks())
	}
	if modes.Trace {
		ct = calltrace.New()
		hooksList = append(hooksList, ct.Hooks())
	}

	msg := messageFromTx(target.Tx, target.Sender, block.BaseFee)
	blockCtx := e.blockContext(block, chainCfg)
	evm := vm.NewEVM(blockCtx, txContext(target.Sender, msg.GasPrice), sdb, chainCfg.Params, vm.Config{Tracer: mergeHooks(hooksList)})

	result, err := runMessage(evm, msg, target.Tx.Gas())
	if err != nil {
		var pc *PreCheckError
		if asPreCheck(err, &pc) {
			return &TraceResult{PreCheckError: pc.Msg}, nil
		}
		return nil, err
	}

	out := &TraceResult{Output: result.ReturnData}
	if vmt != nil {
		out.VMTrace = vmt.Result(target.Tx.Data())
	}
	if sdt != nil {
		out.StateDiff = sdt.Result(initialSnapshot, sdb)
	}
	if ct != nil {
		out.Trace = ct.Result()
	}
	return out, nil
}

// TraceBlock implements trace_block: every transaction traced in order,
// followed by one synthetic reward trace per entry of rewards, in the
// order given.
func (e *Executor) TraceBlock(ctx context.Context, block *BlockRef, txs []Tx, rewards []RewardEntry) ([]jsonshape.Trace, error) {
	defer instrument("TraceBlock", time.Now())
	kvTx, err := e.KV.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer kvTx.End()

	chainCfg, err := e.resolveChain(kvTx, block.GenesisHash)
	if err != nil {
		return nil, err
	}
	reader, err := state.NewReader(kvTx, block.Number-1, e.Code)
	if err != nil {
		return nil, err
	}
	sdb := state.NewStateDB(reader)

	var out []jsonshape.Trace
	for _, t := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.runTraced(block, chainCfg, sdb, t, Modes{Trace: true})
		if err != nil {
			return nil, fmt.Errorf("executor: trace_block tx %d: %w", t.Index, err)
		}
		if res.PreCheckError != "" {
			return nil, fmt.Errorf("executor: trace_block tx %d: %s", t.Index, res.PreCheckError)
		}
		hash := t.Tx.Hash()
		for i := range res.Trace {
			res.Trace[i].TransactionHash = &hash
		}
		out = append(out, res.Trace...)
	}
	for _, r := range rewards {
		out = append(out, jsonshape.Trace{
			Type: "reward",
			Action: jsonshape.RewardAction{
				Author:     r.Author,
				RewardType: r.Kind,
				Value:      (*hexutil.Big)(r.Value),
			},
			Subtraces:    0,
			TraceAddress: []int{},
		})
	}
	return out, nil
}

// RewardEntry is one block/uncle reward credit that the caller passes to
// TraceBlock. cmd/tracerpcd computes these from the block header and its
// uncles (blockRewards); they are not observed from the replay.
type RewardEntry struct {
	Author common.Address
	Kind   string // "block" or "uncle"
	Value  *big.Int
}

func toTraceCallTraces(res *TraceResult, txHash *common.Hash) (*jsonshape.TraceCallTraces, string) {
	if res.PreCheckError != "" {
		return nil, res.PreCheckError
	}
	return &jsonshape.TraceCallTraces{
		Output:          res.Output,
		StateDiff:       res.StateDiff,
		Trace:           res.Trace,
		VMTrace:         res.VMTrace,
		TransactionHash: txHash,
	}, ""
}

// ReplayCall implements trace_call: call traced against block's post-state
// under the tracer set selected by modes, shaped as TraceCallTraces.
func (e *Executor) ReplayCall(ctx context.Context, block *BlockRef, call CallParams, modes Modes) (*jsonshape.TraceCallTraces, error) {
	defer instrument("ReplayCall", time.Now())
	res, err := e.TraceCall(ctx, block, call, modes)
	if err != nil {
		return nil, err
	}
	out, preCheckErr := toTraceCallTraces(res, nil)
	if preCheckErr != "" {
		return nil, &PreCheckError{Msg: preCheckErr}
	}
	return out, nil
}

// ReplayCallMany implements trace_callMany: each call in order is applied
// to the same evolving state, as if each were its own transaction appended
// to block in sequence.
func (e *Executor) ReplayCallMany(ctx context.Context, block *BlockRef, calls []CallParams, modesList []Modes) ([]*jsonshape.TraceCallTraces, error) {
	defer instrument("ReplayCallMany", time.Now())
	tx, err := e.KV.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.End()

	chainCfg, err := e.resolveChain(tx, block.GenesisHash)
	if err != nil {
		return nil, err
	}
	reader, err := state.NewReader(tx, block.Number, e.Code)
	if err != nil {
		return nil, err
	}
	sdb := state.NewStateDB(reader)

	out := make([]*jsonshape.TraceCallTraces, len(calls))
	for i, call := range calls {
		modes := Modes{}
		if i < len(modesList) {
			modes = modesList[i]
		}
		res, err := e.runCallTraced(block, chainCfg, sdb, call, modes)
		if err != nil {
			return nil, fmt.Errorf("executor: trace_callMany call %d: %w", i, err)
		}
		shaped, preCheckErr := toTraceCallTraces(res, nil)
		if preCheckErr != "" {
			return nil, fmt.Errorf("executor: trace_callMany call %d: %s", i, preCheckErr)
		}
		out[i] = shaped
	}
	return out, nil
}

// ReplayTransaction implements trace_replayTransaction: the same replay as
// TraceTransaction, shaped as TraceCallTraces with the transaction hash set.
func (e *Executor) ReplayTransaction(ctx context.Context, block *BlockRef, txs []Tx, index int, modes Modes) (*jsonshape.TraceCallTraces, error) {
	defer instrument("ReplayTransaction", time.Now())
	res, err := e.TraceTransaction(ctx, block, txs, index, modes)
	if err != nil {
		return nil, err
	}
	hash := txs[index].Tx.Hash()
	out, preCheckErr := toTraceCallTraces(res, &hash)
	if preCheckErr != "" {
		return nil, &PreCheckError{Msg: preCheckErr}
	}
	return out, nil
}

// ReplayBlockTransactions implements trace_replayBlockTransactions: every
// transaction in the block replayed against the evolving state of B, each
// shaped as TraceCallTraces with its own transaction hash.
func (e *Executor) ReplayBlockTransactions(ctx context.Context, block *BlockRef, txs []Tx, modes Modes) ([]*jsonshape.TraceCallTraces, error) {
	defer instrument("ReplayBlockTransactions", time.Now())
	tx, err := e.KV.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.End()

	chainCfg, err := e.resolveChain(tx, block.GenesisHash)
	if err != nil {
		return nil, err
	}
	reader, err := state.NewReader(tx, block.Number-1, e.Code)
	if err != nil {
		return nil, err
	}
	sdb := state.NewStateDB(reader)

	out := make([]*jsonshape.TraceCallTraces, len(txs))
	for i, t := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.runTraced(block, chainCfg, sdb, t, modes)
		if err != nil {
			return nil, fmt.Errorf("executor: trace_replayBlockTransactions tx %d: %w", t.Index, err)
		}
		hash := t.Tx.Hash()
		shaped, preCheckErr := toTraceCallTraces(res, &hash)
		if preCheckErr != "" {
			return nil, fmt.Errorf("executor: trace_replayBlockTransactions tx %d: %s", t.Index, preCheckErr)
		}
		out[i] = shaped
	}
	return out, nil
}

// runCallTraced is runTraced's call-object counterpart: it attaches the
// requested tracer set to one already-pre-stated call and runs it,
// without the transaction-specific gas/hash bookkeeping runTraced needs.
func (e *Executor) runCallTraced(block *BlockRef, chainCfg *chain.Config, sdb *state.StateDB, call CallParams, modes Modes) (*TraceResult, error) {
	var vmt *vmtrace.Tracer
	var sdt *statediff.Tracer
	var ct *calltrace.Tracer
	var hooksList []*tracing.Hooks
	var initialSnapshot *state.StateDB
	if modes.StateDiff {
		initialSnapshot = sdb.Snapshot0()
		sdt = statediff.New()
		hooksList = append(hooksList, sdt.Hooks())
	}
	if modes.VMTrace {
		vmt = vmtrace.New("")
		hooksList = append(hooksList, vmt.Hooks())
	}
	if modes.Trace {
		ct = calltrace.New()
		hooksList = append(hooksList, ct.Hooks())
	}

	msg := messageFromCall(call, block.GasLimit)
	blockCtx := e.blockContext(block, chainCfg)
	evm := vm.NewEVM(blockCtx, txContext(call.From, msg.GasPrice), sdb, chainCfg.Params, vm.Config{Tracer: mergeHooks(hooksList)})

	result, err := runMessage(evm, msg, msg.GasLimit)
	if err != nil {
		var pc *PreCheckError
		if asPreCheck(err, &pc) {
			return &TraceResult{PreCheckError: pc.Msg}, nil
		}
		return nil, err
	}

	out := &TraceResult{Output: result.ReturnData}
	if vmt != nil {
		out.VMTrace = vmt.Result(call.Data)
	}
	if sdt != nil {
		out.StateDiff = sdt.Result(initialSnapshot, sdb)
	}
	if ct != nil {
		out.Trace = ct.Result()
	}
	return out, nil
}

// mergeHooks composes the tracing.Hooks of every active tracer into one,
// since core/vm.EVM accepts only a single *tracing.Hooks and the Tracer
// Set (spec.md §9) dispatches each callback "to every tracer in order".
func mergeHooks(list []*tracing.Hooks) *tracing.Hooks {
	list = compactHooks(list)
	if len(list) == 0 {
		return nil
	}
	if len(list) == 1 {
		return list[0]
	}
	merged := &tracing.Hooks{
		OnTxStart: func(env *tracing.VMContext, tx *types.Transaction, from common.Address) {
			for _, h := range list {
				if h.OnTxStart != nil {
					h.OnTxStart(env, tx, from)
				}
			}
		},
		OnEnter: func(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
			for _, h := range list {
				if h.OnEnter != nil {
					h.OnEnter(depth, typ, from, to, input, gas, value)
				}
			}
		},
		OnExit: func(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
			for _, h := range list {
				if h.OnExit != nil {
					h.OnExit(depth, output, gasUsed, err, reverted)
				}
			}
		},
		OnOpcode: func(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
			for _, h := range list {
				if h.OnOpcode != nil {
					h.OnOpcode(pc, op, gas, cost, scope, rData, depth, err)
				}
			}
		},
		OnBalanceChange: func(addr common.Address, prev, new *big.Int, reason tracing.BalanceChangeReason) {
			for _, h := range list {
				if h.OnBalanceChange != nil {
					h.OnBalanceChange(addr, prev, new, reason)
				}
			}
		},
		OnNonceChangeV2: func(addr common.Address, prev, new uint64, reason tracing.NonceChangeReason) {
			for _, h := range list {
				if h.OnNonceChangeV2 != nil {
					h.OnNonceChangeV2(addr, prev, new, reason)
				}
			}
		},
		OnCodeChangeV2: func(addr common.Address, prevCodeHash common.Hash, prevCode []byte, codeHash common.Hash, code []byte, reason tracing.CodeChangeReason) {
			for _, h := range list {
				if h.OnCodeChangeV2 != nil {
					h.OnCodeChangeV2(addr, prevCodeHash, prevCode, codeHash, code, reason)
				}
			}
		},
		OnStorageChange: func(addr common.Address, slot common.Hash, prev, new common.Hash) {
			for _, h := range list {
				if h.OnStorageChange != nil {
					h.OnStorageChange(addr, slot, prev, new)
				}
			}
		},
	}
	return merged
}

func compactHooks(list []*tracing.Hooks) []*tracing.Hooks {
	out := make([]*tracing.Hooks, 0, len(list))
	for _, h := range list {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func asPreCheck(err error, target **PreCheckError) bool {
	pc, ok := err.(*PreCheckError)
	if ok {
		*target = pc
	}
	return ok
}
