// Package vmtrace implements the VM Tracer (spec.md §4.3): a hierarchical,
// Parity-style execution trace where every CALL/CREATE step owns a nested
// VmTrace for the callee. State is arena-indexed rather than pointer-based,
// per spec.md §9's recommendation ("model as index-based ownership... pass
// integer indices between callbacks instead of raw borrows").
package vmtrace

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/erigontech/silkrpc-sub000/tracers/jsonshape"
)

// opRecord is the tracer's internal, arena-indexed counterpart of
// jsonshape.VMTraceOp; Sub is an arena index rather than a pointer.
type opRecord struct {
	idx     string
	op      vm.OpCode
	pc      uint64
	rawCost uint64 // pre-execution gas-left snapshot; patched into a delta by the next step.
	used    uint64
	sub     int // index into arena, or -1 if none.

	hasMem     bool
	memOff     uint64
	memLen     uint64
	memData    []byte
	hasStore   bool
	storeKey   common.Hash
	storeVal   common.Hash
	pushWanted int
	pushVals   []string
}

// frame is one arena entry: the ops belonging to one call/create invocation.
type frame struct {
	code string
	ops  []opRecord
}

// Tracer is the VM Tracer. Constructed per request.
type Tracer struct {
	prefix string // label for the outermost frame, e.g. "" or "3-" inside a block.

	arena []frame

	activeIdx  []int    // stack of arena indices currently open.
	idxPrefix  []string // stack of idx-label prefixes, one per open frame.
	frameGas   []uint64 // stack of each open frame's entry gas.
}

// New constructs a VM Tracer. prefix is the hierarchical idx-label prefix
// for the outermost frame — "" for a standalone call/tx trace, or
// "<txIndex>-" when tracing one transaction inside a whole-block replay.
func New(prefix string) *Tracer {
	return &Tracer{prefix: prefix}
}

// Hooks returns the tracing.Hooks this tracer implements.
func (t *Tracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnTxStart: t.onTxStart,
		OnEnter:   t.onEnter,
		OnOpcode:  t.onOpcode,
		OnExit:    t.onExit,
	}
}

func (t *Tracer) onTxStart(env *tracing.VMContext, tx *types.Transaction, from common.Address) {}

func (t *Tracer) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	newIdx := len(t.arena)
	t.arena = append(t.arena, frame{})

	if depth == 0 {
		t.activeIdx = []int{newIdx}
		t.idxPrefix = []string{t.prefix}
		t.frameGas = []uint64{gas}
		return
	}

	caller := t.activeIdx[len(t.activeIdx)-1]
	callerFrame := &t.arena[caller]
	if len(callerFrame.ops) > 0 {
		lastOp := &callerFrame.ops[len(callerFrame.ops)-1]
		lastOp.sub = newIdx
		t.idxPrefix = append(t.idxPrefix, lastOp.idx+"-")
	} else {
		// No call-site op recorded (shouldn't normally happen); fall
		// back to the caller's own prefix so idx labels stay well formed.
		t.idxPrefix = append(t.idxPrefix, t.idxPrefix[len(t.idxPrefix)-1])
	}
	t.activeIdx = append(t.activeIdx, newIdx)
	t.frameGas = append(t.frameGas, gas)
}

func (t *Tracer) onOpcode(pc uint64, opcode byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	op := vm.OpCode(opcode)
	cur := t.activeIdx[len(t.activeIdx)-1]
	f := &t.arena[cur]

	// Patch the previous op now that its effects (memory write, stack
	// push, gas consumption) are observable.
	if n := len(f.ops); n > 0 {
		prev := &f.ops[n-1]
		if prev.rawCost >= gas {
			prev.rawCost -= gas
		} else {
			prev.rawCost = 0
		}
		prev.used = gas
		if prev.hasMem {
			mem := scope.MemoryData()
			end := prev.memOff + prev.memLen
			if end > uint64(len(mem)) {
				end = uint64(len(mem))
			}
			if prev.memOff <= end {
				prev.memData = append([]byte(nil), mem[prev.memOff:end]...)
			}
		}
		if prev.pushWanted > 0 {
			stack := scope.StackData()
			n := prev.pushWanted
			if n > len(stack) {
				n = len(stack)
			}
			prev.pushVals = make([]string, n)
			for i := 0; i < n; i++ {
				prev.pushVals[i] = stack[len(stack)-1-i].Hex()
			}
		}
	}

	rec := opRecord{
		idx:     f.nextIdx(t.idxPrefix[len(t.idxPrefix)-1]),
		op:      op,
		pc:      pc,
		rawCost: gas,
		sub:     -1,
	}
	if off, length, ok := memoryRange(op, scope.StackData()); ok {
		rec.hasMem = true
		rec.memOff, rec.memLen = off, length
	}
	if op == vm.SSTORE {
		stack := scope.StackData()
		if len(stack) >= 2 {
			rec.hasStore = true
			rec.storeKey = common.Hash(stack[len(stack)-1].Bytes32())
			rec.storeVal = common.Hash(stack[len(stack)-2].Bytes32())
		}
	}
	rec.pushWanted = pushCount(op)

	f.ops = append(f.ops, rec)
}

func (f *frame) nextIdx(prefix string) string {
	return prefix + strconv.Itoa(len(f.ops))
}

func (t *Tracer) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	idx := t.activeIdx[len(t.activeIdx)-1]
	t.activeIdx = t.activeIdx[:len(t.activeIdx)-1]
	t.idxPrefix = t.idxPrefix[:len(t.idxPrefix)-1]
	entryGas := t.frameGas[len(t.frameGas)-1]
	t.frameGas = t.frameGas[:len(t.frameGas)-1]

	f := &t.arena[idx]
	if len(f.ops) == 0 {
		return
	}
	// Byte-compatibility quirk preserved verbatim from the original
	// implementation (spec.md §9 open question): a frame whose only op is
	// STOP discards its entire op list.
	if len(f.ops) == 1 && f.ops[0].op == vm.STOP {
		f.ops = nil
		return
	}

	gasLeft := uint64(0)
	if entryGas >= gasUsed {
		gasLeft = entryGas - gasUsed
	}
	last := &f.ops[len(f.ops)-1]
	switch {
	case reverted || err == vm.ErrOutOfGas:
		last.used = last.rawCost
		last.rawCost = 0
	case err != nil:
		// UNDEFINED_INSTRUCTION / any other runtime failure: preserved
		// literally per spec.md §4.3.
		raw := last.rawCost
		last.used = raw
		if entryGas >= raw {
			last.rawCost = entryGas - raw
		} else {
			last.rawCost = 0
		}
		if last.used >= last.rawCost {
			last.used -= last.rawCost
		} else {
			last.used = 0
		}
	default:
		if last.rawCost >= gasLeft {
			last.rawCost -= gasLeft
		} else {
			last.rawCost = 0
		}
		last.used = gasLeft
	}
}

// Result builds the exported, pointer-based VMTrace tree for the given
// contract's init/runtime code at the root, recursing the arena.
func (t *Tracer) Result(rootCode []byte) *jsonshape.VMTrace {
	if len(t.arena) == 0 {
		return nil
	}
	return t.build(0, rootCode)
}

func (t *Tracer) build(idx int, code []byte) *jsonshape.VMTrace {
	f := &t.arena[idx]
	out := &jsonshape.VMTrace{
		Code: "0x" + common.Bytes2Hex(code),
		Ops:  make([]jsonshape.VMTraceOp, 0, len(f.ops)),
	}
	for i := range f.ops {
		op := &f.ops[i]
		ex := &jsonshape.TraceEx{Used: int64(op.used), Push: op.pushVals}
		if ex.Push == nil {
			ex.Push = []string{}
		}
		if op.hasMem {
			ex.Mem = &jsonshape.MemEntry{Off: int(op.memOff), Data: "0x" + common.Bytes2Hex(padTo(op.memData, op.memLen))}
		}
		if op.hasStore {
			ex.Store = &jsonshape.StoreEntry{
				Key: "0x" + common.Bytes2Hex(op.storeKey.Bytes()),
				Val: "0x" + common.Bytes2Hex(op.storeVal.Bytes()),
			}
		}
		voOp := jsonshape.VMTraceOp{
			Cost: int64(op.rawCost),
			Ex:   ex,
			Idx:  op.idx,
			Op:   jsonshape.RenameForVMTrace(jsonshape.OpName(op.op)),
			Pc:   op.pc,
		}
		if op.sub >= 0 {
			voOp.Sub = t.build(op.sub, nil)
		}
		out.Ops = append(out.Ops, voOp)
	}
	return out
}

// padTo right-pads data with zero bytes to length n, matching the touched
// range even if execution reverted before the write landed.
func padTo(data []byte, n uint64) []byte {
	if uint64(len(data)) >= n {
		return data[:n]
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

// memoryRange implements the offset/length extraction table of spec.md §4.3.
func memoryRange(op vm.OpCode, stack []uint256.Int) (offset, length uint64, ok bool) {
	top := func(n int) *uint256.Int {
		if len(stack) <= n {
			return nil
		}
		return &stack[len(stack)-1-n]
	}
	switch op {
	case vm.MSTORE, vm.MLOAD:
		if v := top(0); v != nil {
			return v.Uint64(), 32, true
		}
	case vm.MSTORE8:
		if v := top(0); v != nil {
			return v.Uint64(), 1, true
		}
	case vm.RETURNDATACOPY, vm.CALLDATACOPY, vm.CODECOPY:
		if v0, v2 := top(0), top(2); v0 != nil && v2 != nil {
			return v0.Uint64(), v2.Uint64(), true
		}
	case vm.STATICCALL, vm.DELEGATECALL:
		if v4, v5 := top(4), top(5); v4 != nil && v5 != nil {
			return v4.Uint64(), v5.Uint64(), true
		}
	case vm.CALL, vm.CALLCODE:
		if v5, v6 := top(5), top(6); v5 != nil && v6 != nil {
			return v5.Uint64(), v6.Uint64(), true
		}
	case vm.CREATE, vm.CREATE2:
		return 0, 0, true
	}
	return 0, 0, false
}

// pushCount is the heuristic count of stack values a completed opcode
// leaves as its own result, used only to decide how many top-of-stack
// values to surface in "ex.push"; it is display-only and does not affect
// any of spec.md §8's testable gas invariants.
func pushCount(op vm.OpCode) int {
	switch op {
	case vm.STOP, vm.JUMP, vm.JUMPI, vm.POP, vm.MSTORE, vm.MSTORE8, vm.SSTORE,
		vm.RETURN, vm.REVERT, vm.SELFDESTRUCT, vm.JUMPDEST, vm.INVALID,
		vm.LOG0, vm.LOG1, vm.LOG2, vm.LOG3, vm.LOG4,
		vm.CALLDATACOPY, vm.CODECOPY, vm.RETURNDATACOPY, vm.EXTCODECOPY:
		return 0
	default:
		return 1
	}
}
