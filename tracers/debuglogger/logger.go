// Package debuglogger implements the Debug Tracer (spec.md §4.2): a flat,
// ordered sequence of Geth-style structLog entries, one per executed
// opcode, produced as a github.com/ethereum/go-ethereum/core/tracing.Hooks
// adapter so it can be attached directly to a core/vm.EVM.
package debuglogger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/erigontech/silkrpc-sub000/tracers/jsonshape"
)

// Config toggles the per-entry fields, mirroring spec.md §4.2's
// {disableStorage,disableMemory,disableStack}.
type Config struct {
	DisableStorage bool
	DisableMemory  bool
	DisableStack   bool
}

// storageView accumulates the SSTORE writes made at one contract address
// (scope.Address()). Views are keyed by address, not by call frame, and are
// never reset during a trace: a nested call to an address with no writes
// yet sees an empty view, while a frame that runs at an address already
// written (a re-entrant call, or a DELEGATECALL/CALLCODE running in its
// caller's storage) sees and extends that address's existing view.
type storageView map[common.Hash]common.Hash

// Logger is the Debug Tracer. It owns no chain state; every field below is
// private, per-request bookkeeping consumed once by Result().
type Logger struct {
	cfg Config

	logs     []jsonshape.DebugLogEntry
	storage  map[common.Address]storageView
	startGas uint64

	// frameGas is a stack of each open frame's entry gas, pushed on
	// onEnter and popped on onExit, so a frame's final gas-left can be
	// derived as frameGas-gasUsed without needing the interpreter to
	// hand it over directly (core/tracing.Hooks.OnExit only reports
	// gasUsed, not gas-left).
	//
	// This also covers spec.md §4.2's on_precompiled_run without a
	// dedicated callback: core/vm.EVM already drives OnEnter/OnExit
	// around precompile dispatch as an ordinary call frame, so the call
	// opcode's gas_cost is patched by the very next onOpcode in the
	// caller exactly as for any other nested call.
	frameGas []uint64

	failed bool
	output []byte
	gas    uint64
}

// New constructs a Debug Tracer ready to be wrapped in a tracing.Hooks.
func New(cfg Config) *Logger {
	return &Logger{
		cfg:     cfg,
		storage: make(map[common.Address]storageView),
	}
}

// Hooks returns the tracing.Hooks this tracer implements, wiring only the
// callbacks it needs.
func (l *Logger) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnTxStart: l.onTxStart,
		OnEnter:   l.onEnter,
		OnOpcode:  l.onOpcode,
		OnExit:    l.onExit,
	}
}

func (l *Logger) onTxStart(env *tracing.VMContext, tx *types.Transaction, from common.Address) {}

// onEnter captures start_gas at depth 0 (spec.md §4.2 on_execution_start)
// and pushes this frame's entry gas for onExit to pair with gasUsed.
func (l *Logger) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	if depth == 0 {
		l.startGas = gas
	}
	l.frameGas = append(l.frameGas, gas)
}

// onOpcode implements on_instruction_start: finalize the previous entry's
// dynamic gas cost, then append a new entry for the opcode about to run.
func (l *Logger) onOpcode(pc uint64, opcode byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	op := vm.OpCode(opcode)

	if n := len(l.logs); n > 0 {
		prev := &l.logs[n-1]
		if prev.Gas >= gas {
			prev.GasCost = prev.Gas - gas
		}
	}

	entry := jsonshape.DebugLogEntry{
		Pc:    pc,
		Op:    jsonshape.OpName(op),
		Gas:   gas,
		Depth: depth,
	}
	if err != nil {
		entry.Error = &struct{}{}
	}

	if !l.cfg.DisableStack {
		entry.Stack = stackTopN(scope.StackData(), stackDepth(op))
	}
	if !l.cfg.DisableMemory {
		entry.Memory = memoryWords(scope.MemoryData())
	}
	if !l.cfg.DisableStorage {
		addr := scope.Address()
		if op == vm.SSTORE {
			stack := scope.StackData()
			if len(stack) >= 2 {
				key := common.Hash(stack[len(stack)-1].Bytes32())
				val := common.Hash(stack[len(stack)-2].Bytes32())
				frame := l.storage[addr]
				if frame == nil {
					frame = make(storageView)
					l.storage[addr] = frame
				}
				frame[key] = val
			}
		}
		if frame, ok := l.storage[addr]; ok && len(frame) > 0 {
			m := make(map[string]string, len(frame))
			for k, v := range frame {
				m[storageHex(k)] = storageHex(v)
			}
			entry.Storage = &m
		}
	}

	l.logs = append(l.logs, entry)
}

// onExit implements on_execution_end: finalize the last structLog emitted
// by the exiting frame (it is, by construction, the last entry appended so
// far — every deeper frame has already exited in LIFO order), then, at
// depth 0, set the top-level failed/gas/return_value fields.
func (l *Logger) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	entryGas := gasUsed
	if n := len(l.frameGas); n > 0 {
		entryGas = l.frameGas[n-1]
		l.frameGas = l.frameGas[:n-1]
	}
	gasLeft := uint64(0)
	if entryGas >= gasUsed {
		gasLeft = entryGas - gasUsed
	}

	if n := len(l.logs); n > 0 {
		prev := &l.logs[n-1]
		switch {
		case err == nil && !reverted:
			// SUCCESS: gas_cost = prev.gas - result.gas_left.
			if prev.Gas >= gasLeft {
				prev.GasCost = prev.Gas - gasLeft
			}
		default:
			// REVERT / OUT_OF_GAS / UNDEFINED_INSTRUCTION and any other
			// runtime failure: the dynamic cost of the failing op is
			// unknowable (it never completed), so it is zeroed and the
			// entry is flagged as an error.
			prev.GasCost = 0
			prev.Error = &struct{}{}
		}
	}
	if depth == 0 {
		l.failed = err != nil || reverted
		l.output = output
		l.gas = gasLeft
	}
}

// Result assembles the final DebugTrace once execution has ended.
func (l *Logger) Result() jsonshape.DebugTrace {
	return jsonshape.DebugTrace{
		Failed:      l.failed,
		Gas:         l.gas,
		ReturnValue: hexutil.Encode(l.output)[2:],
		StructLogs:  l.logs,
	}
}

// stackDepth implements the Top-N table of spec.md §4.2.
func stackDepth(op vm.OpCode) int {
	switch {
	case op >= vm.PUSH1 && op <= vm.PUSH32:
		return 1
	case op >= vm.SWAP1 && op <= vm.SWAP16:
		return int(op-vm.SWAP1) + 2
	case op >= vm.DUP1 && op <= vm.DUP16:
		return int(op-vm.DUP1) + 2
	case op == vm.STOP || op == vm.JUMPDEST || op == vm.INVALID:
		// Zero-operand control opcodes: nothing meaningful to surface.
		return 0
	default:
		// "Most unary/binary/system opcodes" per spec.md §4.2's table.
		return 1
	}
}

// stackTopN copies the top n elements of stack, high-to-low, as
// "0x"-prefixed hex strings. stack is ordered bottom-first (scope.StackData
// semantics), so the top is the last element.
func stackTopN(stack []uint256.Int, n int) *[]string {
	if n <= 0 {
		out := []string{}
		return &out
	}
	if n > len(stack) {
		n = len(stack)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		v := stack[len(stack)-1-i]
		out[i] = v.Hex()
	}
	return &out
}

// memoryWords renders memory as 32-byte lowercase hex words, no 0x prefix.
func memoryWords(mem []byte) *[]string {
	words := make([]string, 0, len(mem)/32)
	for i := 0; i+32 <= len(mem); i += 32 {
		words = append(words, common.Bytes2Hex(mem[i:i+32]))
	}
	return &words
}

func storageHex(h common.Hash) string {
	return common.Bytes2Hex(h.Bytes())
}
