// Package jsonshape holds the wire-compatible JSON structs produced by the
// tracer set: Geth-style debug structLogs and Parity-style vmTrace/trace/
// stateDiff shapes. Nothing in this package observes execution; it only
// shapes what the tracers already collected.
package jsonshape

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
)

// DebugLogEntry is one structLog line: {pc, op, gas, gasCost, depth,
// stack?, memory?, storage?, error?}.
type DebugLogEntry struct {
	Pc      uint64             `json:"pc"`
	Op      string             `json:"op"`
	Gas     uint64             `json:"gas"`
	GasCost uint64             `json:"gasCost"`
	Depth   int                `json:"depth"`
	Error   *struct{}          `json:"error,omitempty"`
	Memory  *[]string          `json:"memory,omitempty"`
	Stack   *[]string          `json:"stack,omitempty"`
	Storage *map[string]string `json:"storage,omitempty"`
}

// DebugTrace is the top-level debug_trace* result.
type DebugTrace struct {
	Failed      bool            `json:"failed"`
	Gas         uint64          `json:"gas"`
	ReturnValue string          `json:"returnValue"`
	StructLogs  []DebugLogEntry `json:"structLogs"`
}

// MemEntry is the Parity vmTrace "ex.mem" shape.
type MemEntry struct {
	Off  int    `json:"off"`
	Data string `json:"data"`
}

// StoreEntry is the Parity vmTrace "ex.store" shape.
type StoreEntry struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// TraceEx is the Parity vmTrace "ex" shape.
type TraceEx struct {
	Mem   *MemEntry   `json:"mem"`
	Push  []string    `json:"push"`
	Store *StoreEntry `json:"store"`
	Used  int64       `json:"used"`
}

// VMTraceOp is one op inside a VMTrace.
type VMTraceOp struct {
	Cost int64      `json:"cost"`
	Ex   *TraceEx   `json:"ex"`
	Idx  string     `json:"idx"`
	Op   string     `json:"op"`
	Pc   uint64     `json:"pc"`
	Sub  *VMTrace   `json:"sub"`
}

// VMTrace is the Parity-style hierarchical execution trace.
type VMTrace struct {
	Code string      `json:"code"`
	Ops  []VMTraceOp `json:"ops"`
}

// CallAction is a Parity trace "action" for type call/create.
type CallAction struct {
	CallType *string        `json:"callType,omitempty"`
	From     common.Address `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      hexutil.Uint64 `json:"gas"`
	Input    *hexutil.Bytes `json:"input,omitempty"`
	Init     *hexutil.Bytes `json:"init,omitempty"`
	Value    *hexutil.Big   `json:"value"`
}

// RewardAction is a Parity trace "action" for type reward.
type RewardAction struct {
	Author     common.Address `json:"author"`
	RewardType string         `json:"rewardType"`
	Value      *hexutil.Big   `json:"value"`
}

// CallResult is a Parity trace "result" for a completed call.
type CallResult struct {
	Address *common.Address `json:"address,omitempty"`
	Code    *hexutil.Bytes  `json:"code,omitempty"`
	Output  *hexutil.Bytes  `json:"output,omitempty"`
	GasUsed hexutil.Uint64  `json:"gasUsed"`
}

// Trace is one node of the Parity-style flat call tree.
type Trace struct {
	Action       interface{} `json:"action"`
	Result       *CallResult `json:"result"`
	Error        string      `json:"error,omitempty"`
	Subtraces    int         `json:"subtraces"`
	TraceAddress []int       `json:"traceAddress"`
	Type         string      `json:"type"`
	// TransactionHash is only set by trace_block / trace_filter style
	// results, never by trace_transaction (which already scopes to one tx).
	TransactionHash *common.Hash `json:"transactionHash,omitempty"`
}

// DiffValue is one of "=", {"+":v}, {"-":v}, {"*":{"from":..,"to":..}}.
type DiffValue struct {
	unchanged bool
	added     *string
	removed   *string
	changedFrom,
	changedTo *string
}

// Unchanged reports the "=" sentinel.
func Unchanged() DiffValue { return DiffValue{unchanged: true} }

// Added reports a "+" value.
func Added(v string) DiffValue { return DiffValue{added: &v} }

// Removed reports a "-" value.
func Removed(v string) DiffValue { return DiffValue{removed: &v} }

// Changed reports a "*" {from,to} value.
func Changed(from, to string) DiffValue { return DiffValue{changedFrom: &from, changedTo: &to} }

// IsUnchanged reports whether this diff carries no delta.
func (d DiffValue) IsUnchanged() bool { return d.unchanged }

func (d DiffValue) MarshalJSON() ([]byte, error) {
	switch {
	case d.unchanged:
		return json.Marshal("=")
	case d.added != nil:
		return json.Marshal(map[string]string{"+": *d.added})
	case d.removed != nil:
		return json.Marshal(map[string]string{"-": *d.removed})
	case d.changedFrom != nil:
		return json.Marshal(map[string]interface{}{
			"*": map[string]string{"from": *d.changedFrom, "to": *d.changedTo},
		})
	default:
		return json.Marshal("=")
	}
}

// StateDiffAccount is the per-account {balance,code,nonce,storage} entry.
type StateDiffAccount struct {
	Balance DiffValue            `json:"balance"`
	Code    DiffValue            `json:"code"`
	Nonce   DiffValue            `json:"nonce"`
	Storage map[string]DiffValue `json:"storage"`
}

// StateDiff is the full per-transaction account delta map.
type StateDiff map[common.Address]*StateDiffAccount

// TraceCallTraces is the top-level trace_call / trace_replayTransaction result.
type TraceCallTraces struct {
	Output          hexutil.Bytes `json:"output"`
	StateDiff       StateDiff     `json:"stateDiff,omitempty"`
	Trace           []Trace       `json:"trace,omitempty"`
	VMTrace         *VMTrace      `json:"vmTrace,omitempty"`
	TransactionHash *common.Hash  `json:"transactionHash,omitempty"`
}

// OpName returns the opcode's mnemonic, or the literal
// "opcode 0x%x not defined" the spec requires for bytes that were never
// assigned a mnemonic. vm.OpCode.String() already implements exactly this
// fallback (lowercase hex, no leading zero below 0x10), so this is a thin,
// named wrapper rather than a reimplementation.
func OpName(op vm.OpCode) string {
	name := op.String()
	if name == "" {
		return fmt.Sprintf("opcode 0x%x not defined", byte(op))
	}
	return name
}

// RenameForVMTrace applies the KECCAK256->SHA3 rename vmtrace requires for
// Parity-shape compatibility; every other opcode name passes through.
func RenameForVMTrace(name string) string {
	if strings.EqualFold(name, "KECCAK256") {
		return "SHA3"
	}
	return name
}

// ErrorString maps a runtime execution error to the fixed vocabulary used
// inside Trace nodes and Debug log entries (spec.md §7).
func ErrorString(err error) string {
	switch err {
	case nil:
		return ""
	case vm.ErrExecutionReverted:
		return "Reverted"
	case vm.ErrOutOfGas, vm.ErrGasUintOverflow:
		return "Out of gas"
	case vm.ErrInvalidJump:
		return "Bad jump destination"
	case vm.ErrStackOverflow:
		return "Stack overflow"
	case vm.ErrStackUnderflow:
		return "Stack underflow"
	case vm.ErrInvalidCode:
		return "Bad instruction"
	default:
		// UNDEFINED_INSTRUCTION and any other interpreter failure both
		// surface as "Bad instruction" in the call tree.
		return "Bad instruction"
	}
}

// HexBigZero returns "0x0", hexutil's rendering of a zero quantity. The
// State Diff Tracer does not use it: its balances render zero as "0x".
func HexBigZero() string { return "0x0" }
