// Package calltrace implements the Trace (call-tree) tracer of spec.md
// §3's "Trace (call-tree node)" data model and §4's "VM Tracer (call
// tree)" box: a flat, Parity-style list of call/create/reward nodes with
// trace_address paths, produced from the same OnEnter/OnExit callbacks
// the VM Tracer (tracers/vmtrace) uses for its hierarchical VmTrace.
package calltrace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/erigontech/silkrpc-sub000/tracers/jsonshape"
)

// callTypeNames maps the byte call kind OnEnter/OnExit report to the
// Parity callType string, for the subset that are CALL-shaped (not
// CREATE-shaped).
var callTypeNames = map[vm.OpCode]string{
	vm.CALL:         "call",
	vm.CALLCODE:     "callcode",
	vm.DELEGATECALL: "delegatecall",
	vm.STATICCALL:   "staticcall",
}

func isCreate(op vm.OpCode) bool { return op == vm.CREATE || op == vm.CREATE2 }

// node is one in-progress or completed call-tree entry.
type node struct {
	trace        jsonshape.Trace
	subtraceSeen int // count of children appended so far, for the next child's traceAddress.
	traceAddress []int
	createdAddr  common.Address // valid only when trace.Type == "create".
}

// Tracer accumulates a flat call tree across one transaction's execution.
type Tracer struct {
	nodes []node // completed nodes in on_execution_start (pre-order) order.
	stack []int  // indices into nodes, currently open frames.
}

// New constructs a Trace (call tree) tracer.
func New() *Tracer { return &Tracer{} }

// Hooks returns the tracing.Hooks this tracer implements.
func (t *Tracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter: t.onEnter,
		OnExit:  t.onExit,
	}
}

func (t *Tracer) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	op := vm.OpCode(typ)

	var traceAddress []int
	if len(t.stack) > 0 {
		parent := &t.nodes[t.stack[len(t.stack)-1]]
		traceAddress = append(append([]int{}, parent.traceAddress...), parent.subtraceSeen)
		parent.subtraceSeen++
	} else {
		traceAddress = []int{}
	}

	n := node{traceAddress: traceAddress}
	if isCreate(op) {
		// to is already the computed contract address: the EVM resolves
		// it (sender/nonce or sender/salt/init-hash) before invoking
		// OnEnter, so no separate "learn the address later" step is needed.
		init := hexutil.Bytes(append([]byte(nil), input...))
		n.createdAddr = to
		n.trace = jsonshape.Trace{
			Type: "create",
			Action: jsonshape.CallAction{
				From:  from,
				Gas:   hexutil.Uint64(gas),
				Init:  &init,
				Value: (*hexutil.Big)(valueOrZero(value)),
			},
			TraceAddress: traceAddress,
		}
	} else {
		callType := callTypeNames[op]
		if callType == "" {
			callType = "call"
		}
		dest := to
		data := hexutil.Bytes(append([]byte(nil), input...))
		n.trace = jsonshape.Trace{
			Type: "call",
			Action: jsonshape.CallAction{
				CallType: &callType,
				From:     from,
				To:       &dest,
				Gas:      hexutil.Uint64(gas),
				Input:    &data,
				Value:    (*hexutil.Big)(valueOrZero(value)),
			},
			TraceAddress: traceAddress,
		}
	}

	idx := len(t.nodes)
	t.nodes = append(t.nodes, n)
	t.stack = append(t.stack, idx)
}

func (t *Tracer) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	idx := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	n := &t.nodes[idx]

	if err != nil {
		n.trace.Error = jsonshape.ErrorString(err)
		return
	}

	out := hexutil.Bytes(append([]byte(nil), output...))
	if n.trace.Type == "create" {
		addr := n.createdAddr
		n.trace.Result = &jsonshape.CallResult{
			Address: &addr,
			Code:    &out,
			GasUsed: hexutil.Uint64(gasUsed),
		}
	} else {
		n.trace.Result = &jsonshape.CallResult{
			Output:  &out,
			GasUsed: hexutil.Uint64(gasUsed),
		}
	}
}

// Result returns the flat call tree, with each node's Subtraces set to
// the number of direct children it ended up with.
func (t *Tracer) Result() []jsonshape.Trace {
	subtraceCount := make(map[string]int)
	key := func(addr []int) string {
		b := make([]byte, 0, len(addr)*4)
		for _, v := range addr {
			b = append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
		}
		return string(b)
	}
	for _, n := range t.nodes {
		if len(n.traceAddress) == 0 {
			continue
		}
		parent := n.traceAddress[:len(n.traceAddress)-1]
		subtraceCount[key(parent)]++
	}

	out := make([]jsonshape.Trace, len(t.nodes))
	for i, n := range t.nodes {
		tr := n.trace
		tr.Subtraces = subtraceCount[key(tr.TraceAddress)]
		out[i] = tr
	}
	return out
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
