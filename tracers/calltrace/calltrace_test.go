package calltrace

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/silkrpc-sub000/tracers/jsonshape"
)

var (
	addrA = common.HexToAddress("0xaaaa")
	addrB = common.HexToAddress("0xbbbb")
	addrC = common.HexToAddress("0xcccc")
)

func TestCallTraceSingleCall(t *testing.T) {
	tr := New()
	h := tr.Hooks()

	h.OnEnter(0, byte(vm.CALL), addrA, addrB, []byte{0x01}, 1000, big.NewInt(5))
	h.OnExit(0, []byte{0x02}, 100, nil, false)

	out := tr.Result()
	require.Len(t, out, 1)
	require.Equal(t, "call", out[0].Type)
	require.Equal(t, []int{}, out[0].TraceAddress)
	require.Equal(t, 0, out[0].Subtraces)
	action, ok := out[0].Action.(jsonshape.CallAction)
	require.True(t, ok)
	require.Equal(t, addrA, action.From)
	require.NotNil(t, action.To)
	require.Equal(t, addrB, *action.To)
	require.NotNil(t, out[0].Result)
	require.Equal(t, "", out[0].Error)
}

func TestCallTraceNestedChild(t *testing.T) {
	tr := New()
	h := tr.Hooks()

	h.OnEnter(0, byte(vm.CALL), addrA, addrB, nil, 1000, big.NewInt(0))
	h.OnEnter(1, byte(vm.STATICCALL), addrB, addrC, nil, 500, big.NewInt(0))
	h.OnExit(1, nil, 50, nil, false)
	h.OnExit(0, nil, 200, nil, false)

	out := tr.Result()
	require.Len(t, out, 2)

	parent := out[0]
	child := out[1]
	require.Equal(t, []int{}, parent.TraceAddress)
	require.Equal(t, 1, parent.Subtraces)
	require.Equal(t, []int{0}, child.TraceAddress)
	require.Equal(t, 0, child.Subtraces)
	childAction, ok := child.Action.(jsonshape.CallAction)
	require.True(t, ok)
	require.NotNil(t, childAction.CallType)
	require.Equal(t, "staticcall", *childAction.CallType)
}

func TestCallTraceCreateUsesResolvedAddress(t *testing.T) {
	tr := New()
	h := tr.Hooks()

	created := common.HexToAddress("0xdead")
	h.OnEnter(0, byte(vm.CREATE), addrA, created, []byte{0xde, 0xad}, 1000, big.NewInt(0))
	h.OnExit(0, []byte{0xc0, 0xde}, 300, nil, false)

	out := tr.Result()
	require.Len(t, out, 1)
	require.Equal(t, "create", out[0].Type)
	action, ok := out[0].Action.(jsonshape.CallAction)
	require.True(t, ok)
	require.NotNil(t, action.Init)
	require.NotNil(t, out[0].Result)
	require.NotNil(t, out[0].Result.Address)
	require.Equal(t, created, *out[0].Result.Address)
}

func TestCallTraceErrorSetsErrorFieldNotResult(t *testing.T) {
	tr := New()
	h := tr.Hooks()

	h.OnEnter(0, byte(vm.CALL), addrA, addrB, nil, 1000, big.NewInt(0))
	h.OnExit(0, nil, 1000, vm.ErrExecutionReverted, true)

	out := tr.Result()
	require.Len(t, out, 1)
	require.Equal(t, "Reverted", out[0].Error)
	require.Nil(t, out[0].Result)
}

func TestCallTraceSiblingTraceAddresses(t *testing.T) {
	tr := New()
	h := tr.Hooks()

	h.OnEnter(0, byte(vm.CALL), addrA, addrB, nil, 1000, big.NewInt(0))
	h.OnEnter(1, byte(vm.CALL), addrB, addrC, nil, 500, big.NewInt(0))
	h.OnExit(1, nil, 10, nil, false)
	h.OnEnter(1, byte(vm.CALL), addrB, addrC, nil, 500, big.NewInt(0))
	h.OnExit(1, nil, 10, nil, false)
	h.OnExit(0, nil, 100, nil, false)

	out := tr.Result()
	require.Len(t, out, 3)
	require.Equal(t, 2, out[0].Subtraces)
	require.Equal(t, []int{0}, out[1].TraceAddress)
	require.Equal(t, []int{1}, out[2].TraceAddress)
}
