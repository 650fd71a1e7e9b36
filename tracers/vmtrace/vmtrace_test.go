package vmtrace

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type fakeScope struct {
	mem   []byte
	stack []uint256.Int
	addr  common.Address
}

func (f fakeScope) MemoryData() []byte       { return f.mem }
func (f fakeScope) StackData() []uint256.Int { return f.stack }
func (f fakeScope) Caller() common.Address   { return common.Address{} }
func (f fakeScope) Address() common.Address  { return f.addr }
func (f fakeScope) CallValue() *uint256.Int  { return uint256.NewInt(0) }
func (f fakeScope) CallInput() []byte        { return nil }
func (f fakeScope) ContractCode() []byte     { return nil }

func u256(v uint64) uint256.Int { return *uint256.NewInt(v) }

func TestVMTraceSimpleRun(t *testing.T) {
	tr := New("")
	h := tr.Hooks()

	h.OnEnter(0, byte(vm.CALL), common.Address{}, common.Address{}, nil, 1000, big.NewInt(0))
	h.OnOpcode(0, byte(vm.PUSH1), 1000, 3, fakeScope{stack: nil}, nil, 0, nil)
	h.OnOpcode(1, byte(vm.STOP), 997, 0, fakeScope{stack: []uint256.Int{u256(1)}}, nil, 0, nil)
	h.OnExit(0, nil, 3, nil, false)

	res := tr.Result([]byte{0x60, 0x01, 0x00})
	require.NotNil(t, res)
	require.Equal(t, "0x600100", res.Code)
	require.Len(t, res.Ops, 2)
	require.Equal(t, "PUSH1", res.Ops[0].Op)
	require.Equal(t, int64(3), res.Ops[0].Cost)
	require.Equal(t, []string{"0x1"}, res.Ops[0].Ex.Push)
}

func TestVMTraceSoleSTOPFrameDiscardsOps(t *testing.T) {
	tr := New("")
	h := tr.Hooks()

	h.OnEnter(0, byte(vm.CALL), common.Address{}, common.Address{}, nil, 1000, big.NewInt(0))
	h.OnOpcode(0, byte(vm.STOP), 1000, 0, fakeScope{}, nil, 0, nil)
	h.OnExit(0, nil, 0, nil, false)

	res := tr.Result(nil)
	require.NotNil(t, res)
	require.Empty(t, res.Ops)
}

func TestVMTraceNestedCallSub(t *testing.T) {
	tr := New("")
	h := tr.Hooks()

	caller := common.HexToAddress("0x01")
	callee := common.HexToAddress("0x02")

	h.OnEnter(0, byte(vm.CALL), common.Address{}, caller, nil, 1000, big.NewInt(0))
	h.OnOpcode(0, byte(vm.CALL), 1000, 100, fakeScope{addr: caller, stack: []uint256.Int{u256(900), u256(0), u256(0), u256(0), u256(0), u256(0), u256(0)}}, nil, 0, nil)
	h.OnEnter(1, byte(vm.CALL), caller, callee, nil, 900, big.NewInt(0))
	h.OnOpcode(1, byte(vm.STOP), 900, 0, fakeScope{addr: callee}, nil, 1, nil)
	h.OnExit(1, nil, 0, nil, false)
	h.OnOpcode(2, byte(vm.STOP), 900, 0, fakeScope{addr: caller}, nil, 0, nil)
	h.OnExit(0, nil, 100, nil, false)

	res := tr.Result(nil)
	require.NotNil(t, res)
	require.Len(t, res.Ops, 2)
	require.Equal(t, "CALL", res.Ops[0].Op)
	require.NotNil(t, res.Ops[0].Sub)
}

func TestVMTraceErrorPreservesLastOpGas(t *testing.T) {
	tr := New("")
	h := tr.Hooks()
	addr := common.HexToAddress("0x01")

	h.OnEnter(0, byte(vm.CALL), common.Address{}, addr, nil, 1000, big.NewInt(0))
	h.OnOpcode(0, byte(vm.ADD), 1000, 3, fakeScope{addr: addr, stack: []uint256.Int{u256(1), u256(2)}}, nil, 0, nil)
	h.OnOpcode(1, byte(vm.INVALID), 997, 0, fakeScope{addr: addr}, nil, 0, nil)
	h.OnExit(0, nil, 1000, vm.ErrInvalidCode, false)

	res := tr.Result(nil)
	require.NotNil(t, res)
	require.Len(t, res.Ops, 2)
	// INVALID's pre-execution gas was 997 with entry gas 1000: cost becomes
	// 1000-997 = 3 and used becomes 997-3 = 994.
	require.Equal(t, int64(3), res.Ops[1].Cost)
	require.Equal(t, int64(994), res.Ops[1].Ex.Used)
}

func TestMemoryRangeMSTORE(t *testing.T) {
	stack := []uint256.Int{u256(0x20)}
	off, length, ok := memoryRange(vm.MSTORE, stack)
	require.True(t, ok)
	require.Equal(t, uint64(0x20), off)
	require.Equal(t, uint64(32), length)
}

func TestMemoryRangeCall(t *testing.T) {
	stack := make([]uint256.Int, 7)
	stack[1] = u256(0x40) // top(5)
	stack[0] = u256(0x10) // top(6)
	off, length, ok := memoryRange(vm.CALL, stack)
	require.True(t, ok)
	require.Equal(t, uint64(0x40), off)
	require.Equal(t, uint64(0x10), length)
}

func TestMemoryRangeNotApplicable(t *testing.T) {
	_, _, ok := memoryRange(vm.ADD, nil)
	require.False(t, ok)
}

func TestPushCountZeroOperandOpcodes(t *testing.T) {
	require.Equal(t, 0, pushCount(vm.STOP))
	require.Equal(t, 0, pushCount(vm.SSTORE))
	require.Equal(t, 1, pushCount(vm.ADD))
}
