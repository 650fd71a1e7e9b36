package debuglogger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// fakeScope is a minimal tracing.OpContext stand-in for direct hook tests.
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

func TestLoggerSimpleRunProducesStructLogs(t *testing.T) {
	l := New(Config{})
	h := l.Hooks()

	addr := common.HexToAddress("0x01")
	h.OnEnter(0, byte(vm.CALL), common.Address{}, addr, nil, 1000, big.NewInt(0))
	h.OnOpcode(0, byte(vm.PUSH1), 1000, 3, fakeScope{addr: addr, stack: nil}, nil, 0, nil)
	h.OnOpcode(1, byte(vm.PUSH1), 997, 3, fakeScope{addr: addr, stack: []uint256.Int{u256(1)}}, nil, 0, nil)
	h.OnOpcode(2, byte(vm.ADD), 994, 3, fakeScope{addr: addr, stack: []uint256.Int{u256(1), u256(2)}}, nil, 0, nil)
	h.OnExit(0, nil, 9, nil, false)

	res := l.Result()
	require.False(t, res.Failed)
	require.Len(t, res.StructLogs, 3)

	require.Equal(t, "PUSH1", res.StructLogs[0].Op)
	require.Equal(t, uint64(1000), res.StructLogs[0].Gas)
	require.Equal(t, uint64(3), res.StructLogs[0].GasCost)

	require.Equal(t, "PUSH1", res.StructLogs[1].Op)
	require.Equal(t, uint64(3), res.StructLogs[1].GasCost)

	require.Equal(t, "ADD", res.StructLogs[2].Op)
	// Last entry's gas cost is patched by onExit: its own gas minus the frame's gas-left.
	require.Equal(t, uint64(3), res.StructLogs[2].GasCost)
	require.Nil(t, res.StructLogs[2].Error)
}

func TestLoggerStackTopNRespectsDisableStack(t *testing.T) {
	l := New(Config{DisableStack: true})
	h := l.Hooks()
	addr := common.HexToAddress("0x01")

	h.OnEnter(0, byte(vm.CALL), common.Address{}, addr, nil, 100, big.NewInt(0))
	h.OnOpcode(0, byte(vm.ADD), 100, 3, fakeScope{addr: addr, stack: []uint256.Int{u256(1), u256(2)}}, nil, 0, nil)
	h.OnExit(0, nil, 3, nil, false)

	res := l.Result()
	require.Nil(t, res.StructLogs[0].Stack)
}

func TestLoggerStackTopNDefaultEnabled(t *testing.T) {
	l := New(Config{})
	h := l.Hooks()
	addr := common.HexToAddress("0x01")

	h.OnEnter(0, byte(vm.CALL), common.Address{}, addr, nil, 100, big.NewInt(0))
	h.OnOpcode(0, byte(vm.ADD), 100, 3, fakeScope{addr: addr, stack: []uint256.Int{u256(1), u256(2)}}, nil, 0, nil)
	h.OnExit(0, nil, 3, nil, false)

	res := l.Result()
	require.NotNil(t, res.StructLogs[0].Stack)
	require.Len(t, *res.StructLogs[0].Stack, 1)
}

func TestLoggerStorageCarryForwardWithinFrame(t *testing.T) {
	l := New(Config{})
	h := l.Hooks()
	addr := common.HexToAddress("0x01")

	key := u256(7)
	val := u256(9)
	h.OnEnter(0, byte(vm.CALL), common.Address{}, addr, nil, 1000, big.NewInt(0))
	h.OnOpcode(0, byte(vm.SSTORE), 1000, 20000, fakeScope{addr: addr, stack: []uint256.Int{val, key}}, nil, 0, nil)
	h.OnOpcode(1, byte(vm.STOP), 980, 0, fakeScope{addr: addr}, nil, 0, nil)
	h.OnExit(0, nil, 20, nil, false)

	res := l.Result()
	// The entry recorded *after* the SSTORE carries the storage map forward.
	require.NotNil(t, res.StructLogs[1].Storage)
	m := *res.StructLogs[1].Storage
	require.Len(t, m, 1)
}

func TestLoggerStorageDoesNotCrossFrames(t *testing.T) {
	l := New(Config{})
	h := l.Hooks()
	outer := common.HexToAddress("0x01")
	inner := common.HexToAddress("0x02")

	h.OnEnter(0, byte(vm.CALL), common.Address{}, outer, nil, 1000, big.NewInt(0))
	h.OnOpcode(0, byte(vm.SSTORE), 1000, 20000, fakeScope{addr: outer, stack: []uint256.Int{u256(1), u256(2)}}, nil, 0, nil)
	h.OnEnter(1, byte(vm.CALL), outer, inner, nil, 500, big.NewInt(0))
	h.OnOpcode(1, byte(vm.STOP), 500, 0, fakeScope{addr: inner}, nil, 1, nil)
	h.OnExit(1, nil, 0, nil, false)
	h.OnExit(0, nil, 1000, nil, false)

	res := l.Result()
	// The STOP inside the nested frame (a fresh address) sees no storage.
	require.Nil(t, res.StructLogs[1].Storage)
}

func TestLoggerFailureZeroesLastGasCostAndFlagsError(t *testing.T) {
	l := New(Config{})
	h := l.Hooks()
	addr := common.HexToAddress("0x01")

	h.OnEnter(0, byte(vm.CALL), common.Address{}, addr, nil, 1000, big.NewInt(0))
	h.OnOpcode(0, byte(vm.INVALID), 1000, 0, fakeScope{addr: addr}, nil, 0, errors.New("invalid opcode"))
	h.OnExit(0, nil, 1000, vm.ErrInvalidCode, false)

	res := l.Result()
	require.True(t, res.Failed)
	last := res.StructLogs[len(res.StructLogs)-1]
	require.Equal(t, uint64(0), last.GasCost)
	require.NotNil(t, last.Error)
}

func TestLoggerMemoryWords(t *testing.T) {
	l := New(Config{})
	h := l.Hooks()
	addr := common.HexToAddress("0x01")

	mem := make([]byte, 64)
	mem[31] = 0x01
	mem[63] = 0x02
	h.OnEnter(0, byte(vm.CALL), common.Address{}, addr, nil, 1000, big.NewInt(0))
	h.OnOpcode(0, byte(vm.MLOAD), 1000, 3, fakeScope{addr: addr, mem: mem, stack: []uint256.Int{u256(0)}}, nil, 0, nil)
	h.OnExit(0, nil, 3, nil, false)

	res := l.Result()
	require.NotNil(t, res.StructLogs[0].Memory)
	require.Len(t, *res.StructLogs[0].Memory, 2)
}
