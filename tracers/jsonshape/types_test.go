package jsonshape

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/require"
)

func TestOpNameKnownOpcode(t *testing.T) {
	require.Equal(t, "ADD", OpName(vm.ADD))
	require.Equal(t, "SSTORE", OpName(vm.SSTORE))
}

func TestOpNameUndefinedOpcode(t *testing.T) {
	// 0x0c is unassigned in every fork go-ethereum knows about.
	undefined := vm.OpCode(0x0c)
	require.Equal(t, "opcode 0xc not defined", OpName(undefined))
}

func TestRenameForVMTraceKeccakToSha3(t *testing.T) {
	require.Equal(t, "SHA3", RenameForVMTrace("KECCAK256"))
	require.Equal(t, "SHA3", RenameForVMTrace("keccak256"))
}

func TestRenameForVMTracePassthrough(t *testing.T) {
	require.Equal(t, "ADD", RenameForVMTrace("ADD"))
	require.Equal(t, "CALL", RenameForVMTrace("CALL"))
}

func TestErrorStringTable(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{vm.ErrExecutionReverted, "Reverted"},
		{vm.ErrOutOfGas, "Out of gas"},
		{vm.ErrGasUintOverflow, "Out of gas"},
		{vm.ErrInvalidJump, "Bad jump destination"},
		{vm.ErrStackOverflow, "Stack overflow"},
		{vm.ErrStackUnderflow, "Stack underflow"},
		{vm.ErrInvalidCode, "Bad instruction"},
		{vm.ErrWriteProtection, "Bad instruction"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ErrorString(c.err))
	}
}

func TestHexBigZero(t *testing.T) {
	require.Equal(t, "0x0", HexBigZero())
}

func TestDiffValueMarshalJSON(t *testing.T) {
	cases := []struct {
		name string
		v    DiffValue
		want string
	}{
		{"unchanged", Unchanged(), `"="`},
		{"added", Added("0x1"), `{"+":"0x1"}`},
		{"removed", Removed("0x2"), `{"-":"0x2"}`},
		{"changed", Changed("0x1", "0x2"), `{"*":{"from":"0x1","to":"0x2"}}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, err := json.Marshal(c.v)
			require.NoError(t, err)
			require.JSONEq(t, c.want, string(b))
		})
	}
}

func TestDiffValueIsUnchanged(t *testing.T) {
	require.True(t, Unchanged().IsUnchanged())
	require.False(t, Added("0x1").IsUnchanged())
}
