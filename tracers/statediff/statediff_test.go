package statediff

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type fakeAccount struct {
	balance *uint256.Int
	nonce   uint64
	code    []byte
	storage map[common.Hash]common.Hash
}

type fakeState struct {
	accounts map[common.Address]fakeAccount
}

func newFakeState() *fakeState {
	return &fakeState{accounts: make(map[common.Address]fakeAccount)}
}

func (s *fakeState) set(addr common.Address, a fakeAccount) { s.accounts[addr] = a }

func (s *fakeState) Exist(addr common.Address) bool {
	_, ok := s.accounts[addr]
	return ok
}

func (s *fakeState) GetBalance(addr common.Address) *uint256.Int {
	if a, ok := s.accounts[addr]; ok && a.balance != nil {
		return a.balance
	}
	return uint256.NewInt(0)
}

func (s *fakeState) GetNonce(addr common.Address) uint64 { return s.accounts[addr].nonce }
func (s *fakeState) GetCode(addr common.Address) []byte  { return s.accounts[addr].code }

func (s *fakeState) GetState(addr common.Address, slot common.Hash) common.Hash {
	if a, ok := s.accounts[addr]; ok {
		return a.storage[slot]
	}
	return common.Hash{}
}

var (
	addrA = common.HexToAddress("0xaaaa")
	addrB = common.HexToAddress("0xbbbb")
	slot1 = common.HexToHash("0x01")
)

func TestStateDiffBalanceChange(t *testing.T) {
	before := newFakeState()
	before.set(addrA, fakeAccount{balance: uint256.NewInt(100)})
	after := newFakeState()
	after.set(addrA, fakeAccount{balance: uint256.NewInt(150)})

	tr := New()
	tr.Hooks().OnBalanceChange(addrA, big.NewInt(100), big.NewInt(150), tracing.BalanceChangeUnspecified)

	diff := tr.Result(before, after)
	require.Contains(t, diff, addrA)
	require.False(t, diff[addrA].Balance.IsUnchanged())
}

func TestStateDiffUnchangedAccountOmitted(t *testing.T) {
	before := newFakeState()
	before.set(addrA, fakeAccount{balance: uint256.NewInt(100), nonce: 1})
	after := newFakeState()
	after.set(addrA, fakeAccount{balance: uint256.NewInt(100), nonce: 1})

	tr := New()
	// Touched but nothing actually moved.
	tr.Hooks().OnBalanceChange(addrA, big.NewInt(100), big.NewInt(100), tracing.BalanceChangeUnspecified)

	diff := tr.Result(before, after)
	require.NotContains(t, diff, addrA)
}

func TestStateDiffNewAccountMarksAllAdded(t *testing.T) {
	before := newFakeState()
	after := newFakeState()
	after.set(addrB, fakeAccount{balance: uint256.NewInt(10), nonce: 1, code: []byte{0x60}})

	tr := New()
	tr.Hooks().OnBalanceChange(addrB, big.NewInt(0), big.NewInt(10), tracing.BalanceChangeUnspecified)

	diff := tr.Result(before, after)
	require.Contains(t, diff, addrB)
	require.False(t, diff[addrB].Balance.IsUnchanged())
	require.False(t, diff[addrB].Nonce.IsUnchanged())
	require.False(t, diff[addrB].Code.IsUnchanged())
}

func TestStateDiffRemovedAccountMarksAllRemoved(t *testing.T) {
	before := newFakeState()
	before.set(addrA, fakeAccount{balance: uint256.NewInt(10), nonce: 1, code: []byte{0x60}})
	after := newFakeState()

	tr := New()
	tr.Hooks().OnNonceChangeV2(addrA, 1, 2, tracing.NonceChangeUnspecified)

	diff := tr.Result(before, after)
	require.Contains(t, diff, addrA)
	require.False(t, diff[addrA].Balance.IsUnchanged())
}

func TestStateDiffStorageSlotChange(t *testing.T) {
	before := newFakeState()
	before.set(addrA, fakeAccount{balance: uint256.NewInt(5), storage: map[common.Hash]common.Hash{
		slot1: common.HexToHash("0x00"),
	}})
	after := newFakeState()
	after.set(addrA, fakeAccount{balance: uint256.NewInt(5), storage: map[common.Hash]common.Hash{
		slot1: common.HexToHash("0x02"),
	}})

	tr := New()
	tr.Hooks().OnStorageChange(addrA, slot1, common.HexToHash("0x00"), common.HexToHash("0x02"))

	diff := tr.Result(before, after)
	require.Contains(t, diff, addrA)
	require.Len(t, diff[addrA].Storage, 1)
}

func TestStateDiffNeverTouchedAccountAbsent(t *testing.T) {
	before := newFakeState()
	before.set(addrA, fakeAccount{balance: uint256.NewInt(5)})
	after := newFakeState()
	after.set(addrA, fakeAccount{balance: uint256.NewInt(999)})

	tr := New()
	diff := tr.Result(before, after)
	require.Empty(t, diff)
}
