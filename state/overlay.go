package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// overlayAccount tracks one address's in-memory deltas over the
// historical Reader. An address with no entry has not been touched yet;
// exists=false marks an account the reader did not find, and
// destructed=true marks a selfdestructed one.
type overlayAccount struct {
	exists      bool
	destructed  bool
	balance     *uint256.Int
	nonce       uint64
	code        []byte
	codeHash    common.Hash
	incarnation uint64
	storage     map[common.Hash]common.Hash
}

func (a *overlayAccount) clone() *overlayAccount {
	cp := *a
	cp.storage = make(map[common.Hash]common.Hash, len(a.storage))
	for k, v := range a.storage {
		cp.storage[k] = v
	}
	cp.balance = new(uint256.Int).Set(a.balance)
	return &cp
}

// StateDB implements go-ethereum's core/vm.StateDB over the historical
// Reader, with all mutations kept in an in-memory overlay — nothing is
// ever written back to the remote KV store, per spec.md §1's read-only
// scope. The EVM interpreter needs a mutable StateDB to run at all, so
// this overlay exists purely to satisfy that contract for the duration of
// one replayed transaction.
type StateDB struct {
	reader *Reader

	overlay map[common.Address]*overlayAccount
	transient map[common.Address]map[common.Hash]common.Hash

	refund uint64

	accessAddrs map[common.Address]struct{}
	accessSlots map[common.Address]map[common.Hash]struct{}

	logs      []*types.Log
	snapshots []snapshot
}

type snapshot struct {
	overlay     map[common.Address]*overlayAccount
	refund      uint64
	accessAddrs map[common.Address]struct{}
	accessSlots map[common.Address]map[common.Hash]struct{}
	logsLen     int
}

// NewStateDB wraps reader in a mutable overlay.
func NewStateDB(reader *Reader) *StateDB {
	return &StateDB{
		reader:      reader,
		overlay:     make(map[common.Address]*overlayAccount),
		transient:   make(map[common.Address]map[common.Hash]common.Hash),
		accessAddrs: make(map[common.Address]struct{}),
		accessSlots: make(map[common.Address]map[common.Hash]struct{}),
	}
}

func (s *StateDB) load(addr common.Address) *overlayAccount {
	if oa, ok := s.overlay[addr]; ok {
		return oa
	}
	acc, found, err := s.reader.ReadAccount(addr)
	oa := &overlayAccount{storage: make(map[common.Hash]common.Hash)}
	if err == nil && found {
		oa.exists = true
		oa.balance = acc.Balance
		oa.nonce = acc.Nonce
		oa.codeHash = acc.CodeHash
		oa.incarnation = acc.Incarnation
		if acc.CodeHash != (common.Hash{}) {
			if code, err := s.reader.ReadCode(acc.CodeHash); err == nil {
				oa.code = code
			}
		}
	} else {
		oa.balance = new(uint256.Int)
	}
	s.overlay[addr] = oa
	return oa
}

// CreateAccount resets addr to a fresh, empty-code account, preserving
// any balance a prior transfer already credited to it (go-ethereum's own
// CreateAccount semantics: it must not clobber a pre-funded target).
func (s *StateDB) CreateAccount(addr common.Address) {
	oa := s.load(addr)
	balance := oa.balance
	fresh := &overlayAccount{exists: true, balance: balance, storage: make(map[common.Hash]common.Hash)}
	s.overlay[addr] = fresh
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) {
	oa := s.load(addr)
	oa.balance = new(uint256.Int).Sub(oa.balance, amount)
	oa.exists = true
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) {
	oa := s.load(addr)
	oa.balance = new(uint256.Int).Add(oa.balance, amount)
	oa.exists = true
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	return s.load(addr).balance
}

func (s *StateDB) GetNonce(addr common.Address) uint64 { return s.load(addr).nonce }

func (s *StateDB) SetNonce(addr common.Address, nonce uint64, reason tracing.NonceChangeReason) {
	oa := s.load(addr)
	oa.nonce = nonce
	oa.exists = true
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash { return s.load(addr).codeHash }
func (s *StateDB) GetCode(addr common.Address) []byte          { return s.load(addr).code }
func (s *StateDB) GetCodeSize(addr common.Address) int         { return len(s.load(addr).code) }

func (s *StateDB) SetCode(addr common.Address, code []byte, reason tracing.CodeChangeReason) {
	oa := s.load(addr)
	oa.code = code
	oa.codeHash = common.BytesToHash(codeHashOf(code))
	oa.exists = true
}

func (s *StateDB) AddRefund(gas uint64)      { s.refund += gas }
func (s *StateDB) SubRefund(gas uint64) {
	if gas > s.refund {
		s.refund = 0
		return
	}
	s.refund -= gas
}
func (s *StateDB) GetRefund() uint64 { return s.refund }

func (s *StateDB) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	oa := s.load(addr)
	v, err := s.reader.ReadStorage(addr, key, oa.incarnation)
	if err != nil {
		return common.Hash{}
	}
	return v
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	oa := s.load(addr)
	if v, ok := oa.storage[key]; ok {
		return v
	}
	return s.GetCommittedState(addr, key)
}

func (s *StateDB) SetState(addr common.Address, key, value common.Hash) {
	oa := s.load(addr)
	oa.storage[key] = value
}

func (s *StateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	if m, ok := s.transient[addr]; ok {
		return m[key]
	}
	return common.Hash{}
}

func (s *StateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	m, ok := s.transient[addr]
	if !ok {
		m = make(map[common.Hash]common.Hash)
		s.transient[addr] = m
	}
	m[key] = value
}

func (s *StateDB) SelfDestruct(addr common.Address) {
	oa := s.load(addr)
	oa.destructed = true
}

func (s *StateDB) HasSelfDestructed(addr common.Address) bool { return s.load(addr).destructed }
func (s *StateDB) Selfdestruct6780(addr common.Address)       { s.SelfDestruct(addr) }

func (s *StateDB) Exist(addr common.Address) bool {
	oa := s.load(addr)
	return oa.exists && !oa.destructed
}

func (s *StateDB) Empty(addr common.Address) bool {
	oa := s.load(addr)
	return !oa.exists || (oa.nonce == 0 && oa.balance.IsZero() && len(oa.code) == 0)
}

func (s *StateDB) AddressInAccessList(addr common.Address) bool {
	_, ok := s.accessAddrs[addr]
	return ok
}

func (s *StateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	addrOK := s.AddressInAccessList(addr)
	slots, ok := s.accessSlots[addr]
	if !ok {
		return addrOK, false
	}
	_, slotOK := slots[slot]
	return addrOK, slotOK
}

func (s *StateDB) AddAddressToAccessList(addr common.Address) { s.accessAddrs[addr] = struct{}{} }

func (s *StateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.AddAddressToAccessList(addr)
	slots, ok := s.accessSlots[addr]
	if !ok {
		slots = make(map[common.Hash]struct{})
		s.accessSlots[addr] = slots
	}
	slots[slot] = struct{}{}
}

func (s *StateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.accessAddrs = make(map[common.Address]struct{})
	s.accessSlots = make(map[common.Address]map[common.Hash]struct{})
	s.AddAddressToAccessList(sender)
	if dest != nil {
		s.AddAddressToAccessList(*dest)
	}
	for _, p := range precompiles {
		s.AddAddressToAccessList(p)
	}
	for _, el := range txAccesses {
		s.AddAddressToAccessList(el.Address)
		for _, key := range el.StorageKeys {
			s.AddSlotToAccessList(el.Address, key)
		}
	}
	if rules.IsBerlin {
		s.AddAddressToAccessList(coinbase)
	}
}

func (s *StateDB) Snapshot() int {
	cp := snapshot{
		overlay:     make(map[common.Address]*overlayAccount, len(s.overlay)),
		refund:      s.refund,
		accessAddrs: make(map[common.Address]struct{}, len(s.accessAddrs)),
		accessSlots: make(map[common.Address]map[common.Hash]struct{}, len(s.accessSlots)),
		logsLen:     len(s.logs),
	}
	for addr, oa := range s.overlay {
		cp.overlay[addr] = oa.clone()
	}
	for addr := range s.accessAddrs {
		cp.accessAddrs[addr] = struct{}{}
	}
	for addr, slots := range s.accessSlots {
		cpSlots := make(map[common.Hash]struct{}, len(slots))
		for k := range slots {
			cpSlots[k] = struct{}{}
		}
		cp.accessSlots[addr] = cpSlots
	}
	s.snapshots = append(s.snapshots, cp)
	return len(s.snapshots) - 1
}

func (s *StateDB) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	cp := s.snapshots[id]
	s.overlay = cp.overlay
	s.refund = cp.refund
	s.accessAddrs = cp.accessAddrs
	s.accessSlots = cp.accessSlots
	s.logs = s.logs[:cp.logsLen]
	s.snapshots = s.snapshots[:id]
}

// Snapshot0 returns a read-only copy of the current overlay, suitable as
// the State Diff Tracer's pre-transaction snapshot (spec.md §4.4): later
// mutations to s are invisible to the returned copy.
func (s *StateDB) Snapshot0() *StateDB {
	cp := NewStateDB(s.reader)
	for addr, oa := range s.overlay {
		cp.overlay[addr] = oa.clone()
	}
	return cp
}

func (s *StateDB) AddLog(log *types.Log) { s.logs = append(s.logs, log) }
func (s *StateDB) Logs() []*types.Log    { return s.logs }

func (s *StateDB) AddPreimage(hash common.Hash, preimage []byte) {}

// GetState / Exist above already give statediff.StateReader everything it
// needs, modulo GetBalance returning *uint256.Int (statediff wants that
// too): StateDB satisfies statediff.StateReader directly.

func codeHashOf(code []byte) []byte {
	if len(code) == 0 {
		return common.Hash{}.Bytes()
	}
	return crypto.Keccak256(code)
}
