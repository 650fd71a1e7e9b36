// Package statediff implements the State Diff Tracer (spec.md §4.4):
// per-account before/after deltas for every account the interpreter
// touches during one transaction.
package statediff

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/holiman/uint256"

	"github.com/erigontech/silkrpc-sub000/tracers/jsonshape"
)

// StateReader is the read-only account/storage view the tracer diffs
// against — both the pre-transaction snapshot and the post-transaction
// state satisfy it.
type StateReader interface {
	Exist(addr common.Address) bool
	GetBalance(addr common.Address) *uint256.Int
	GetNonce(addr common.Address) uint64
	GetCode(addr common.Address) []byte
	GetState(addr common.Address, slot common.Hash) common.Hash
}

// Tracer is the State Diff Tracer. It owns no chain state; it only records
// which addresses and slots the interpreter touched.
type Tracer struct {
	touched      map[common.Address]struct{}
	touchedSlots map[common.Address]map[common.Hash]struct{}
}

// New constructs a State Diff Tracer.
func New() *Tracer {
	return &Tracer{
		touched:      make(map[common.Address]struct{}),
		touchedSlots: make(map[common.Address]map[common.Hash]struct{}),
	}
}

// Hooks returns the tracing.Hooks this tracer implements.
func (t *Tracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnBalanceChange:  t.onBalanceChange,
		OnNonceChangeV2:  t.onNonceChange,
		OnCodeChangeV2:   t.onCodeChange,
		OnStorageChange:  t.onStorageChange,
	}
}

func (t *Tracer) touch(addr common.Address) { t.touched[addr] = struct{}{} }

func (t *Tracer) onBalanceChange(addr common.Address, prev, new *big.Int, reason tracing.BalanceChangeReason) {
	t.touch(addr)
}

func (t *Tracer) onNonceChange(addr common.Address, prev, new uint64, reason tracing.NonceChangeReason) {
	t.touch(addr)
}

func (t *Tracer) onCodeChange(addr common.Address, prevCodeHash common.Hash, prevCode []byte, codeHash common.Hash, code []byte, reason tracing.CodeChangeReason) {
	t.touch(addr)
}

func (t *Tracer) onStorageChange(addr common.Address, slot common.Hash, prev, new common.Hash) {
	t.touch(addr)
	slots, ok := t.touchedSlots[addr]
	if !ok {
		slots = make(map[common.Hash]struct{})
		t.touchedSlots[addr] = slots
	}
	slots[slot] = struct{}{}
}

// Result builds the StateDiff, reading before-values from initial and
// after-values from final for every touched address, per spec.md §4.4's
// "on_reward_granted" algorithm.
func (t *Tracer) Result(initial, final StateReader) jsonshape.StateDiff {
	out := make(jsonshape.StateDiff)
	for addr := range t.touched {
		wasBefore := initial.Exist(addr)
		wasAfter := final.Exist(addr)
		if !wasBefore && !wasAfter {
			continue
		}

		entry := &jsonshape.StateDiffAccount{Storage: make(map[string]jsonshape.DiffValue)}

		switch {
		case wasBefore && wasAfter:
			entry.Balance = diffBalance(initial.GetBalance(addr), final.GetBalance(addr))
			entry.Nonce = diffNonce(initial.GetNonce(addr), final.GetNonce(addr))
			entry.Code = diffCode(initial.GetCode(addr), final.GetCode(addr))
			for slot := range t.touchedSlots[addr] {
				before := initial.GetState(addr, slot)
				after := final.GetState(addr, slot)
				if before == after {
					continue
				}
				entry.Storage[slotHex(slot)] = jsonshape.Changed(hashHex(before), hashHex(after))
			}
			if entry.Balance.IsUnchanged() && entry.Code.IsUnchanged() && entry.Nonce.IsUnchanged() && len(entry.Storage) == 0 {
				continue
			}
		case wasBefore && !wasAfter:
			entry.Balance = jsonshape.Removed(balanceHex(initial.GetBalance(addr)))
			entry.Nonce = jsonshape.Removed(nonceHex(initial.GetNonce(addr)))
			entry.Code = jsonshape.Removed(codeHex(initial.GetCode(addr)))
			for slot := range t.touchedSlots[addr] {
				entry.Storage[slotHex(slot)] = jsonshape.Removed(hashHex(initial.GetState(addr, slot)))
			}
		default: // !wasBefore && wasAfter
			entry.Balance = jsonshape.Added(balanceHex(final.GetBalance(addr)))
			entry.Nonce = jsonshape.Added(nonceHex(final.GetNonce(addr)))
			entry.Code = jsonshape.Added(codeHex(final.GetCode(addr)))
			for slot := range t.touchedSlots[addr] {
				entry.Storage[slotHex(slot)] = jsonshape.Added(hashHex(final.GetState(addr, slot)))
			}
		}

		out[addr] = entry
	}
	return out
}

func diffBalance(before, after *uint256.Int) jsonshape.DiffValue {
	if before.Eq(after) {
		return jsonshape.Unchanged()
	}
	return jsonshape.Changed(balanceHex(before), balanceHex(after))
}

func diffNonce(before, after uint64) jsonshape.DiffValue {
	if before == after {
		return jsonshape.Unchanged()
	}
	return jsonshape.Changed(nonceHex(before), nonceHex(after))
}

func diffCode(before, after []byte) jsonshape.DiffValue {
	if string(before) == string(after) {
		return jsonshape.Unchanged()
	}
	return jsonshape.Changed(codeHex(before), codeHex(after))
}

// balanceHex renders a balance as "0x" + lowercase hex without leading
// zeros, per spec.md §4.4 — zero is the bare "0x".
func balanceHex(v *uint256.Int) string {
	if v == nil || v.IsZero() {
		return "0x"
	}
	return hexutil.EncodeBig(v.ToBig())
}

func nonceHex(n uint64) string {
	return hexutil.EncodeUint64(n)
}

func codeHex(code []byte) string {
	if len(code) == 0 {
		return "0x"
	}
	return hexutil.Encode(code)
}

func slotHex(h common.Hash) string { return hexutil.Encode(h.Bytes()) }
func hashHex(h common.Hash) string { return hexutil.Encode(h.Bytes()) }
