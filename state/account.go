// Package state implements the Historical State Reader (spec.md §4.6):
// read-only account, storage, and code lookups pinned at a historical
// block number, layered over the Remote KV Client's AccountHistory,
// StorageHistory, PlainAccountChangeSet, PlainState, and Code tables.
package state

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account is the (nonce, balance, code_hash, incarnation) tuple the
// glossary defines, compactly encoded the way PlainState and
// PlainAccountChangeSet store it: a leading fieldset bitmap followed by
// only the fields that are non-zero.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	CodeHash    common.Hash
	Incarnation uint64
}

const (
	fieldNonce = 1 << iota
	fieldBalance
	fieldCodeHash
	fieldIncarnation
)

// EncodeAccount serializes acc the way PlainState/PlainAccountChangeSet
// values are laid out: one fieldset byte, then each present field as a
// minimal big-endian encoding (no leading zero bytes).
func EncodeAccount(acc *Account) []byte {
	var fieldset byte
	var nonceB, balanceB, incarnationB []byte

	if acc.Nonce != 0 {
		fieldset |= fieldNonce
		nonceB = trimBE(encodeUint64(acc.Nonce))
	}
	if acc.Balance != nil && !acc.Balance.IsZero() {
		fieldset |= fieldBalance
		balanceB = trimBE(acc.Balance.Bytes())
	}
	if acc.CodeHash != (common.Hash{}) {
		fieldset |= fieldCodeHash
	}
	if acc.Incarnation != 0 {
		fieldset |= fieldIncarnation
		incarnationB = trimBE(encodeUint64(acc.Incarnation))
	}

	out := []byte{fieldset}
	if fieldset&fieldNonce != 0 {
		out = append(out, byte(len(nonceB)))
		out = append(out, nonceB...)
	}
	if fieldset&fieldBalance != 0 {
		out = append(out, byte(len(balanceB)))
		out = append(out, balanceB...)
	}
	if fieldset&fieldCodeHash != 0 {
		out = append(out, acc.CodeHash.Bytes()...)
	}
	if fieldset&fieldIncarnation != 0 {
		out = append(out, byte(len(incarnationB)))
		out = append(out, incarnationB...)
	}
	return out
}

// DecodeAccount is the inverse of EncodeAccount.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) == 0 {
		return &Account{Balance: new(uint256.Int)}, nil
	}
	fieldset := data[0]
	pos := 1
	acc := &Account{Balance: new(uint256.Int)}

	readLP := func() ([]byte, error) {
		if pos >= len(data) {
			return nil, fmt.Errorf("state: truncated account encoding")
		}
		n := int(data[pos])
		pos++
		if pos+n > len(data) {
			return nil, fmt.Errorf("state: truncated account field")
		}
		v := data[pos : pos+n]
		pos += n
		return v, nil
	}

	if fieldset&fieldNonce != 0 {
		b, err := readLP()
		if err != nil {
			return nil, err
		}
		acc.Nonce = decodeUint64(b)
	}
	if fieldset&fieldBalance != 0 {
		b, err := readLP()
		if err != nil {
			return nil, err
		}
		acc.Balance.SetBytes(b)
	}
	if fieldset&fieldCodeHash != 0 {
		if pos+32 > len(data) {
			return nil, fmt.Errorf("state: truncated code hash")
		}
		acc.CodeHash = common.BytesToHash(data[pos : pos+32])
		pos += 32
	}
	if fieldset&fieldIncarnation != 0 {
		b, err := readLP()
		if err != nil {
			return nil, err
		}
		acc.Incarnation = decodeUint64(b)
	}
	return acc, nil
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(b []byte) uint64 {
	var full [8]byte
	copy(full[8-len(b):], b)
	return binary.BigEndian.Uint64(full[:])
}

func trimBE(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}
