// Package executor implements the Replay Executor (spec.md §4.1): given a
// block and a call, transaction, or whole-block request, it rewinds state,
// replays preceding transactions, and runs the target under the
// configured Tracer Set.
package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockRef is the subset of a block header the executor needs to bind an
// EVM instance; decoding the full RPC block JSON is the transport layer's
// job (spec.md §1's "JSON encoding... a conversion layer the core
// consumes").
type BlockRef struct {
	Number      uint64
	Time        uint64
	Coinbase    common.Address
	Difficulty  *big.Int
	BaseFee     *big.Int
	GasLimit    uint64
	Hash        common.Hash
	ParentHash  common.Hash
	GenesisHash common.Hash
	Random      *common.Hash
}
