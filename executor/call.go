package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallParams is the transport layer's decoded "call object" — the target
// of trace_call / debug_traceCall, or a stand-in for one slot of a block
// replay.
type CallParams struct {
	From     common.Address
	To       *common.Address
	Gas      *uint64
	GasPrice *big.Int
	Value    *big.Int
	Data     []byte
	Nonce    *uint64
}

// Tx is one already-decoded transaction from a block, indexed for replay.
type Tx struct {
	Index  int
	Tx     *types.Transaction
	Sender common.Address // resolved, ECDSA-recovered if absent upstream.
}
