package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestAccountEncodeDecodeRoundTrip(t *testing.T) {
	acc := &Account{
		Nonce:       7,
		Balance:     uint256.NewInt(123456789),
		CodeHash:    common.HexToHash("0xdeadbeef"),
		Incarnation: 2,
	}
	enc := EncodeAccount(acc)
	got, err := DecodeAccount(enc)
	require.NoError(t, err)
	require.Equal(t, acc.Nonce, got.Nonce)
	require.True(t, acc.Balance.Eq(got.Balance))
	require.Equal(t, acc.CodeHash, got.CodeHash)
	require.Equal(t, acc.Incarnation, got.Incarnation)
}

func TestAccountEncodeEmptyAccountIsMinimal(t *testing.T) {
	acc := &Account{Balance: new(uint256.Int)}
	enc := EncodeAccount(acc)
	require.Equal(t, []byte{0}, enc)

	got, err := DecodeAccount(enc)
	require.NoError(t, err)
	require.Equal(t, uint64(0), got.Nonce)
	require.True(t, got.Balance.IsZero())
}

func TestAccountDecodeEmptyBytes(t *testing.T) {
	got, err := DecodeAccount(nil)
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())
}

func TestAccountDecodeTruncatedFieldErrors(t *testing.T) {
	// fieldset says nonce present but no length/value bytes follow.
	_, err := DecodeAccount([]byte{fieldNonce})
	require.Error(t, err)
}
