package cryptoutils

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestIdentityFromMnemonic_KnownVector(t *testing.T) {
	id, err := IdentityFromMnemonic("test test test test test test test test test test test junk")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), id.Address)
	require.Equal(t, "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", id.PrivateKeyHex())
}

func TestNewIdentity(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	require.Len(t, strings.Fields(id.Mnemonic), 12)
	require.Equal(t, crypto.PubkeyToAddress(id.PrivateKey.PublicKey), id.Address)

	recovered, err := IdentityFromMnemonic(id.Mnemonic)
	require.NoError(t, err)
	require.Equal(t, id.Address, recovered.Address)

	other, err := NewIdentity()
	require.NoError(t, err)
	require.NotEqual(t, id.Address, other.Address)
	require.NotEqual(t, id.Mnemonic, other.Mnemonic)
}

func TestIdentityFromMnemonic_Invalid(t *testing.T) {
	_, err := IdentityFromMnemonic("not a valid phrase")
	require.Error(t, err)
}
