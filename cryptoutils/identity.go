package cryptoutils

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits yields a 12-word recovery phrase.
const MnemonicEntropyBits = 128

// NewIdentity generates a fresh account from a random BIP-39 mnemonic,
// derived at the first standard Ethereum path (m/44'/60'/0'/0/0) so that the
// phrase can be imported into any common wallet.
func NewIdentity() (*interfaces.Identity, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read entropy: %v", interfaces.ErrIdentity, err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("%w: could not encode mnemonic: %v", interfaces.ErrIdentity, err)
	}

	return IdentityFromMnemonic(mnemonic)
}

// IdentityFromMnemonic recovers the account a mnemonic from the ledger
// controls.
func IdentityFromMnemonic(mnemonic string) (*interfaces.Identity, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid mnemonic: %v", interfaces.ErrIdentity, err)
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("%w: could not create master key: %v", interfaces.ErrIdentity, err)
	}

	for _, index := range accounts.DefaultBaseDerivationPath {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("%w: could not derive %s: %v", interfaces.ErrIdentity, accounts.DefaultBaseDerivationPath, err)
		}
	}

	ecKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrIdentity, err)
	}

	privateKey, err := crypto.ToECDSA(ecKey.Serialize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrIdentity, err)
	}

	return &interfaces.Identity{
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
		Mnemonic:   mnemonic,
	}, nil
}
