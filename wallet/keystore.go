package wallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"

	"github.com/stablecoinxyz/app-kit-go/internal/logger"
)

// KeystoreSigner signs with an encrypted JSON key from a go-ethereum keystore directory.
type KeystoreSigner struct {
	ks         *keystore.KeyStore
	account    accounts.Account
	passphrase string
}

// NewKeystoreSigner opens dir and selects address, or the first account when address is zero.
func NewKeystoreSigner(dir string, address common.Address, passphrase string) (*KeystoreSigner, error) {
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	return newKeystoreSigner(ks, address, passphrase)
}

func newKeystoreSigner(ks *keystore.KeyStore, address common.Address, passphrase string) (*KeystoreSigner, error) {
	accs := ks.Accounts()
	if len(accs) == 0 {
		return nil, fmt.Errorf("keystore has no accounts")
	}

	account := accs[0]
	if address != (common.Address{}) {
		found, err := ks.Find(accounts.Account{Address: address})
		if err != nil {
			return nil, fmt.Errorf("account %s not in keystore: %w", address.Hex(), err)
		}
		account = found
	}
	logger.Debug("Keystore account selected: %s", account.Address.Hex())
	return &KeystoreSigner{ks: ks, account: account, passphrase: passphrase}, nil
}

func (s *KeystoreSigner) Address() common.Address {
	return s.account.Address
}

func (s *KeystoreSigner) SignHash(_ context.Context, hash []byte) ([]byte, error) {
	sig, err := s.ks.SignHashWithPassphrase(s.account, s.passphrase, accounts.TextHash(hash))
	if err != nil {
		return nil, fmt.Errorf("keystore sign failed: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// ExternalSigner delegates signing to a clef-compatible signer over JSON-RPC.
type ExternalSigner struct {
	api     *external.ExternalSigner
	account accounts.Account
}

// NewExternalSigner connects to endpoint and selects address, or the first listed account.
func NewExternalSigner(endpoint string, address common.Address) (*ExternalSigner, error) {
	api, err := external.NewExternalSigner(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to external signer: %w", err)
	}

	accs := api.Accounts()
	if len(accs) == 0 {
		return nil, fmt.Errorf("external signer exposes no accounts")
	}
	account := accs[0]
	if address != (common.Address{}) {
		account = accounts.Account{Address: address}
		if !api.Contains(account) {
			return nil, fmt.Errorf("account %s not managed by external signer", address.Hex())
		}
	}
	return &ExternalSigner{api: api, account: account}, nil
}

func (s *ExternalSigner) Address() common.Address {
	return s.account.Address
}

// SignHash asks the external signer for a personal signature (text/plain) over hash.
func (s *ExternalSigner) SignHash(_ context.Context, hash []byte) ([]byte, error) {
	sig, err := s.api.SignText(s.account, hash)
	if err != nil {
		return nil, fmt.Errorf("external signer refused: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("external signer returned %d-byte signature", len(sig))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
