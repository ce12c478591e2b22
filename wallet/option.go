package wallet

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// OptionType names a wallet option.
type OptionType string

const (
	TypePrivateKey OptionType = "privateKey"
	TypeKeystore   OptionType = "keystore"
	TypeExternal   OptionType = "external"
)

// Option selects how an owner signer is obtained. The set of options is closed.
type Option interface {
	Type() OptionType
	isOption()
}

// PrivateKeyOption opens an in-memory key.
type PrivateKeyOption struct {
	// Key is hex encoded. Empty generates a fresh key.
	Key string
}

// KeystoreOption opens an account of a geth keystore directory.
// A zero Address picks the first account.
type KeystoreOption struct {
	Dir        string
	Address    common.Address
	Passphrase string
}

// ExternalSignerOption connects to a clef compatible signer.
// A zero Address picks the first account it exposes.
type ExternalSignerOption struct {
	Endpoint string
	Address  common.Address
}

func (PrivateKeyOption) Type() OptionType     { return TypePrivateKey }
func (KeystoreOption) Type() OptionType       { return TypeKeystore }
func (ExternalSignerOption) Type() OptionType { return TypeExternal }

func (PrivateKeyOption) isOption()     {}
func (KeystoreOption) isOption()       {}
func (ExternalSignerOption) isOption() {}

// Open resolves opt into a Signer.
func Open(ctx context.Context, opt Option) (Signer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch o := opt.(type) {
	case PrivateKeyOption:
		if o.Key == "" {
			return GeneratePrivateKeySigner()
		}
		return NewPrivateKeySigner(o.Key)
	case KeystoreOption:
		return NewKeystoreSigner(o.Dir, o.Address, o.Passphrase)
	case ExternalSignerOption:
		return NewExternalSigner(o.Endpoint, o.Address)
	case nil:
		return nil, fmt.Errorf("no wallet option given")
	default:
		return nil, fmt.Errorf("unsupported wallet option %T", opt)
	}
}

// Availability reports whether a wallet option can currently be opened.
type Availability struct {
	Type      OptionType `json:"type"`
	Available bool       `json:"available"`
}

// Prober reports which wallet options are usable in the current environment.
type Prober interface {
	Probe(ctx context.Context) []Availability
}

// DefaultProber checks a keystore directory and an external signer endpoint.
type DefaultProber struct {
	KeystoreDir      string
	ExternalEndpoint string
}

func (p DefaultProber) Probe(ctx context.Context) []Availability {
	return []Availability{
		{Type: TypePrivateKey, Available: true},
		{Type: TypeKeystore, Available: p.keystoreAvailable()},
		{Type: TypeExternal, Available: p.externalAvailable(ctx)},
	}
}

func (p DefaultProber) keystoreAvailable() bool {
	if p.KeystoreDir == "" {
		return false
	}
	if info, err := os.Stat(p.KeystoreDir); err != nil || !info.IsDir() {
		return false
	}
	ks := keystore.NewKeyStore(p.KeystoreDir, keystore.LightScryptN, keystore.LightScryptP)
	return len(ks.Accounts()) > 0
}

// externalAvailable relies on the account_version handshake done when the signer is created.
func (p DefaultProber) externalAvailable(ctx context.Context) bool {
	if p.ExternalEndpoint == "" || ctx.Err() != nil {
		return false
	}
	_, err := external.NewExternalSigner(p.ExternalEndpoint)
	return err == nil
}
