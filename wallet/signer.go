// Package wallet provides the owner signers that control smart accounts.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is an externally owned account able to produce EIP-191 signatures.
type Signer interface {
	Address() common.Address
	// SignHash signs the personal-message digest of hash. The returned
	// signature is 65 bytes with v in {27, 28}.
	SignHash(ctx context.Context, hash []byte) ([]byte, error)
}

// Client is a connected wallet: a signer bound to a chain.
type Client interface {
	ChainID() *big.Int
	Signer() Signer
}

// PrivateKeySigner signs with an in-memory secp256k1 key.
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewPrivateKeySigner parses a hex private key, with or without 0x prefix.
func NewPrivateKeySigner(privateKeyHex string) (*PrivateKeySigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return FromECDSA(privateKey), nil
}

// GeneratePrivateKeySigner creates a signer over a fresh random key.
func GeneratePrivateKeySigner() (*PrivateKeySigner, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return FromECDSA(privateKey), nil
}

// FromECDSA wraps an existing key.
func FromECDSA(privateKey *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Address returns the address derived from the private key
func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigner) SignHash(_ context.Context, hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

type staticClient struct {
	chainID *big.Int
	signer  Signer
}

// NewClient binds signer to chainID. A nil signer yields a client without an account.
func NewClient(chainID *big.Int, signer Signer) Client {
	return &staticClient{chainID: new(big.Int).Set(chainID), signer: signer}
}

func (c *staticClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }
func (c *staticClient) Signer() Signer    { return c.signer }

// RecoverAddress returns the signer of an EIP-191 signature over hash.
func RecoverAddress(hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	normalized := common.CopyBytes(sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(hash), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
