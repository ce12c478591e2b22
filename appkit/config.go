package appkit

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stablecoinxyz/app-kit-go/chains"
	"github.com/stablecoinxyz/app-kit-go/wallet"
)

const apiKeyPrefix = "sbc-"

// Config configures an AppKit. At most one of WalletClient, PrivateKey and
// Discovery may be set; with none of them a random owner key is generated,
// which is only suitable for testing.
type Config struct {
	APIKey  string `validate:"required"`
	ChainID int64  `validate:"required"`

	// RPCURL overrides the chain's default RPC endpoint.
	RPCURL string `validate:"omitempty,url"`
	// PaymasterURL overrides the bundler/paymaster base URL.
	PaymasterURL string `validate:"omitempty,url"`
	Staging      bool
	Debug        bool

	PrivateKey   string `validate:"omitempty,hexadecimal"`
	WalletClient wallet.Client
	// Discovery defers the owner wallet to ConnectWallet.
	Discovery bool
	Prober    wallet.Prober

	MetricsRegisterer prometheus.Registerer
	// ReceiptTimeout bounds the wait for a sent user operation. Zero means two minutes.
	ReceiptTimeout      time.Duration `validate:"gte=0"`
	ReceiptPollInterval time.Duration `validate:"gte=0"`
}

var validate = validator.New()

// Validate checks cfg without touching the network and returns the chain it selects.
func (cfg *Config) Validate() (chains.ChainConfig, error) {
	if !strings.HasPrefix(cfg.APIKey, apiKeyPrefix) {
		return chains.ChainConfig{}, &InvalidAPIKeyError{}
	}
	chain, err := chains.Lookup(cfg.ChainID)
	if err != nil {
		return chains.ChainConfig{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return chains.ChainConfig{}, fmt.Errorf("invalid config: %w", err)
	}

	credentials := 0
	if cfg.WalletClient != nil {
		credentials++
	}
	if cfg.PrivateKey != "" {
		credentials++
	}
	if cfg.Discovery {
		credentials++
	}
	if credentials > 1 {
		return chains.ChainConfig{}, ErrConflictingCredentials
	}

	if cfg.WalletClient != nil {
		if id := cfg.WalletClient.ChainID(); id == nil || id.Cmp(chain.BigID()) != 0 {
			return chains.ChainConfig{}, &ChainMismatchError{WalletChainID: id, ChainID: chain.ID}
		}
		if cfg.WalletClient.Signer() == nil {
			return chains.ChainConfig{}, ErrMissingAccount
		}
	}
	return chain, nil
}
