// Package appkit is the entry point of the SBC App Kit: it owns the owner
// wallet, builds the smart account on first use and submits sponsored user
// operations through the SBC bundler.
package appkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/stablecoinxyz/app-kit-go/chains"
	"github.com/stablecoinxyz/app-kit-go/internal/aaclient"
	"github.com/stablecoinxyz/app-kit-go/internal/bundler"
	"github.com/stablecoinxyz/app-kit-go/internal/logger"
	"github.com/stablecoinxyz/app-kit-go/internal/metrics"
	"github.com/stablecoinxyz/app-kit-go/internal/smartaccount"
	"github.com/stablecoinxyz/app-kit-go/revert"
	"github.com/stablecoinxyz/app-kit-go/wallet"
)

// AppKit submits gasless user operations for one owner on one chain.
// It is safe for concurrent use.
type AppKit struct {
	cfg       Config
	chain     chains.ChainConfig
	factory   *smartaccount.Factory
	collector metrics.Collector
	prober    wallet.Prober

	mu      sync.Mutex
	owner   wallet.Signer
	reader  *ethclient.Client
	bundler *bundler.Client
	account smartaccount.SmartAccount
	client  *aaclient.Client
}

// New validates cfg and returns an AppKit. No network access happens until
// the first account or user operation call.
func New(cfg Config) (*AppKit, error) {
	chain, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		logger.SetLogLevel(logger.DEBUG)
	}

	k := &AppKit{
		cfg:       cfg,
		chain:     chain,
		factory:   smartaccount.NewFactory(),
		collector: metrics.NewNoopCollector(),
		prober:    cfg.Prober,
	}
	if cfg.MetricsRegisterer != nil {
		k.collector = metrics.NewCollector(*logger.With(), cfg.MetricsRegisterer)
	}
	if k.prober == nil {
		k.prober = wallet.DefaultProber{}
	}

	switch {
	case cfg.WalletClient != nil:
		k.owner = cfg.WalletClient.Signer()
	case cfg.PrivateKey != "":
		k.owner, err = wallet.NewPrivateKeySigner(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
	case cfg.Discovery:
		logger.Debug("Wallet discovery mode, waiting for ConnectWallet")
	default:
		k.owner, err = wallet.GeneratePrivateKeySigner()
		if err != nil {
			return nil, err
		}
		logger.Warn("No wallet configured, generated a random owner key %s. Do not use this in production", k.owner.Address().Hex())
	}

	logger.Debug("App kit configured for %s (%d)", chain.Name, chain.ID)
	return k, nil
}

// ChainConfig returns the resolved chain the app kit is bound to.
func (k *AppKit) ChainConfig() chains.ChainConfig { return k.chain }

// OwnerAddress returns the address of the key controlling the smart account.
func (k *AppKit) OwnerAddress() (common.Address, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.owner == nil {
		return common.Address{}, ErrNoWallet
	}
	return k.owner.Address(), nil
}

// ConnectWallet opens opt as the owner wallet. Only valid in discovery mode,
// and only before a smart account has been built.
func (k *AppKit) ConnectWallet(ctx context.Context, opt wallet.Option) error {
	if !k.cfg.Discovery {
		return ErrNotDiscoveryMode
	}
	signer, err := wallet.Open(ctx, opt)
	if err != nil {
		return fmt.Errorf("failed to connect %s wallet: %w", typeOf(opt), err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.account != nil {
		return fmt.Errorf("smart account already built for owner %s", k.owner.Address().Hex())
	}
	k.owner = signer
	logger.Info("Connected %s wallet %s", opt.Type(), signer.Address().Hex())
	return nil
}

func typeOf(opt wallet.Option) wallet.OptionType {
	if opt == nil {
		return "unknown"
	}
	return opt.Type()
}

// DetectWallets reports which wallet options are usable here.
func (k *AppKit) DetectWallets(ctx context.Context) []wallet.Availability {
	return k.prober.Probe(ctx)
}

// SmartAccountAddress returns the counterfactual smart account address.
func (k *AppKit) SmartAccountAddress(ctx context.Context) (common.Address, error) {
	account, _, err := k.smartAccount(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return account.Address(ctx)
}

// GetAccount reads the smart account's deployment state, nonce and balance.
// The nonce of an undeployed account is reported as zero without a chain call.
func (k *AppKit) GetAccount(ctx context.Context) (*AccountInfo, error) {
	account, reader, err := k.smartAccount(ctx)
	if err != nil {
		return nil, err
	}
	address, err := account.Address(ctx)
	if err != nil {
		return nil, err
	}

	code, err := reader.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read account code: %w", err)
	}
	info := &AccountInfo{Address: address, IsDeployed: len(code) > 0, Nonce: "0"}
	if info.IsDeployed {
		nonce, err := account.Nonce(ctx)
		if err != nil {
			return nil, err
		}
		info.Nonce = nonce.String()
	}

	balance, err := reader.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read account balance: %w", err)
	}
	info.Balance = balance.String()
	return info, nil
}

// SignMessage returns an ERC-1271 signature of message by the smart account,
// verifiable through its isValidSignature. Accounts without ERC-1271 support
// return ErrUnsupportedSignature.
func (k *AppKit) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	account, _, err := k.smartAccount(ctx)
	if err != nil {
		return nil, err
	}
	return account.SignMessage(ctx, message)
}

// SignTypedData is SignMessage for EIP-712 typed data.
func (k *AppKit) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	account, _, err := k.smartAccount(ctx)
	if err != nil {
		return nil, err
	}
	return account.SignTypedData(ctx, typedData)
}

// EstimateUserOperation prepares a sponsored user operation for params and
// reports its gas figures. Failures are *EstimationError.
func (k *AppKit) EstimateUserOperation(ctx context.Context, params UserOperationParams) (*GasEstimate, error) {
	calls, err := NormalizeCalls(params)
	if err != nil {
		return nil, err
	}
	client, err := k.aaClient(ctx)
	if err != nil {
		return nil, &EstimationError{Err: err, Message: revert.EnrichUserOperationError(err)}
	}
	estimate, err := client.Estimate(ctx, calls)
	if err != nil {
		return nil, err
	}
	return newGasEstimate(estimate), nil
}

// SendUserOperation signs and submits a sponsored user operation for params
// and waits for its receipt. Failures are *SendError.
func (k *AppKit) SendUserOperation(ctx context.Context, params UserOperationParams) (*UserOperationResult, error) {
	calls, err := NormalizeCalls(params)
	if err != nil {
		return nil, err
	}
	client, err := k.aaClient(ctx)
	if err != nil {
		return nil, &SendError{Err: err, Message: revert.EnrichUserOperationError(err)}
	}
	result, err := client.Send(ctx, calls)
	if err != nil {
		return nil, err
	}
	return newUserOperationResult(result), nil
}

// Close releases the RPC connections.
func (k *AppKit) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.reader != nil {
		k.reader.Close()
		k.reader = nil
	}
	if k.bundler != nil {
		k.bundler.Close()
		k.bundler = nil
	}
	k.account = nil
	k.client = nil
}

// smartAccount returns the memoized account with the chain client it was
// built on, so callers keep a usable client across a concurrent Close.
func (k *AppKit) smartAccount(ctx context.Context) (smartaccount.SmartAccount, *ethclient.Client, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	account, err := k.smartAccountLocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	return account, k.reader, nil
}

func (k *AppKit) smartAccountLocked(ctx context.Context) (smartaccount.SmartAccount, error) {
	if k.account != nil {
		return k.account, nil
	}
	if k.owner == nil {
		return nil, ErrNoWallet
	}
	if k.reader == nil {
		rpcURL := k.chain.RPCURL
		if k.cfg.RPCURL != "" {
			rpcURL = k.cfg.RPCURL
		}
		reader, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			return nil, &smartaccount.SmartAccountInitError{Err: fmt.Errorf("failed to connect to %s rpc: %w", k.chain.Name, err)}
		}
		k.reader = reader
	}

	account, err := k.factory.Create(ctx, k.chain, k.owner, k.reader)
	if err != nil {
		return nil, err
	}
	k.account = account
	return account, nil
}

func (k *AppKit) aaClient(ctx context.Context) (*aaclient.Client, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.client != nil {
		return k.client, nil
	}

	account, err := k.smartAccountLocked(ctx)
	if err != nil {
		return nil, err
	}
	if k.bundler == nil {
		base := k.chain.BundlerURL
		if k.cfg.PaymasterURL != "" {
			base = k.cfg.PaymasterURL
		}
		b, err := bundler.Dial(bundler.URL(base, k.chain.StringID, k.cfg.APIKey, k.cfg.Staging))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to bundler: %w", err)
		}
		k.bundler = b
	}

	client, err := aaclient.New(aaclient.Config{
		Chain:               k.chain,
		Account:             account,
		Reader:              k.reader,
		Bundler:             k.bundler,
		Metrics:             k.collector,
		ReceiptTimeout:      k.cfg.ReceiptTimeout,
		ReceiptPollInterval: k.cfg.ReceiptPollInterval,
	})
	if err != nil {
		return nil, err
	}
	k.client = client
	return client, nil
}
