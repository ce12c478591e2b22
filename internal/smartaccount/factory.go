package smartaccount

import (
	"context"
	"errors"
	"math/big"

	"github.com/stablecoinxyz/app-kit-go/chains"
	"github.com/stablecoinxyz/app-kit-go/internal/logger"
	"github.com/stablecoinxyz/app-kit-go/wallet"
)

// Factory picks the account implementation for a chain.
type Factory struct {
	NewKernel func(owner wallet.Signer, caller ContractCaller, chainID *big.Int) SmartAccount
	NewSimple func(owner wallet.Signer, caller ContractCaller) SmartAccount
}

// NewFactory returns a Factory building the production account types.
func NewFactory() *Factory {
	return &Factory{
		NewKernel: func(owner wallet.Signer, caller ContractCaller, chainID *big.Int) SmartAccount {
			return NewKernelAccount(owner, caller, chainID)
		},
		NewSimple: func(owner wallet.Signer, caller ContractCaller) SmartAccount {
			return NewSimpleAccount(owner, caller)
		},
	}
}

// Create builds the smart account for chain and resolves its address.
// radiusTestnet uses SimpleAccount; every other chain uses Kernel v3.1.
func (f *Factory) Create(ctx context.Context, chain chains.ChainConfig, owner wallet.Signer, caller ContractCaller) (SmartAccount, error) {
	if owner == nil {
		return nil, &SmartAccountInitError{Err: errors.New("owner signer is required")}
	}
	if caller == nil {
		return nil, &SmartAccountInitError{Err: errors.New("chain client is required")}
	}

	var account SmartAccount
	if chain.ID == chains.RadiusTestnetID {
		logger.Debug("Creating SimpleAccount for owner %s on %s", owner.Address().Hex(), chain.Name)
		account = f.NewSimple(owner, caller)
	} else {
		logger.Debug("Creating Kernel account for owner %s on %s", owner.Address().Hex(), chain.Name)
		account = f.NewKernel(owner, caller, chain.BigID())
	}

	if _, err := account.Address(ctx); err != nil {
		return nil, &SmartAccountInitError{Err: err}
	}
	return account, nil
}
