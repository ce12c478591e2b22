package appkit

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/stablecoinxyz/app-kit-go/internal/aaclient"
	"github.com/stablecoinxyz/app-kit-go/internal/smartaccount"
)

var (
	ErrConflictingCredentials = errors.New("conflicting credentials: provide only one of wallet client, private key or wallet discovery")
	ErrMissingAccount         = errors.New("wallet client has no signing account attached")
	ErrNoWallet               = errors.New("no wallet connected")
	ErrNotDiscoveryMode       = errors.New("wallet connection is only available in discovery mode")
	ErrEmptyOperation         = &EmptyOperationError{}
	ErrUnsupportedSignature   = smartaccount.ErrUnsupportedSignature
)

type (
	EstimationError       = aaclient.EstimationError
	SendError             = aaclient.SendError
	SmartAccountInitError = smartaccount.SmartAccountInitError
)

// InvalidAPIKeyError is returned by New when the API key lacks the "sbc-" prefix.
type InvalidAPIKeyError struct{}

func (e *InvalidAPIKeyError) Error() string {
	return fmt.Sprintf("invalid API key: must start with %q", apiKeyPrefix)
}

// ChainMismatchError reports a wallet client bound to a different chain than the app kit.
type ChainMismatchError struct {
	WalletChainID *big.Int
	ChainID       int64
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("wallet client is on chain %s but the app kit is configured for chain %d", e.WalletChainID, e.ChainID)
}

// EmptyOperationError is returned when a user operation carries no calls.
type EmptyOperationError struct{}

func (e *EmptyOperationError) Error() string { return "user operation has no calls" }

// InvalidValueError is returned when a call value is not a valid non-negative ether amount.
type InvalidValueError struct {
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q: %v", e.Value, e.Err)
}

func (e *InvalidValueError) Unwrap() error { return e.Err }
