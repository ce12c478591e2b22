package smartaccount

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/stablecoinxyz/app-kit-go/internal/logger"
	"github.com/stablecoinxyz/app-kit-go/internal/userop"
	"github.com/stablecoinxyz/app-kit-go/revert"
)

var (
	// ErrUnsupportedSignature is returned by accounts without ERC-1271 message signing.
	ErrUnsupportedSignature = errors.New("smart account does not support message signing")
	ErrEmptyCalls           = errors.New("no calls to encode")
)

// Call is a single contract interaction executed by the smart account.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// ContractCaller is the read-only chain access a smart account needs.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SmartAccount is an ERC-4337 account controlled by a single owner key.
type SmartAccount interface {
	// Address returns the counterfactual account address, resolved once.
	Address(ctx context.Context) (common.Address, error)
	Owner() common.Address
	EntryPoint() common.Address
	Nonce(ctx context.Context) (*big.Int, error)
	// FactoryArgs returns the factory and its calldata used to deploy the account.
	FactoryArgs(ctx context.Context) (common.Address, []byte, error)
	EncodeCalls(calls []Call) ([]byte, error)
	DecodeCalls(callData []byte) ([]Call, error)
	StubSignature() []byte
	SignUserOperation(ctx context.Context, op *userop.UserOperation, chainID *big.Int) ([]byte, error)
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
}

// SmartAccountInitError wraps failures while constructing a smart account.
type SmartAccountInitError struct {
	Err error
}

func (e *SmartAccountInitError) Error() string {
	return fmt.Sprintf("failed to initialize smart account: %v", e.Err)
}

func (e *SmartAccountInitError) Unwrap() error { return e.Err }

// senderAddress asks the EntryPoint for the counterfactual address of initCode.
// getSenderAddress always reverts with SenderAddressResult(address).
func senderAddress(ctx context.Context, caller ContractCaller, entryPoint common.Address, initCode []byte) (common.Address, error) {
	data, err := entryPointABI.Pack("getSenderAddress", initCode)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack getSenderAddress: %w", err)
	}

	out, callErr := caller.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if callErr == nil {
		if addr, ok := parseSenderAddressResult(out); ok {
			return addr, nil
		}
		return common.Address{}, fmt.Errorf("getSenderAddress did not revert with SenderAddressResult")
	}

	revertData, found := revert.ExtractRevertData(callErr)
	if !found {
		return common.Address{}, fmt.Errorf("getSenderAddress call failed: %w", callErr)
	}
	addr, ok := parseSenderAddressResult(revertData)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getSenderAddress revert: %w", callErr)
	}
	return addr, nil
}

func parseSenderAddressResult(data []byte) (common.Address, bool) {
	result := entryPointABI.Errors["SenderAddressResult"]
	if len(data) < 4 || !bytes.Equal(data[:4], result.ID[:4]) {
		return common.Address{}, false
	}
	vs, err := result.Inputs.Unpack(data[4:])
	if err != nil || len(vs) != 1 {
		return common.Address{}, false
	}
	addr, ok := vs[0].(common.Address)
	return addr, ok
}

// entryPointNonce reads getNonce(sender, key) from the EntryPoint.
func entryPointNonce(ctx context.Context, caller ContractCaller, entryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	data, err := entryPointABI.Pack("getNonce", sender, key)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getNonce: %w", err)
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getNonce call failed: %w", err)
	}
	vs, err := entryPointABI.Unpack("getNonce", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getNonce: %w", err)
	}
	nonce, ok := vs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result %T", vs[0])
	}
	logger.Debug("Nonce loaded for smart account %s: %s", sender.Hex(), nonce)
	return nonce, nil
}
