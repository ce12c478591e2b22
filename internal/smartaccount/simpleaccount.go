package smartaccount

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/samber/lo"

	"github.com/stablecoinxyz/app-kit-go/internal/helpers"
	"github.com/stablecoinxyz/app-kit-go/internal/logger"
	"github.com/stablecoinxyz/app-kit-go/internal/userop"
	"github.com/stablecoinxyz/app-kit-go/wallet"
)

// SimpleAccount is the eth-infinitism SimpleAccount deployed through a
// chain-specific factory and EntryPoint.
type SimpleAccount struct {
	owner      wallet.Signer
	caller     ContractCaller
	entryPoint common.Address
	factory    common.Address
	salt       *big.Int

	mu      sync.Mutex
	address common.Address
}

// NewSimpleAccount returns a SimpleAccount against the radius testnet deployment.
func NewSimpleAccount(owner wallet.Signer, caller ContractCaller) *SimpleAccount {
	return &SimpleAccount{
		owner:      owner,
		caller:     caller,
		entryPoint: simpleAccountEntryPointAddress,
		factory:    simpleAccountFactoryAddress,
		salt:       new(big.Int),
	}
}

func (s *SimpleAccount) Owner() common.Address      { return s.owner.Address() }
func (s *SimpleAccount) EntryPoint() common.Address { return s.entryPoint }

// FactoryArgs returns the factory and its createAccount calldata with salt zero.
func (s *SimpleAccount) FactoryArgs(context.Context) (common.Address, []byte, error) {
	data, err := simpleAccountFactoryABI.Pack("createAccount", s.owner.Address(), s.salt)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to pack createAccount function: %w", err)
	}
	return s.factory, data, nil
}

// Address resolves the counterfactual address once and caches it.
func (s *SimpleAccount) Address(ctx context.Context) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != (common.Address{}) {
		return s.address, nil
	}

	factory, factoryData, err := s.FactoryArgs(ctx)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := senderAddress(ctx, s.caller, s.entryPoint, append(factory.Bytes(), factoryData...))
	if err != nil {
		return common.Address{}, err
	}
	logger.Info("Predicted simple account address: %s", addr.Hex())
	s.address = addr
	return addr, nil
}

func (s *SimpleAccount) Nonce(ctx context.Context) (*big.Int, error) {
	addr, err := s.Address(ctx)
	if err != nil {
		return nil, err
	}
	return entryPointNonce(ctx, s.caller, s.entryPoint, addr, new(big.Int))
}

// EncodeCalls encodes one call as execute and several as executeBatch.
func (s *SimpleAccount) EncodeCalls(calls []Call) ([]byte, error) {
	switch len(calls) {
	case 0:
		return nil, ErrEmptyCalls
	case 1:
		c := calls[0]
		return simpleAccountABI.Pack("execute", c.To, helpers.OrZero(c.Value), nonNil(c.Data))
	default:
		return simpleAccountABI.Pack("executeBatch",
			lo.Map(calls, func(c Call, _ int) common.Address { return c.To }),
			lo.Map(calls, func(c Call, _ int) *big.Int { return helpers.OrZero(c.Value) }),
			lo.Map(calls, func(c Call, _ int) []byte { return nonNil(c.Data) }),
		)
	}
}

func (s *SimpleAccount) DecodeCalls(callData []byte) ([]Call, error) {
	method, err := simpleAccountABI.MethodById(callData)
	if err != nil {
		return nil, fmt.Errorf("calldata is not a simple account call: %w", err)
	}
	vs, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method.Name, err)
	}

	if method.Name == "execute" {
		return []Call{{To: vs[0].(common.Address), Value: vs[1].(*big.Int), Data: vs[2].([]byte)}}, nil
	}
	targets, values, datas := vs[0].([]common.Address), vs[1].([]*big.Int), vs[2].([][]byte)
	if len(targets) != len(datas) || (len(values) != 0 && len(values) != len(targets)) {
		return nil, fmt.Errorf("executeBatch argument lengths differ")
	}
	return lo.Map(targets, func(to common.Address, i int) Call {
		value := new(big.Int)
		if len(values) > 0 {
			value = values[i]
		}
		return Call{To: to, Value: value, Data: datas[i]}
	}), nil
}

func (s *SimpleAccount) StubSignature() []byte {
	return common.CopyBytes(dummyECDSASignature)
}

// SignUserOperation signs the EIP-191 digest of the user operation hash.
func (s *SimpleAccount) SignUserOperation(ctx context.Context, op *userop.UserOperation, chainID *big.Int) ([]byte, error) {
	hash, err := op.Hash(s.entryPoint, chainID)
	if err != nil {
		return nil, err
	}
	return s.owner.SignHash(ctx, hash.Bytes())
}

// SignMessage is not supported by SimpleAccount.
func (s *SimpleAccount) SignMessage(context.Context, []byte) ([]byte, error) {
	return nil, ErrUnsupportedSignature
}

func (s *SimpleAccount) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	return nil, ErrUnsupportedSignature
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
