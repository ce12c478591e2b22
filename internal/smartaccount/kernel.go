package smartaccount

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/samber/lo"

	"github.com/stablecoinxyz/app-kit-go/internal/helpers"
	"github.com/stablecoinxyz/app-kit-go/internal/logger"
	"github.com/stablecoinxyz/app-kit-go/internal/userop"
	"github.com/stablecoinxyz/app-kit-go/wallet"
)

// ERC-7579 call types, first byte of the execution mode.
const (
	callTypeSingle byte = 0x00
	callTypeBatch  byte = 0x01
)

// InitData is the argument set of Kernel.initialize.
type InitData struct {
	RootValidator [21]byte
	Hook          common.Address
	ValidatorData []byte
	HookData      []byte
	InitConfig    [][]byte
}

type execution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

var executionArrayArgs = func() abi.Arguments {
	t, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// KernelAccount is a Kernel v3.1 account with the ECDSA validator as root.
type KernelAccount struct {
	owner   wallet.Signer
	caller  ContractCaller
	chainID *big.Int
	salt    [32]byte

	mu      sync.Mutex
	address common.Address
}

// NewKernelAccount returns a Kernel v3.1 account owned by owner with the ECDSA root validator.
func NewKernelAccount(owner wallet.Signer, caller ContractCaller, chainID *big.Int) *KernelAccount {
	return &KernelAccount{owner: owner, caller: caller, chainID: new(big.Int).Set(chainID)}
}

// Owner returns the address of the ECDSA validator key.
func (k *KernelAccount) Owner() common.Address      { return k.owner.Address() }
func (k *KernelAccount) EntryPoint() common.Address { return kernelEntryPointAddress }

func (k *KernelAccount) rootValidator() [21]byte {
	var id [21]byte
	id[0] = validationTypeValidator
	copy(id[1:], kernelECDSAValidatorAddress.Bytes())
	return id
}

func (k *KernelAccount) initData() *InitData {
	return &InitData{
		RootValidator: k.rootValidator(),
		Hook:          common.Address{},
		ValidatorData: k.owner.Address().Bytes(),
		HookData:      []byte{},
		InitConfig:    [][]byte{},
	}
}

// FactoryArgs returns the meta factory and its deployWithFactory calldata.
func (k *KernelAccount) FactoryArgs(context.Context) (common.Address, []byte, error) {
	data := k.initData()
	initCalldata, err := kernelAccountABI.Pack("initialize",
		data.RootValidator,
		data.Hook,
		data.ValidatorData,
		data.HookData,
		data.InitConfig,
	)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to pack initialize function: %w", err)
	}

	deployCalldata, err := kernelMetaFactoryABI.Pack("deployWithFactory", kernelFactoryAddress, initCalldata, k.salt)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to pack deployWithFactory function: %w", err)
	}
	return kernelMetaFactoryAddress, deployCalldata, nil
}

// Address resolves the counterfactual address once and caches it.
func (k *KernelAccount) Address(ctx context.Context) (common.Address, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.address != (common.Address{}) {
		return k.address, nil
	}

	factory, factoryData, err := k.FactoryArgs(ctx)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := senderAddress(ctx, k.caller, k.EntryPoint(), append(factory.Bytes(), factoryData...))
	if err != nil {
		return common.Address{}, err
	}
	logger.Info("Predicted smart account address: %s", addr.Hex())
	k.address = addr
	return addr, nil
}

// nonceKey is mode(1) ‖ type(1) ‖ validator(20) ‖ key(2), read as uint192.
func (k *KernelAccount) nonceKey() *big.Int {
	key := make([]byte, 24)
	copy(key[2:22], kernelECDSAValidatorAddress.Bytes())
	return new(big.Int).SetBytes(key)
}

// Nonce reads the EntryPoint nonce under the root validator key.
func (k *KernelAccount) Nonce(ctx context.Context) (*big.Int, error) {
	addr, err := k.Address(ctx)
	if err != nil {
		return nil, err
	}
	return entryPointNonce(ctx, k.caller, k.EntryPoint(), addr, k.nonceKey())
}

// EncodeCalls encodes calls as an ERC-7579 execute, single mode for one call and batch otherwise.
func (k *KernelAccount) EncodeCalls(calls []Call) ([]byte, error) {
	var mode [32]byte
	switch len(calls) {
	case 0:
		return nil, ErrEmptyCalls
	case 1:
		mode[0] = callTypeSingle
		c := calls[0]
		execData := make([]byte, 0, 52+len(c.Data))
		execData = append(execData, c.To.Bytes()...)
		execData = append(execData, common.LeftPadBytes(helpers.OrZero(c.Value).Bytes(), 32)...)
		execData = append(execData, c.Data...)
		return kernelAccountABI.Pack("execute", mode, execData)
	default:
		mode[0] = callTypeBatch
		execs := lo.Map(calls, func(c Call, _ int) execution {
			return execution{Target: c.To, Value: helpers.OrZero(c.Value), CallData: c.Data}
		})
		execData, err := executionArrayArgs.Pack(execs)
		if err != nil {
			return nil, fmt.Errorf("failed to pack batch executions: %w", err)
		}
		return kernelAccountABI.Pack("execute", mode, execData)
	}
}

// DecodeCalls reverses EncodeCalls.
func (k *KernelAccount) DecodeCalls(callData []byte) ([]Call, error) {
	method, err := kernelAccountABI.MethodById(callData)
	if err != nil || method.Name != "execute" {
		return nil, fmt.Errorf("calldata is not a kernel execute call")
	}
	vs, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack execute: %w", err)
	}
	mode := vs[0].([32]byte)
	execData := vs[1].([]byte)

	switch mode[0] {
	case callTypeSingle:
		if len(execData) < 52 {
			return nil, fmt.Errorf("single execution calldata too short")
		}
		return []Call{{
			To:    common.BytesToAddress(execData[:20]),
			Value: new(big.Int).SetBytes(execData[20:52]),
			Data:  common.CopyBytes(execData[52:]),
		}}, nil
	case callTypeBatch:
		unpacked, err := executionArrayArgs.Unpack(execData)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack batch executions: %w", err)
		}
		execs := *abi.ConvertType(unpacked[0], new([]execution)).(*[]execution)
		return lo.Map(execs, func(e execution, _ int) Call {
			return Call{To: e.Target, Value: e.Value, Data: e.CallData}
		}), nil
	default:
		return nil, fmt.Errorf("unsupported call type 0x%02x", mode[0])
	}
}

func (k *KernelAccount) StubSignature() []byte {
	return common.CopyBytes(dummyECDSASignature)
}

// SignUserOperation signs the EIP-191 digest of the user operation hash.
func (k *KernelAccount) SignUserOperation(ctx context.Context, op *userop.UserOperation, chainID *big.Int) ([]byte, error) {
	hash, err := op.Hash(k.EntryPoint(), chainID)
	if err != nil {
		return nil, err
	}
	return k.owner.SignHash(ctx, hash.Bytes())
}

// SignMessage produces an ERC-1271 signature over the EIP-191 hash of message.
func (k *KernelAccount) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return k.signReplaySafe(ctx, accounts.TextHash(message))
}

// SignTypedData produces an ERC-1271 signature over the EIP-712 hash of typedData.
func (k *KernelAccount) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return k.signReplaySafe(ctx, hash)
}

// signReplaySafe wraps hash in Kernel(bytes32 hash) under the account's domain,
// signs it and prefixes the validator identifier.
func (k *KernelAccount) signReplaySafe(ctx context.Context, hash []byte) ([]byte, error) {
	addr, err := k.Address(ctx)
	if err != nil {
		return nil, err
	}
	wrapped, _, err := apitypes.TypedDataAndHash(apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Kernel": {{Name: "hash", Type: "bytes32"}},
		},
		PrimaryType: "Kernel",
		Domain: apitypes.TypedDataDomain{
			Name:              kernelDomainName,
			Version:           kernelDomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(k.chainID)),
			VerifyingContract: addr.Hex(),
		},
		Message: apitypes.TypedDataMessage{"hash": hexutil.Encode(hash)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap hash: %w", err)
	}

	sig, err := k.owner.SignHash(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	id := k.rootValidator()
	return append(id[:], sig...), nil
}
