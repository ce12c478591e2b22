// Package userop models the ERC-4337 v0.7 user operation: the unpacked form
// exchanged with bundlers, its packed on-chain encoding and its hash.
package userop

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stablecoinxyz/app-kit-go/internal/helpers"
)

// EntryPointV07 is the canonical v0.7 EntryPoint deployment.
var EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// UserOperation is the unpacked v0.7 user operation.
// Factory and Paymaster are nil when absent.
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// Copy returns a deep copy so callers can mutate gas fields without aliasing.
func (op *UserOperation) Copy() *UserOperation {
	c := *op
	c.Nonce = copyBig(op.Nonce)
	c.CallGasLimit = copyBig(op.CallGasLimit)
	c.VerificationGasLimit = copyBig(op.VerificationGasLimit)
	c.PreVerificationGas = copyBig(op.PreVerificationGas)
	c.MaxFeePerGas = copyBig(op.MaxFeePerGas)
	c.MaxPriorityFeePerGas = copyBig(op.MaxPriorityFeePerGas)
	c.PaymasterVerificationGasLimit = copyBig(op.PaymasterVerificationGasLimit)
	c.PaymasterPostOpGasLimit = copyBig(op.PaymasterPostOpGasLimit)
	c.FactoryData = common.CopyBytes(op.FactoryData)
	c.CallData = common.CopyBytes(op.CallData)
	c.PaymasterData = common.CopyBytes(op.PaymasterData)
	c.Signature = common.CopyBytes(op.Signature)
	if op.Factory != nil {
		f := *op.Factory
		c.Factory = &f
	}
	if op.Paymaster != nil {
		p := *op.Paymaster
		c.Paymaster = &p
	}
	return &c
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// InitCode returns factory ‖ factoryData, or empty when no factory is set.
func (op *UserOperation) InitCode() []byte {
	if op.Factory == nil {
		return []byte{}
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

// PaymasterAndData returns paymaster ‖ pmVerificationGas(16) ‖ pmPostOpGas(16) ‖ paymasterData,
// or empty when no paymaster is set.
func (op *UserOperation) PaymasterAndData() []byte {
	if op.Paymaster == nil {
		return []byte{}
	}
	out := make([]byte, 0, 20+32+len(op.PaymasterData))
	out = append(out, op.Paymaster.Bytes()...)
	out = append(out, helpers.Uint128Bytes(op.PaymasterVerificationGasLimit)...)
	out = append(out, helpers.Uint128Bytes(op.PaymasterPostOpGasLimit)...)
	return append(out, op.PaymasterData...)
}

// Hash computes the v0.7 userOpHash bound to entryPoint and chainID.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	inner, err := helpers.EncodeLikeEthers(
		[]string{"address", "uint256", "bytes32", "bytes32", "bytes32", "uint256", "bytes32", "bytes32"},
		[]interface{}{
			op.Sender,
			helpers.OrZero(op.Nonce),
			crypto.Keccak256Hash(op.InitCode()),
			crypto.Keccak256Hash(op.CallData),
			helpers.PackAccountGasLimits(op.VerificationGasLimit, op.CallGasLimit),
			helpers.OrZero(op.PreVerificationGas),
			helpers.PackGasFees(op.MaxFeePerGas, op.MaxPriorityFeePerGas),
			crypto.Keccak256Hash(op.PaymasterAndData()),
		},
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation: %w", err)
	}

	outer, err := helpers.EncodeLikeEthers(
		[]string{"bytes32", "address", "uint256"},
		[]interface{}{crypto.Keccak256Hash(inner), entryPoint, helpers.OrZero(chainID)},
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(outer), nil
}

// wire is the JSON-RPC representation used by v0.7 bundlers.
type wire struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   *hexutil.Bytes  `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func (op UserOperation) MarshalJSON() ([]byte, error) {
	w := wire{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		CallData:             nonNil(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Signature:            nonNil(op.Signature),
	}
	if op.Factory != nil {
		w.Factory = op.Factory
		fd := hexutil.Bytes(nonNil(op.FactoryData))
		w.FactoryData = &fd
	}
	if op.Paymaster != nil {
		w.Paymaster = op.Paymaster
		w.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		w.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		pd := hexutil.Bytes(nonNil(op.PaymasterData))
		w.PaymasterData = &pd
	}
	return json.Marshal(w)
}

func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:                        w.Sender,
		Nonce:                         fromHexBig(w.Nonce),
		Factory:                       w.Factory,
		CallData:                      w.CallData,
		CallGasLimit:                  fromHexBig(w.CallGasLimit),
		VerificationGasLimit:          fromHexBig(w.VerificationGasLimit),
		PreVerificationGas:            fromHexBig(w.PreVerificationGas),
		MaxFeePerGas:                  fromHexBig(w.MaxFeePerGas),
		MaxPriorityFeePerGas:          fromHexBig(w.MaxPriorityFeePerGas),
		Paymaster:                     w.Paymaster,
		PaymasterVerificationGasLimit: fromHexBig(w.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       fromHexBig(w.PaymasterPostOpGasLimit),
		Signature:                     w.Signature,
	}
	if w.FactoryData != nil {
		op.FactoryData = *w.FactoryData
	}
	if w.PaymasterData != nil {
		op.PaymasterData = *w.PaymasterData
	}
	return nil
}

func hexBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(helpers.OrZero(v))
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return v.ToInt()
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
