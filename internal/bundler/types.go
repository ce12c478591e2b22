package bundler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/stablecoinxyz/app-kit-go/internal/userop"
)

// GasEstimation is the result of eth_estimateUserOperationGas (v0.7).
type GasEstimation struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

// Apply copies the estimated limits onto op. Paymaster limits are only set when estimated.
func (g *GasEstimation) Apply(op *userop.UserOperation) {
	op.PreVerificationGas = g.PreVerificationGas.ToInt()
	op.VerificationGasLimit = g.VerificationGasLimit.ToInt()
	op.CallGasLimit = g.CallGasLimit.ToInt()
	if g.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = g.PaymasterVerificationGasLimit.ToInt()
	}
	if g.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = g.PaymasterPostOpGasLimit.ToInt()
	}
}

// PaymasterData is the ERC-7677 result of pm_getPaymasterStubData / pm_getPaymasterData.
type PaymasterData struct {
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	IsFinal                       bool            `json:"isFinal,omitempty"`
}

// Apply sets op's paymaster fields. Gas limits missing from the response keep op's current values.
func (p *PaymasterData) Apply(op *userop.UserOperation) {
	pm := *p.Paymaster
	op.Paymaster = &pm
	op.PaymasterData = common.CopyBytes(p.PaymasterData)
	if p.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = p.PaymasterVerificationGasLimit.ToInt()
	}
	if p.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = p.PaymasterPostOpGasLimit.ToInt()
	}
}

// TransactionReceipt is the bundle transaction's receipt as embedded in a user op receipt.
type TransactionReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	BlockHash       common.Hash    `json:"blockHash"`
	BlockNumber     *hexutil.Big   `json:"blockNumber"`
	GasUsed         *hexutil.Big   `json:"gasUsed"`
	Status          hexutil.Uint64 `json:"status"`
}

// UserOperationReceipt is the result of eth_getUserOperationReceipt.
type UserOperationReceipt struct {
	UserOpHash    common.Hash        `json:"userOpHash"`
	EntryPoint    common.Address     `json:"entryPoint"`
	Sender        common.Address     `json:"sender"`
	Nonce         *hexutil.Big       `json:"nonce"`
	Paymaster     *common.Address    `json:"paymaster,omitempty"`
	ActualGasCost *hexutil.Big       `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big       `json:"actualGasUsed"`
	Success       bool               `json:"success"`
	Reason        string             `json:"reason,omitempty"`
	Receipt       TransactionReceipt `json:"receipt"`
}

// BlockNumber returns the inclusion block, zero if unknown.
func (r *UserOperationReceipt) BlockNumber() *big.Int {
	if r.Receipt.BlockNumber == nil {
		return new(big.Int)
	}
	return r.Receipt.BlockNumber.ToInt()
}

// GasUsed prefers the op's actual gas and falls back to the bundle transaction's.
func (r *UserOperationReceipt) GasUsed() *big.Int {
	if r.ActualGasUsed != nil {
		return r.ActualGasUsed.ToInt()
	}
	if r.Receipt.GasUsed != nil {
		return r.Receipt.GasUsed.ToInt()
	}
	return new(big.Int)
}
