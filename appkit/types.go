package appkit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stablecoinxyz/app-kit-go/internal/aaclient"
)

// AccountInfo describes the smart account. Nonce and Balance are decimal strings.
type AccountInfo struct {
	Address    common.Address `json:"address"`
	IsDeployed bool           `json:"isDeployed"`
	Nonce      string         `json:"nonce"`
	Balance    string         `json:"balance"`
}

// GasEstimate holds decimal-string gas figures for a prepared user operation.
type GasEstimate struct {
	PreVerificationGas            string `json:"preVerificationGas"`
	VerificationGasLimit          string `json:"verificationGasLimit"`
	CallGasLimit                  string `json:"callGasLimit"`
	MaxFeePerGas                  string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          string `json:"maxPriorityFeePerGas"`
	TotalGasUsed                  string `json:"totalGasUsed"`
	TotalGasCost                  string `json:"totalGasCost"`
	PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit,omitempty"`
}

// UserOperationResult is the outcome of a sent user operation once its receipt is available.
type UserOperationResult struct {
	UserOperationHash string `json:"userOperationHash"`
	TransactionHash   string `json:"transactionHash"`
	BlockNumber       string `json:"blockNumber"`
	GasUsed           string `json:"gasUsed"`
}

func newGasEstimate(e *aaclient.GasEstimate) *GasEstimate {
	return &GasEstimate{
		PreVerificationGas:            decimalString(e.PreVerificationGas),
		VerificationGasLimit:          decimalString(e.VerificationGasLimit),
		CallGasLimit:                  decimalString(e.CallGasLimit),
		MaxFeePerGas:                  decimalString(e.MaxFeePerGas),
		MaxPriorityFeePerGas:          decimalString(e.MaxPriorityFeePerGas),
		TotalGasUsed:                  decimalString(e.TotalGasUsed),
		TotalGasCost:                  decimalString(e.TotalGasCost),
		PaymasterVerificationGasLimit: optionalString(e.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       optionalString(e.PaymasterPostOpGasLimit),
	}
}

func newUserOperationResult(r *aaclient.Result) *UserOperationResult {
	return &UserOperationResult{
		UserOperationHash: r.UserOperationHash.Hex(),
		TransactionHash:   r.TransactionHash.Hex(),
		BlockNumber:       decimalString(r.BlockNumber),
		GasUsed:           decimalString(r.GasUsed),
	}
}

func decimalString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optionalString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
