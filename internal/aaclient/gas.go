package aaclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/stablecoinxyz/app-kit-go/internal/helpers"
	"github.com/stablecoinxyz/app-kit-go/internal/userop"
)

// FeeEstimator supplies maxFeePerGas and maxPriorityFeePerGas for a new op.
type FeeEstimator interface {
	EstimateFees(ctx context.Context) (maxFee, maxPriorityFee *big.Int, err error)
}

type gasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// FlatFeeEstimator reads eth_gasPrice once and sets maxFee = gasPrice and
// maxPriorityFee = gasPrice * 2. The priority fee exceeding the max fee is a
// known approximation; the EntryPoint caps the effective price at maxFee.
type FlatFeeEstimator struct {
	Reader gasPricer
}

func (f *FlatFeeEstimator) EstimateFees(ctx context.Context) (*big.Int, *big.Int, error) {
	gasPrice, err := f.Reader.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}
	return new(big.Int).Set(gasPrice), new(big.Int).Mul(gasPrice, big.NewInt(2)), nil
}

// ComputeGasTotals returns totalGasUsed = pvg + cgl + vgl and
// totalGasCost = totalGasUsed * min(maxFee, maxPriority + baseFee) * 110 / 100.
// A nil baseFee counts as zero.
func ComputeGasTotals(op *userop.UserOperation, baseFee *big.Int) (*big.Int, *big.Int) {
	used := new(big.Int).Add(helpers.OrZero(op.PreVerificationGas), helpers.OrZero(op.CallGasLimit))
	used.Add(used, helpers.OrZero(op.VerificationGasLimit))

	effective := new(big.Int).Add(helpers.OrZero(op.MaxPriorityFeePerGas), helpers.OrZero(baseFee))
	if maxFee := helpers.OrZero(op.MaxFeePerGas); maxFee.Cmp(effective) < 0 {
		effective.Set(maxFee)
	}

	cost := new(big.Int).Mul(used, effective)
	cost.Mul(cost, big.NewInt(110))
	cost.Quo(cost, big.NewInt(100))
	return used, cost
}
