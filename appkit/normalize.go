package appkit

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/stablecoinxyz/app-kit-go/internal/smartaccount"
)

// Call is a single contract interaction. A nil Value is zero; Value is in wei.
type Call = smartaccount.Call

// UserOperationParams describes the calls of one user operation, either as a
// single call shorthand or as an explicit batch. When Calls is non-nil the
// shorthand fields are ignored.
//
// The shorthand Value is a decimal string in whole ether ("0.5"), while
// Call.Value in a batch is raw wei.
type UserOperationParams struct {
	To    common.Address
	Data  []byte
	Value string

	Calls []Call
}

const etherDecimals = 18

// NormalizeCalls turns params into the non-empty call list of a user operation.
func NormalizeCalls(params UserOperationParams) ([]Call, error) {
	if params.Calls != nil {
		if len(params.Calls) == 0 {
			return nil, ErrEmptyOperation
		}
		for _, c := range params.Calls {
			if c.Value != nil && c.Value.Sign() < 0 {
				return nil, &InvalidValueError{Value: c.Value.String(), Err: errors.New("value must not be negative")}
			}
		}
		return lo.Map(params.Calls, func(c Call, _ int) Call {
			return Call{To: c.To, Value: valueOrZero(c.Value), Data: common.CopyBytes(c.Data)}
		}), nil
	}

	if params.To == (common.Address{}) && len(params.Data) == 0 && params.Value == "" {
		return nil, ErrEmptyOperation
	}
	wei, err := ParseEther(params.Value)
	if err != nil {
		return nil, err
	}
	return []Call{{To: params.To, Value: wei, Data: common.CopyBytes(params.Data)}}, nil
}

// ParseEther converts a whole-ether decimal string to wei. Empty means zero.
func ParseEther(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, &InvalidValueError{Value: value, Err: err}
	}
	if d.IsNegative() {
		return nil, &InvalidValueError{Value: value, Err: errors.New("value must not be negative")}
	}
	wei := d.Shift(etherDecimals)
	if !wei.IsInteger() {
		return nil, &InvalidValueError{Value: value, Err: errors.New("more than 18 decimal places")}
	}
	return wei.BigInt(), nil
}

// FormatEther renders wei as a whole-ether decimal string.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
