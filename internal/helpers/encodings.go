package helpers

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func normalize(solType string) string {
	t := strings.TrimSpace(solType)
	// ethers allows "uint" / "int" as shorthand for 256-bit
	if t == "uint" {
		return "uint256"
	}
	if t == "int" {
		return "int256"
	}
	return t
}

// arguments builds abi.Arguments from solidity type strings.
func arguments(typeStrs ...string) (abi.Arguments, error) {
	args := make(abi.Arguments, len(typeStrs))
	for i, ts := range typeStrs {
		t, err := abi.NewType(normalize(ts), "", nil)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", ts, err)
		}
		args[i] = abi.Argument{Name: fmt.Sprintf("arg%d", i), Type: t}
	}
	return args, nil
}

// EncodeLikeEthers encodes values like Solidity's abi.encode(...).
func EncodeLikeEthers(typeStrs []string, values []interface{}) ([]byte, error) {
	if len(typeStrs) != len(values) {
		return nil, fmt.Errorf("types/values length mismatch")
	}

	args, err := arguments(typeStrs...)
	if err != nil {
		return nil, err
	}
	return args.Pack(values...)
}

// MustParseABI parses a JSON ABI literal and panics on failure. Only for package-level ABI constants.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Errorf("invalid ABI: %w", err))
	}
	return parsed
}

// PackAccountGasLimits packs verificationGasLimit into the high and
// callGasLimit into the low 128 bits.
func PackAccountGasLimits(verificationGasLimit, callGasLimit *big.Int) [32]byte {
	return packUint128Pair(verificationGasLimit, callGasLimit)
}

// PackGasFees packs maxPriorityFeePerGas into the high and maxFeePerGas into
// the low 128 bits, matching the EntryPoint's gasFees word.
func PackGasFees(maxFeePerGas, maxPriorityFeePerGas *big.Int) [32]byte {
	return packUint128Pair(maxPriorityFeePerGas, maxFeePerGas)
}

// packed = (high << 128) | low, both truncated to uint128
func packUint128Pair(high, low *big.Int) [32]byte {
	packed := new(big.Int).Lsh(new(big.Int).And(OrZero(high), maxUint128), 128)
	packed.Or(packed, new(big.Int).And(OrZero(low), maxUint128))

	var out [32]byte
	packed.FillBytes(out[:])
	return out
}

// Uint128Bytes returns the 16-byte big-endian encoding used in packed paymasterAndData.
func Uint128Bytes(v *big.Int) []byte {
	out := make([]byte, 16)
	new(big.Int).And(OrZero(v), maxUint128).FillBytes(out)
	return out
}

// OrZero returns v, or a fresh zero when v is nil.
func OrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
