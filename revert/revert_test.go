package revert

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transferReason = "ERC20: transfer amount exceeds balance"

func encodeError(t *testing.T, reason string) []byte {
	t.Helper()
	payload, err := stringArgs.Pack(reason)
	require.NoError(t, err)
	return append(append([]byte{}, errorSelector...), payload...)
}

func encodePanic(t *testing.T, code int64) []byte {
	t.Helper()
	payload, err := uint256Args.Pack(big.NewInt(code))
	require.NoError(t, err)
	return append(append([]byte{}, panicSelector...), payload...)
}

func TestDecodeError(t *testing.T) {
	reason, ok := Decode(hexutil.Encode(encodeError(t, transferReason)))
	require.True(t, ok)
	assert.Equal(t, transferReason, reason)

	decoded, ok := DecodeBytes(encodeError(t, transferReason))
	require.True(t, ok)
	assert.Equal(t, KindError, decoded.Kind)
}

func TestDecodePanic(t *testing.T) {
	tests := []struct {
		code int64
		want string
	}{
		{0x01, "Assertion failed"},
		{0x11, "Arithmetic overflow/underflow"},
		{0x12, "Division or modulo by zero"},
		{0x32, "Array index out of bounds"},
		{0x99, "Unknown panic code: 0x99"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("0x%x", tt.code), func(t *testing.T) {
			decoded, ok := DecodeBytes(encodePanic(t, tt.code))
			require.True(t, ok)
			assert.Equal(t, KindPanic, decoded.Kind)
			assert.Equal(t, tt.want, decoded.Reason)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "hello", "0x", "0xzz", "08c379a0", "0xdeadbeef", "0x08c379a0ff"} {
		reason, ok := Decode(in)
		assert.False(t, ok, in)
		assert.Empty(t, reason, in)
	}
}

func TestEnrichDecodesReasonFromMessage(t *testing.T) {
	base := "UserOperation reverted during simulation with reason: " + hexutil.Encode(encodeError(t, transferReason))
	out := EnrichUserOperationError(errors.New(base))

	assert.True(t, strings.HasPrefix(out, base))
	assert.Contains(t, out, "\n\nDecoded reason: "+transferReason)
}

func TestEnrichSuggestions(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"AA21 didn't pay prefund", "prefund"},
		{"insufficient funds for transfer", "Fund the account"},
		{"nonce too low", "retry"},
		{"gas limit too low", "higher gas limits"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			out := EnrichUserOperationError(errors.New(tt.msg))
			require.True(t, strings.HasPrefix(out, tt.msg))
			assert.Contains(t, out, "\n\nSuggestion: ")
			assert.Contains(t, out, tt.want)
			assert.Equal(t, 1, strings.Count(out, "Suggestion:"))
		})
	}
}

func TestEnrichFirstSuggestionWins(t *testing.T) {
	out := EnrichUserOperationError(errors.New("insufficient funds for gas"))
	assert.Contains(t, out, "Fund the account")
	assert.NotContains(t, out, "higher gas limits")
}

func TestEnrichPlainMessageUnchanged(t *testing.T) {
	assert.Equal(t, "bundler unreachable", EnrichUserOperationError(errors.New("bundler unreachable")))
	assert.Empty(t, EnrichUserOperationError(nil))
}

type rpcDataError struct {
	msg  string
	data interface{}
}

func (e *rpcDataError) Error() string          { return e.msg }
func (e *rpcDataError) ErrorData() interface{} { return e.data }

func TestEnrichFallsBackToErrorData(t *testing.T) {
	inner := &rpcDataError{msg: "execution reverted", data: hexutil.Encode(encodePanic(t, 0x12))}
	err := fmt.Errorf("estimate: %w", inner)

	out := EnrichUserOperationError(err)
	assert.True(t, strings.HasPrefix(out, "estimate: execution reverted"))
	assert.Contains(t, out, "Decoded reason: Division or modulo by zero")
}

func TestExtractRevertDataShapes(t *testing.T) {
	raw := encodeError(t, "x")
	for name, data := range map[string]interface{}{
		"string": hexutil.Encode(raw),
		"bytes":  raw,
		"map":    map[string]interface{}{"data": hexutil.Encode(raw)},
	} {
		t.Run(name, func(t *testing.T) {
			got, ok := ExtractRevertData(&rpcDataError{msg: "m", data: data})
			require.True(t, ok)
			assert.Equal(t, raw, got)
		})
	}

	_, ok := ExtractRevertData(errors.New("plain"))
	assert.False(t, ok)
}
