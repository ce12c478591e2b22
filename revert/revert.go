// Package revert turns ABI-encoded EVM revert payloads into readable text and
// enriches bundler/paymaster errors with decoded reasons and remediation hints.
package revert

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Kind tags which standard encoding a revert payload matched.
type Kind string

const (
	KindError Kind = "Error"
	KindPanic Kind = "Panic"
)

// DecodedRevert is a decoded revert payload.
type DecodedRevert struct {
	Kind   Kind
	Reason string
}

var (
	errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71}

	stringArgs  = mustArgs("string")
	uint256Args = mustArgs("uint256")

	panicReasons = map[uint64]string{
		0x00: "Generic compiler panic",
		0x01: "Assertion failed",
		0x11: "Arithmetic overflow/underflow",
		0x12: "Division or modulo by zero",
		0x21: "Invalid enum value",
		0x22: "Invalid storage byte array access",
		0x31: "Pop on empty array",
		0x32: "Array index out of bounds",
		0x41: "Out of memory",
		0x51: "Invalid function selector",
	}

	reasonPattern = regexp.MustCompile(`reason: (0x[0-9a-fA-F]+)`)
)

type suggestion struct {
	needle string
	text   string
}

// checked in order, first match wins
var suggestions = []suggestion{
	{"AA21 didn't pay prefund", "The smart account could not pay the prefund. Check that the paymaster is sponsoring this operation or fund the account with native tokens."},
	{"insufficient funds", "Fund the account with enough tokens to cover the transfer amount and try again."},
	{"nonce too low", "A previous operation already used this nonce. Wait for it to be mined and retry."},
	{"gas", "The operation ran out of gas or the gas limits were too low. Try again with higher gas limits."},
}

func mustArgs(typ string) abi.Arguments {
	t, err := abi.NewType(typ, "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}

// Decode decodes 0x-prefixed revert data. It reports false for anything that
// is not a well-formed Error(string) or Panic(uint256) payload.
func Decode(hexData string) (string, bool) {
	if !strings.HasPrefix(hexData, "0x") {
		return "", false
	}
	data, err := hexutil.Decode(hexData)
	if err != nil {
		return "", false
	}
	decoded, ok := DecodeBytes(data)
	return decoded.Reason, ok
}

// DecodeBytes is the tagged form of Decode over raw bytes.
func DecodeBytes(data []byte) (DecodedRevert, bool) {
	if len(data) < 4 {
		return DecodedRevert{}, false
	}
	selector, payload := data[:4], data[4:]

	switch {
	case bytes.Equal(selector, errorSelector):
		vs, err := stringArgs.Unpack(payload)
		if err != nil || len(vs) != 1 {
			return DecodedRevert{}, false
		}
		reason, ok := vs[0].(string)
		if !ok {
			return DecodedRevert{}, false
		}
		return DecodedRevert{Kind: KindError, Reason: reason}, true

	case bytes.Equal(selector, panicSelector):
		vs, err := uint256Args.Unpack(payload)
		if err != nil || len(vs) != 1 {
			return DecodedRevert{}, false
		}
		code, ok := vs[0].(*big.Int)
		if !ok {
			return DecodedRevert{}, false
		}
		return DecodedRevert{Kind: KindPanic, Reason: panicReason(code)}, true
	}
	return DecodedRevert{}, false
}

func panicReason(code *big.Int) string {
	if code.IsUint64() {
		if reason, ok := panicReasons[code.Uint64()]; ok {
			return reason
		}
	}
	return fmt.Sprintf("Unknown panic code: 0x%x", code)
}

// EnrichUserOperationError returns err's message followed by an optional
// decoded revert reason and at most one remediation suggestion. The original
// message is always the prefix.
func EnrichUserOperationError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()

	var b strings.Builder
	b.WriteString(msg)

	reason, ok := "", false
	if m := reasonPattern.FindStringSubmatch(msg); m != nil {
		reason, ok = Decode(m[1])
	}
	if !ok {
		if data, found := ExtractRevertData(err); found {
			var decoded DecodedRevert
			decoded, ok = DecodeBytes(data)
			reason = decoded.Reason
		}
	}
	if ok {
		b.WriteString("\n\nDecoded reason: ")
		b.WriteString(reason)
	}

	for _, s := range suggestions {
		if strings.Contains(msg, s.needle) {
			b.WriteString("\n\nSuggestion: ")
			b.WriteString(s.text)
			break
		}
	}
	return b.String()
}

// ExtractRevertData walks err's chain for JSON-RPC error data carrying revert bytes.
func ExtractRevertData(err error) ([]byte, bool) {
	type dataErr interface{ ErrorData() interface{} }

	for e := err; e != nil; e = errors.Unwrap(e) {
		var de dataErr
		if !errors.As(e, &de) {
			continue
		}
		switch v := de.ErrorData().(type) {
		case string:
			if data, derr := hexutil.Decode(v); derr == nil {
				return data, true
			}
		case []byte:
			return v, true
		case hexutil.Bytes:
			return v, true
		case map[string]interface{}:
			if s, ok := v["data"].(string); ok {
				if data, derr := hexutil.Decode(s); derr == nil {
					return data, true
				}
			}
		}
	}
	return nil, false
}
