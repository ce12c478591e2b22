package helpers

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestPackAccountGasLimits(t *testing.T) {
	packed := PackAccountGasLimits(big.NewInt(150_000), big.NewInt(500_000))

	high := new(big.Int).SetBytes(packed[:16])
	low := new(big.Int).SetBytes(packed[16:])
	require.Equal(t, int64(150_000), high.Int64())
	require.Equal(t, int64(500_000), low.Int64())
}

func TestPackGasFeesPriorityHigh(t *testing.T) {
	packed := PackGasFees(big.NewInt(1_000_000_000), big.NewInt(2_000_000_000))

	high := new(big.Int).SetBytes(packed[:16])
	low := new(big.Int).SetBytes(packed[16:])
	require.Equal(t, int64(2_000_000_000), high.Int64())
	require.Equal(t, int64(1_000_000_000), low.Int64())
}

func TestPackGasFeesNilIsZero(t *testing.T) {
	packed := PackGasFees(big.NewInt(7), nil)
	require.Equal(t, [16]byte{}, [16]byte(packed[:16]))
	require.Equal(t, byte(7), packed[31])
}

func TestEncodeLikeEthers(t *testing.T) {
	to := common.HexToAddress("0x2600428acb2f2b01201bf6db3ead3649418b522b")
	encoded, err := EncodeLikeEthers([]string{"address", "uint"}, []interface{}{to, big.NewInt(5)})
	require.NoError(t, err)
	require.Len(t, encoded, 64)
	require.Equal(t, to.Bytes(), encoded[12:32])
	require.Equal(t, byte(5), encoded[63])

	_, err = EncodeLikeEthers([]string{"address"}, nil)
	require.Error(t, err)
}

func TestUint128Bytes(t *testing.T) {
	out := Uint128Bytes(big.NewInt(0x0102))
	require.Len(t, out, 16)
	require.Equal(t, []byte{0x01, 0x02}, out[14:])
}
