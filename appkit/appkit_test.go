package appkit

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablecoinxyz/app-kit-go/chains"
	"github.com/stablecoinxyz/app-kit-go/internal/helpers"
	"github.com/stablecoinxyz/app-kit-go/internal/testutil"
	"github.com/stablecoinxyz/app-kit-go/wallet"
)

const (
	testAPIKey = "sbc-test-key"
	testKey    = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var (
	smartAccountAddr = common.HexToAddress("0x5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a")
	paymasterAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	userOpHash       = common.HexToHash("0x1234")
	bundleTxHash     = common.HexToHash("0x5678")
	recipient        = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

func selector(sig string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(sig))[:4])
}

// fakeChain serves the chain, bundler and paymaster methods an AppKit needs
// for a Kernel account on base sepolia.
type fakeChain struct {
	*testutil.Node
	code        atomic.Value
	nonceCalls  atomic.Int32
	senderCalls atomic.Int32
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()
	c := &fakeChain{Node: testutil.NewNode(t)}
	c.code.Store("0x")

	senderSelector := selector("getSenderAddress(bytes)")
	nonceSelector := selector("getNonce(address,uint192)")
	revertData := selector("SenderAddressResult(address)") + strings.TrimPrefix(hexutil.Encode(common.LeftPadBytes(smartAccountAddr.Bytes(), 32)), "0x")

	c.Handle("eth_call", func(params []json.RawMessage) (interface{}, error) {
		var call struct {
			Input string `json:"input"`
			Data  string `json:"data"`
		}
		if err := json.Unmarshal(params[0], &call); err != nil {
			return nil, err
		}
		input := call.Input
		if input == "" {
			input = call.Data
		}
		switch {
		case strings.HasPrefix(input, senderSelector):
			c.senderCalls.Add(1)
			return nil, &testutil.RPCError{Code: 3, Message: "execution reverted", Data: revertData}
		case strings.HasPrefix(input, nonceSelector):
			c.nonceCalls.Add(1)
			return hexutil.Encode(common.LeftPadBytes([]byte{0x01}, 32)), nil
		}
		return nil, errors.New("unexpected eth_call")
	})
	c.Handle("eth_getCode", func([]json.RawMessage) (interface{}, error) {
		return c.code.Load(), nil
	})
	c.Result("eth_getBalance", "0xde0b6b3a7640000")
	c.Result("eth_gasPrice", "0x3b9aca00")

	header, err := json.Marshal(&types.Header{
		Number:     big.NewInt(100),
		Difficulty: new(big.Int),
		GasLimit:   30_000_000,
		BaseFee:    big.NewInt(500_000_000),
	})
	require.NoError(t, err)
	c.Result("eth_getBlockByNumber", json.RawMessage(header))

	c.Result("pm_getPaymasterStubData", map[string]interface{}{
		"paymaster":                     paymasterAddr,
		"paymasterData":                 "0x01",
		"paymasterVerificationGasLimit": "0x7530",
		"paymasterPostOpGasLimit":       "0x2710",
	})
	c.Result("eth_estimateUserOperationGas", map[string]string{
		"preVerificationGas":   "0xc350",
		"verificationGasLimit": "0x186a0",
		"callGasLimit":         "0x249f0",
	})
	c.Result("pm_getPaymasterData", map[string]interface{}{
		"paymaster":     paymasterAddr,
		"paymasterData": "0x0203",
	})
	c.Result("eth_sendUserOperation", userOpHash)
	c.Result("eth_getUserOperationReceipt", map[string]interface{}{
		"userOpHash":    userOpHash,
		"entryPoint":    "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		"sender":        smartAccountAddr,
		"nonce":         "0x0",
		"actualGasCost": "0x1",
		"actualGasUsed": "0x30d40",
		"success":       true,
		"receipt": map[string]interface{}{
			"transactionHash": bundleTxHash,
			"blockHash":       common.HexToHash("0x9a"),
			"blockNumber":     "0x2a",
			"gasUsed":         "0x30d40",
			"status":          "0x1",
		},
	})
	return c
}

func newTestKit(t *testing.T, chain *fakeChain) *AppKit {
	t.Helper()
	return newTestKitOn(t, chain, chains.BaseSepoliaID)
}

func newTestKitOn(t *testing.T, chain *fakeChain, chainID int64) *AppKit {
	t.Helper()
	k, err := New(Config{
		APIKey:       testAPIKey,
		ChainID:      chainID,
		RPCURL:       chain.URL,
		PaymasterURL: chain.URL,
		PrivateKey:   testKey,
	})
	require.NoError(t, err)
	t.Cleanup(k.Close)
	return k
}

func TestNewValidation(t *testing.T) {
	signer, err := wallet.NewPrivateKeySigner(testKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		cfg   Config
		check func(t *testing.T, err error)
	}{
		{
			name: "api key without prefix",
			cfg:  Config{APIKey: "abc", ChainID: chains.BaseSepoliaID},
			check: func(t *testing.T, err error) {
				var target *InvalidAPIKeyError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "unsupported chain",
			cfg:  Config{APIKey: testAPIKey, ChainID: 1},
			check: func(t *testing.T, err error) {
				var target *chains.UnsupportedChainError
				require.ErrorAs(t, err, &target)
				for _, name := range chains.SupportedNames() {
					assert.Contains(t, err.Error(), name)
				}
			},
		},
		{
			name: "wallet client and private key",
			cfg: Config{
				APIKey:       testAPIKey,
				ChainID:      chains.BaseSepoliaID,
				PrivateKey:   testKey,
				WalletClient: wallet.NewClient(big.NewInt(chains.BaseSepoliaID), signer),
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrConflictingCredentials) },
		},
		{
			name: "discovery and private key",
			cfg:  Config{APIKey: testAPIKey, ChainID: chains.BaseSepoliaID, PrivateKey: testKey, Discovery: true},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrConflictingCredentials)
			},
		},
		{
			name: "wallet client on another chain",
			cfg: Config{
				APIKey:       testAPIKey,
				ChainID:      chains.BaseSepoliaID,
				WalletClient: wallet.NewClient(big.NewInt(chains.BaseID), signer),
			},
			check: func(t *testing.T, err error) {
				var target *ChainMismatchError
				require.ErrorAs(t, err, &target)
				assert.Contains(t, err.Error(), "8453")
				assert.Contains(t, err.Error(), "84532")
			},
		},
		{
			name: "wallet client without signer",
			cfg: Config{
				APIKey:       testAPIKey,
				ChainID:      chains.BaseSepoliaID,
				WalletClient: wallet.NewClient(big.NewInt(chains.BaseSepoliaID), nil),
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMissingAccount) },
		},
		{
			name:  "bad rpc url",
			cfg:   Config{APIKey: testAPIKey, ChainID: chains.BaseSepoliaID, RPCURL: "not a url"},
			check: func(t *testing.T, err error) { assert.ErrorContains(t, err, "RPCURL") },
		},
		{
			name:  "bad private key",
			cfg:   Config{APIKey: testAPIKey, ChainID: chains.BaseSepoliaID, PrivateKey: "0xzz"},
			check: func(t *testing.T, err error) { assert.Error(t, err) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := New(tt.cfg)
			require.Error(t, err)
			assert.Nil(t, k)
			tt.check(t, err)
		})
	}
}

func TestInvalidAPIKeyTouchesNoNetwork(t *testing.T) {
	chain := newFakeChain(t)
	_, err := New(Config{APIKey: "pk-123", ChainID: chains.BaseSepoliaID, RPCURL: chain.URL, PaymasterURL: chain.URL})
	require.Error(t, err)
	assert.Zero(t, chain.TotalCalls())
}

func TestOwnerAddress(t *testing.T) {
	t.Run("private key", func(t *testing.T) {
		k, err := New(Config{APIKey: testAPIKey, ChainID: chains.BaseSepoliaID, PrivateKey: testKey})
		require.NoError(t, err)
		owner, err := k.OwnerAddress()
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), owner)
	})

	t.Run("wallet client", func(t *testing.T) {
		signer, err := wallet.NewPrivateKeySigner(testKey)
		require.NoError(t, err)
		k, err := New(Config{
			APIKey:       testAPIKey,
			ChainID:      chains.BaseSepoliaID,
			WalletClient: wallet.NewClient(big.NewInt(chains.BaseSepoliaID), signer),
		})
		require.NoError(t, err)
		owner, err := k.OwnerAddress()
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), owner)
	})

	t.Run("random fallback", func(t *testing.T) {
		k, err := New(Config{APIKey: testAPIKey, ChainID: chains.BaseSepoliaID})
		require.NoError(t, err)
		owner, err := k.OwnerAddress()
		require.NoError(t, err)
		assert.NotEqual(t, common.Address{}, owner)
	})
}

func TestDiscoveryMode(t *testing.T) {
	chain := newFakeChain(t)
	k, err := New(Config{APIKey: testAPIKey, ChainID: chains.BaseSepoliaID, RPCURL: chain.URL, Discovery: true})
	require.NoError(t, err)
	t.Cleanup(k.Close)

	_, err = k.OwnerAddress()
	assert.ErrorIs(t, err, ErrNoWallet)
	_, err = k.GetAccount(context.Background())
	assert.ErrorIs(t, err, ErrNoWallet)

	require.NoError(t, k.ConnectWallet(context.Background(), wallet.PrivateKeyOption{Key: testKey}))
	owner, err := k.OwnerAddress()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), owner)

	address, err := k.SmartAccountAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, smartAccountAddr, address)

	err = k.ConnectWallet(context.Background(), wallet.PrivateKeyOption{})
	assert.ErrorContains(t, err, "already built")
}

func TestConnectWalletOutsideDiscovery(t *testing.T) {
	k, err := New(Config{APIKey: testAPIKey, ChainID: chains.BaseSepoliaID, PrivateKey: testKey})
	require.NoError(t, err)
	assert.ErrorIs(t, k.ConnectWallet(context.Background(), wallet.PrivateKeyOption{}), ErrNotDiscoveryMode)
}

type stubProber []wallet.Availability

func (p stubProber) Probe(context.Context) []wallet.Availability { return p }

func TestDetectWallets(t *testing.T) {
	want := stubProber{{Type: wallet.TypeKeystore, Available: true}}
	k, err := New(Config{APIKey: testAPIKey, ChainID: chains.BaseSepoliaID, Discovery: true, Prober: want})
	require.NoError(t, err)
	assert.Equal(t, []wallet.Availability(want), k.DetectWallets(context.Background()))
}

func TestEstimateUserOperation(t *testing.T) {
	chain := newFakeChain(t)
	k := newTestKit(t, chain)

	estimate, err := k.EstimateUserOperation(context.Background(), UserOperationParams{To: recipient, Value: "0"})
	require.NoError(t, err)

	assert.Equal(t, "50000", estimate.PreVerificationGas)
	assert.Equal(t, "100000", estimate.VerificationGasLimit)
	assert.Equal(t, "150000", estimate.CallGasLimit)
	assert.Equal(t, "1000000000", estimate.MaxFeePerGas)
	assert.Equal(t, "2000000000", estimate.MaxPriorityFeePerGas)
	assert.Equal(t, "300000", estimate.TotalGasUsed)
	assert.Equal(t, "330000000000000", estimate.TotalGasCost)
	assert.Equal(t, "30000", estimate.PaymasterVerificationGasLimit)
	assert.Equal(t, "10000", estimate.PaymasterPostOpGasLimit)

	assert.Equal(t, 1, chain.Calls("pm_getPaymasterData"))
	for _, p := range chain.Paths() {
		if strings.HasPrefix(p, "/rpc/") {
			assert.Equal(t, "/rpc/v1/baseSepolia/"+testAPIKey, p)
		}
	}
}

func TestEstimateUserOperationEmptyCallsSkipsNetwork(t *testing.T) {
	chain := newFakeChain(t)
	k := newTestKit(t, chain)

	_, err := k.EstimateUserOperation(context.Background(), UserOperationParams{Calls: []Call{}})
	assert.ErrorIs(t, err, ErrEmptyOperation)
	assert.Zero(t, chain.TotalCalls())
}

func TestEstimateUserOperationEnrichesRevert(t *testing.T) {
	chain := newFakeChain(t)
	payload, err := helpers.EncodeLikeEthers([]string{"string"}, []interface{}{"ERC20: transfer amount exceeds balance"})
	require.NoError(t, err)
	reason := hexutil.Encode(append(hexutil.MustDecode("0x08c379a0"), payload...))
	chain.Handle("eth_estimateUserOperationGas", func([]json.RawMessage) (interface{}, error) {
		return nil, &testutil.RPCError{Code: -32521, Message: "UserOperation reverted during simulation with reason: " + reason}
	})
	k := newTestKit(t, chain)

	_, err = k.EstimateUserOperation(context.Background(), UserOperationParams{To: recipient})
	var estErr *EstimationError
	require.ErrorAs(t, err, &estErr)
	assert.True(t, strings.HasPrefix(estErr.Message, estErr.Err.Error()))
	assert.Contains(t, estErr.Message, "UserOperation reverted during simulation")
	assert.Contains(t, estErr.Message, "Decoded reason: ERC20: transfer amount exceeds balance")
	assert.Zero(t, chain.Calls("eth_sendUserOperation"))
}

func TestAccountLifecycle(t *testing.T) {
	chain := newFakeChain(t)
	k := newTestKit(t, chain)
	ctx := context.Background()

	info, err := k.GetAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, smartAccountAddr, info.Address)
	assert.False(t, info.IsDeployed)
	assert.Equal(t, "0", info.Nonce)
	assert.Equal(t, "1000000000000000000", info.Balance)
	assert.Zero(t, chain.nonceCalls.Load())

	result, err := k.SendUserOperation(ctx, UserOperationParams{
		Calls: []Call{
			{To: recipient, Value: big.NewInt(1)},
			{To: recipient, Data: []byte{0xde, 0xad}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, userOpHash.Hex(), result.UserOperationHash)
	assert.Equal(t, bundleTxHash.Hex(), result.TransactionHash)
	assert.Equal(t, "42", result.BlockNumber)
	assert.Equal(t, "200000", result.GasUsed)

	chain.code.Store("0x6080")
	nonceCallsBefore := chain.nonceCalls.Load()

	info, err = k.GetAccount(ctx)
	require.NoError(t, err)
	assert.True(t, info.IsDeployed)
	assert.Equal(t, "1", info.Nonce)
	assert.Equal(t, nonceCallsBefore+1, chain.nonceCalls.Load())

	// the counterfactual address is resolved once per instance
	assert.Equal(t, int32(1), chain.senderCalls.Load())
}

func TestSendUserOperationWrapsBundlerError(t *testing.T) {
	chain := newFakeChain(t)
	chain.Handle("eth_sendUserOperation", func([]json.RawMessage) (interface{}, error) {
		return nil, &testutil.RPCError{Code: -32500, Message: "AA21 didn't pay prefund"}
	})
	k := newTestKit(t, chain)

	_, err := k.SendUserOperation(context.Background(), UserOperationParams{To: recipient, Value: "0.1"})
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.True(t, strings.HasPrefix(sendErr.Message, sendErr.Err.Error()))
	assert.Contains(t, sendErr.Message, "AA21 didn't pay prefund")
	assert.Contains(t, sendErr.Message, "Suggestion:")
	assert.Zero(t, chain.Calls("eth_getUserOperationReceipt"))
}

func mailTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {{Name: "name", Type: "string"}},
			"Mail":         {{Name: "contents", Type: "string"}},
		},
		PrimaryType: "Mail",
		Domain:      apitypes.TypedDataDomain{Name: "Ether Mail"},
		Message:     apitypes.TypedDataMessage{"contents": "hello"},
	}
}

func TestSignMessageAndTypedData(t *testing.T) {
	ctx := context.Background()

	t.Run("kernel", func(t *testing.T) {
		chain := newFakeChain(t)
		k := newTestKitOn(t, chain, chains.BaseSepoliaID)

		sig, err := k.SignMessage(ctx, []byte("hello"))
		require.NoError(t, err)
		require.Len(t, sig, 21+65)
		assert.Equal(t, byte(0x01), sig[0])

		typed, err := k.SignTypedData(ctx, mailTypedData())
		require.NoError(t, err)
		require.Len(t, typed, 21+65)
		assert.Equal(t, sig[:21], typed[:21])
		assert.NotEqual(t, sig, typed)
	})

	t.Run("simple account", func(t *testing.T) {
		chain := newFakeChain(t)
		k := newTestKitOn(t, chain, chains.RadiusTestnetID)

		_, err := k.SignMessage(ctx, []byte("hello"))
		assert.ErrorIs(t, err, ErrUnsupportedSignature)
		_, err = k.SignTypedData(ctx, mailTypedData())
		assert.ErrorIs(t, err, ErrUnsupportedSignature)
	})

	t.Run("no wallet", func(t *testing.T) {
		k, err := New(Config{APIKey: testAPIKey, ChainID: chains.BaseSepoliaID, Discovery: true})
		require.NoError(t, err)
		_, err = k.SignMessage(ctx, []byte("hello"))
		assert.ErrorIs(t, err, ErrNoWallet)
	})
}

func TestGetAccountSurvivesConcurrentClose(t *testing.T) {
	chain := newFakeChain(t)
	k := newTestKit(t, chain)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			// a closed client may fail the read, it must not panic
			_, _ = k.GetAccount(ctx)
		}()
		go func() {
			defer wg.Done()
			k.Close()
		}()
	}
	wg.Wait()

	info, err := k.GetAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, smartAccountAddr, info.Address)
}
