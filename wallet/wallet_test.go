package wallet

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablecoinxyz/app-kit-go/internal/testutil"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testKeyAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestPrivateKeySigner(t *testing.T) {
	for _, key := range []string{testKey, "0x" + testKey} {
		s, err := NewPrivateKeySigner(key)
		require.NoError(t, err)
		assert.Equal(t, testKeyAddress, s.Address())

		hash := crypto.Keccak256([]byte("user op"))
		sig, err := s.SignHash(context.Background(), hash)
		require.NoError(t, err)
		require.Len(t, sig, 65)
		assert.Contains(t, []byte{27, 28}, sig[64])

		recovered, err := RecoverAddress(hash, sig)
		require.NoError(t, err)
		assert.Equal(t, testKeyAddress, recovered)
	}

	_, err := NewPrivateKeySigner("not-a-key")
	require.Error(t, err)
}

func TestGeneratePrivateKeySignerIsRandom(t *testing.T) {
	a, err := GeneratePrivateKeySigner()
	require.NoError(t, err)
	b, err := GeneratePrivateKeySigner()
	require.NoError(t, err)
	assert.NotEqual(t, a.Address(), b.Address())
}

func TestClient(t *testing.T) {
	s, err := NewPrivateKeySigner(testKey)
	require.NoError(t, err)

	id := big.NewInt(84532)
	c := NewClient(id, s)
	id.SetInt64(1)
	assert.Equal(t, int64(84532), c.ChainID().Int64())
	assert.Equal(t, testKeyAddress, c.Signer().Address())

	assert.Nil(t, NewClient(big.NewInt(1), nil).Signer())
}

func TestKeystoreSigner(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	acc, err := ks.NewAccount("secret")
	require.NoError(t, err)

	s, err := newKeystoreSigner(ks, common.Address{}, "secret")
	require.NoError(t, err)
	assert.Equal(t, acc.Address, s.Address())

	hash := crypto.Keccak256([]byte("payload"))
	sig, err := s.SignHash(context.Background(), hash)
	require.NoError(t, err)
	recovered, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, acc.Address, recovered)

	bad, err := newKeystoreSigner(ks, acc.Address, "wrong")
	require.NoError(t, err)
	_, err = bad.SignHash(context.Background(), hash)
	require.Error(t, err)

	_, err = newKeystoreSigner(ks, common.HexToAddress("0x01"), "secret")
	require.Error(t, err)

	empty := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	_, err = newKeystoreSigner(empty, common.Address{}, "")
	require.ErrorContains(t, err, "no accounts")
}

// serveClef answers the subset of the clef API used by the external signer.
func serveClef(t *testing.T, key string) (*testutil.Node, common.Address) {
	owner, err := NewPrivateKeySigner(key)
	require.NoError(t, err)

	node := testutil.NewNode(t)
	node.Result("account_version", "6.0.0")
	node.Result("account_list", []common.Address{owner.Address()})
	node.Handle("account_signData", func(params []json.RawMessage) (interface{}, error) {
		var mime, data string
		require.NoError(t, json.Unmarshal(params[0], &mime))
		require.Equal(t, accounts.MimetypeTextPlain, mime)
		require.NoError(t, json.Unmarshal(params[2], &data))
		payload, err := hexutil.Decode(data)
		require.NoError(t, err)
		sig, err := owner.SignHash(context.Background(), payload)
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(sig), nil
	})
	return node, owner.Address()
}

func TestExternalSigner(t *testing.T) {
	node, owner := serveClef(t, testKey)

	s, err := NewExternalSigner(node.URL, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, owner, s.Address())

	hash := crypto.Keccak256([]byte("external"))
	sig, err := s.SignHash(context.Background(), hash)
	require.NoError(t, err)
	recovered, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, owner, recovered)

	_, err = NewExternalSigner(node.URL, common.HexToAddress("0x02"))
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, PrivateKeyOption{Key: testKey})
	require.NoError(t, err)
	assert.Equal(t, testKeyAddress, s.Address())

	generated, err := Open(ctx, PrivateKeyOption{})
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, generated.Address())

	_, err = Open(ctx, KeystoreOption{Dir: t.TempDir()})
	require.Error(t, err)

	node, owner := serveClef(t, testKey)
	ext, err := Open(ctx, ExternalSignerOption{Endpoint: node.URL})
	require.NoError(t, err)
	assert.Equal(t, owner, ext.Address())

	_, err = Open(ctx, nil)
	require.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Open(cancelled, PrivateKeyOption{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultProber(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	_, err := ks.NewAccount("pw")
	require.NoError(t, err)
	node, _ := serveClef(t, testKey)

	got := DefaultProber{KeystoreDir: dir, ExternalEndpoint: node.URL}.Probe(context.Background())
	assert.Equal(t, []Availability{
		{Type: TypePrivateKey, Available: true},
		{Type: TypeKeystore, Available: true},
		{Type: TypeExternal, Available: true},
	}, got)

	got = DefaultProber{}.Probe(context.Background())
	assert.Equal(t, []Availability{
		{Type: TypePrivateKey, Available: true},
		{Type: TypeKeystore, Available: false},
		{Type: TypeExternal, Available: false},
	}, got)
}
