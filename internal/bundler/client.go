// Package bundler is a JSON-RPC client for an ERC-4337 bundler that also
// serves the ERC-7677 paymaster methods.
package bundler

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/stablecoinxyz/app-kit-go/internal/logger"
	"github.com/stablecoinxyz/app-kit-go/internal/userop"
)

// Client talks to one bundler/paymaster endpoint. It is stateless and safe for concurrent use.
type Client struct {
	client *rpc.Client
	url    string
}

// URL builds {base}/rpc/v1/{chain}/{apiKey}, adding staging=true when requested.
func URL(base, chainStringID, apiKey string, staging bool) string {
	u := strings.TrimSuffix(base, "/") + "/rpc/v1/" + url.PathEscape(chainStringID) + "/" + url.PathEscape(apiKey)
	if staging {
		u += "?staging=true"
	}
	return u
}

// Dial creates a client over HTTP. No request is made until the first call.
func Dial(endpoint string) (*Client, error) {
	c, err := rpc.DialHTTP(endpoint)
	if err != nil {
		return nil, fmt.Errorf("error creating bundler client: %w", err)
	}
	return &Client{client: c, url: endpoint}, nil
}

// Close closes the underlying RPC client connection.
func (c *Client) Close() {
	c.client.Close()
}

// EstimateUserOperationGas estimates gas limits for op. The signature must be a stub of valid length.
func (c *Client) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*GasEstimation, error) {
	var result GasEstimation
	logger.Debug("eth_estimateUserOperationGas sender=%s nonce=%s", op.Sender.Hex(), op.Nonce)
	if err := c.client.CallContext(ctx, &result, "eth_estimateUserOperationGas", op, entryPoint); err != nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas failed: %w", err)
	}
	if result.PreVerificationGas == nil || result.VerificationGasLimit == nil || result.CallGasLimit == nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas returned incomplete estimate")
	}
	return &result, nil
}

// SendUserOperation submits a signed op and returns its user operation hash.
func (c *Client) SendUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	logger.Debug("eth_sendUserOperation sender=%s nonce=%s", op.Sender.Hex(), op.Nonce)
	if err := c.client.CallContext(ctx, &hash, "eth_sendUserOperation", op, entryPoint); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendUserOperation failed: %w", err)
	}
	return hash, nil
}

// GetUserOperationReceipt returns the receipt for hash, or nil while the op is pending.
func (c *Client) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	if err := c.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, fmt.Errorf("eth_getUserOperationReceipt failed: %w", err)
	}
	return receipt, nil
}

// GetPaymasterStubData returns placeholder paymaster fields suitable for gas estimation.
func (c *Client) GetPaymasterStubData(ctx context.Context, op *userop.UserOperation, entryPoint common.Address, chainID *big.Int) (*PaymasterData, error) {
	return c.paymasterCall(ctx, "pm_getPaymasterStubData", op, entryPoint, chainID)
}

// GetPaymasterData returns the final sponsored paymaster fields for op.
func (c *Client) GetPaymasterData(ctx context.Context, op *userop.UserOperation, entryPoint common.Address, chainID *big.Int) (*PaymasterData, error) {
	return c.paymasterCall(ctx, "pm_getPaymasterData", op, entryPoint, chainID)
}

// paymasterCall sends params [ userOp, entryPoint, chainId ].
func (c *Client) paymasterCall(ctx context.Context, method string, op *userop.UserOperation, entryPoint common.Address, chainID *big.Int) (*PaymasterData, error) {
	var result PaymasterData
	logger.Debug("%s sender=%s chain=%s", method, op.Sender.Hex(), chainID)
	if err := c.client.CallContext(ctx, &result, method, op, entryPoint, (*hexutil.Big)(chainID)); err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	if result.Paymaster == nil {
		return nil, fmt.Errorf("%s response missing paymaster", method)
	}
	return &result, nil
}
