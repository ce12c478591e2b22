// Package aaclient prepares, estimates, signs and submits user operations for
// a smart account through a sponsoring bundler.
package aaclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sethvargo/go-retry"

	"github.com/stablecoinxyz/app-kit-go/chains"
	"github.com/stablecoinxyz/app-kit-go/internal/bundler"
	"github.com/stablecoinxyz/app-kit-go/internal/logger"
	"github.com/stablecoinxyz/app-kit-go/internal/metrics"
	"github.com/stablecoinxyz/app-kit-go/internal/smartaccount"
	"github.com/stablecoinxyz/app-kit-go/internal/userop"
	"github.com/stablecoinxyz/app-kit-go/revert"
)

const (
	DefaultReceiptTimeout      = 2 * time.Minute
	DefaultReceiptPollInterval = time.Second
)

// ChainReader is the chain RPC surface used by the client. *ethclient.Client satisfies it.
type ChainReader interface {
	smartaccount.ContractCaller
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Bundler is the bundler/paymaster surface used by the client. *bundler.Client satisfies it.
type Bundler interface {
	EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*bundler.GasEstimation, error)
	SendUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (common.Hash, error)
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*bundler.UserOperationReceipt, error)
	GetPaymasterStubData(ctx context.Context, op *userop.UserOperation, entryPoint common.Address, chainID *big.Int) (*bundler.PaymasterData, error)
	GetPaymasterData(ctx context.Context, op *userop.UserOperation, entryPoint common.Address, chainID *big.Int) (*bundler.PaymasterData, error)
}

// Config holds the collaborators of a Client. Account, Reader and Bundler are required.
type Config struct {
	Chain   chains.ChainConfig
	Account smartaccount.SmartAccount
	Reader  ChainReader
	Bundler Bundler
	// Fees defaults to a FlatFeeEstimator over Reader.
	Fees                FeeEstimator
	Metrics             metrics.Collector
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
}

// Client is safe for concurrent use; calls share no mutable state.
type Client struct {
	chain        chains.ChainConfig
	account      smartaccount.SmartAccount
	reader       ChainReader
	bundler      Bundler
	fees         FeeEstimator
	collector    metrics.Collector
	timeout      time.Duration
	pollInterval time.Duration
}

// New returns a Client for cfg, filling in the default fee estimator,
// collector and receipt timings.
func New(cfg Config) (*Client, error) {
	if cfg.Account == nil || cfg.Reader == nil || cfg.Bundler == nil {
		return nil, errors.New("account, chain reader and bundler are required")
	}
	c := &Client{
		chain:        cfg.Chain,
		account:      cfg.Account,
		reader:       cfg.Reader,
		bundler:      cfg.Bundler,
		fees:         cfg.Fees,
		collector:    cfg.Metrics,
		timeout:      cfg.ReceiptTimeout,
		pollInterval: cfg.ReceiptPollInterval,
	}
	if c.fees == nil {
		c.fees = &FlatFeeEstimator{Reader: cfg.Reader}
	}
	if c.collector == nil {
		c.collector = metrics.NewNoopCollector()
	}
	if c.timeout <= 0 {
		c.timeout = DefaultReceiptTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultReceiptPollInterval
	}
	return c, nil
}

func (c *Client) Account() smartaccount.SmartAccount { return c.account }

// EstimationError is returned by Estimate. Message is the enriched error text.
type EstimationError struct {
	Err     error
	Message string
}

func (e *EstimationError) Error() string { return "gas estimation failed: " + e.Message }
func (e *EstimationError) Unwrap() error { return e.Err }

// SendError is returned by Send. Message is the enriched error text.
type SendError struct {
	Err     error
	Message string
}

func (e *SendError) Error() string { return "failed to send user operation: " + e.Message }
func (e *SendError) Unwrap() error { return e.Err }

// GasEstimate holds the prepared op's gas fields and the derived totals.
type GasEstimate struct {
	PreVerificationGas            *big.Int
	VerificationGasLimit          *big.Int
	CallGasLimit                  *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	TotalGasUsed                  *big.Int
	TotalGasCost                  *big.Int
}

// Result describes an included user operation.
type Result struct {
	UserOperationHash common.Hash
	TransactionHash   common.Hash
	BlockNumber       *big.Int
	GasUsed           *big.Int
	Success           bool
	Receipt           *bundler.UserOperationReceipt
}

// Prepare fills every field of a user operation for calls except the final signature,
// which is left as the account's stub signature.
func (c *Client) Prepare(ctx context.Context, calls []smartaccount.Call) (*userop.UserOperation, error) {
	if len(calls) == 0 {
		return nil, smartaccount.ErrEmptyCalls
	}

	sender, err := c.account.Address(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := c.account.Nonce(ctx)
	if err != nil {
		return nil, err
	}
	callData, err := c.account.EncodeCalls(calls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode calls: %w", err)
	}

	op := &userop.UserOperation{
		Sender:    sender,
		Nonce:     nonce,
		CallData:  callData,
		Signature: c.account.StubSignature(),
	}

	code, err := c.reader.CodeAt(ctx, sender, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check account code: %w", err)
	}
	if len(code) == 0 {
		factory, factoryData, err := c.account.FactoryArgs(ctx)
		if err != nil {
			return nil, err
		}
		op.Factory = &factory
		op.FactoryData = factoryData
		logger.Debug("Smart account %s not deployed, attaching factory %s", sender.Hex(), factory.Hex())
	}

	op.MaxFeePerGas, op.MaxPriorityFeePerGas, err = c.fees.EstimateFees(ctx)
	if err != nil {
		return nil, err
	}

	entryPoint := c.account.EntryPoint()
	chainID := c.chain.BigID()

	stub, err := c.bundler.GetPaymasterStubData(ctx, op, entryPoint, chainID)
	if err != nil {
		return nil, err
	}
	stub.Apply(op)

	estimate, err := c.bundler.EstimateUserOperationGas(ctx, op, entryPoint)
	if err != nil {
		return nil, err
	}
	estimate.Apply(op)

	if stub.IsFinal {
		return op, nil
	}
	final, err := c.bundler.GetPaymasterData(ctx, op, entryPoint, chainID)
	if err != nil {
		return nil, err
	}
	final.Apply(op)
	return op, nil
}

// Estimate prepares a user operation for calls and reports its gas fields and totals.
func (c *Client) Estimate(ctx context.Context, calls []smartaccount.Call) (estimate *GasEstimate, err error) {
	start := time.Now()
	defer func() {
		c.collector.MeasureOperationDuration(start, metrics.OperationEstimate, c.chain.StringID)
		c.collector.UserOperationCompleted(metrics.OperationEstimate, c.chain.StringID, err)
	}()

	estimate, err = c.estimate(ctx, calls)
	if err != nil {
		logger.With().Warn().Err(err).Str("chain", c.chain.StringID).Msg("user operation estimation failed")
		return nil, &EstimationError{Err: err, Message: revert.EnrichUserOperationError(err)}
	}
	return estimate, nil
}

func (c *Client) estimate(ctx context.Context, calls []smartaccount.Call) (*GasEstimate, error) {
	op, err := c.Prepare(ctx, calls)
	if err != nil {
		return nil, err
	}
	header, err := c.reader.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest block: %w", err)
	}

	used, cost := ComputeGasTotals(op, header.BaseFee)
	return &GasEstimate{
		PreVerificationGas:            op.PreVerificationGas,
		VerificationGasLimit:          op.VerificationGasLimit,
		CallGasLimit:                  op.CallGasLimit,
		MaxFeePerGas:                  op.MaxFeePerGas,
		MaxPriorityFeePerGas:          op.MaxPriorityFeePerGas,
		PaymasterVerificationGasLimit: op.PaymasterVerificationGasLimit,
		PaymasterPostOpGasLimit:       op.PaymasterPostOpGasLimit,
		TotalGasUsed:                  used,
		TotalGasCost:                  cost,
	}, nil
}

// Send prepares, signs and submits a user operation, then waits for its receipt.
func (c *Client) Send(ctx context.Context, calls []smartaccount.Call) (result *Result, err error) {
	start := time.Now()
	defer func() {
		c.collector.MeasureOperationDuration(start, metrics.OperationSend, c.chain.StringID)
		c.collector.UserOperationCompleted(metrics.OperationSend, c.chain.StringID, err)
	}()

	result, err = c.send(ctx, calls)
	if err != nil {
		logger.With().Warn().Err(err).Str("chain", c.chain.StringID).Msg("user operation send failed")
		return nil, &SendError{Err: err, Message: revert.EnrichUserOperationError(err)}
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, calls []smartaccount.Call) (*Result, error) {
	op, err := c.Prepare(ctx, calls)
	if err != nil {
		return nil, err
	}
	sig, err := c.account.SignUserOperation(ctx, op, c.chain.BigID())
	if err != nil {
		return nil, fmt.Errorf("failed to sign user operation: %w", err)
	}
	op.Signature = sig

	hash, err := c.bundler.SendUserOperation(ctx, op, c.account.EntryPoint())
	if err != nil {
		return nil, err
	}
	logger.Info("User operation sent on %s: %s", c.chain.Name, hash.Hex())

	receipt, err := c.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !receipt.Success {
		logger.Warn("User operation %s included but reverted: %s", hash.Hex(), receipt.Reason)
	}
	return &Result{
		UserOperationHash: hash,
		TransactionHash:   receipt.Receipt.TransactionHash,
		BlockNumber:       receipt.BlockNumber(),
		GasUsed:           receipt.GasUsed(),
		Success:           receipt.Success,
		Receipt:           receipt,
	}, nil
}

// WaitForReceipt polls the bundler until hash is included or the receipt timeout elapses.
// Transport errors are returned immediately.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*bundler.UserOperationReceipt, error) {
	var receipt *bundler.UserOperationReceipt
	backoff := retry.WithMaxDuration(c.timeout, retry.NewConstant(c.pollInterval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c.collector.ReceiptPolled(c.chain.StringID)
		r, err := c.bundler.GetUserOperationReceipt(ctx, hash)
		if err != nil {
			return err
		}
		if r == nil {
			return retry.RetryableError(fmt.Errorf("user operation %s not included yet", hash.Hex()))
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for user operation receipt: %w", err)
	}
	logger.Info("User operation %s included in transaction %s", hash.Hex(), receipt.Receipt.TransactionHash.Hex())
	return receipt, nil
}
