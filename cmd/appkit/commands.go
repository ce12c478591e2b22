package main

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/stablecoinxyz/app-kit-go/appkit"
	"github.com/stablecoinxyz/app-kit-go/chains"
	"github.com/stablecoinxyz/app-kit-go/revert"
	"github.com/stablecoinxyz/app-kit-go/wallet"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "Lists the supported chains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printJSON(cmd.OutOrStdout(), chains.Supported())
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Shows the smart account of the configured owner",
	RunE: func(cmd *cobra.Command, _ []string) error {
		kit, err := newAppKit(cmd.Context())
		if err != nil {
			return err
		}
		defer kit.Close()

		info, err := kit.GetAccount(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), info)
	},
}

var opFlags struct {
	to    string
	data  string
	value string
	calls []string
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimates gas for a sponsored user operation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		params, err := operationParams()
		if err != nil {
			return err
		}
		kit, err := newAppKit(cmd.Context())
		if err != nil {
			return err
		}
		defer kit.Close()

		estimate, err := kit.EstimateUserOperation(cmd.Context(), params)
		if err != nil {
			return userOperationError(err)
		}
		return printJSON(cmd.OutOrStdout(), estimate)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sends a sponsored user operation and waits for its receipt",
	RunE: func(cmd *cobra.Command, _ []string) error {
		params, err := operationParams()
		if err != nil {
			return err
		}
		kit, err := newAppKit(cmd.Context())
		if err != nil {
			return err
		}
		defer kit.Close()

		result, err := kit.SendUserOperation(cmd.Context(), params)
		if err != nil {
			return userOperationError(err)
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	for _, c := range []*cobra.Command{estimateCmd, sendCmd} {
		c.Flags().StringVar(&opFlags.to, "to", "", "call target address")
		c.Flags().StringVar(&opFlags.data, "data", "", "call data, hex")
		c.Flags().StringVar(&opFlags.value, "value", "", "value in ether, e.g. 0.01")
		c.Flags().StringArrayVar(&opFlags.calls, "call", nil, "batch call as to,data,weiValue (repeatable)")
	}
}

// userOperationError surfaces the enriched message of estimate and send failures.
func userOperationError(err error) error {
	var estErr *appkit.EstimationError
	if errors.As(err, &estErr) {
		return errors.New(estErr.Message)
	}
	var sendErr *appkit.SendError
	if errors.As(err, &sendErr) {
		return errors.New(sendErr.Message)
	}
	return err
}

func operationParams() (appkit.UserOperationParams, error) {
	if len(opFlags.calls) > 0 {
		if opFlags.to != "" || opFlags.data != "" || opFlags.value != "" {
			return appkit.UserOperationParams{}, errors.New("--call cannot be combined with --to, --data or --value")
		}
		calls, err := parseCalls(opFlags.calls)
		if err != nil {
			return appkit.UserOperationParams{}, err
		}
		return appkit.UserOperationParams{Calls: calls}, nil
	}

	if !common.IsHexAddress(opFlags.to) {
		return appkit.UserOperationParams{}, fmt.Errorf("invalid --to address %q", opFlags.to)
	}
	data, err := decodeHex(opFlags.data)
	if err != nil {
		return appkit.UserOperationParams{}, fmt.Errorf("invalid --data: %w", err)
	}
	return appkit.UserOperationParams{To: common.HexToAddress(opFlags.to), Data: data, Value: opFlags.value}, nil
}

// parseCalls reads "to,data,weiValue" entries. data and weiValue may be empty.
func parseCalls(entries []string) ([]appkit.Call, error) {
	calls := make([]appkit.Call, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ",")
		if len(parts) > 3 {
			return nil, fmt.Errorf("invalid call %q: expected to,data,weiValue", entry)
		}
		parts = append(parts, lo.Times(3-len(parts), func(int) string { return "" })...)

		to := strings.TrimSpace(parts[0])
		if !common.IsHexAddress(to) {
			return nil, fmt.Errorf("invalid call %q: bad address", entry)
		}
		data, err := decodeHex(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid call %q: %w", entry, err)
		}
		value := new(big.Int)
		if v := strings.TrimSpace(parts[2]); v != "" {
			if _, ok := value.SetString(v, 0); !ok {
				return nil, fmt.Errorf("invalid call %q: bad wei value", entry)
			}
		}
		calls = append(calls, appkit.Call{To: common.HexToAddress(to), Data: data, Value: value})
	}
	return calls, nil
}

func decodeHex(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

var decodeCmd = &cobra.Command{
	Use:   "decode <revert data>",
	Short: "Decodes an Error(string) or Panic(uint256) revert payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, ok := revert.Decode(args[0])
		if !ok {
			return fmt.Errorf("no decodable revert reason in %s", args[0])
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), reason)
		return err
	},
}

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "Reports which wallet options are available",
	RunE: func(cmd *cobra.Command, _ []string) error {
		prober := wallet.DefaultProber{KeystoreDir: flags.keystoreDir, ExternalEndpoint: flags.signer}
		return printJSON(cmd.OutOrStdout(), prober.Probe(cmd.Context()))
	},
}
