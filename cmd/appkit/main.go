package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/stablecoinxyz/app-kit-go/appkit"
	"github.com/stablecoinxyz/app-kit-go/chains"
	"github.com/stablecoinxyz/app-kit-go/internal/logger"
	"github.com/stablecoinxyz/app-kit-go/wallet"
)

var rootCmd = &cobra.Command{
	Use:           "appkit",
	Short:         "Gasless ERC-4337 user operations through the SBC bundler",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		if flags.debug {
			logger.SetLogLevel(logger.DEBUG)
		}
	},
}

var flags struct {
	apiKey       string
	chainID      int64
	privateKey   string
	rpcURL       string
	paymasterURL string
	staging      bool
	debug        bool

	keystoreDir      string
	keystorePassword string
	signer           string
	account          string
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.apiKey, "api-key", os.Getenv("SBC_API_KEY"), "SBC API key (env SBC_API_KEY)")
	pf.Int64Var(&flags.chainID, "chain", chains.BaseSepoliaID, "chain id")
	pf.StringVar(&flags.privateKey, "private-key", os.Getenv("SBC_PRIVATE_KEY"), "owner private key, hex (env SBC_PRIVATE_KEY)")
	pf.StringVar(&flags.rpcURL, "rpc-url", "", "override the chain RPC URL")
	pf.StringVar(&flags.paymasterURL, "paymaster-url", "", "override the bundler/paymaster base URL")
	pf.BoolVar(&flags.staging, "staging", false, "use the staging bundler")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	pf.StringVar(&flags.keystoreDir, "keystore", "", "keystore directory holding the owner key")
	pf.StringVar(&flags.keystorePassword, "keystore-password", os.Getenv("SBC_KEYSTORE_PASSWORD"), "keystore passphrase (env SBC_KEYSTORE_PASSWORD)")
	pf.StringVar(&flags.signer, "signer", "", "external signer endpoint, e.g. clef's ipc path or http url")
	pf.StringVar(&flags.account, "account", "", "owner address to pick from the keystore or external signer, defaults to the first")

	rootCmd.AddCommand(chainsCmd, accountCmd, estimateCmd, sendCmd, decodeCmd, walletsCmd)
}

// newAppKit builds the app kit from the global flags. A keystore or external
// signer owner is connected through wallet discovery.
func newAppKit(ctx context.Context) (*appkit.AppKit, error) {
	opt, err := walletOption()
	if err != nil {
		return nil, err
	}
	kit, err := appkit.New(appkit.Config{
		APIKey:       flags.apiKey,
		ChainID:      flags.chainID,
		RPCURL:       flags.rpcURL,
		PaymasterURL: flags.paymasterURL,
		PrivateKey:   flags.privateKey,
		Discovery:    opt != nil,
		Staging:      flags.staging,
		Debug:        flags.debug,
	})
	if err != nil {
		return nil, err
	}
	if opt == nil {
		return kit, nil
	}
	if err := kit.ConnectWallet(ctx, opt); err != nil {
		kit.Close()
		return nil, err
	}
	return kit, nil
}

// walletOption returns the keystore or external signer option selected by
// the flags, or nil when the owner comes from --private-key.
func walletOption() (wallet.Option, error) {
	if flags.keystoreDir == "" && flags.signer == "" {
		return nil, nil
	}
	if flags.keystoreDir != "" && flags.signer != "" {
		return nil, errors.New("--keystore cannot be combined with --signer")
	}
	if flags.privateKey != "" {
		return nil, errors.New("--private-key cannot be combined with --keystore or --signer")
	}

	var address common.Address
	if flags.account != "" {
		if !common.IsHexAddress(flags.account) {
			return nil, fmt.Errorf("invalid --account address %q", flags.account)
		}
		address = common.HexToAddress(flags.account)
	}
	if flags.keystoreDir != "" {
		return wallet.KeystoreOption{Dir: flags.keystoreDir, Address: address, Passphrase: flags.keystorePassword}, nil
	}
	return wallet.ExternalSignerOption{Endpoint: flags.signer, Address: address}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.With().Debug().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
