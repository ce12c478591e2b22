// Package chains holds the static registry of networks served by the SBC
// bundler/paymaster. The registry is read once at process start from the
// embedded chains.yaml, or from the file named by APPKIT_CHAINS_PATH.
package chains

import (
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/stablecoinxyz/app-kit-go/internal/logger"
)

var (
	//go:embed chains.yaml
	embeddedRegistry []byte

	registry map[int64]ChainConfig
)

const (
	registryPathEnvVar = "APPKIT_CHAINS_PATH"

	BaseID          int64 = 8453
	BaseSepoliaID   int64 = 84532
	RadiusTestnetID int64 = 1223953
)

type (
	file struct {
		Chains []ChainConfig `yaml:"chains"`
	}

	// ChainConfig describes one supported network. Values are never mutated after load.
	ChainConfig struct {
		ID          int64  `yaml:"id"`
		Name        string `yaml:"name"`
		StringID    string `yaml:"string-id"`
		RPCURL      string `yaml:"rpc-url"`
		BundlerURL  string `yaml:"bundler-url"`
		ExplorerURL string `yaml:"explorer-url"`
	}
)

// UnsupportedChainError is returned for chain ids absent from the registry.
type UnsupportedChainError struct {
	ChainID   int64
	Supported []string
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("unsupported chain %d, supported chains: %s", e.ChainID, strings.Join(e.Supported, ", "))
}

func init() {
	registryPath, isSet := os.LookupEnv(registryPathEnvVar)
	if !isSet {
		logger.Debug("%s was not set, will use chain registry from embedded chains.yaml", registryPathEnvVar)
		if err := load(embeddedRegistry); err != nil {
			panic(err.Error())
		}
		return
	}

	logger.Info("%s environment variable set to: %s. Loading chain registry", registryPathEnvVar, registryPath)
	data, err := os.ReadFile(registryPath)
	if err != nil {
		panic(fmt.Errorf("failed to read chain registry %s: %w", registryPath, err))
	}
	if err := load(data); err != nil {
		panic(err.Error())
	}
}

func load(data []byte) error {
	parsed, err := parse(data)
	if err != nil {
		return err
	}
	registry = parsed
	logger.Debug("chain registry loaded: %s", strings.Join(SupportedNames(), ", "))
	return nil
}

func parse(data []byte) (map[int64]ChainConfig, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chain registry: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid chain registry: %w", err)
	}
	return lo.SliceToMap(f.Chains, func(c ChainConfig) (int64, ChainConfig) {
		return c.ID, c
	}), nil
}

func (f *file) validate() error {
	var err error
	if len(f.Chains) == 0 {
		return fmt.Errorf("at least one chain must be provided")
	}

	seen := make(map[int64]bool, len(f.Chains))
	for i, c := range f.Chains {
		if c.ID <= 0 {
			err = errors.Join(err, fmt.Errorf("field: 'id', chain #%d, must be set and positive", i))
		}
		if seen[c.ID] {
			err = errors.Join(err, fmt.Errorf("field: 'id', chain #%d, duplicate id %d", i, c.ID))
		}
		seen[c.ID] = true
		if c.Name == "" {
			err = errors.Join(err, fmt.Errorf("field: 'name', chain #%d, must be set and non-empty", i))
		}
		if c.StringID == "" {
			err = errors.Join(err, fmt.Errorf("field: 'string-id', chain #%d, must be set and non-empty", i))
		}
		for field, raw := range map[string]string{"rpc-url": c.RPCURL, "bundler-url": c.BundlerURL, "explorer-url": c.ExplorerURL} {
			if u, perr := url.Parse(raw); perr != nil || u.Scheme == "" || u.Host == "" {
				err = errors.Join(err, fmt.Errorf("field: '%s', chain #%d, must be an absolute URL", field, i))
			}
		}
	}
	return err
}

// Lookup returns the registry entry for id.
func Lookup(id int64) (ChainConfig, error) {
	c, ok := registry[id]
	if !ok {
		return ChainConfig{}, &UnsupportedChainError{ChainID: id, Supported: SupportedNames()}
	}
	return c, nil
}

// IsSupported reports whether id is in the registry.
func IsSupported(id int64) bool {
	_, ok := registry[id]
	return ok
}

// Supported returns every registered chain ordered by id.
func Supported() []ChainConfig {
	out := lo.Values(registry)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SupportedNames returns the display names of every registered chain, sorted.
func SupportedNames() []string {
	names := lo.Map(lo.Values(registry), func(c ChainConfig, _ int) string { return c.Name })
	sort.Strings(names)
	return names
}

// BigID returns the chain id as a big.Int.
func (c ChainConfig) BigID() *big.Int {
	return big.NewInt(c.ID)
}

// TxURL links a transaction hash on the chain's block explorer.
func (c ChainConfig) TxURL(hash string) string {
	return strings.TrimSuffix(c.ExplorerURL, "/") + "/tx/" + hash
}
