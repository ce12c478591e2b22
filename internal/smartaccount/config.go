package smartaccount

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/stablecoinxyz/app-kit-go/internal/helpers"
	"github.com/stablecoinxyz/app-kit-go/internal/userop"
)

// Kernel v3.1 deployments, identical on every supported chain.
var (
	kernelECDSAValidatorAddress = common.HexToAddress("0x845ADb2C711129d4f3966735eD98a9F09fC4cE57")
	kernelFactoryAddress        = common.HexToAddress("0xaac5D4240AF87249B3f71BC8E4A2cae074A3E419")
	kernelMetaFactoryAddress    = common.HexToAddress("0xd703aaE79538628d27099B8c4f621bE4CCd142d5")
	kernelEntryPointAddress     = userop.EntryPointV07
	kernelDomainName            = "Kernel"
	kernelDomainVersion         = "0.3.1"

	// validation type prefix of a validator identifier
	validationTypeValidator = byte(0x01)
)

// SimpleAccount deployment on radiusTestnet.
var (
	simpleAccountEntryPointAddress = common.HexToAddress("0x9b443e4bd122444852B52331f851a000164Cc83F")
	simpleAccountFactoryAddress    = common.HexToAddress("0x4DEbDe0Be05E51432D9afAf61D84F7F0fEA63495")
)

// dummyECDSASignature has a valid length and recovers to some address, so
// bundlers accept it during simulation.
var dummyECDSASignature = common.FromHex("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

var (
	entryPointABI = helpers.MustParseABI(`[
		{"type":"function","name":"getSenderAddress","stateMutability":"nonpayable","inputs":[{"name":"initCode","type":"bytes"}],"outputs":[]},
		{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]},
		{"type":"error","name":"SenderAddressResult","inputs":[{"name":"sender","type":"address"}]}
	]`)

	kernelAccountABI = helpers.MustParseABI(`[
		{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[{"name":"_rootValidator","type":"bytes21"},{"name":"hook","type":"address"},{"name":"validatorData","type":"bytes"},{"name":"hookData","type":"bytes"},{"name":"initConfig","type":"bytes[]"}],"outputs":[]},
		{"type":"function","name":"execute","stateMutability":"payable","inputs":[{"name":"execMode","type":"bytes32"},{"name":"executionCalldata","type":"bytes"}],"outputs":[]}
	]`)

	kernelMetaFactoryABI = helpers.MustParseABI(`[
		{"type":"function","name":"deployWithFactory","stateMutability":"payable","inputs":[{"name":"factory","type":"address"},{"name":"createData","type":"bytes"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
	]`)

	simpleAccountABI = helpers.MustParseABI(`[
		{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"outputs":[]},
		{"type":"function","name":"executeBatch","stateMutability":"nonpayable","inputs":[{"name":"dest","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"func","type":"bytes[]"}],"outputs":[]}
	]`)

	simpleAccountFactoryABI = helpers.MustParseABI(`[
		{"type":"function","name":"createAccount","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"ret","type":"address"}]}
	]`)
)
