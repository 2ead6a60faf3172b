package etherman

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type Config struct {
	// URL of the external chain RPC endpoint
	RPCURL string

	// ChainID of the external network
	ChainID *big.Int

	// Deployed ERC20 bridge contract address
	BridgeContractAddress ethcommon.Address

	// Gas limit for a transcribe call
	GasLimit uint64
}
