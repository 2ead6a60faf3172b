// Global agreement on swap and pool types.

package agreement

import (
	"fmt"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// SwapDirection tells which ledger is debited and which is credited.
type SwapDirection string

const (
	// native ICRC ledger -> external ERC20 representation
	SwapDirectionNativeToErc20 SwapDirection = "native_to_erc20"
	// external ERC20 representation -> native ICRC ledger
	SwapDirectionErc20ToNative SwapDirection = "erc20_to_native"
)

func (d SwapDirection) IsValid() bool {
	return d == SwapDirectionNativeToErc20 || d == SwapDirectionErc20ToNative
}

// SwapRequest is immutable once submitted.
type SwapRequest struct {
	Direction SwapDirection
	Source    Account
	// Recipient on the destination side: hex ERC20 address for
	// native_to_erc20, principal text for erc20_to_native.
	DestAddress string
	Amount      *big.Int
	// Optional idempotency nonce (subaccount bytes). Zero value means the
	// orchestrator generates one.
	Nonce Subaccount
	// EthTxHash is the external-chain burn transaction backing an
	// erc20_to_native request. Required for that direction; the credit
	// only happens after the gateway has verified the receipt. Ignored
	// for native_to_erc20.
	EthTxHash ethcommon.Hash
}

func (r *SwapRequest) String() string {
	return fmt.Sprintf("SwapRequest { Direction: %s, Source: %s, Dest: %s, Amount: %v, Nonce: %s }",
		r.Direction, r.Source, r.DestAddress, r.Amount, r.Nonce.Hex())
}

// FeeQuote is an advisory, time-boxed bridging fee in the native token's
// smallest unit. A stale quote must be refreshed before committing a swap.
type FeeQuote struct {
	Amount     uint64
	FetchedAt  time.Time
	ValidUntil time.Time
}

func (q FeeQuote) Expired(now time.Time) bool {
	return !now.Before(q.ValidUntil)
}

// EthNetwork is the external EVM chain the ERC20 representation lives on.
type EthNetwork string

const (
	EthNetworkEthereum EthNetwork = "ethereum"
	EthNetworkSepolia  EthNetwork = "sepolia"
	EthNetworkGoerli   EthNetwork = "goerli"
)

func (n EthNetwork) ChainID() *big.Int {
	switch n {
	case EthNetworkEthereum:
		return big.NewInt(1)
	case EthNetworkGoerli:
		return big.NewInt(5)
	case EthNetworkSepolia:
		return big.NewInt(11155111)
	default:
		return nil
	}
}

// LiquidityPoolAccounts holds the per-asset deposit accounts of the pool.
type LiquidityPoolAccounts struct {
	Icp   Account `json:"icp"`
	CkBtc Account `json:"ckbtc"`
}

// LiquidityPoolBalance holds the per-asset balances of the pool.
type LiquidityPoolBalance struct {
	Icp   *big.Int `json:"icp"`
	CkBtc *big.Int `json:"ckbtc"`
}

// RewardClaim records a disbursed (or in-flight) reward installment.
// The (ContractID, Installment) pair is the exactly-once key.
type RewardClaim struct {
	ContractID  uint64
	Installment uint64
	Amount      *big.Int
	Recipient   Account
	// Ledger block index of the successful transfer, nil while in flight.
	BlockIndex *big.Int
}

// SignatureRequest is handed to the threshold signing service; the service
// answers with the 65-byte [R || S || V] signature over SigningHash.
type SignatureRequest struct {
	Id          ethcommon.Hash
	SigningHash ethcommon.Hash
	Signature   []byte
}
