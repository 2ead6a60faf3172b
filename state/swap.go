package state

import (
	"encoding/json"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

type SwapStatus string

const (
	SwapStatusValidated SwapStatus = "validated" // request accepted, nothing moved yet
	SwapStatusQuoted    SwapStatus = "quoted"    // gas fee quoted and pinned to the swap
	SwapStatusDebited   SwapStatus = "debited"   // native tokens taken from the source account
	SwapStatusSubmitted SwapStatus = "submitted" // signed tx handed to the target chain
	SwapStatusConfirmed SwapStatus = "confirmed" // target chain confirmed the tx
	SwapStatusFailed    SwapStatus = "failed"    // terminal failure before any debit
)

// Swap is the durable record of one cross-chain swap request, keyed by the
// caller-chosen nonce. The record survives restarts so a swap that was
// debited but not yet submitted can be picked up again instead of charging
// the user twice.
type Swap struct {
	Nonce       agreement.Subaccount
	Direction   agreement.SwapDirection
	Source      agreement.Account
	DestAddress string
	Amount      *big.Int
	Fee         uint64
	Status      SwapStatus
	DebitBlock  *big.Int // ledger block index of the debit transfer
	// External chain account nonce and gas price, pinned before the first
	// submission attempt. Every retry rebuilds the identical transaction,
	// so a resend of a tx the node already accepted is a no-op.
	EthNonce    *uint64
	EthGasPrice *big.Int
	EthTxHash   ethcommon.Hash // zero until submitted, burn tx for erc20_to_native
	FailureMsg  string
}

// NewSwapFromRequest validates a request and builds the initial record.
// Rejections are ValidationErrors; the request leaves no trace on failure.
func NewSwapFromRequest(req *agreement.SwapRequest) (*Swap, *agreement.ValidationError) {
	if !req.Direction.IsValid() {
		return nil, &agreement.ValidationError{Code: agreement.ValidationBadDirection}
	}

	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, &agreement.ValidationError{Code: agreement.ValidationAmountNotPositive}
	}

	dest := req.DestAddress
	switch req.Direction {
	case agreement.SwapDirectionNativeToErc20:
		if !ethcommon.IsHexAddress(dest) {
			return nil, &agreement.ValidationError{Code: agreement.ValidationBadDestination}
		}
		dest = ethcommon.HexToAddress(dest).Hex()
	case agreement.SwapDirectionErc20ToNative:
		if !agreement.Principal(dest).IsValid() || agreement.Principal(dest).IsAnonymous() {
			return nil, &agreement.ValidationError{Code: agreement.ValidationBadDestination}
		}
		if req.EthTxHash == (ethcommon.Hash{}) {
			return nil, &agreement.ValidationError{Code: agreement.ValidationMissingReceipt}
		}
	}

	swap := &Swap{
		Nonce:       req.Nonce,
		Direction:   req.Direction,
		Source:      req.Source,
		DestAddress: dest,
		Amount:      new(big.Int).Set(req.Amount),
		Status:      SwapStatusValidated,
	}
	if req.Direction == agreement.SwapDirectionErc20ToNative {
		swap.EthTxHash = req.EthTxHash
	}

	return swap, nil
}

func (s *Swap) HasDebited() bool {
	return s.DebitBlock != nil &&
		(s.Status == SwapStatusDebited || s.Status == SwapStatusSubmitted || s.Status == SwapStatusConfirmed)
}

func (s *Swap) IsFinal() bool {
	return s.Status == SwapStatusConfirmed || s.Status == SwapStatusFailed
}

func (s *Swap) Clone() *Swap {
	clone := *s
	clone.Amount = new(big.Int).Set(s.Amount)
	if s.DebitBlock != nil {
		clone.DebitBlock = new(big.Int).Set(s.DebitBlock)
	}
	if s.EthNonce != nil {
		nonce := *s.EthNonce
		clone.EthNonce = &nonce
	}
	if s.EthGasPrice != nil {
		clone.EthGasPrice = new(big.Int).Set(s.EthGasPrice)
	}

	return &clone
}

func (s *Swap) String() string {
	return fmt.Sprintf("Swap { Nonce: %s, Direction: %s, Source: %s, Dest: %s, Amount: %v, Fee: %d, Status: %s, EthTxHash: %s }",
		s.Nonce.Hex(), s.Direction, s.Source.String(), s.DestAddress, s.Amount, s.Fee, s.Status, s.EthTxHash)
}

type JSONSwap struct {
	Nonce       string `json:"nonce"`
	Direction   string `json:"direction"`
	Source      string `json:"source"`
	DestAddress string `json:"destAddress"`
	Amount      string `json:"amount"`
	Fee         uint64 `json:"fee"`
	Status      string `json:"status"`
	DebitBlock  string `json:"debitBlock,omitempty"`
	EthTxHash   string `json:"ethTxHash,omitempty"`
	FailureMsg  string `json:"failureMsg,omitempty"`
}

func (s *Swap) MarshalJSON() ([]byte, error) {
	j := &JSONSwap{
		Nonce:       s.Nonce.Hex(),
		Direction:   string(s.Direction),
		Source:      s.Source.String(),
		DestAddress: s.DestAddress,
		Amount:      s.Amount.String(),
		Fee:         s.Fee,
		Status:      string(s.Status),
		FailureMsg:  s.FailureMsg,
	}
	if s.DebitBlock != nil {
		j.DebitBlock = s.DebitBlock.String()
	}
	if s.EthTxHash != (ethcommon.Hash{}) {
		j.EthTxHash = s.EthTxHash.String()
	}

	return json.Marshal(j)
}
