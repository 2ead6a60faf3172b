package state

import (
	"database/sql"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/common"
)

type sqlSwap struct {
	Nonce       string // hex, no 0x prefix
	Direction   string
	SourceOwner string
	SourceSub   string // hex, no 0x prefix
	DestAddress string
	Amount      string // decimal big int
	Fee         uint64
	Status      string
	DebitBlock  sql.NullString // decimal big int, NULL before debit
	EthNonce    sql.NullInt64  // NULL until pinned for submission
	EthGasPrice sql.NullString // decimal big int, pinned with the nonce
	EthTxHash   sql.NullString // hex, no 0x prefix, NULL before submit
	FailureMsg  sql.NullString
}

func (s *sqlSwap) encode(swap *Swap) *sqlSwap {
	s.Nonce = common.ByteSliceToPureHexStr(swap.Nonce[:])
	s.Direction = string(swap.Direction)
	s.SourceOwner = string(swap.Source.Owner)
	s.SourceSub = common.ByteSliceToPureHexStr(swap.Source.Subaccount[:])
	s.DestAddress = swap.DestAddress
	s.Amount = swap.Amount.String()
	s.Fee = swap.Fee
	s.Status = string(swap.Status)

	if swap.DebitBlock != nil {
		s.DebitBlock = sql.NullString{String: swap.DebitBlock.String(), Valid: true}
	}
	if swap.EthNonce != nil {
		s.EthNonce = sql.NullInt64{Int64: int64(*swap.EthNonce), Valid: true}
	}
	if swap.EthGasPrice != nil {
		s.EthGasPrice = sql.NullString{String: swap.EthGasPrice.String(), Valid: true}
	}
	if swap.EthTxHash != (ethcommon.Hash{}) {
		s.EthTxHash = sql.NullString{String: swap.EthTxHash.String()[2:], Valid: true}
	}
	if swap.FailureMsg != "" {
		s.FailureMsg = sql.NullString{String: swap.FailureMsg, Valid: true}
	}

	return s
}

func (s *sqlSwap) decode() (*Swap, error) {
	amount, ok := new(big.Int).SetString(s.Amount, 10)
	if !ok {
		return nil, ErrorAmountCorrupted
	}

	swap := &Swap{
		Nonce:     agreement.Subaccount(common.HexStrToBytes32("0x" + s.Nonce)),
		Direction: agreement.SwapDirection(s.Direction),
		Source: agreement.Account{
			Owner:      agreement.Principal(s.SourceOwner),
			Subaccount: agreement.Subaccount(common.HexStrToBytes32("0x" + s.SourceSub)),
		},
		DestAddress: s.DestAddress,
		Amount:      amount,
		Fee:         s.Fee,
		Status:      SwapStatus(s.Status),
	}

	if s.DebitBlock.Valid {
		block, ok := new(big.Int).SetString(s.DebitBlock.String, 10)
		if !ok {
			return nil, ErrorDebitBlockCorrupted
		}
		swap.DebitBlock = block
	}
	if s.EthNonce.Valid {
		nonce := uint64(s.EthNonce.Int64)
		swap.EthNonce = &nonce
	}
	if s.EthGasPrice.Valid {
		price, ok := new(big.Int).SetString(s.EthGasPrice.String, 10)
		if !ok {
			return nil, ErrorAmountCorrupted
		}
		swap.EthGasPrice = price
	}
	if s.EthTxHash.Valid {
		swap.EthTxHash = ethcommon.Hash(common.HexStrToBytes32("0x" + s.EthTxHash.String))
	}
	if s.FailureMsg.Valid {
		swap.FailureMsg = s.FailureMsg.String
	}

	return swap, nil
}

func (s *sqlSwap) scan(rows *sql.Rows) error {
	return rows.Scan(
		&s.Nonce,
		&s.Direction,
		&s.SourceOwner,
		&s.SourceSub,
		&s.DestAddress,
		&s.Amount,
		&s.Fee,
		&s.Status,
		&s.DebitBlock,
		&s.EthNonce,
		&s.EthGasPrice,
		&s.EthTxHash,
		&s.FailureMsg,
	)
}
