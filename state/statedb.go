package state

import (
	"database/sql"
	"errors"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/mattn/go-sqlite3"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/common"
	"github.com/ekoketoken/ekoke-bridge-go/database"
)

var (
	ErrorAmountCorrupted     = errors.New("stored amount invalid")
	ErrorDebitBlockCorrupted = errors.New("stored debit block invalid")
	ErrorSwapUnknown         = errors.New("swap not found")
	ErrorSwapExists          = errors.New("swap already recorded")
)

// StateDB is the durable swap and reward-claim store. It records every
// status transition synchronously, so after a crash the orchestrator can
// tell exactly how far each swap got.
type StateDB struct {
	stmtCache *database.StmtCache
}

func NewStateDB(db *sql.DB) (*StateDB, error) {
	if _, err := db.Exec(swapTable + claimTable); err != nil {
		return nil, err
	}

	return &StateDB{
		stmtCache: database.NewStmtCache(db),
	}, nil
}

func (st *StateDB) Close() {
	st.stmtCache.Clear()
}

// InsertSwap stores a freshly validated swap. The insert is the
// concurrency gate: of two racing requests exactly one row lands, the
// loser gets ErrorSwapExists and must replay the stored record. The same
// error fires when the burn tx hash is already claimed by another swap.
func (st *StateDB) InsertSwap(swap *Swap) error {
	query := `INSERT INTO swap (` + swapParamList + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	s := new(sqlSwap).encode(swap)
	_, err = stmt.Exec(
		s.Nonce,
		s.Direction,
		s.SourceOwner,
		s.SourceSub,
		s.DestAddress,
		s.Amount,
		s.Fee,
		s.Status,
		s.DebitBlock,
		s.EthNonce,
		s.EthGasPrice,
		s.EthTxHash,
		s.FailureMsg,
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return ErrorSwapExists
		}
		return err
	}
	return nil
}

// UpdateSwapEthParams pins the external account nonce and gas price of the
// outbound transaction. Written before the first submission attempt so a
// retry after a lost response rebuilds the identical transaction.
func (st *StateDB) UpdateSwapEthParams(nonce agreement.Subaccount, ethNonce uint64, gasPrice *big.Int) error {
	query := `UPDATE swap SET ethNonce = ?, ethGasPrice = ? WHERE nonce = ?`
	return st.exec(query, ethNonce, gasPrice.String(), nonceHex(nonce))
}

func (st *StateDB) UpdateSwapQuoted(nonce agreement.Subaccount, fee uint64) error {
	query := `UPDATE swap SET fee = ?, status = ? WHERE nonce = ?`
	return st.exec(query, fee, SwapStatusQuoted, nonceHex(nonce))
}

func (st *StateDB) UpdateSwapDebited(nonce agreement.Subaccount, debitBlock *big.Int) error {
	query := `UPDATE swap SET debitBlock = ?, status = ? WHERE nonce = ?`
	return st.exec(query, debitBlock.String(), SwapStatusDebited, nonceHex(nonce))
}

func (st *StateDB) UpdateSwapSubmitted(nonce agreement.Subaccount, txHash ethcommon.Hash) error {
	query := `UPDATE swap SET ethTxHash = ?, status = ? WHERE nonce = ?`
	return st.exec(query, txHash.String()[2:], SwapStatusSubmitted, nonceHex(nonce))
}

func (st *StateDB) UpdateSwapConfirmed(nonce agreement.Subaccount) error {
	query := `UPDATE swap SET status = ? WHERE nonce = ?`
	return st.exec(query, SwapStatusConfirmed, nonceHex(nonce))
}

// UpdateSwapFailed also clears the burn tx hash: a failed swap never
// credited anything, so its receipt stays claimable under a fresh nonce.
func (st *StateDB) UpdateSwapFailed(nonce agreement.Subaccount, msg string) error {
	query := `UPDATE swap SET failureMsg = ?, status = ?, ethTxHash = NULL WHERE nonce = ?`
	return st.exec(query, msg, SwapStatusFailed, nonceHex(nonce))
}

// GetSwapByNonce is the outcome cache lookup: a resubmitted request with a
// known nonce replays the stored record instead of moving funds again.
func (st *StateDB) GetSwapByNonce(nonce agreement.Subaccount) (*Swap, bool, error) {
	swaps, err := st.querySwaps(`SELECT `+swapParamList+` FROM swap WHERE nonce = ?`, nonceHex(nonce))
	if err != nil {
		return nil, false, err
	}
	if len(swaps) == 0 {
		return nil, false, nil
	}
	return swaps[0], true, nil
}

func (st *StateDB) GetSwapsByStatus(status SwapStatus) ([]*Swap, error) {
	return st.querySwaps(`SELECT `+swapParamList+` FROM swap WHERE status = ?`, string(status))
}

// GetDebitedUnsubmitted is the reconciliation queue: swaps whose debit
// went through but whose outbound tx never made it to the chain.
func (st *StateDB) GetDebitedUnsubmitted() ([]*Swap, error) {
	return st.GetSwapsByStatus(SwapStatusDebited)
}

func (st *StateDB) GetUnfinishedSwaps() ([]*Swap, error) {
	query := `SELECT ` + swapParamList + ` FROM swap WHERE status IN (?, ?)`
	return st.querySwaps(query, string(SwapStatusDebited), string(SwapStatusSubmitted))
}

// --- reward claims ---

func (st *StateDB) HasClaim(contractID, installment uint64) (bool, error) {
	query := `SELECT COUNT(*) FROM reward_claim WHERE contractId = ? AND installment = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return false, err
	}

	var count int
	if err := stmt.QueryRow(contractID, installment).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (st *StateDB) GetClaim(contractID, installment uint64) (*agreement.RewardClaim, bool, error) {
	query := `SELECT amount, recipientOwner, recipientSub, blockIndex FROM reward_claim
		WHERE contractId = ? AND installment = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var rawAmount, owner, sub, rawBlock string
	if err := stmt.QueryRow(contractID, installment).Scan(&rawAmount, &owner, &sub, &rawBlock); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	amount, ok := new(big.Int).SetString(rawAmount, 10)
	if !ok {
		return nil, false, ErrorAmountCorrupted
	}
	block, ok := new(big.Int).SetString(rawBlock, 10)
	if !ok {
		return nil, false, ErrorDebitBlockCorrupted
	}

	return &agreement.RewardClaim{
		ContractID:  contractID,
		Installment: installment,
		Amount:      amount,
		Recipient: agreement.Account{
			Owner:      agreement.Principal(owner),
			Subaccount: agreement.Subaccount(common.HexStrToBytes32("0x" + sub)),
		},
		BlockIndex: block,
	}, true, nil
}

func (st *StateDB) InsertClaim(claim *agreement.RewardClaim) error {
	query := `INSERT INTO reward_claim (contractId, installment, amount, recipientOwner, recipientSub, blockIndex)
		VALUES (?, ?, ?, ?, ?, ?)`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		claim.ContractID,
		claim.Installment,
		claim.Amount.String(),
		string(claim.Recipient.Owner),
		common.ByteSliceToPureHexStr(claim.Recipient.Subaccount[:]),
		claim.BlockIndex.String(),
	)
	return err
}

// --- internals ---

func (st *StateDB) exec(query string, args ...any) error {
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	res, err := stmt.Exec(args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrorSwapUnknown
	}

	return nil
}

func (st *StateDB) querySwaps(query string, args ...any) ([]*Swap, error) {
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var swaps []*Swap
	for rows.Next() {
		var s sqlSwap
		if err := s.scan(rows); err != nil {
			return nil, err
		}
		swap, err := s.decode()
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, swap)
	}

	return swaps, rows.Err()
}

func nonceHex(nonce agreement.Subaccount) string {
	return common.ByteSliceToPureHexStr(nonce[:])
}
