package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/common"
)

// TxWindow bounds the acceptable transaction-time window. The ledger
// refuses transactions older or newer than this.
const TxWindow = uint64(5 * 60 * 1_000_000_000) // 5 minutes in nanos

// SimulatedLedger is a full in-memory ICRC-1/2 ledger used in tests and in
// demo wiring. It enforces the same contracts as the production ledger:
// configured fee (BadFee), tx-time window (TooOld / CreatedInFuture),
// request deduplication (replays the original block index), and allowance
// bookkeeping with expiry.
type SimulatedLedger struct {
	mu sync.Mutex

	// the principal this client acts as (the bridge canister)
	owner agreement.Principal

	fee            *big.Int
	minBurn        *big.Int
	mintingAccount agreement.Account

	balances   map[agreement.Account]*big.Int
	allowances map[allowanceKey]*Allowance
	dedup      map[[32]byte]*big.Int
	nextBlock  uint64

	// injectable clock, nanoseconds
	now func() uint64
}

type allowanceKey struct {
	From    agreement.Account
	Spender agreement.Account
}

func NewSimulatedLedger(owner agreement.Principal, fee *big.Int, minting agreement.Account) *SimulatedLedger {
	return &SimulatedLedger{
		owner:          owner,
		fee:            common.BigIntClone(fee),
		minBurn:        common.BigIntClone(fee),
		mintingAccount: minting,
		balances:       map[agreement.Account]*big.Int{},
		allowances:     map[allowanceKey]*Allowance{},
		dedup:          map[[32]byte]*big.Int{},
		now:            common.NowNanos,
	}
}

// SetClock replaces the ledger clock. Test use only.
func (sl *SimulatedLedger) SetClock(now func() uint64) {
	sl.now = now
}

// SetBalance seeds an account balance.
func (sl *SimulatedLedger) SetBalance(account agreement.Account, amount *big.Int) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.balances[account] = common.BigIntClone(amount)
}

// SetAllowance seeds an allowance, standing in for an approval made by a
// principal other than the owner.
func (sl *SimulatedLedger) SetAllowance(from, spender agreement.Account, amount *big.Int) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.allowances[allowanceKey{From: from, Spender: spender}] = &Allowance{
		Allowance: common.BigIntClone(amount),
	}
}

func (sl *SimulatedLedger) Transfer(_ context.Context, arg TransferArg) (*big.Int, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	from := agreement.Account{Owner: sl.owner, Subaccount: arg.FromSubaccount}

	if err := sl.checkTimeWindow(arg.CreatedAtTime); err != nil {
		return nil, err
	}

	if arg.Fee != nil && arg.Fee.Cmp(sl.fee) != 0 {
		return nil, &agreement.TransferError{
			Code:        agreement.TransferBadFee,
			ExpectedFee: common.BigIntClone(sl.fee),
		}
	}

	// burns (to the minting account) pay no fee but have a minimum
	if arg.To.Equal(sl.mintingAccount) && arg.Amount.Cmp(sl.minBurn) < 0 {
		return nil, &agreement.TransferError{
			Code:          agreement.TransferBadBurn,
			MinBurnAmount: common.BigIntClone(sl.minBurn),
		}
	}

	if arg.CreatedAtTime != 0 {
		key := dedupKey(from, arg.To, arg.Amount, arg.Memo, arg.CreatedAtTime)
		if original, ok := sl.dedup[key]; ok {
			// deduplicated: replay the original block index
			return common.BigIntClone(original), nil
		}
	}

	fee := sl.transferFee(from, arg.To)
	if err := sl.debit(from, arg.Amount, fee); err != nil {
		return nil, err
	}
	sl.credit(arg.To, arg.Amount)

	block := sl.appendBlock()
	if arg.CreatedAtTime != 0 {
		key := dedupKey(from, arg.To, arg.Amount, arg.Memo, arg.CreatedAtTime)
		sl.dedup[key] = common.BigIntClone(block)
	}

	return block, nil
}

func (sl *SimulatedLedger) Approve(_ context.Context, arg ApproveArgs) (*big.Int, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	from := agreement.Account{Owner: sl.owner, Subaccount: arg.FromSubaccount}

	if arg.CreatedAtTime != 0 {
		now := sl.now()
		if arg.CreatedAtTime+TxWindow < now {
			return nil, &agreement.ApproveError{Code: agreement.ApproveTooOld}
		}
		if arg.CreatedAtTime > now+TxWindow {
			return nil, &agreement.ApproveError{Code: agreement.ApproveCreatedInFuture, LedgerTime: now}
		}
	}

	if arg.Fee != nil && arg.Fee.Cmp(sl.fee) != 0 {
		return nil, &agreement.ApproveError{
			Code:        agreement.ApproveBadFee,
			ExpectedFee: common.BigIntClone(sl.fee),
		}
	}

	if arg.ExpiresAt != 0 && arg.ExpiresAt <= sl.now() {
		return nil, &agreement.ApproveError{Code: agreement.ApproveExpired, LedgerTime: sl.now()}
	}

	key := allowanceKey{From: from, Spender: arg.Spender}
	if arg.ExpectedAllowance != nil {
		current := big.NewInt(0)
		if a, ok := sl.allowances[key]; ok {
			current = a.Allowance
		}
		if current.Cmp(arg.ExpectedAllowance) != 0 {
			return nil, &agreement.ApproveError{
				Code:             agreement.ApproveAllowanceChanged,
				CurrentAllowance: common.BigIntClone(current),
			}
		}
	}

	// the approve fee is paid from the approver's balance
	if err := sl.debitApproveFee(from); err != nil {
		return nil, err
	}

	sl.allowances[key] = &Allowance{
		Allowance: common.BigIntClone(arg.Amount),
		ExpiresAt: arg.ExpiresAt,
	}

	return sl.appendBlock(), nil
}

func (sl *SimulatedLedger) TransferFrom(_ context.Context, arg TransferFromArgs) (*big.Int, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	spender := agreement.Account{Owner: sl.owner, Subaccount: arg.SpenderSubaccount}

	if err := sl.checkTimeWindowTransferFrom(arg.CreatedAtTime); err != nil {
		return nil, err
	}

	if arg.Fee != nil && arg.Fee.Cmp(sl.fee) != 0 {
		return nil, &agreement.TransferFromError{
			Code:        agreement.TransferFromBadFee,
			ExpectedFee: common.BigIntClone(sl.fee),
		}
	}

	key := allowanceKey{From: arg.From, Spender: spender}
	allowance := sl.liveAllowance(key)

	needed := new(big.Int).Add(arg.Amount, sl.fee)
	if allowance.Cmp(needed) < 0 {
		return nil, &agreement.TransferFromError{
			Code:      agreement.TransferFromInsufficientAllowance,
			Allowance: common.BigIntClone(allowance),
		}
	}

	if err := sl.debitTransferFrom(arg.From, arg.Amount); err != nil {
		return nil, err
	}
	sl.credit(arg.To, arg.Amount)
	sl.allowances[key].Allowance.Sub(sl.allowances[key].Allowance, needed)

	return sl.appendBlock(), nil
}

func (sl *SimulatedLedger) BalanceOf(_ context.Context, account agreement.Account) (*big.Int, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if balance, ok := sl.balances[account]; ok {
		return common.BigIntClone(balance), nil
	}
	return big.NewInt(0), nil
}

func (sl *SimulatedLedger) Allowance(_ context.Context, arg AllowanceArgs) (Allowance, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	key := allowanceKey{From: arg.Account, Spender: arg.Spender}
	if a, ok := sl.allowances[key]; ok {
		return Allowance{Allowance: common.BigIntClone(a.Allowance), ExpiresAt: a.ExpiresAt}, nil
	}
	return Allowance{Allowance: big.NewInt(0)}, nil
}

func (sl *SimulatedLedger) Fee(_ context.Context) (*big.Int, error) {
	return common.BigIntClone(sl.fee), nil
}

// --- internals, caller must hold the mutex ---

func (sl *SimulatedLedger) checkTimeWindow(createdAt uint64) error {
	if createdAt == 0 {
		return nil
	}
	now := sl.now()
	if createdAt+TxWindow < now {
		return &agreement.TransferError{Code: agreement.TransferTooOld}
	}
	if createdAt > now+TxWindow {
		return &agreement.TransferError{Code: agreement.TransferCreatedInFuture, LedgerTime: now}
	}
	return nil
}

func (sl *SimulatedLedger) checkTimeWindowTransferFrom(createdAt uint64) error {
	if createdAt == 0 {
		return nil
	}
	now := sl.now()
	if createdAt+TxWindow < now {
		return &agreement.TransferFromError{Code: agreement.TransferFromTooOld}
	}
	if createdAt > now+TxWindow {
		return &agreement.TransferFromError{Code: agreement.TransferFromCreatedInFuture, LedgerTime: now}
	}
	return nil
}

// transferFee is zero for mints and burns, the configured fee otherwise.
func (sl *SimulatedLedger) transferFee(from, to agreement.Account) *big.Int {
	if from.Equal(sl.mintingAccount) || to.Equal(sl.mintingAccount) {
		return big.NewInt(0)
	}
	return sl.fee
}

func (sl *SimulatedLedger) debit(from agreement.Account, amount, fee *big.Int) error {
	balance := big.NewInt(0)
	if b, ok := sl.balances[from]; ok {
		balance = b
	}

	// the minting account mints out of thin air
	if from.Equal(sl.mintingAccount) {
		return nil
	}

	needed := new(big.Int).Add(amount, fee)
	if balance.Cmp(needed) < 0 {
		return &agreement.TransferError{
			Code:    agreement.TransferInsufficientFunds,
			Balance: common.BigIntClone(balance),
		}
	}

	sl.balances[from] = new(big.Int).Sub(balance, needed)
	return nil
}

func (sl *SimulatedLedger) debitTransferFrom(from agreement.Account, amount *big.Int) error {
	balance := big.NewInt(0)
	if b, ok := sl.balances[from]; ok {
		balance = b
	}

	needed := new(big.Int).Add(amount, sl.fee)
	if balance.Cmp(needed) < 0 {
		return &agreement.TransferFromError{
			Code:    agreement.TransferFromInsufficientFunds,
			Balance: common.BigIntClone(balance),
		}
	}

	sl.balances[from] = new(big.Int).Sub(balance, needed)
	return nil
}

func (sl *SimulatedLedger) debitApproveFee(from agreement.Account) error {
	balance := big.NewInt(0)
	if b, ok := sl.balances[from]; ok {
		balance = b
	}
	if balance.Cmp(sl.fee) < 0 {
		return &agreement.ApproveError{
			Code:    agreement.ApproveInsufficientFunds,
			Balance: common.BigIntClone(balance),
		}
	}
	sl.balances[from] = new(big.Int).Sub(balance, sl.fee)
	return nil
}

func (sl *SimulatedLedger) credit(to agreement.Account, amount *big.Int) {
	if to.Equal(sl.mintingAccount) {
		// burn
		return
	}
	balance := big.NewInt(0)
	if b, ok := sl.balances[to]; ok {
		balance = b
	}
	sl.balances[to] = new(big.Int).Add(balance, amount)
}

func (sl *SimulatedLedger) liveAllowance(key allowanceKey) *big.Int {
	a, ok := sl.allowances[key]
	if !ok {
		return big.NewInt(0)
	}
	if a.ExpiresAt != 0 && a.ExpiresAt <= sl.now() {
		return big.NewInt(0)
	}
	return a.Allowance
}

func (sl *SimulatedLedger) appendBlock() *big.Int {
	block := new(big.Int).SetUint64(sl.nextBlock)
	sl.nextBlock++
	return block
}

func dedupKey(from, to agreement.Account, amount *big.Int, memo []byte, createdAt uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte(from.String()))
	h.Write([]byte(to.String()))
	h.Write(amount.Bytes())
	h.Write(memo)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], createdAt)
	h.Write(ts[:])

	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}
