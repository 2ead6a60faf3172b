// The liquidity pool ledger: single source of truth for how much is
// available to promise.
//
// The pool tracks the balance of each backing asset plus the amounts
// reserved against pending contracts. Its invariant — after every
// operation, balance(asset) >= sum(active reservations on asset) — is what
// makes a reservation a real promise: no redemption is ever authorized
// beyond the funds actually held.
//
// All mutating operations are synchronous, non-suspending critical
// sections: the read-check-write of each op completes under the mutex
// before any outbound call is issued for the same request, so interleaved
// requests can never act on a stale balance snapshot.

package pool

import (
	"math/big"
	"sync"

	logger "github.com/sirupsen/logrus"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/common"
)

// Backing assets of the pool.
const (
	AssetIcp   = "icp"
	AssetCkBtc = "ckbtc"
)

// Reservation earmarks pool funds against a specific contract before
// disbursement.
type Reservation struct {
	Asset  string
	Amount *big.Int
}

type Pool struct {
	mu sync.Mutex

	// bridge principal owning the per-asset deposit accounts
	owner agreement.Principal

	balances     map[string]*big.Int
	reservations map[uint64]Reservation

	db *PoolDB
}

// NewPool loads the durable pool state from db.
func NewPool(owner agreement.Principal, db *PoolDB) (*Pool, error) {
	balances, err := db.GetBalances()
	if err != nil {
		return nil, err
	}
	reservations, err := db.GetReservations()
	if err != nil {
		return nil, err
	}

	return &Pool{
		owner:        owner,
		balances:     balances,
		reservations: reservations,
		db:           db,
	}, nil
}

// Reserve earmarks amount of asset for contractID. A repeated reserve for
// the same contract replays the prior reservation amount instead of
// stacking a second one. Fails with NotEnoughTokens exactly when granting
// the reservation would promise more than the pool holds; in that case
// nothing is applied.
func (p *Pool) Reserve(contractID uint64, asset string, amount *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.reservations[contractID]; ok {
		return common.BigIntClone(existing.Amount), nil
	}

	available := p.availableLocked(asset)
	if amount.Cmp(available) > 0 {
		return nil, &agreement.PoolError{Code: agreement.PoolNotEnoughTokens}
	}

	if err := p.db.UpsertReservation(contractID, asset, amount); err != nil {
		return nil, &agreement.StorageError{}
	}
	p.reservations[contractID] = Reservation{Asset: asset, Amount: common.BigIntClone(amount)}

	logger.WithFields(logger.Fields{
		"contract": contractID,
		"asset":    asset,
		"amount":   amount,
	}).Debug("pool reservation created")

	return common.BigIntClone(amount), nil
}

// Release drops the reservation of contractID, returning the funds to the
// available pool. Double-release fails with PoolNotFound.
func (p *Pool) Release(contractID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.reservations[contractID]; !ok {
		return &agreement.PoolError{Code: agreement.PoolNotFound, ContractID: contractID}
	}

	if err := p.db.DeleteReservation(contractID); err != nil {
		return &agreement.StorageError{}
	}
	delete(p.reservations, contractID)

	return nil
}

// Credit adds amount of asset to the pool balance.
func (p *Pool) Credit(asset string, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	balance := p.balanceLocked(asset)
	next := new(big.Int).Add(balance, amount)
	if err := p.db.SetBalance(asset, next); err != nil {
		return &agreement.StorageError{}
	}
	p.balances[asset] = next

	return nil
}

// Debit removes amount of asset from the unreserved part of the pool.
// It fails with NotEnoughTokens when the remaining balance would no longer
// cover the active reservations; it never partially applies.
func (p *Pool) Debit(asset string, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.availableLocked(asset)
	if amount.Cmp(available) > 0 {
		return &agreement.PoolError{Code: agreement.PoolNotEnoughTokens}
	}

	next := new(big.Int).Sub(p.balanceLocked(asset), amount)
	if err := p.db.SetBalance(asset, next); err != nil {
		return &agreement.StorageError{}
	}
	p.balances[asset] = next

	return nil
}

// DebitReserved consumes up to the reserved amount of contractID,
// reducing balance and reservation together. The reservation is dropped
// when fully consumed.
func (p *Pool) DebitReserved(contractID uint64, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	reservation, ok := p.reservations[contractID]
	if !ok {
		return &agreement.PoolError{Code: agreement.PoolNotFound, ContractID: contractID}
	}

	if amount.Cmp(reservation.Amount) > 0 {
		return &agreement.PoolError{Code: agreement.PoolNotEnoughTokens}
	}

	balance := p.balanceLocked(reservation.Asset)
	if amount.Cmp(balance) > 0 {
		return &agreement.PoolError{Code: agreement.PoolNotEnoughTokens}
	}

	nextBalance := new(big.Int).Sub(balance, amount)
	nextReserved := new(big.Int).Sub(reservation.Amount, amount)

	if err := p.db.SetBalance(reservation.Asset, nextBalance); err != nil {
		return &agreement.StorageError{}
	}
	if nextReserved.Sign() == 0 {
		if err := p.db.DeleteReservation(contractID); err != nil {
			return &agreement.StorageError{}
		}
		delete(p.reservations, contractID)
	} else {
		if err := p.db.UpsertReservation(contractID, reservation.Asset, nextReserved); err != nil {
			return &agreement.StorageError{}
		}
		p.reservations[contractID] = Reservation{Asset: reservation.Asset, Amount: nextReserved}
	}
	p.balances[reservation.Asset] = nextBalance

	return nil
}

// Balance returns the gross balance of asset, reservations included.
func (p *Pool) Balance(asset string) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return common.BigIntClone(p.balanceLocked(asset))
}

// AvailableBalance returns the unreserved balance of asset.
func (p *Pool) AvailableBalance(asset string) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return common.BigIntClone(p.availableLocked(asset))
}

// ReservedFor returns the active reservation amount of contractID.
func (p *Pool) ReservedFor(contractID uint64) (*big.Int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reservation, ok := p.reservations[contractID]
	if !ok {
		return nil, false
	}
	return common.BigIntClone(reservation.Amount), true
}

// Balances reports the per-asset gross balances.
func (p *Pool) Balances() agreement.LiquidityPoolBalance {
	p.mu.Lock()
	defer p.mu.Unlock()

	return agreement.LiquidityPoolBalance{
		Icp:   common.BigIntClone(p.balanceLocked(AssetIcp)),
		CkBtc: common.BigIntClone(p.balanceLocked(AssetCkBtc)),
	}
}

// Accounts returns the per-asset deposit accounts. Derived from the
// bridge principal, deterministic across restarts.
func (p *Pool) Accounts() agreement.LiquidityPoolAccounts {
	return agreement.LiquidityPoolAccounts{
		Icp:   agreement.Account{Owner: p.owner, Subaccount: depositSubaccount(AssetIcp)},
		CkBtc: agreement.Account{Owner: p.owner, Subaccount: depositSubaccount(AssetCkBtc)},
	}
}

// --- internals, caller must hold the mutex ---

func (p *Pool) balanceLocked(asset string) *big.Int {
	if balance, ok := p.balances[asset]; ok {
		return balance
	}
	return big.NewInt(0)
}

func (p *Pool) availableLocked(asset string) *big.Int {
	reserved := big.NewInt(0)
	for _, reservation := range p.reservations {
		if reservation.Asset == asset {
			reserved.Add(reserved, reservation.Amount)
		}
	}
	return new(big.Int).Sub(p.balanceLocked(asset), reserved)
}

func depositSubaccount(asset string) agreement.Subaccount {
	var sub agreement.Subaccount
	copy(sub[:], asset)
	return sub
}
