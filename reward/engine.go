package reward

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/ledger"
	"github.com/ekoketoken/ekoke-bridge-go/pool"
	"github.com/ekoketoken/ekoke-bridge-go/state"
	"github.com/ekoketoken/ekoke-bridge-go/xrc"
)

type Config struct {
	// Asset of the pool the rewards are paid from.
	Asset string

	// PayoutSubaccount is the bridge subaccount holding the reward funds.
	PayoutSubaccount agreement.Subaccount
}

// Engine computes and disburses contract rewards. Coefficient updates and
// pool bookkeeping are mutex-guarded read-check-write sections. A
// disbursement holds its (contract, installment) lock from the claim check
// through the transfer to the claim record, so concurrent calls for one
// installment collapse into a single payout plus replays.
type Engine struct {
	mu sync.Mutex

	// one lock per (contract, installment); serializes the claim
	// check, the transfer and the claim record of a disbursement
	claimLock sync.Map

	cfg    *Config
	coeffs *coefficients

	db     *RewardDB
	pool   *pool.Pool
	ledger ledger.Client
	state  *state.StateDB
	prices xrc.Client

	now func() time.Time
}

func NewEngine(
	cfg *Config,
	db *RewardDB,
	p *pool.Pool,
	lc ledger.Client,
	st *state.StateDB,
	prices xrc.Client,
) (*Engine, error) {
	if cfg.Asset == "" {
		cfg.Asset = pool.AssetIcp
	}

	e := &Engine{
		cfg:    cfg,
		db:     db,
		pool:   p,
		ledger: lc,
		state:  st,
		prices: prices,
		now:    time.Now,
	}

	coeffs, ok, err := db.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		coeffs = &coefficients{
			RMC:         InitialRMC,
			NextHalving: uint64(e.now().Add(halvingInterval).UnixNano()),
			Avidity:     InitialAvidity,
			LastMonth:   uint8(e.now().Month()),
		}
		if err := db.Save(coeffs); err != nil {
			return nil, err
		}
	}
	e.coeffs = coeffs

	return e, nil
}

// GetContractReward computes the per-installment reward for a contract and
// reserves the full payout in the pool. Repeating the call for an already
// reserved contract replays the prior grant.
func (e *Engine) GetContractReward(ctx context.Context, contractID, installments uint64) (*big.Int, error) {
	if installments == 0 {
		return nil, &agreement.PoolError{Code: agreement.PoolNotEnoughTokens}
	}

	if reserved, ok := e.pool.ReservedFor(contractID); ok {
		return new(big.Int).Quo(reserved, new(big.Int).SetUint64(installments)), nil
	}

	price, err := e.prices.TokenPrice(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.maybeHalveRMC()
	e.maybeAdjustAvidity()

	remaining := e.pool.AvailableBalance(e.cfg.Asset)
	reward := ComputeReward(installments, remaining, price, e.coeffs.RMC, e.coeffs.Avidity)
	if reward == nil {
		return nil, &agreement.PoolError{Code: agreement.PoolNotEnoughTokens}
	}

	total := new(big.Int).Mul(reward, new(big.Int).SetUint64(installments))
	if _, err := e.pool.Reserve(contractID, e.cfg.Asset, total); err != nil {
		return nil, err
	}

	e.coeffs.CPM++
	if err := e.db.Save(e.coeffs); err != nil {
		return nil, &agreement.StorageError{}
	}

	logger.WithFields(logger.Fields{
		"contract":     contractID,
		"installments": installments,
		"reward":       reward,
	}).Info("contract reward reserved")

	return reward, nil
}

// SendReward disburses one reward installment to recipient. The
// (contract, installment) claim key makes the operation exactly-once: a
// repeated call replays the recorded block index without moving tokens. A
// reservation created here is released again when the transfer fails.
func (e *Engine) SendReward(ctx context.Context, contractID, installment uint64, amount *big.Int, recipient agreement.Account) (*big.Int, error) {
	held, _ := e.claimLock.LoadOrStore(claimKey{contractID, installment}, &sync.Mutex{})
	lock := held.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	if claim, ok, err := e.state.GetClaim(contractID, installment); err != nil {
		return nil, &agreement.StorageError{}
	} else if ok {
		return new(big.Int).Set(claim.BlockIndex), nil
	}

	reserved, hadReservation := e.pool.ReservedFor(contractID)
	if hadReservation && reserved.Cmp(amount) < 0 {
		return nil, &agreement.PoolError{Code: agreement.PoolNotEnoughTokens}
	}
	if !hadReservation {
		if _, err := e.pool.Reserve(contractID, e.cfg.Asset, amount); err != nil {
			return nil, err
		}
	}

	blockIndex, err := e.ledger.Transfer(ctx, ledger.TransferArg{
		FromSubaccount: e.cfg.PayoutSubaccount,
		To:             recipient,
		Amount:         amount,
		Memo:           claimMemo(contractID, installment),
	})
	if err != nil {
		if !hadReservation {
			if rerr := e.pool.Release(contractID); rerr != nil {
				logger.WithField("contract", contractID).Error("reward reservation stuck after failed transfer")
			}
		}
		return nil, err
	}

	if err := e.pool.DebitReserved(contractID, amount); err != nil {
		return nil, err
	}

	if err := e.state.InsertClaim(&agreement.RewardClaim{
		ContractID:  contractID,
		Installment: installment,
		Amount:      new(big.Int).Set(amount),
		Recipient:   recipient,
		BlockIndex:  new(big.Int).Set(blockIndex),
	}); err != nil {
		return nil, &agreement.StorageError{}
	}

	logger.WithFields(logger.Fields{
		"contract":    contractID,
		"installment": installment,
		"amount":      amount,
		"block":       blockIndex,
	}).Info("reward sent")

	return blockIndex, nil
}

// --- coefficient drift, caller must hold the mutex ---

func (e *Engine) maybeHalveRMC() {
	if e.coeffs.RMC < rmcFloor {
		return
	}
	if uint64(e.now().UnixNano()) < e.coeffs.NextHalving {
		return
	}

	e.coeffs.RMC /= 2
	e.coeffs.NextHalving = uint64(e.now().Add(halvingInterval).UnixNano())

	logger.WithField("rmc", e.coeffs.RMC).Info("reward multiplier halved")
}

func (e *Engine) maybeAdjustAvidity() {
	month := uint8(e.now().Month())
	if month == e.coeffs.LastMonth {
		return
	}

	avidity := e.coeffs.Avidity
	if e.coeffs.CPM > e.coeffs.LastCPM {
		avidity -= avidityStep
	} else {
		avidity += avidityStep
	}
	e.coeffs.Avidity = min(avidityMax, max(avidityMin, avidity))

	e.coeffs.LastCPM = e.coeffs.CPM
	e.coeffs.CPM = 0
	e.coeffs.LastMonth = month
}

type claimKey struct {
	contract    uint64
	installment uint64
}

func claimMemo(contractID, installment uint64) []byte {
	memo := make([]byte, 16)
	binary.BigEndian.PutUint64(memo[:8], contractID)
	binary.BigEndian.PutUint64(memo[8:], installment)
	return memo
}
