// Swap orchestrator.
//
// A swap walks validated -> quoted -> debited -> submitted -> confirmed,
// with failed as the only terminal error state and every transition written
// to the state db before the next step runs. The debit is the point of no
// return: anything that can fail cheaply (validation, fee quote) happens
// before it, and anything after it only ever moves forward. A swap whose
// debit landed but whose outbound transaction did not is parked in
// "debited" and picked up by the reconciler, never refunded.

package swapman

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/common"
	"github.com/ekoketoken/ekoke-bridge-go/etherman"
	"github.com/ekoketoken/ekoke-bridge-go/ledger"
	"github.com/ekoketoken/ekoke-bridge-go/state"
	"github.com/ekoketoken/ekoke-bridge-go/xrc"
)

type Manager struct {
	cfg      *Config
	statedb  *state.StateDB
	ledger   ledger.Client
	etherman *etherman.Etherman
	oracle   xrc.Client

	// guards quote and gasPrice
	mu       sync.Mutex
	quote    agreement.FeeQuote
	gasPrice *big.Int

	// nonces with an in-flight routine
	swapLock sync.Map

	now func() time.Time
}

func New(
	cfg *Config,
	statedb *state.StateDB,
	lc ledger.Client,
	em *etherman.Etherman,
	oracle xrc.Client,
) *Manager {
	gasPrice := cfg.GasPriceWei
	if gasPrice == nil {
		gasPrice = big.NewInt(20_000_000_000) // 20 gwei
	}

	return &Manager{
		cfg:      cfg,
		statedb:  statedb,
		ledger:   lc,
		etherman: em,
		oracle:   oracle,
		gasPrice: gasPrice,
		now:      time.Now,
	}
}

// SwapFee returns the current bridging fee. A fresh quote is fetched only
// once per validity window; concurrent callers share it.
func (m *Manager) SwapFee(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.quote.Expired(m.now()) {
		return m.quote.Amount, nil
	}

	quote, err := m.oracle.QuoteFee(ctx)
	if err != nil {
		return 0, err
	}
	m.quote = quote

	return quote.Amount, nil
}

func (m *Manager) GasPrice() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.gasPrice)
}

// SetGasPrice replaces the gas price used for outbound transactions.
func (m *Manager) SetGasPrice(price *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gasPrice = new(big.Int).Set(price)
}

// Swap runs one swap request through the state machine and returns the
// resulting record. A request resubmitted with a known nonce replays the
// stored record without moving funds a second time.
func (m *Manager) Swap(ctx context.Context, req *agreement.SwapRequest) (*state.Swap, error) {
	if req.Nonce.IsZero() {
		req = &agreement.SwapRequest{
			Direction:   req.Direction,
			Source:      req.Source,
			DestAddress: req.DestAddress,
			Amount:      req.Amount,
			Nonce:       agreement.Subaccount(common.RandBytes32()),
			EthTxHash:   req.EthTxHash,
		}
	}

	// one in-flight routine per nonce; the reconciler honors the same lock
	if _, busy := m.swapLock.LoadOrStore(req.Nonce, struct{}{}); busy {
		if prior, ok, err := m.statedb.GetSwapByNonce(req.Nonce); err == nil && ok {
			return prior, nil
		}
		return nil, &agreement.CanisterCallError{
			Rejection: agreement.RejectionSysTransient,
			Message:   "swap with this nonce is in flight",
		}
	}
	defer m.swapLock.Delete(req.Nonce)

	if prior, ok, err := m.statedb.GetSwapByNonce(req.Nonce); err != nil {
		return nil, &agreement.StorageError{}
	} else if ok {
		logger.WithField("nonce", req.Nonce.Hex()).Debug("swap replayed from outcome cache")
		return prior, nil
	}

	swap, verr := state.NewSwapFromRequest(req)
	if verr != nil {
		return nil, verr
	}

	// the insert is the hard idempotency gate: of two racing requests
	// exactly one row lands, the loser replays it
	if err := m.statedb.InsertSwap(swap); err != nil {
		if err == state.ErrorSwapExists {
			if prior, ok, gerr := m.statedb.GetSwapByNonce(swap.Nonce); gerr == nil && ok {
				return prior, nil
			}
			// the nonce is free, so the conflict is the burn tx hash
			return nil, &agreement.ValidationError{Code: agreement.ValidationReceiptClaimed}
		}
		return nil, &agreement.StorageError{}
	}

	// quote before debit: an oracle failure must leave balances untouched
	fee, err := m.SwapFee(ctx)
	if err != nil {
		m.fail(swap, "fee quote unavailable")
		return nil, err
	}
	if err := m.statedb.UpdateSwapQuoted(swap.Nonce, fee); err != nil {
		return nil, &agreement.StorageError{}
	}
	swap.Fee = fee
	swap.Status = state.SwapStatusQuoted

	switch swap.Direction {
	case agreement.SwapDirectionNativeToErc20:
		return m.swapOut(ctx, swap)
	default:
		return m.swapBack(ctx, swap)
	}
}

// swapOut is the native -> erc20 leg: pull amount+fee from the source
// account, then deliver amount on the external chain.
func (m *Manager) swapOut(ctx context.Context, swap *state.Swap) (*state.Swap, error) {
	total := new(big.Int).Add(swap.Amount, new(big.Int).SetUint64(swap.Fee))

	block, err := m.ledger.TransferFrom(ctx, ledger.TransferFromArgs{
		From:   swap.Source,
		To:     m.swapAccount(),
		Amount: total,
		Memo:   swap.Nonce[:],
	})
	if err != nil {
		m.fail(swap, err.Error())
		return nil, err
	}

	if err := m.statedb.UpdateSwapDebited(swap.Nonce, block); err != nil {
		return nil, &agreement.StorageError{}
	}
	swap.DebitBlock = block
	swap.Status = state.SwapStatusDebited

	// past the point of no return: a submit failure parks the swap for
	// the reconciler instead of failing it
	if err := m.submit(ctx, swap); err != nil {
		logger.WithFields(logger.Fields{
			"nonce": swap.Nonce.Hex(),
			"err":   err,
		}).Warn("swap debited but not submitted, parked for reconciliation")
		return swap, nil
	}

	return swap, nil
}

// swapBack is the erc20 -> native leg: verify the claimed burn receipt
// against the gateway, then credit the destination principal, fee deducted.
// A failed swap releases its receipt hash, so an honest caller can retry a
// transiently unverifiable burn under a fresh nonce.
func (m *Manager) swapBack(ctx context.Context, swap *state.Swap) (*state.Swap, error) {
	fee := new(big.Int).SetUint64(swap.Fee)
	if swap.Amount.Cmp(fee) <= 0 {
		verr := &agreement.ValidationError{Code: agreement.ValidationAmountNotPositive}
		m.fail(swap, verr.Error())
		return nil, verr
	}

	verified, err := m.etherman.VerifyReceipt(ctx, swap.EthTxHash)
	if err != nil {
		m.fail(swap, err.Error())
		return nil, err
	}
	if !verified {
		verr := &agreement.ValidationError{Code: agreement.ValidationBadReceipt}
		m.fail(swap, verr.Error())
		return nil, verr
	}

	block, err := m.ledger.Transfer(ctx, ledger.TransferArg{
		FromSubaccount: m.cfg.SwapSubaccount,
		To:             agreement.Account{Owner: agreement.Principal(swap.DestAddress)},
		Amount:         new(big.Int).Sub(swap.Amount, fee),
		Memo:           swap.Nonce[:],
	})
	if err != nil {
		m.fail(swap, err.Error())
		return nil, err
	}

	if err := m.statedb.UpdateSwapDebited(swap.Nonce, block); err != nil {
		return nil, &agreement.StorageError{}
	}
	if err := m.statedb.UpdateSwapConfirmed(swap.Nonce); err != nil {
		return nil, &agreement.StorageError{}
	}
	swap.DebitBlock = block
	swap.Status = state.SwapStatusConfirmed

	return swap, nil
}

// Start runs the reconciler until ctx is cancelled: parked swaps are
// resubmitted and submitted ones polled for confirmation.
func (m *Manager) Start(ctx context.Context) error {
	logger.Info("starting swap manager")
	defer logger.Info("stopping swap manager")

	reconcile := m.cfg.FrequencyToReconcile
	if reconcile == 0 {
		reconcile = 30 * time.Second
	}
	confirm := m.cfg.FrequencyToConfirm
	if confirm == 0 {
		confirm = 15 * time.Second
	}

	tickerToReconcile := time.NewTicker(reconcile)
	defer tickerToReconcile.Stop()

	tickerToConfirm := time.NewTicker(confirm)
	defer tickerToConfirm.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tickerToReconcile.C:
			m.reconcileParked(ctx)
		case <-tickerToConfirm.C:
			m.confirmSubmitted(ctx)
		}
	}
}

func (m *Manager) reconcileParked(ctx context.Context) {
	parked, err := m.statedb.GetDebitedUnsubmitted()
	if err != nil {
		logger.WithField("err", err).Error("failed to load parked swaps")
		return
	}
	if len(parked) == 0 {
		return
	}

	wg := sync.WaitGroup{}
	for _, swap := range parked {
		if _, busy := m.swapLock.LoadOrStore(swap.Nonce, struct{}{}); busy {
			continue
		}

		wg.Add(1)
		go func(s *state.Swap) {
			defer wg.Done()
			defer m.swapLock.Delete(s.Nonce)

			if err := m.submit(ctx, s); err != nil {
				logger.WithFields(logger.Fields{
					"nonce": s.Nonce.Hex(),
					"err":   err,
				}).Warn("swap resubmission failed, will retry")
			}
		}(swap)
	}
	wg.Wait()
}

func (m *Manager) confirmSubmitted(ctx context.Context) {
	submitted, err := m.statedb.GetSwapsByStatus(state.SwapStatusSubmitted)
	if err != nil {
		logger.WithField("err", err).Error("failed to load submitted swaps")
		return
	}

	for _, swap := range submitted {
		confirmed, err := m.etherman.IsConfirmed(ctx, swap.EthTxHash)
		if err != nil || !confirmed {
			continue
		}
		if err := m.statedb.UpdateSwapConfirmed(swap.Nonce); err != nil {
			logger.WithField("nonce", swap.Nonce.Hex()).Error("failed to record confirmation")
			continue
		}

		logger.WithFields(logger.Fields{
			"nonce": swap.Nonce.Hex(),
			"tx":    swap.EthTxHash.Hex(),
		}).Info("swap confirmed")
	}
}

// submit signs and broadcasts the outbound transaction. The account nonce
// and gas price are pinned on the swap record before the first broadcast,
// so every retry builds the byte-identical transaction and the chain
// deduplicates it even when an earlier response was lost.
func (m *Manager) submit(ctx context.Context, swap *state.Swap) error {
	if swap.EthNonce == nil {
		nonce, err := m.etherman.PendingNonce(ctx)
		if err != nil {
			return err
		}
		gasPrice := m.GasPrice()
		if err := m.statedb.UpdateSwapEthParams(swap.Nonce, nonce, gasPrice); err != nil {
			return &agreement.StorageError{}
		}
		swap.EthNonce = &nonce
		swap.EthGasPrice = gasPrice
	}

	txHash, err := m.etherman.SendValue(
		ctx,
		ethcommon.HexToAddress(swap.DestAddress),
		swap.Amount,
		swap.EthGasPrice,
		*swap.EthNonce,
	)
	if err != nil {
		return err
	}

	if err := m.statedb.UpdateSwapSubmitted(swap.Nonce, txHash); err != nil {
		return &agreement.StorageError{}
	}
	swap.EthTxHash = txHash
	swap.Status = state.SwapStatusSubmitted

	return nil
}

func (m *Manager) fail(swap *state.Swap, msg string) {
	if err := m.statedb.UpdateSwapFailed(swap.Nonce, msg); err != nil {
		logger.WithField("nonce", swap.Nonce.Hex()).Error("failed to record swap failure")
	}
	swap.Status = state.SwapStatusFailed
	swap.FailureMsg = msg
}

func (m *Manager) swapAccount() agreement.Account {
	return agreement.Account{
		Owner:      m.cfg.BridgePrincipal,
		Subaccount: m.cfg.SwapSubaccount,
	}
}
