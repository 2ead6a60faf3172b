package reward

import (
	"context"
	"database/sql"
	"math/big"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/ledger"
	"github.com/ekoketoken/ekoke-bridge-go/pool"
	"github.com/ekoketoken/ekoke-bridge-go/state"
)

const (
	bridgePrincipal = agreement.Principal("aaaaa-aa")
	userPrincipal   = agreement.Principal("user-principal")
)

var defaultRemainingSupply = big.NewInt(592_006_734_000_000)

func TestComputeReward(t *testing.T) {
	reward := ComputeReward(4_000, defaultRemainingSupply, BaseTokenPrice, InitialRMC, InitialAvidity)
	require.NotNil(t, reward)
	assert.Equal(t, big.NewInt(2_486_428_282), reward)

	// deterministic for identical inputs
	again := ComputeReward(4_000, defaultRemainingSupply, BaseTokenPrice, InitialRMC, InitialAvidity)
	assert.Equal(t, reward, again)

	// a lower token price scales the reward down, rounding up
	cheap := ComputeReward(4_000, defaultRemainingSupply, 1, InitialRMC, InitialAvidity)
	require.NotNil(t, cheap)
	assert.Equal(t, big.NewInt(24_864_283), cheap)
}

func TestComputeRewardFloor(t *testing.T) {
	supply := big.NewInt(1_000_000)

	reward := ComputeReward(5, supply, BaseTokenPrice, InitialRMC, InitialAvidity)
	require.NotNil(t, reward)
	assert.Equal(t, big.NewInt(MinReward), reward)

	// paying out all installments would drain more than the supply
	assert.Nil(t, ComputeReward(20, supply, BaseTokenPrice, InitialRMC, InitialAvidity))
	assert.Nil(t, ComputeReward(0, supply, BaseTokenPrice, InitialRMC, InitialAvidity))
	assert.Nil(t, ComputeReward(5, big.NewInt(0), BaseTokenPrice, InitialRMC, InitialAvidity))
}

// static oracle, never fails
type staticOracle struct {
	price uint64
}

func (o *staticOracle) QuoteFee(context.Context) (agreement.FeeQuote, error) {
	return agreement.FeeQuote{Amount: 230_000}, nil
}

func (o *staticOracle) TokenPrice(context.Context) (uint64, error) {
	return o.price, nil
}

type engineFixture struct {
	engine *Engine
	pool   *pool.Pool
	ledger *ledger.SimulatedLedger
	state  *state.StateDB
}

func newEngineFixture(t *testing.T, supply *big.Int) *engineFixture {
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	poolDB, err := pool.NewPoolDB(sqlDB)
	require.NoError(t, err)
	p, err := pool.NewPool(bridgePrincipal, poolDB)
	require.NoError(t, err)
	require.NoError(t, p.Credit(pool.AssetIcp, supply))

	st, err := state.NewStateDB(sqlDB)
	require.NoError(t, err)

	rdb, err := NewRewardDB(sqlDB)
	require.NoError(t, err)

	payout := p.Accounts().Icp
	sim := ledger.NewSimulatedLedger(bridgePrincipal, big.NewInt(10_000), agreement.Account{Owner: "minter"})
	sim.SetBalance(payout, supply)

	engine, err := NewEngine(
		&Config{Asset: pool.AssetIcp, PayoutSubaccount: payout.Subaccount},
		rdb, p, sim, st, &staticOracle{price: BaseTokenPrice},
	)
	require.NoError(t, err)

	return &engineFixture{engine: engine, pool: p, ledger: sim, state: st}
}

func TestGetContractReward(t *testing.T) {
	f := newEngineFixture(t, defaultRemainingSupply)
	ctx := context.Background()

	reward, err := f.engine.GetContractReward(ctx, 7, 4_000)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2_486_428_282), reward)

	// the full payout is reserved in the pool
	reserved, ok := f.pool.ReservedFor(7)
	require.True(t, ok)
	expected := new(big.Int).Mul(reward, big.NewInt(4_000))
	assert.Equal(t, expected, reserved)

	// a repeated call replays the grant instead of stacking reservations
	replay, err := f.engine.GetContractReward(ctx, 7, 4_000)
	require.NoError(t, err)
	assert.Equal(t, reward, replay)
	reserved, _ = f.pool.ReservedFor(7)
	assert.Equal(t, expected, reserved)
}

func TestGetContractRewardPoolExhausted(t *testing.T) {
	f := newEngineFixture(t, big.NewInt(1_000_000))

	_, err := f.engine.GetContractReward(context.Background(), 7, 100)
	require.Error(t, err)
	var poolErr *agreement.PoolError
	require.ErrorAs(t, err, &poolErr)
	assert.Equal(t, agreement.PoolNotEnoughTokens, poolErr.Code)
}

func TestSendRewardExactlyOnce(t *testing.T) {
	f := newEngineFixture(t, defaultRemainingSupply)
	ctx := context.Background()

	reward, err := f.engine.GetContractReward(ctx, 7, 4)
	require.NoError(t, err)

	recipient := agreement.Account{Owner: userPrincipal}

	block, err := f.engine.SendReward(ctx, 7, 1, reward, recipient)
	require.NoError(t, err)

	got, err := f.ledger.BalanceOf(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, reward, got)

	// repeating the claim replays the block index, no second transfer
	again, err := f.engine.SendReward(ctx, 7, 1, reward, recipient)
	require.NoError(t, err)
	assert.Equal(t, block, again)

	got, err = f.ledger.BalanceOf(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, reward, got)

	// the reservation shrank by exactly one installment
	reserved, ok := f.pool.ReservedFor(7)
	require.True(t, ok)
	assert.Equal(t, new(big.Int).Mul(reward, big.NewInt(3)), reserved)

	// the next installment is a fresh claim
	_, err = f.engine.SendReward(ctx, 7, 2, reward, recipient)
	require.NoError(t, err)
}

// slowPayoutLedger stretches the transfer window so racing claims overlap.
type slowPayoutLedger struct {
	*ledger.SimulatedLedger
}

func (l *slowPayoutLedger) Transfer(ctx context.Context, arg ledger.TransferArg) (*big.Int, error) {
	time.Sleep(20 * time.Millisecond)
	return l.SimulatedLedger.Transfer(ctx, arg)
}

func TestSendRewardConcurrentClaims(t *testing.T) {
	f := newEngineFixture(t, defaultRemainingSupply)
	ctx := context.Background()

	f.engine.ledger = &slowPayoutLedger{f.ledger}

	reward, err := f.engine.GetContractReward(ctx, 7, 4)
	require.NoError(t, err)

	recipient := agreement.Account{Owner: userPrincipal}

	var wg sync.WaitGroup
	blocks := make([]*big.Int, 2)
	errs := make([]error, 2)
	for i := range blocks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			blocks[i], errs[i] = f.engine.SendReward(ctx, 7, 1, reward, recipient)
		}(i)
	}
	wg.Wait()

	// one payout, the other call replays the same block index
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, blocks[0], blocks[1])

	got, err := f.ledger.BalanceOf(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, reward, got)

	reserved, ok := f.pool.ReservedFor(7)
	require.True(t, ok)
	assert.Equal(t, new(big.Int).Mul(reward, big.NewInt(3)), reserved)
}

func TestSendRewardCompensation(t *testing.T) {
	f := newEngineFixture(t, big.NewInt(10_000_000))
	ctx := context.Background()

	// drain the payout account so the ledger transfer must fail
	payout := f.pool.Accounts().Icp
	f.ledger.SetBalance(payout, big.NewInt(0))

	recipient := agreement.Account{Owner: userPrincipal}

	// no prior reservation: SendReward reserves, fails, releases
	_, err := f.engine.SendReward(ctx, 9, 1, big.NewInt(500_000), recipient)
	require.Error(t, err)
	var transferErr *agreement.TransferError
	require.ErrorAs(t, err, &transferErr)

	_, ok := f.pool.ReservedFor(9)
	assert.False(t, ok)

	// nothing recorded, nothing paid
	has, err2 := f.state.HasClaim(9, 1)
	require.NoError(t, err2)
	assert.False(t, has)
}

func TestCoefficientDrift(t *testing.T) {
	f := newEngineFixture(t, defaultRemainingSupply)
	e := f.engine

	// halving
	e.coeffs.NextHalving = 0
	e.maybeHalveRMC()
	assert.InDelta(t, InitialRMC/2, e.coeffs.RMC, 1e-12)
	assert.NotZero(t, e.coeffs.NextHalving)

	// below the floor the RMC never halves again
	e.coeffs.RMC = 1.8e-12
	e.coeffs.NextHalving = 0
	e.maybeHalveRMC()
	assert.InDelta(t, 1.8e-12, e.coeffs.RMC, 1e-15)

	// busier month lowers avidity
	e.coeffs.LastMonth = 0
	e.coeffs.CPM = 10
	e.coeffs.LastCPM = 5
	e.coeffs.Avidity = 0.5
	e.maybeAdjustAvidity()
	assert.InDelta(t, 0.4, e.coeffs.Avidity, 1e-9)
	assert.Equal(t, uint64(0), e.coeffs.CPM)
	assert.Equal(t, uint64(10), e.coeffs.LastCPM)

	// quieter month raises it, bounded at 1.0
	e.coeffs.LastMonth = 0
	e.coeffs.CPM = 5
	e.coeffs.LastCPM = 10
	e.coeffs.Avidity = 1.0
	e.maybeAdjustAvidity()
	assert.InDelta(t, 1.0, e.coeffs.Avidity, 1e-9)

	// and at 0.1 going down
	e.coeffs.LastMonth = 0
	e.coeffs.CPM = 10
	e.coeffs.LastCPM = 4
	e.coeffs.Avidity = 0.1
	e.maybeAdjustAvidity()
	assert.InDelta(t, 0.1, e.coeffs.Avidity, 1e-9)
}
