package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

const (
	bridgePrincipal = agreement.Principal("br5f7-7uaaa-aaaaa-qaaca-cai")
	alicePrincipal  = agreement.Principal("alice-principal")
)

var testFee = big.NewInt(10_000)

func newTestLedger() *SimulatedLedger {
	minting := agreement.Account{Owner: "minting-principal"}
	sl := NewSimulatedLedger(bridgePrincipal, testFee, minting)
	sl.SetBalance(agreement.Account{Owner: bridgePrincipal}, big.NewInt(1_000_000))
	return sl
}

func TestTransferMovesFundsAndChargesFee(t *testing.T) {
	sl := newTestLedger()
	ctx := context.Background()
	to := agreement.Account{Owner: alicePrincipal}

	block, err := sl.Transfer(ctx, TransferArg{
		To:     to,
		Amount: big.NewInt(100_000),
		Fee:    testFee,
	})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), block)

	balance, err := sl.BalanceOf(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100_000), balance)

	balance, err = sl.BalanceOf(ctx, agreement.Account{Owner: bridgePrincipal})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(890_000), balance)
}

func TestTransferBadFee(t *testing.T) {
	sl := newTestLedger()

	_, err := sl.Transfer(context.Background(), TransferArg{
		To:     agreement.Account{Owner: alicePrincipal},
		Amount: big.NewInt(100),
		Fee:    big.NewInt(1),
	})
	require.Error(t, err)

	transferErr, ok := err.(*agreement.TransferError)
	require.True(t, ok)
	assert.Equal(t, agreement.TransferBadFee, transferErr.Code)
	assert.Equal(t, testFee, transferErr.ExpectedFee)
}

func TestTransferInsufficientFundsCarriesBalance(t *testing.T) {
	sl := newTestLedger()

	_, err := sl.Transfer(context.Background(), TransferArg{
		To:     agreement.Account{Owner: alicePrincipal},
		Amount: big.NewInt(999_999),
	})
	require.Error(t, err)

	transferErr, ok := err.(*agreement.TransferError)
	require.True(t, ok)
	assert.Equal(t, agreement.TransferInsufficientFunds, transferErr.Code)
	assert.Equal(t, big.NewInt(1_000_000), transferErr.Balance)
}

func TestTransferTimeWindow(t *testing.T) {
	sl := newTestLedger()
	now := uint64(1_000_000_000_000_000_000)
	sl.SetClock(func() uint64 { return now })

	arg := TransferArg{
		To:            agreement.Account{Owner: alicePrincipal},
		Amount:        big.NewInt(100),
		CreatedAtTime: now - TxWindow - 1,
	}
	_, err := sl.Transfer(context.Background(), arg)
	transferErr, ok := err.(*agreement.TransferError)
	require.True(t, ok)
	assert.Equal(t, agreement.TransferTooOld, transferErr.Code)

	arg.CreatedAtTime = now + TxWindow + 1
	_, err = sl.Transfer(context.Background(), arg)
	transferErr, ok = err.(*agreement.TransferError)
	require.True(t, ok)
	assert.Equal(t, agreement.TransferCreatedInFuture, transferErr.Code)
	assert.Equal(t, now, transferErr.LedgerTime)
}

func TestTransferDeduplicationReplaysOriginalBlock(t *testing.T) {
	sl := newTestLedger()
	ctx := context.Background()
	now := uint64(1_000_000_000_000_000_000)
	sl.SetClock(func() uint64 { return now })

	arg := TransferArg{
		To:            agreement.Account{Owner: alicePrincipal},
		Amount:        big.NewInt(100),
		CreatedAtTime: now,
	}

	first, err := sl.Transfer(ctx, arg)
	require.NoError(t, err)
	second, err := sl.Transfer(ctx, arg)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// only one transfer actually happened
	balance, err := sl.BalanceOf(ctx, agreement.Account{Owner: alicePrincipal})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), balance)
}

func TestApproveAndTransferFrom(t *testing.T) {
	sl := newTestLedger()
	ctx := context.Background()

	spender := agreement.Account{Owner: bridgePrincipal, Subaccount: agreement.Subaccount{1}}

	_, err := sl.Approve(ctx, ApproveArgs{
		Spender: spender,
		Amount:  big.NewInt(300_000),
	})
	require.NoError(t, err)

	got, err := sl.Allowance(ctx, AllowanceArgs{
		Account: agreement.Account{Owner: bridgePrincipal},
		Spender: spender,
	})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300_000), got.Allowance)

	_, err = sl.TransferFrom(ctx, TransferFromArgs{
		SpenderSubaccount: agreement.Subaccount{1},
		From:              agreement.Account{Owner: bridgePrincipal},
		To:                agreement.Account{Owner: alicePrincipal},
		Amount:            big.NewInt(100_000),
	})
	require.NoError(t, err)

	// allowance reduced by amount + fee
	got, err = sl.Allowance(ctx, AllowanceArgs{
		Account: agreement.Account{Owner: bridgePrincipal},
		Spender: spender,
	})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(190_000), got.Allowance)
}

func TestTransferFromInsufficientAllowance(t *testing.T) {
	sl := newTestLedger()

	_, err := sl.TransferFrom(context.Background(), TransferFromArgs{
		From:   agreement.Account{Owner: bridgePrincipal},
		To:     agreement.Account{Owner: alicePrincipal},
		Amount: big.NewInt(100),
	})
	require.Error(t, err)

	tfErr, ok := err.(*agreement.TransferFromError)
	require.True(t, ok)
	assert.Equal(t, agreement.TransferFromInsufficientAllowance, tfErr.Code)
	assert.Equal(t, big.NewInt(0), tfErr.Allowance)
}

func TestExpiredAllowanceIsDead(t *testing.T) {
	sl := newTestLedger()
	ctx := context.Background()
	now := uint64(1_000_000_000_000_000_000)
	sl.SetClock(func() uint64 { return now })

	spender := agreement.Account{Owner: bridgePrincipal, Subaccount: agreement.Subaccount{2}}
	_, err := sl.Approve(ctx, ApproveArgs{
		Spender:   spender,
		Amount:    big.NewInt(500_000),
		ExpiresAt: now + 1000,
	})
	require.NoError(t, err)

	// move past the expiry
	sl.SetClock(func() uint64 { return now + 2000 })

	_, err = sl.TransferFrom(ctx, TransferFromArgs{
		SpenderSubaccount: agreement.Subaccount{2},
		From:              agreement.Account{Owner: bridgePrincipal},
		To:                agreement.Account{Owner: alicePrincipal},
		Amount:            big.NewInt(100),
	})
	require.Error(t, err)
	tfErr, ok := err.(*agreement.TransferFromError)
	require.True(t, ok)
	assert.Equal(t, agreement.TransferFromInsufficientAllowance, tfErr.Code)
}

func TestBurnBelowMinimumFails(t *testing.T) {
	sl := newTestLedger()

	_, err := sl.Transfer(context.Background(), TransferArg{
		To:     agreement.Account{Owner: "minting-principal"},
		Amount: big.NewInt(1),
	})
	require.Error(t, err)
	transferErr, ok := err.(*agreement.TransferError)
	require.True(t, ok)
	assert.Equal(t, agreement.TransferBadBurn, transferErr.Code)
	assert.Equal(t, testFee, transferErr.MinBurnAmount)
}
