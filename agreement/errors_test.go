package agreement

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorsMatchByOrigin(t *testing.T) {
	var err EkokeError = &TransferError{
		Code:    TransferInsufficientFunds,
		Balance: big.NewInt(250),
	}

	switch e := err.(type) {
	case *TransferError:
		assert.Equal(t, TransferInsufficientFunds, e.Code)
		assert.Equal(t, big.NewInt(250), e.Balance)
	default:
		t.Fatalf("unexpected variant %T", e)
	}
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, IsRetriable(&TransferError{Code: TransferTemporarilyUnavailable}))
	assert.True(t, IsRetriable(&CanisterCallError{Rejection: RejectionSysTransient}))
	assert.True(t, IsRetriable(&XrcError{}))

	assert.False(t, IsRetriable(&TransferError{Code: TransferInsufficientFunds, Balance: big.NewInt(0)}))
	assert.False(t, IsRetriable(&PoolError{Code: PoolNotEnoughTokens}))
	assert.False(t, IsRetriable(&ValidationError{Code: ValidationAmountNotPositive}))
	assert.False(t, IsRetriable(&CanisterCallError{Rejection: RejectionCanisterReject}))
}

func TestAccountEquality(t *testing.T) {
	sub := Subaccount{1, 2, 3}
	a := Account{Owner: "aaaaa-aa", Subaccount: sub}
	b := Account{Owner: "aaaaa-aa", Subaccount: sub}
	c := Account{Owner: "aaaaa-aa"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, Account{Owner: "aaaaa-aa"}.Equal(Account{Owner: "bbbbb-bb"}))
}

func TestMetadataValueNesting(t *testing.T) {
	inner := NatValue(big.NewInt(42))
	v := MapValue([]MetadataEntry{
		{Name: "decimals", Value: &inner},
	})

	got, ok := v.Get("decimals")
	assert.True(t, ok)
	assert.Equal(t, big.NewInt(42), got.Nat)

	_, ok = v.Get("missing")
	assert.False(t, ok)

	leaf := TextValue("EKOKE")
	_, ok = leaf.Get("anything")
	assert.False(t, ok)
}

func TestFeeQuoteExpiry(t *testing.T) {
	now := time.Now()
	q := FeeQuote{Amount: 100, FetchedAt: now, ValidUntil: now.Add(30 * time.Second)}

	assert.False(t, q.Expired(now))
	assert.False(t, q.Expired(now.Add(29*time.Second)))
	assert.True(t, q.Expired(now.Add(30*time.Second)))
	assert.True(t, q.Expired(now.Add(time.Minute)))
}
