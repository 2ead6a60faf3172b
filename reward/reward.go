// Reward engine for deferred contracts.
//
// The per-installment reward is remainingSupply * RMC * avidity, floored at
// MinReward and scaled by the current oracle token price. The RMC (reward
// multiplier coefficient) halves every four years down to a hard floor, and
// avidity drifts monthly against demand: a month with more rewarded
// contracts than the last lowers it, a quieter month raises it, always kept
// inside [0.1, 1.0].

package reward

import (
	"math/big"
	"time"
)

const (
	// InitialRMC is the reward multiplier coefficient at genesis.
	InitialRMC = 0.0000042

	// InitialAvidity is the avidity at genesis.
	InitialAvidity = 1.0

	// MinReward is the floor of the unscaled reward, ten ledger fees.
	MinReward = 10 * 10_000

	// BaseTokenPrice is the oracle price at which the reward passes
	// through unscaled.
	BaseTokenPrice = 100

	// rmcFloor: below this the RMC never halves again.
	rmcFloor = 2e-12

	halvingInterval = 4 * 365 * 24 * time.Hour

	avidityStep = 0.1
	avidityMin  = 0.1
	avidityMax  = 1.0
)

// ComputeReward calculates the per-installment reward. Deterministic: same
// inputs, same output. Returns nil when paying out all installments would
// exceed the remaining supply.
func ComputeReward(installments uint64, remainingSupply *big.Int, tokenPrice uint64, rmc, avidity float64) *big.Int {
	if remainingSupply == nil || remainingSupply.Sign() <= 0 || installments == 0 {
		return nil
	}

	supply, _ := new(big.Float).SetInt(remainingSupply).Float64()

	raw := supply * rmc * avidity
	var reward *big.Int
	if raw < MinReward {
		reward = big.NewInt(MinReward)
	} else {
		reward, _ = big.NewFloat(raw).Int(nil)
	}

	// reward : BaseTokenPrice = x : tokenPrice, rounded up
	reward.Mul(reward, new(big.Int).SetUint64(tokenPrice))
	reward = ceilDiv(reward, big.NewInt(BaseTokenPrice))

	poolValue := new(big.Int).Mul(reward, new(big.Int).SetUint64(installments))
	if poolValue.Cmp(remainingSupply) > 0 {
		return nil
	}

	return reward
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
