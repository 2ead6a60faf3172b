// Typed wrapper over the ICRC-1/2 ledger operations the bridge uses.
//
// The adapter is a stateless transcoding layer: it holds no balances and
// performs no retries. A failed transfer is returned verbatim to the
// orchestrator, which owns retry policy — blind retries of a transfer are
// unsafe without idempotency tokens.

package ledger

import (
	"context"
	"math/big"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

// Client is the ledger-facing contract. Failures carry the typed ledger
// errors from the agreement package:
//
//	Transfer     -> *agreement.TransferError
//	Approve      -> *agreement.ApproveError
//	TransferFrom -> *agreement.TransferFromError
//
// plus *agreement.CanisterCallError when the call itself is rejected.
type Client interface {
	// Transfer moves tokens from the bridge's own account (optionally a
	// subaccount of it) and returns the ledger block index.
	Transfer(ctx context.Context, arg TransferArg) (*big.Int, error)

	// TransferFrom spends a previously approved allowance.
	TransferFrom(ctx context.Context, arg TransferFromArgs) (*big.Int, error)

	// Approve grants a spender an allowance with an optional expiry.
	Approve(ctx context.Context, arg ApproveArgs) (*big.Int, error)

	// BalanceOf returns the balance of the provided account.
	BalanceOf(ctx context.Context, account agreement.Account) (*big.Int, error)

	// Allowance returns the current allowance of (account, spender).
	Allowance(ctx context.Context, arg AllowanceArgs) (Allowance, error)

	// Fee returns the ledger's configured transfer fee.
	Fee(ctx context.Context) (*big.Int, error)
}
