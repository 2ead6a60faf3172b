package ledger

import (
	"math/big"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

// TransferArg mirrors the icrc1_transfer request shape. Amounts are in the
// ledger's smallest unit; timestamps are nanoseconds since unix epoch.
type TransferArg struct {
	FromSubaccount agreement.Subaccount
	To             agreement.Account
	Amount         *big.Int
	// Fee must match the ledger's configured fee when set; nil lets the
	// ledger charge its default.
	Fee           *big.Int
	Memo          []byte
	CreatedAtTime uint64
}

// ApproveArgs mirrors the icrc2_approve request shape.
type ApproveArgs struct {
	FromSubaccount agreement.Subaccount
	Spender        agreement.Account
	Amount         *big.Int
	// ExpectedAllowance guards against concurrent allowance changes.
	ExpectedAllowance *big.Int
	ExpiresAt         uint64
	Fee               *big.Int
	Memo              []byte
	CreatedAtTime     uint64
}

// TransferFromArgs mirrors the icrc2_transfer_from request shape.
type TransferFromArgs struct {
	SpenderSubaccount agreement.Subaccount
	From              agreement.Account
	To                agreement.Account
	Amount            *big.Int
	Fee               *big.Int
	Memo              []byte
	CreatedAtTime     uint64
}

// AllowanceArgs mirrors the icrc2_allowance request shape.
type AllowanceArgs struct {
	Account agreement.Account
	Spender agreement.Account
}

// Allowance is the icrc2_allowance response.
type Allowance struct {
	Allowance *big.Int
	ExpiresAt uint64
}
