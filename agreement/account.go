// Global agreement on ledger identity types.

package agreement

import (
	"encoding/hex"
	"fmt"
)

// AnonymousPrincipal is the textual form of the anonymous identity.
// It must never appear in the admin set or own pool funds.
const AnonymousPrincipal = Principal("2vxsx-fae")

// Principal is the textual identity of a ledger actor (user, canister
// or this bridge itself). It is treated as opaque by the bridge.
type Principal string

func (p Principal) IsAnonymous() bool {
	return p == AnonymousPrincipal
}

func (p Principal) IsValid() bool {
	return len(p) > 0
}

func (p Principal) String() string {
	return string(p)
}

// Subaccount is the optional 32-byte sub-identifier of an account.
// The bridge also uses it as the caller-supplied idempotency nonce.
type Subaccount [32]byte

var zeroSubaccount Subaccount

func (s Subaccount) IsZero() bool {
	return s == zeroSubaccount
}

func (s Subaccount) Hex() string {
	return hex.EncodeToString(s[:])
}

func SubaccountFromBytes(b []byte) (Subaccount, error) {
	var s Subaccount
	if len(b) != 32 {
		return s, fmt.Errorf("subaccount must be 32 bytes, got %d", len(b))
	}
	copy(s[:], b)
	return s, nil
}

// Account is the unit of ledger ownership: an owner principal plus an
// optional subaccount. Two accounts are equal iff both parts match.
type Account struct {
	Owner      Principal
	Subaccount Subaccount
}

func (a Account) Equal(other Account) bool {
	return a.Owner == other.Owner && a.Subaccount == other.Subaccount
}

func (a Account) String() string {
	if a.Subaccount.IsZero() {
		return a.Owner.String()
	}
	return fmt.Sprintf("%s.%s", a.Owner, a.Subaccount.Hex())
}
