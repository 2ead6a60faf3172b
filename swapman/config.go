package swapman

import (
	"math/big"
	"time"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

type Config struct {
	// Principal of the bridge on the native ledger.
	BridgePrincipal agreement.Principal

	// SwapSubaccount is the bridge subaccount swapped-in tokens land on
	// and swapped-back tokens are paid from.
	SwapSubaccount agreement.Subaccount

	// GasPriceWei is the initial gas price for outbound transactions,
	// adjustable at runtime by an admin.
	GasPriceWei *big.Int

	// Frequency to resubmit swaps that were debited but never made it to
	// the external chain.
	FrequencyToReconcile time.Duration

	// Frequency to poll submitted transactions for confirmation.
	FrequencyToConfirm time.Duration
}
