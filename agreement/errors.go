// The bridge error taxonomy.
//
// Every failure that crosses the swap/reward boundary is one of the
// variants below, organized by origin and composed into the closed
// EkokeError union. Callers type-switch on the wrapper types; no error on
// the settlement path is ever surfaced as an unstructured string.

package agreement

import (
	"fmt"
	"math/big"
)

// EkokeError is the top-level closed union. The only implementations live
// in this package; the marker method keeps the set closed.
type EkokeError interface {
	error
	isEkokeError()
}

// ---------------------------------------------------------------------------
// Configuration errors: fail fast at setup, never at runtime.
// ---------------------------------------------------------------------------

type ConfigurationErrorCode string

const (
	AdminsCantBeEmpty ConfigurationErrorCode = "AdminsCantBeEmpty"
	AnonymousAdmin    ConfigurationErrorCode = "AnonymousAdmin"
)

type ConfigurationError struct {
	Code ConfigurationErrorCode
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s", e.Code)
}

func (e *ConfigurationError) isEkokeError() {}

// ---------------------------------------------------------------------------
// ICRC-1 transfer errors. Shapes mirror the ledger standard exactly.
// ---------------------------------------------------------------------------

type TransferErrorCode string

const (
	TransferBadFee                 TransferErrorCode = "BadFee"
	TransferBadBurn                TransferErrorCode = "BadBurn"
	TransferDuplicate              TransferErrorCode = "Duplicate"
	TransferCreatedInFuture        TransferErrorCode = "CreatedInFuture"
	TransferTooOld                 TransferErrorCode = "TooOld"
	TransferInsufficientFunds      TransferErrorCode = "InsufficientFunds"
	TransferTemporarilyUnavailable TransferErrorCode = "TemporarilyUnavailable"
	TransferGenericError           TransferErrorCode = "GenericError"
)

type TransferError struct {
	Code TransferErrorCode

	ExpectedFee   *big.Int // BadFee
	MinBurnAmount *big.Int // BadBurn
	DuplicateOf   *big.Int // Duplicate: block index of the original tx
	LedgerTime    uint64   // CreatedInFuture
	Balance       *big.Int // InsufficientFunds: actual balance
	ErrorCode     *big.Int // GenericError
	Message       string   // GenericError
}

func (e *TransferError) Error() string {
	switch e.Code {
	case TransferBadFee:
		return fmt.Sprintf("icrc1 transfer: bad fee, expected %v", e.ExpectedFee)
	case TransferInsufficientFunds:
		return fmt.Sprintf("icrc1 transfer: insufficient funds, balance %v", e.Balance)
	case TransferDuplicate:
		return fmt.Sprintf("icrc1 transfer: duplicate of block %v", e.DuplicateOf)
	case TransferGenericError:
		return fmt.Sprintf("icrc1 transfer: %s (code %v)", e.Message, e.ErrorCode)
	default:
		return fmt.Sprintf("icrc1 transfer: %s", e.Code)
	}
}

func (e *TransferError) isEkokeError() {}

// ---------------------------------------------------------------------------
// ICRC-2 approve errors.
// ---------------------------------------------------------------------------

type ApproveErrorCode string

const (
	ApproveBadFee                 ApproveErrorCode = "BadFee"
	ApproveDuplicate              ApproveErrorCode = "Duplicate"
	ApproveCreatedInFuture        ApproveErrorCode = "CreatedInFuture"
	ApproveTooOld                 ApproveErrorCode = "TooOld"
	ApproveExpired                ApproveErrorCode = "Expired"
	ApproveAllowanceChanged       ApproveErrorCode = "AllowanceChanged"
	ApproveInsufficientFunds      ApproveErrorCode = "InsufficientFunds"
	ApproveTemporarilyUnavailable ApproveErrorCode = "TemporarilyUnavailable"
	ApproveGenericError           ApproveErrorCode = "GenericError"
)

type ApproveError struct {
	Code ApproveErrorCode

	ExpectedFee      *big.Int // BadFee
	DuplicateOf      *big.Int // Duplicate
	LedgerTime       uint64   // CreatedInFuture, Expired
	CurrentAllowance *big.Int // AllowanceChanged
	Balance          *big.Int // InsufficientFunds
	ErrorCode        *big.Int // GenericError
	Message          string   // GenericError
}

func (e *ApproveError) Error() string {
	return fmt.Sprintf("icrc2 approve: %s", e.Code)
}

func (e *ApproveError) isEkokeError() {}

// ---------------------------------------------------------------------------
// ICRC-2 transfer_from errors.
// ---------------------------------------------------------------------------

type TransferFromErrorCode string

const (
	TransferFromBadFee                 TransferFromErrorCode = "BadFee"
	TransferFromBadBurn                TransferFromErrorCode = "BadBurn"
	TransferFromDuplicate              TransferFromErrorCode = "Duplicate"
	TransferFromCreatedInFuture        TransferFromErrorCode = "CreatedInFuture"
	TransferFromTooOld                 TransferFromErrorCode = "TooOld"
	TransferFromInsufficientFunds      TransferFromErrorCode = "InsufficientFunds"
	TransferFromInsufficientAllowance  TransferFromErrorCode = "InsufficientAllowance"
	TransferFromTemporarilyUnavailable TransferFromErrorCode = "TemporarilyUnavailable"
	TransferFromGenericError           TransferFromErrorCode = "GenericError"
)

type TransferFromError struct {
	Code TransferFromErrorCode

	ExpectedFee   *big.Int // BadFee
	MinBurnAmount *big.Int // BadBurn
	DuplicateOf   *big.Int // Duplicate
	LedgerTime    uint64   // CreatedInFuture
	Balance       *big.Int // InsufficientFunds
	Allowance     *big.Int // InsufficientAllowance
	ErrorCode     *big.Int // GenericError
	Message       string   // GenericError
}

func (e *TransferFromError) Error() string {
	return fmt.Sprintf("icrc2 transfer_from: %s", e.Code)
}

func (e *TransferFromError) isEkokeError() {}

// ---------------------------------------------------------------------------
// Liquidity pool errors.
// ---------------------------------------------------------------------------

type PoolErrorCode string

const (
	PoolNotFound        PoolErrorCode = "PoolNotFound"
	PoolNotEnoughTokens PoolErrorCode = "NotEnoughTokens"
)

type PoolError struct {
	Code PoolErrorCode

	ContractID uint64 // PoolNotFound
}

func (e *PoolError) Error() string {
	if e.Code == PoolNotFound {
		return fmt.Sprintf("pool: no active reservation for contract %d", e.ContractID)
	}
	return "pool: not enough tokens"
}

func (e *PoolError) isEkokeError() {}

// ---------------------------------------------------------------------------
// Allowance errors.
// ---------------------------------------------------------------------------

type AllowanceErrorCode string

const (
	AllowanceNotFound          AllowanceErrorCode = "AllowanceNotFound"
	AllowanceBadSpender        AllowanceErrorCode = "BadSpender"
	AllowanceChanged           AllowanceErrorCode = "AllowanceChanged"
	AllowanceBadExpiration     AllowanceErrorCode = "BadExpiration"
	AllowanceExpired           AllowanceErrorCode = "AllowanceExpired"
	AllowanceInsufficientFunds AllowanceErrorCode = "InsufficientFunds"
)

type AllowanceError struct {
	Code AllowanceErrorCode
}

func (e *AllowanceError) Error() string {
	return fmt.Sprintf("allowance: %s", e.Code)
}

func (e *AllowanceError) isEkokeError() {}

// ---------------------------------------------------------------------------
// Balance errors.
// ---------------------------------------------------------------------------

type BalanceErrorCode string

const (
	BalanceAccountNotFound     BalanceErrorCode = "AccountNotFound"
	BalanceInsufficientBalance BalanceErrorCode = "InsufficientBalance"
)

type BalanceError struct {
	Code BalanceErrorCode
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("balance: %s", e.Code)
}

func (e *BalanceError) isEkokeError() {}

// ---------------------------------------------------------------------------
// Register errors.
// ---------------------------------------------------------------------------

type RegisterError struct{}

func (e *RegisterError) Error() string {
	return "register: transaction not found"
}

func (e *RegisterError) isEkokeError() {}

// ---------------------------------------------------------------------------
// External-chain errors.
// ---------------------------------------------------------------------------

// EthRpcError carries the numeric error code and message returned by the
// external chain RPC endpoint.
type EthRpcError struct {
	Code    int32
	Message string
}

func (e *EthRpcError) Error() string {
	return fmt.Sprintf("eth rpc: %s (code %d)", e.Message, e.Code)
}

func (e *EthRpcError) isEkokeError() {}

type EcdsaErrorCode string

const (
	EcdsaRecoveryIdError  EcdsaErrorCode = "RecoveryIdError"
	EcdsaInvalidSignature EcdsaErrorCode = "InvalidSignature"
	EcdsaInvalidPublicKey EcdsaErrorCode = "InvalidPublicKey"
)

type EcdsaError struct {
	Code EcdsaErrorCode
}

func (e *EcdsaError) Error() string {
	return fmt.Sprintf("ecdsa: %s", e.Code)
}

func (e *EcdsaError) isEkokeError() {}

// RejectionCode classifies an inter-service call rejection.
type RejectionCode string

const (
	RejectionNoError            RejectionCode = "NoError"
	RejectionSysFatal           RejectionCode = "SysFatal"
	RejectionSysTransient       RejectionCode = "SysTransient"
	RejectionDestinationInvalid RejectionCode = "DestinationInvalid"
	RejectionCanisterReject     RejectionCode = "CanisterReject"
	RejectionCanisterError      RejectionCode = "CanisterError"
	RejectionUnknown            RejectionCode = "Unknown"
)

// CanisterCallError is the generic inter-service call failure.
type CanisterCallError struct {
	Rejection RejectionCode
	Message   string
}

func (e *CanisterCallError) Error() string {
	return fmt.Sprintf("canister call rejected (%s): %s", e.Rejection, e.Message)
}

func (e *CanisterCallError) isEkokeError() {}

// Retriable reports whether a caller may safely retry after this rejection.
func (e *CanisterCallError) Retriable() bool {
	return e.Rejection == RejectionSysTransient
}

// ---------------------------------------------------------------------------
// Oracle and storage errors: opaque by design.
// ---------------------------------------------------------------------------

// XrcError means the exchange-rate oracle was unavailable or the rate
// could not be obtained. It aborts a swap before any value has moved.
type XrcError struct{}

func (e *XrcError) Error() string {
	return "xrc: rate unobtainable"
}

func (e *XrcError) isEkokeError() {}

type StorageError struct{}

func (e *StorageError) Error() string {
	return "storage error"
}

func (e *StorageError) isEkokeError() {}

// ---------------------------------------------------------------------------
// Validation errors raised by the orchestrator before any side effect.
// ---------------------------------------------------------------------------

type ValidationErrorCode string

const (
	ValidationAmountNotPositive ValidationErrorCode = "AmountNotPositive"
	ValidationBadDestination    ValidationErrorCode = "BadDestination"
	ValidationBadDirection      ValidationErrorCode = "BadDirection"
	// erc20_to_native without a burn tx hash
	ValidationMissingReceipt ValidationErrorCode = "MissingReceipt"
	// burn tx not found on the external chain, reverted, or not
	// addressed to the bridge contract
	ValidationBadReceipt ValidationErrorCode = "BadReceipt"
	// burn tx already credited through another swap
	ValidationReceiptClaimed ValidationErrorCode = "ReceiptClaimed"
)

type ValidationError struct {
	Code    ValidationErrorCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Code, e.Message)
}

func (e *ValidationError) isEkokeError() {}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// IsRetriable reports whether the caller may retry the failed request
// without risking a double effect. Only transient unavailability and
// transient call rejections qualify; funds/validation errors are terminal.
func IsRetriable(err EkokeError) bool {
	switch e := err.(type) {
	case *TransferError:
		return e.Code == TransferTemporarilyUnavailable
	case *ApproveError:
		return e.Code == ApproveTemporarilyUnavailable
	case *TransferFromError:
		return e.Code == TransferFromTemporarilyUnavailable
	case *CanisterCallError:
		return e.Retriable()
	case *XrcError:
		return true
	default:
		return false
	}
}
