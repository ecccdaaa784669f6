// Package lenderr defines the typed failure taxonomy returned by every
// lending operation. Callers branch on Code (or errors.Is against the
// sentinel values); Kind groups codes by how a caller should react.
package lenderr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by caller reaction
type Kind int32

const (
	KindUnknown Kind = iota
	KindInputValidation
	KindStaleness
	KindSolvency
	KindArithmetic
	KindAuthorization
	KindBounds
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "InputValidation"
	case KindStaleness:
		return "Staleness"
	case KindSolvency:
		return "Solvency"
	case KindArithmetic:
		return "Arithmetic"
	case KindAuthorization:
		return "Authorization"
	case KindBounds:
		return "Bounds"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// Code is the stable failure identifier. Values are part of the wire
// contract: append new codes, never renumber.
type Code int32

const (
	CodeUnknown Code = iota

	// Input validation
	CodeInvalidAmount
	CodeInvalidQuoteCurrency
	CodeInvalidReserveConfig
	CodeInvalidLiquidityAmount
	CodeInvalidOracleConfig
	CodeInvalidLendingMarket
	CodeInvalidReserveCount
	CodeInvalidReserveForObligation

	// Staleness
	CodeReserveStale
	CodeObligationStale
	CodeOraclePriceStale
	CodeOraclePriceInvalid
	CodeOraclePriceConfidenceTooWide
	CodeSlotRegression

	// Solvency / health
	CodeInsufficientCollateral
	CodeObligationUnhealthy
	CodeObligationHealthy
	CodeBorrowExceedsLiquidity
	CodeInsufficientFunds

	// Arithmetic
	CodeMathOverflow
	CodeNegativeInterestRate

	// Authorization
	CodeInvalidOwner
	CodeSameOwner
	CodeInvalidNewOwner
	CodeInvalidObligationOwner
	CodeCannotLiquidateOwnObligation

	// Bounds
	CodeObligationReserveLimit
	CodeObligationDepositsEmpty
	CodeObligationDepositsZero
	CodeWithdrawTooLarge
	CodeWithdrawTooSmall
	CodeBorrowTooLarge
	CodeBorrowTooSmall
	CodeLiquidationTooLarge
	CodeLiquidationTooSmall
	CodeRepayTooSmall
	CodeRepayExceedsUserBalance

	// Lookup
	CodeMarketNotFound
	CodeReserveNotFound
	CodeObligationNotFound
	CodeObligationLiquidityNotFound
	CodeObligationCollateralNotFound

	// Conflict
	CodeMarketAlreadyInitialized
	CodeReserveAlreadyInitialized
	CodeObligationAlreadyInitialized
)

type codeInfo struct {
	name string
	kind Kind
	msg  string
}

var codes = map[Code]codeInfo{
	CodeInvalidAmount:                {"InvalidAmount", KindInputValidation, "amount must be greater than zero"},
	CodeInvalidQuoteCurrency:         {"InvalidQuoteCurrency", KindInputValidation, "quote currency is neither a symbol nor a key"},
	CodeInvalidReserveConfig:         {"InvalidReserveConfig", KindInputValidation, "reserve config is invalid"},
	CodeInvalidLiquidityAmount:       {"InvalidLiquidityAmount", KindInputValidation, "initial liquidity must be greater than zero"},
	CodeInvalidOracleConfig:          {"InvalidOracleConfig", KindInputValidation, "oracle feed does not match reserve configuration"},
	CodeInvalidLendingMarket:         {"InvalidLendingMarket", KindInputValidation, "account belongs to a different lending market"},
	CodeInvalidReserveCount:          {"InvalidReserveCount", KindInputValidation, "declared reserves do not match obligation entries"},
	CodeInvalidReserveForObligation:  {"InvalidReserveForObligation", KindInputValidation, "declared reserve does not match obligation entry"},
	CodeReserveStale:                 {"ReserveStale", KindStaleness, "reserve must be refreshed in the current slot"},
	CodeObligationStale:              {"ObligationStale", KindStaleness, "obligation must be refreshed in the current slot"},
	CodeOraclePriceStale:             {"OraclePriceStale", KindStaleness, "oracle price is too old"},
	CodeOraclePriceInvalid:           {"OraclePriceInvalid", KindStaleness, "oracle price is invalid"},
	CodeOraclePriceConfidenceTooWide: {"OraclePriceConfidenceTooWide", KindStaleness, "oracle confidence interval is too wide"},
	CodeSlotRegression:               {"SlotRegression", KindStaleness, "operation slot is behind the ledger clock"},
	CodeInsufficientCollateral:       {"InsufficientCollateral", KindSolvency, "borrow exceeds remaining borrowing power"},
	CodeObligationUnhealthy:          {"ObligationUnhealthy", KindSolvency, "operation would leave the obligation unhealthy"},
	CodeObligationHealthy:            {"ObligationHealthy", KindSolvency, "obligation is healthy and cannot be liquidated"},
	CodeBorrowExceedsLiquidity:       {"BorrowExceedsLiquidity", KindSolvency, "borrow exceeds available reserve liquidity"},
	CodeInsufficientFunds:            {"InsufficientFunds", KindSolvency, "token account balance is too low"},
	CodeMathOverflow:                 {"MathOverflow", KindArithmetic, "math operation overflowed"},
	CodeNegativeInterestRate:         {"NegativeInterestRate", KindArithmetic, "interest rate is negative"},
	CodeInvalidOwner:                 {"InvalidOwner", KindAuthorization, "signer is not the market owner"},
	CodeSameOwner:                    {"SameOwner", KindAuthorization, "new owner is the current owner"},
	CodeInvalidNewOwner:              {"InvalidNewOwner", KindAuthorization, "new owner is the default address"},
	CodeInvalidObligationOwner:       {"InvalidObligationOwner", KindAuthorization, "signer is not the obligation owner"},
	CodeCannotLiquidateOwnObligation: {"CannotLiquidateOwnObligation", KindAuthorization, "liquidator owns the obligation"},
	CodeObligationReserveLimit:       {"ObligationReserveLimit", KindBounds, "obligation entry limit reached"},
	CodeObligationDepositsEmpty:      {"ObligationDepositsEmpty", KindBounds, "obligation has no deposits"},
	CodeObligationDepositsZero:       {"ObligationDepositsZero", KindBounds, "obligation deposits have zero value"},
	CodeWithdrawTooLarge:             {"WithdrawTooLarge", KindBounds, "withdraw amount is too large"},
	CodeWithdrawTooSmall:             {"WithdrawTooSmall", KindBounds, "withdraw amount is too small"},
	CodeBorrowTooLarge:               {"BorrowTooLarge", KindBounds, "borrow amount is too large"},
	CodeBorrowTooSmall:               {"BorrowTooSmall", KindBounds, "borrow amount is too small"},
	CodeLiquidationTooLarge:          {"LiquidationTooLarge", KindBounds, "repay amount exceeds the close factor"},
	CodeLiquidationTooSmall:          {"LiquidationTooSmall", KindBounds, "liquidation amount is too small"},
	CodeRepayTooSmall:                {"RepayTooSmall", KindBounds, "repay amount is too small"},
	CodeRepayExceedsUserBalance:      {"RepayExceedsUserBalance", KindBounds, "repay amount exceeds outstanding debt"},
	CodeMarketNotFound:               {"MarketNotFound", KindNotFound, "lending market not found"},
	CodeReserveNotFound:              {"ReserveNotFound", KindNotFound, "reserve not found"},
	CodeObligationNotFound:           {"ObligationNotFound", KindNotFound, "obligation not found"},
	CodeObligationLiquidityNotFound:  {"ObligationLiquidityNotFound", KindNotFound, "obligation has no borrow in this reserve"},
	CodeObligationCollateralNotFound: {"ObligationCollateralNotFound", KindNotFound, "obligation has no deposit in this reserve"},
	CodeMarketAlreadyInitialized:     {"MarketAlreadyInitialized", KindConflict, "lending market already initialized"},
	CodeReserveAlreadyInitialized:    {"ReserveAlreadyInitialized", KindConflict, "reserve already initialized"},
	CodeObligationAlreadyInitialized: {"ObligationAlreadyInitialized", KindConflict, "obligation already initialized"},
}

func (c Code) String() string {
	if info, ok := codes[c]; ok {
		return info.name
	}
	return "Unknown"
}

// Kind returns the classification of the code
func (c Code) Kind() Kind {
	return codes[c].kind
}

// ParseCode resolves a code from its name. Unknown names map to CodeUnknown.
func ParseCode(name string) Code {
	for c, info := range codes {
		if info.name == name {
			return c
		}
	}
	return CodeUnknown
}

// Error is a typed lending failure
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	msg := codes[e.Code].msg
	if msg == "" {
		msg = "unknown failure"
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, msg, e.Detail)
}

// Is matches any *Error with the same code, so errors.Is works against
// the sentinels regardless of Detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Kind returns the classification of the error
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// New returns a failure with the given code and detail
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from a (possibly wrapped) error
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// KindOf extracts the kind from a (possibly wrapped) error
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

var (
	ErrInvalidAmount                = &Error{Code: CodeInvalidAmount}
	ErrInvalidQuoteCurrency         = &Error{Code: CodeInvalidQuoteCurrency}
	ErrInvalidReserveConfig         = &Error{Code: CodeInvalidReserveConfig}
	ErrInvalidLiquidityAmount       = &Error{Code: CodeInvalidLiquidityAmount}
	ErrInvalidOracleConfig          = &Error{Code: CodeInvalidOracleConfig}
	ErrInvalidLendingMarket         = &Error{Code: CodeInvalidLendingMarket}
	ErrInvalidReserveCount          = &Error{Code: CodeInvalidReserveCount}
	ErrInvalidReserveForObligation  = &Error{Code: CodeInvalidReserveForObligation}
	ErrReserveStale                 = &Error{Code: CodeReserveStale}
	ErrObligationStale              = &Error{Code: CodeObligationStale}
	ErrOraclePriceStale             = &Error{Code: CodeOraclePriceStale}
	ErrOraclePriceInvalid           = &Error{Code: CodeOraclePriceInvalid}
	ErrOraclePriceConfidenceTooWide = &Error{Code: CodeOraclePriceConfidenceTooWide}
	ErrSlotRegression               = &Error{Code: CodeSlotRegression}
	ErrInsufficientCollateral       = &Error{Code: CodeInsufficientCollateral}
	ErrObligationUnhealthy          = &Error{Code: CodeObligationUnhealthy}
	ErrObligationHealthy            = &Error{Code: CodeObligationHealthy}
	ErrBorrowExceedsLiquidity       = &Error{Code: CodeBorrowExceedsLiquidity}
	ErrInsufficientFunds            = &Error{Code: CodeInsufficientFunds}
	ErrMathOverflow                 = &Error{Code: CodeMathOverflow}
	ErrNegativeInterestRate         = &Error{Code: CodeNegativeInterestRate}
	ErrInvalidOwner                 = &Error{Code: CodeInvalidOwner}
	ErrSameOwner                    = &Error{Code: CodeSameOwner}
	ErrInvalidNewOwner              = &Error{Code: CodeInvalidNewOwner}
	ErrInvalidObligationOwner       = &Error{Code: CodeInvalidObligationOwner}
	ErrCannotLiquidateOwnObligation = &Error{Code: CodeCannotLiquidateOwnObligation}
	ErrObligationReserveLimit       = &Error{Code: CodeObligationReserveLimit}
	ErrObligationDepositsEmpty      = &Error{Code: CodeObligationDepositsEmpty}
	ErrObligationDepositsZero       = &Error{Code: CodeObligationDepositsZero}
	ErrWithdrawTooLarge             = &Error{Code: CodeWithdrawTooLarge}
	ErrWithdrawTooSmall             = &Error{Code: CodeWithdrawTooSmall}
	ErrBorrowTooLarge               = &Error{Code: CodeBorrowTooLarge}
	ErrBorrowTooSmall               = &Error{Code: CodeBorrowTooSmall}
	ErrLiquidationTooLarge          = &Error{Code: CodeLiquidationTooLarge}
	ErrLiquidationTooSmall          = &Error{Code: CodeLiquidationTooSmall}
	ErrRepayTooSmall                = &Error{Code: CodeRepayTooSmall}
	ErrRepayExceedsUserBalance      = &Error{Code: CodeRepayExceedsUserBalance}
	ErrMarketNotFound               = &Error{Code: CodeMarketNotFound}
	ErrReserveNotFound              = &Error{Code: CodeReserveNotFound}
	ErrObligationNotFound           = &Error{Code: CodeObligationNotFound}
	ErrObligationLiquidityNotFound  = &Error{Code: CodeObligationLiquidityNotFound}
	ErrObligationCollateralNotFound = &Error{Code: CodeObligationCollateralNotFound}
	ErrMarketAlreadyInitialized     = &Error{Code: CodeMarketAlreadyInitialized}
	ErrReserveAlreadyInitialized    = &Error{Code: CodeReserveAlreadyInitialized}
	ErrObligationAlreadyInitialized = &Error{Code: CodeObligationAlreadyInitialized}
)
