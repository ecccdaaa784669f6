package event

import (
	"fmt"

	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"

	"github.com/google/uuid"
)

// EventType discriminator for operation payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeInitMarket
	EventTypeSetMarketOwner
	EventTypeInitReserve
	EventTypeRefreshReserve
	EventTypeDepositReserveLiquidity
	EventTypeRedeemReserveCollateral
	EventTypeInitObligation
	EventTypeRefreshObligation
	EventTypeDepositObligationCollateral
	EventTypeWithdrawObligationCollateral
	EventTypeBorrowObligationLiquidity
	EventTypeRepayObligationLiquidity
	EventTypeLiquidateObligation
	EventTypeFundWallet
	EventTypeWithdrawWallet
)

// EventEnvelope wraps every applied operation in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Market context (nil when the operation does not name one)
	MarketID *address.Address

	// Slot the operation executed in (NOT wall-clock)
	Slot uint64

	Signer address.Address

	// JSON-encoded operation payload, re-parsed on replay
	Payload []byte

	// SHA-256 of state AFTER applying this operation
	StateHash [32]byte

	// Previous operation's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all operation payloads implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context, nil if the payload names none
	MarketID() *address.Address

	// OperationSlot is the slot the operation executes in
	OperationSlot() uint64

	// SignedBy is the account authorizing the operation
	SignedBy() address.Address

	// Validate checks the payload in isolation, before any state is read
	Validate() error
}

// Header carries the fields every operation shares. It is embedded, so its
// JSON fields sit at the top level of each payload.
type Header struct {
	OperationID uuid.UUID       `json:"operation_id"`
	Slot        uint64          `json:"slot"`
	Signer      address.Address `json:"signer"`
}

func (h *Header) IdempotencyKey() string { return h.OperationID.String() }

func (h *Header) OperationSlot() uint64 { return h.Slot }

func (h *Header) SignedBy() address.Address { return h.Signer }

func (h *Header) validate() error {
	if h.OperationID == uuid.Nil {
		return fmt.Errorf("operation_id is required")
	}
	if h.Signer.IsZero() {
		return fmt.Errorf("signer is required")
	}
	return nil
}

func requireAddress(name string, a address.Address) error {
	if a.IsZero() {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

func requireAmount(amount uint64) error {
	if amount == 0 {
		return lenderr.New(lenderr.CodeInvalidAmount, "amount must be positive")
	}
	return nil
}

var eventTypeNames = map[EventType]string{
	EventTypeInitMarket:                   "init_market",
	EventTypeSetMarketOwner:               "set_market_owner",
	EventTypeInitReserve:                  "init_reserve",
	EventTypeRefreshReserve:               "refresh_reserve",
	EventTypeDepositReserveLiquidity:      "deposit_reserve_liquidity",
	EventTypeRedeemReserveCollateral:      "redeem_reserve_collateral",
	EventTypeInitObligation:               "init_obligation",
	EventTypeRefreshObligation:            "refresh_obligation",
	EventTypeDepositObligationCollateral:  "deposit_obligation_collateral",
	EventTypeWithdrawObligationCollateral: "withdraw_obligation_collateral",
	EventTypeBorrowObligationLiquidity:    "borrow_obligation_liquidity",
	EventTypeRepayObligationLiquidity:     "repay_obligation_liquidity",
	EventTypeLiquidateObligation:          "liquidate_obligation",
	EventTypeFundWallet:                   "fund_wallet",
	EventTypeWithdrawWallet:               "withdraw_wallet",
}

func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "unknown"
}

// ParseEventType maps an operation name (as used in NATS subjects and HTTP
// paths) to its type.
func ParseEventType(name string) (EventType, error) {
	for t, n := range eventTypeNames {
		if n == name {
			return t, nil
		}
	}
	return EventTypeUnknown, fmt.Errorf("unknown operation type: %s", name)
}

// AllEventTypes lists every operation type in declaration order
func AllEventTypes() []EventType {
	out := make([]EventType, 0, len(eventTypeNames))
	for t := EventTypeInitMarket; t <= EventTypeWithdrawWallet; t++ {
		out = append(out, t)
	}
	return out
}

// New returns an empty payload of type t, ready to be decoded into
func New(t EventType) (Event, error) {
	switch t {
	case EventTypeInitMarket:
		return &InitMarket{}, nil
	case EventTypeSetMarketOwner:
		return &SetMarketOwner{}, nil
	case EventTypeInitReserve:
		return &InitReserve{}, nil
	case EventTypeRefreshReserve:
		return &RefreshReserve{}, nil
	case EventTypeDepositReserveLiquidity:
		return &DepositReserveLiquidity{}, nil
	case EventTypeRedeemReserveCollateral:
		return &RedeemReserveCollateral{}, nil
	case EventTypeInitObligation:
		return &InitObligation{}, nil
	case EventTypeRefreshObligation:
		return &RefreshObligation{}, nil
	case EventTypeDepositObligationCollateral:
		return &DepositObligationCollateral{}, nil
	case EventTypeWithdrawObligationCollateral:
		return &WithdrawObligationCollateral{}, nil
	case EventTypeBorrowObligationLiquidity:
		return &BorrowObligationLiquidity{}, nil
	case EventTypeRepayObligationLiquidity:
		return &RepayObligationLiquidity{}, nil
	case EventTypeLiquidateObligation:
		return &LiquidateObligation{}, nil
	case EventTypeFundWallet:
		return &FundWallet{}, nil
	case EventTypeWithdrawWallet:
		return &WithdrawWallet{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %d", t)
	}
}
