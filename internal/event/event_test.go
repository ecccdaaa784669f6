package event_test

import (
	"encoding/json"
	"testing"

	"LendLedger/internal/address"
	"LendLedger/internal/event"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signer = address.Named("signer")

func header() event.Header {
	return event.Header{OperationID: uuid.New(), Slot: 9, Signer: signer}
}

func TestEventTypeNames(t *testing.T) {
	types := event.AllEventTypes()
	require.Len(t, types, 15)
	for _, et := range types {
		parsed, err := event.ParseEventType(et.String())
		require.NoError(t, err)
		assert.Equal(t, et, parsed)

		op, err := event.New(et)
		require.NoError(t, err)
		assert.Equal(t, et, op.EventType())
	}

	_, err := event.ParseEventType("trade_fill")
	assert.Error(t, err)
	_, err = event.New(event.EventTypeUnknown)
	assert.Error(t, err)
	assert.Equal(t, "unknown", event.EventTypeUnknown.String())
}

func TestHeaderFieldsAreFlattened(t *testing.T) {
	op := &event.DepositReserveLiquidity{Header: header(), Reserve: address.Named("reserve"), Amount: 42}
	raw, err := json.Marshal(op)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, op.OperationID.String(), fields["operation_id"])
	assert.Equal(t, float64(9), fields["slot"])
	assert.Equal(t, signer.String(), fields["signer"])
	assert.NotContains(t, fields, "Header")

	decoded, err := event.New(event.EventTypeDepositReserveLiquidity)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, decoded))
	assert.Equal(t, op, decoded)
	assert.Equal(t, op.OperationID.String(), decoded.IdempotencyKey())
	assert.Equal(t, uint64(9), decoded.OperationSlot())
	assert.Equal(t, signer, decoded.SignedBy())
}

func TestValidateHeader(t *testing.T) {
	op := &event.WithdrawWallet{Header: header(), Mint: address.Named("usdc"), Amount: 1}
	require.NoError(t, op.Validate())

	op.OperationID = uuid.Nil
	assert.Error(t, op.Validate())

	op.OperationID = uuid.New()
	op.Signer = address.Zero
	assert.Error(t, op.Validate())
}

func TestValidateAmounts(t *testing.T) {
	reserve := address.Named("reserve")
	ob := address.Named("obligation")
	ops := []event.Event{
		&event.DepositReserveLiquidity{Header: header(), Reserve: reserve},
		&event.RedeemReserveCollateral{Header: header(), Reserve: reserve},
		&event.DepositObligationCollateral{Header: header(), Obligation: ob, Reserve: reserve},
		&event.WithdrawObligationCollateral{Header: header(), Obligation: ob, Reserve: reserve},
		&event.BorrowObligationLiquidity{Header: header(), Obligation: ob, Reserve: reserve},
		&event.RepayObligationLiquidity{Header: header(), Obligation: ob, Reserve: reserve},
		&event.FundWallet{Header: header(), Owner: signer, Mint: address.Named("usdc")},
	}
	for _, op := range ops {
		err := op.Validate()
		assert.ErrorIs(t, err, lenderr.ErrInvalidAmount, op.EventType().String())
	}
}

func TestValidateInitReserve(t *testing.T) {
	cfg := state.DefaultReserveConfig()
	cfg.OracleFeedID[0] = 1
	op := &event.InitReserve{
		Header:          header(),
		Market:          address.Named("market"),
		LiquidityMint:   address.Named("usdc"),
		Decimals:        6,
		LiquidityAmount: 1,
		Config:          cfg,
	}
	require.NoError(t, op.Validate())
	assert.Equal(t, address.Named("market"), *op.MarketID())

	op.LiquidityAmount = 0
	assert.ErrorIs(t, op.Validate(), lenderr.ErrInvalidLiquidityAmount)

	op.LiquidityAmount = 1
	op.Config.LoanToValueRatio = 90
	assert.ErrorIs(t, op.Validate(), lenderr.ErrInvalidReserveConfig)
}

func TestValidateInitMarket(t *testing.T) {
	usd, err := state.QuoteSymbol("USD")
	require.NoError(t, err)
	op := &event.InitMarket{Header: header(), QuoteCurrency: usd}
	require.NoError(t, op.Validate())
	assert.Equal(t, address.MarketAddress(signer), *op.MarketID())

	op.QuoteCurrency = state.QuoteCurrency{}
	assert.ErrorIs(t, op.Validate(), lenderr.ErrInvalidQuoteCurrency)
}

func TestValidateRefreshObligationReserveCount(t *testing.T) {
	op := &event.RefreshObligation{Header: header(), Obligation: address.Named("obligation")}
	require.NoError(t, op.Validate())

	op.Reserves = make([]address.Address, state.MaxObligationReserves+1)
	assert.ErrorIs(t, op.Validate(), lenderr.ErrInvalidReserveCount)
}

func TestValidateLiquidationReserves(t *testing.T) {
	reserve := address.Named("reserve")
	op := &event.LiquidateObligation{
		Header:          header(),
		Obligation:      address.Named("obligation"),
		RepayReserve:    reserve,
		WithdrawReserve: reserve,
		Amount:          1,
	}
	assert.Error(t, op.Validate())

	op.WithdrawReserve = address.Named("other")
	assert.NoError(t, op.Validate())
}

func TestBorrowHostIsOptional(t *testing.T) {
	op := &event.BorrowObligationLiquidity{
		Header:     header(),
		Obligation: address.Named("obligation"),
		Reserve:    address.Named("reserve"),
		Amount:     5,
	}
	raw, err := json.Marshal(op)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "host")

	zero := address.Zero
	op.Host = &zero
	assert.Error(t, op.Validate())
}
