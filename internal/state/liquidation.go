package state

import (
	"fmt"
	"math"

	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
)

// DefaultCloseFactorPct caps a single liquidation at half of one debt
const DefaultCloseFactorPct uint8 = 50

// LiquidationEngine repays unhealthy debt in exchange for collateral plus
// the withdraw reserve's liquidation bonus.
type LiquidationEngine struct {
	closeFactorPct uint8
}

func NewLiquidationEngine(closeFactorPct uint8) (*LiquidationEngine, error) {
	if closeFactorPct == 0 || closeFactorPct > 100 {
		return nil, fmt.Errorf("close factor must be in (0, 100], got %d", closeFactorPct)
	}
	return &LiquidationEngine{closeFactorPct: closeFactorPct}, nil
}

func (e *LiquidationEngine) CloseFactorPct() uint8 { return e.closeFactorPct }

// LiquidationResult reports the amounts moved by a liquidation
type LiquidationResult struct {
	RepayAmount        uint64         `json:"repay_amount"`
	SettleWads         fpmath.Decimal `json:"settle_wads"`
	WithdrawCollateral uint64         `json:"withdraw_collateral"`
	RepayValue         fpmath.Decimal `json:"repay_value"`
	WithdrawValue      fpmath.Decimal `json:"withdraw_value"`
}

// MaxRepay is the close-factor cap on repaying entry, in tokens
func (e *LiquidationEngine) MaxRepay(entry ObligationLiquidity) (uint64, error) {
	capWads, err := entry.BorrowedAmountWads.MulDivInt(uint64(e.closeFactorPct), 100, fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	return capWads.Floor()
}

// Liquidate repays up to the close factor of the obligation's debt to
// repayReserve and seizes collateral from withdrawReserve worth the repaid
// value plus the bonus. repayAmount == MaxUint64 repays the cap.
func (e *LiquidationEngine) Liquidate(
	obligation *FreshObligation,
	repayReserve *FreshReserve,
	withdrawReserve *FreshReserve,
	repayAmount uint64,
	liquidator address.Address,
) (LiquidationResult, error) {
	o := obligation.Obligation()
	if repayAmount == 0 {
		return LiquidationResult{}, lenderr.ErrInvalidAmount
	}
	if repayReserve.Slot() != obligation.Slot() || withdrawReserve.Slot() != obligation.Slot() {
		return LiquidationResult{}, lenderr.ErrReserveStale
	}
	if repayReserve.Reserve().Market != o.Market || withdrawReserve.Reserve().Market != o.Market {
		return LiquidationResult{}, lenderr.ErrInvalidLendingMarket
	}
	if o.IsHealthy() {
		return LiquidationResult{}, lenderr.New(lenderr.CodeObligationHealthy,
			"borrowed %s within unhealthy threshold %s", o.BorrowedValue, o.UnhealthyBorrowValue)
	}
	if liquidator == o.Owner {
		return LiquidationResult{}, lenderr.ErrCannotLiquidateOwnObligation
	}

	bi := o.find(EntryBorrow, repayReserve.Address())
	if bi < 0 {
		return LiquidationResult{}, lenderr.New(lenderr.CodeObligationLiquidityNotFound,
			"no borrow from reserve %s", repayReserve.Address().Short())
	}
	di := o.find(EntryDeposit, withdrawReserve.Address())
	if di < 0 {
		return LiquidationResult{}, lenderr.New(lenderr.CodeObligationCollateralNotFound,
			"no deposit in reserve %s", withdrawReserve.Address().Short())
	}
	borrow := o.entries[bi].liquidity
	deposit := o.entries[di].collateral
	if deposit.DepositedAmount == 0 {
		return LiquidationResult{}, lenderr.ErrLiquidationTooSmall
	}

	maxRepay, err := e.MaxRepay(borrow)
	if err != nil {
		return LiquidationResult{}, err
	}
	if repayAmount == math.MaxUint64 {
		repayAmount = maxRepay
	}
	if repayAmount > maxRepay {
		return LiquidationResult{}, lenderr.New(lenderr.CodeLiquidationTooLarge,
			"repay %d exceeds close factor cap %d", repayAmount, maxRepay)
	}

	seize, err := e.collateralFor(repayReserve.Reserve(), withdrawReserve.Reserve(), repayAmount)
	if err != nil {
		return LiquidationResult{}, err
	}

	// Not enough collateral: take all of it and scale the repay down
	if seize > deposit.DepositedAmount {
		scaled, err := fpmath.FromInteger(repayAmount).MulDivInt(deposit.DepositedAmount, seize, fpmath.RoundDown)
		if err != nil {
			return LiquidationResult{}, err
		}
		if repayAmount, err = scaled.Floor(); err != nil {
			return LiquidationResult{}, err
		}
		seize = deposit.DepositedAmount
	}
	if repayAmount == 0 || seize == 0 {
		return LiquidationResult{}, lenderr.New(lenderr.CodeLiquidationTooSmall,
			"repay %d seizes %d collateral", repayAmount, seize)
	}

	repayValue, err := repayReserve.Reserve().MarketValue(fpmath.FromInteger(repayAmount))
	if err != nil {
		return LiquidationResult{}, err
	}
	if repayValue.IsZero() {
		return LiquidationResult{}, lenderr.New(lenderr.CodeLiquidationTooSmall, "repay has no value")
	}
	settle := fpmath.FromInteger(repayAmount)

	if err := repayReserve.repay(repayAmount, settle); err != nil {
		return LiquidationResult{}, err
	}
	if err := o.settleBorrow(bi, settle); err != nil {
		return LiquidationResult{}, err
	}
	// settleBorrow may compact the arena; look the deposit up again
	di = o.find(EntryDeposit, withdrawReserve.Address())
	withdrawValue, err := o.removeCollateral(di, seize)
	if err != nil {
		return LiquidationResult{}, err
	}
	o.DepositedValue = o.DepositedValue.SaturatingSub(withdrawValue)
	o.LastUpdate.MarkStale()

	return LiquidationResult{
		RepayAmount:        repayAmount,
		SettleWads:         settle,
		WithdrawCollateral: seize,
		RepayValue:         repayValue,
		WithdrawValue:      withdrawValue,
	}, nil
}

// collateralFor converts repayAmount of the repay asset into withdraw
// reserve collateral tokens, bonus included:
// repay_value * (1 + bonus) / price -> liquidity -> collateral.
func (e *LiquidationEngine) collateralFor(repay, withdraw *Reserve, repayAmount uint64) (uint64, error) {
	repayValue, err := repay.MarketValue(fpmath.FromInteger(repayAmount))
	if err != nil {
		return 0, err
	}
	bonusValue, err := repayValue.MulDivInt(100+uint64(withdraw.Config.LiquidationBonus), 100, fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	liquidity, err := withdraw.LiquidityForValue(bonusValue)
	if err != nil {
		return 0, err
	}
	collateral, err := withdraw.LiquidityToCollateralWad(liquidity)
	if err != nil {
		return 0, err
	}
	return collateral.Floor()
}
