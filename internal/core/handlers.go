package core

import (
	"fmt"

	"LendLedger/internal/address"
	"LendLedger/internal/event"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/ledger"
	"LendLedger/internal/state"
)

func mintsOf(r *state.Reserve) ledger.ReserveMints {
	return ledger.ReserveMints{
		Accounts: address.ReserveAccounts{
			Reserve:          r.Address,
			LiquiditySupply:  r.Liquidity.SupplyAccount,
			FeeReceiver:      r.Liquidity.FeeReceiver,
			CollateralMint:   r.Collateral.Mint,
			CollateralSupply: r.Collateral.SupplyAccount,
		},
		LiquidityMint: r.Liquidity.Mint,
	}
}

func addrPtr(a address.Address) *address.Address { return &a }

func (c *LendingCore) dispatch(t *txn, op event.Event, rc *Receipt, ref ledger.Ref) (*ledger.Batch, error) {
	switch e := op.(type) {
	case *event.InitMarket:
		return c.handleInitMarket(t, e, rc)
	case *event.SetMarketOwner:
		return c.handleSetMarketOwner(t, e, rc)
	case *event.InitReserve:
		return c.handleInitReserve(t, e, rc, ref)
	case *event.RefreshReserve:
		return c.handleRefreshReserve(t, e, rc)
	case *event.DepositReserveLiquidity:
		return c.handleDepositReserveLiquidity(t, e, rc, ref)
	case *event.RedeemReserveCollateral:
		return c.handleRedeemReserveCollateral(t, e, rc, ref)
	case *event.InitObligation:
		return c.handleInitObligation(t, e, rc)
	case *event.RefreshObligation:
		return c.handleRefreshObligation(t, e, rc)
	case *event.DepositObligationCollateral:
		return c.handleDepositObligationCollateral(t, e, rc, ref)
	case *event.WithdrawObligationCollateral:
		return c.handleWithdrawObligationCollateral(t, e, rc, ref)
	case *event.BorrowObligationLiquidity:
		return c.handleBorrowObligationLiquidity(t, e, rc, ref)
	case *event.RepayObligationLiquidity:
		return c.handleRepayObligationLiquidity(t, e, rc, ref)
	case *event.LiquidateObligation:
		return c.handleLiquidateObligation(t, e, rc, ref)
	case *event.FundWallet:
		return c.handleFundWallet(e, ref)
	case *event.WithdrawWallet:
		return c.handleWithdrawWallet(e, ref)
	default:
		return nil, fmt.Errorf("unknown operation type: %T", op)
	}
}

// --- Market ---

func (c *LendingCore) handleInitMarket(t *txn, e *event.InitMarket, rc *Receipt) (*ledger.Batch, error) {
	m, err := state.NewLendingMarket(e.Signer, e.QuoteCurrency, e.TokenProgramID)
	if err != nil {
		return nil, err
	}
	if err := t.createMarket(m); err != nil {
		return nil, err
	}
	rc.Market = addrPtr(m.Address)
	return nil, nil
}

func (c *LendingCore) handleSetMarketOwner(t *txn, e *event.SetMarketOwner, rc *Receipt) (*ledger.Batch, error) {
	m, err := t.market(e.Market)
	if err != nil {
		return nil, err
	}
	if err := m.SetOwner(e.Signer, e.NewOwner); err != nil {
		return nil, err
	}
	rc.Market = addrPtr(m.Address)
	return nil, nil
}

// --- Reserve ---

func (c *LendingCore) handleInitReserve(t *txn, e *event.InitReserve, rc *Receipt, ref ledger.Ref) (*ledger.Batch, error) {
	m, err := t.market(e.Market)
	if err != nil {
		return nil, err
	}
	if err := m.RequireOwner(e.Signer); err != nil {
		return nil, err
	}
	r, err := state.NewReserve(m.Address, e.LiquidityMint, e.Decimals, e.LiquidityAmount, e.Config, t.slot)
	if err != nil {
		return nil, err
	}
	if err := t.createReserve(r); err != nil {
		return nil, err
	}
	rc.Market = addrPtr(m.Address)
	rc.Reserve = addrPtr(r.Address)
	rc.CollateralMinted = r.Collateral.TotalSupply
	return c.journalGen.GenerateReserveSeed(ref, e.Signer, mintsOf(r), e.LiquidityAmount, r.Collateral.TotalSupply)
}

func (c *LendingCore) handleRefreshReserve(t *txn, e *event.RefreshReserve, rc *Receipt) (*ledger.Batch, error) {
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return nil, err
	}
	if _, err := r.Refresh(e.Price, t.slot, c.adapter, c.slotsPerYear); err != nil {
		return nil, err
	}
	rc.Reserve = addrPtr(r.Address)
	return nil, nil
}

func (c *LendingCore) handleDepositReserveLiquidity(t *txn, e *event.DepositReserveLiquidity, rc *Receipt, ref ledger.Ref) (*ledger.Batch, error) {
	fr, err := t.freshReserve(e.Reserve)
	if err != nil {
		return nil, err
	}
	collateral, err := fr.DepositLiquidity(e.Amount)
	if err != nil {
		return nil, err
	}
	rc.Reserve = addrPtr(fr.Address())
	rc.CollateralMinted = collateral
	return c.journalGen.GenerateLiquidityDeposit(ref, e.Signer, mintsOf(fr.Reserve()), e.Amount, collateral)
}

func (c *LendingCore) handleRedeemReserveCollateral(t *txn, e *event.RedeemReserveCollateral, rc *Receipt, ref ledger.Ref) (*ledger.Batch, error) {
	fr, err := t.freshReserve(e.Reserve)
	if err != nil {
		return nil, err
	}
	liquidity, err := fr.RedeemCollateral(e.CollateralAmount)
	if err != nil {
		return nil, err
	}
	rc.Reserve = addrPtr(fr.Address())
	rc.LiquidityRedeemed = liquidity
	return c.journalGen.GenerateCollateralRedeem(ref, e.Signer, mintsOf(fr.Reserve()), e.CollateralAmount, liquidity)
}

// --- Obligation ---

func (c *LendingCore) handleInitObligation(t *txn, e *event.InitObligation, rc *Receipt) (*ledger.Batch, error) {
	m, err := t.market(e.Market)
	if err != nil {
		return nil, err
	}
	o := state.NewObligation(m.Address, e.Signer, t.slot)
	if err := t.createObligation(o); err != nil {
		return nil, err
	}
	rc.Market = addrPtr(m.Address)
	rc.Obligation = addrPtr(o.Address)
	return nil, nil
}

func (c *LendingCore) handleRefreshObligation(t *txn, e *event.RefreshObligation, rc *Receipt) (*ledger.Batch, error) {
	o, err := t.obligation(e.Obligation)
	if err != nil {
		return nil, err
	}
	reserves := make([]*state.FreshReserve, 0, len(e.Reserves))
	for _, addr := range e.Reserves {
		fr, err := t.freshReserve(addr)
		if err != nil {
			return nil, err
		}
		reserves = append(reserves, fr)
	}
	if _, err := o.Refresh(t.slot, reserves); err != nil {
		return nil, err
	}
	rc.Obligation = addrPtr(o.Address)
	return nil, nil
}

func (c *LendingCore) handleDepositObligationCollateral(t *txn, e *event.DepositObligationCollateral, rc *Receipt, ref ledger.Ref) (*ledger.Batch, error) {
	o, err := t.obligation(e.Obligation)
	if err != nil {
		return nil, err
	}
	if err := o.VerifyOwner(e.Signer); err != nil {
		return nil, err
	}
	fr, err := t.freshReserve(e.Reserve)
	if err != nil {
		return nil, err
	}
	if err := o.DepositCollateral(fr, e.Amount); err != nil {
		return nil, err
	}
	rc.Obligation = addrPtr(o.Address)
	rc.Reserve = addrPtr(fr.Address())
	rc.CollateralDeposited = e.Amount
	return c.journalGen.GenerateCollateralLock(ref, e.Signer, mintsOf(fr.Reserve()), e.Amount)
}

func (c *LendingCore) handleWithdrawObligationCollateral(t *txn, e *event.WithdrawObligationCollateral, rc *Receipt, ref ledger.Ref) (*ledger.Batch, error) {
	o, err := t.obligation(e.Obligation)
	if err != nil {
		return nil, err
	}
	if err := o.VerifyOwner(e.Signer); err != nil {
		return nil, err
	}
	fo, err := o.RequireFresh(t.slot)
	if err != nil {
		return nil, err
	}
	fr, err := t.freshReserve(e.Reserve)
	if err != nil {
		return nil, err
	}
	withdrawn, err := fo.WithdrawCollateral(fr, e.Amount)
	if err != nil {
		return nil, err
	}
	rc.Obligation = addrPtr(o.Address)
	rc.Reserve = addrPtr(fr.Address())
	rc.CollateralWithdrawn = withdrawn
	return c.journalGen.GenerateCollateralUnlock(ref, e.Signer, mintsOf(fr.Reserve()), withdrawn)
}

func (c *LendingCore) handleBorrowObligationLiquidity(t *txn, e *event.BorrowObligationLiquidity, rc *Receipt, ref ledger.Ref) (*ledger.Batch, error) {
	o, err := t.obligation(e.Obligation)
	if err != nil {
		return nil, err
	}
	if err := o.VerifyOwner(e.Signer); err != nil {
		return nil, err
	}
	fo, err := o.RequireFresh(t.slot)
	if err != nil {
		return nil, err
	}
	fr, err := t.freshReserve(e.Reserve)
	if err != nil {
		return nil, err
	}
	res, err := fo.BorrowLiquidity(fr, e.Amount, e.Host != nil)
	if err != nil {
		return nil, err
	}
	rc.Obligation = addrPtr(o.Address)
	rc.Reserve = addrPtr(fr.Address())
	rc.Borrow = &res
	return c.journalGen.GenerateBorrow(ref, e.Signer, mintsOf(fr.Reserve()), res.ReceiveAmount, res.OwnerFee, res.HostFee, e.Host)
}

// Anyone may repay any obligation; the signer pays
func (c *LendingCore) handleRepayObligationLiquidity(t *txn, e *event.RepayObligationLiquidity, rc *Receipt, ref ledger.Ref) (*ledger.Batch, error) {
	o, err := t.obligation(e.Obligation)
	if err != nil {
		return nil, err
	}
	fo, err := o.RequireFresh(t.slot)
	if err != nil {
		return nil, err
	}
	fr, err := t.freshReserve(e.Reserve)
	if err != nil {
		return nil, err
	}
	balance := c.balances.Balance(e.Signer, fr.Reserve().Liquidity.Mint)
	res, err := fo.RepayLiquidity(fr, e.Amount, balance)
	if err != nil {
		return nil, err
	}
	rc.Obligation = addrPtr(o.Address)
	rc.Reserve = addrPtr(fr.Address())
	rc.Repay = &res
	return c.journalGen.GenerateRepay(ref, e.Signer, mintsOf(fr.Reserve()), res.RepayAmount)
}

func (c *LendingCore) handleLiquidateObligation(t *txn, e *event.LiquidateObligation, rc *Receipt, ref ledger.Ref) (*ledger.Batch, error) {
	o, err := t.obligation(e.Obligation)
	if err != nil {
		return nil, err
	}
	fo, err := o.RequireFresh(t.slot)
	if err != nil {
		return nil, err
	}
	repay, err := t.freshReserve(e.RepayReserve)
	if err != nil {
		return nil, err
	}
	withdraw, err := t.freshReserve(e.WithdrawReserve)
	if err != nil {
		return nil, err
	}
	res, err := c.liquidation.Liquidate(fo, repay, withdraw, e.Amount, e.Signer)
	if err != nil {
		return nil, err
	}
	rc.Obligation = addrPtr(o.Address)
	rc.Reserve = addrPtr(repay.Address())
	rc.Liquidation = &res
	return c.journalGen.GenerateLiquidation(ref, e.Signer, mintsOf(repay.Reserve()), mintsOf(withdraw.Reserve()),
		res.RepayAmount, res.WithdrawCollateral)
}

// --- Wallet bridge ---

func (c *LendingCore) handleFundWallet(e *event.FundWallet, ref ledger.Ref) (*ledger.Batch, error) {
	if c.isCustody(e.Owner) {
		return nil, lenderr.New(lenderr.CodeInvalidOwner, "%s is a reserve custody account", e.Owner.Short())
	}
	if c.isCollateralMint(e.Mint) {
		return nil, lenderr.New(lenderr.CodeInvalidLendingMarket, "mint %s is issued only by its reserve", e.Mint.Short())
	}
	return c.journalGen.GenerateFundWallet(ref, e.Owner, e.Mint, e.Amount)
}

func (c *LendingCore) handleWithdrawWallet(e *event.WithdrawWallet, ref ledger.Ref) (*ledger.Batch, error) {
	if c.isCollateralMint(e.Mint) {
		return nil, lenderr.New(lenderr.CodeInvalidLendingMarket, "mint %s is redeemed only through its reserve", e.Mint.Short())
	}
	return c.journalGen.GenerateWithdrawWallet(ref, e.Signer, e.Mint, e.Amount)
}
