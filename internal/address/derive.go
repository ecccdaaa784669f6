package address

import "fmt"

// Seed strings are part of the wire contract; never change them.
const (
	SeedMarket           = "lending-market"
	SeedAuthority        = "authority"
	SeedReserve          = "reserve"
	SeedLiquiditySupply  = "liquidity-supply"
	SeedFeeReceiver      = "fee-receiver"
	SeedCollateralMint   = "collateral-mint"
	SeedCollateralSupply = "collateral-supply"
	SeedObligation       = "obligation"
)

// MarketAddress: lending-market + owner
func MarketAddress(owner Address) Address {
	return Derive([]byte(SeedMarket), owner[:])
}

// MarketAuthority: authority + market. Signs for every pool account.
func MarketAuthority(market Address) Address {
	return Derive([]byte(SeedAuthority), market[:])
}

func ReserveAddress(market, liquidityMint Address) Address {
	return Derive([]byte(SeedReserve), market[:], liquidityMint[:])
}

func LiquiditySupplyAddress(market, liquidityMint Address) Address {
	return Derive([]byte(SeedLiquiditySupply), market[:], liquidityMint[:])
}

func FeeReceiverAddress(market, liquidityMint Address) Address {
	return Derive([]byte(SeedFeeReceiver), market[:], liquidityMint[:])
}

func CollateralMintAddress(market, liquidityMint Address) Address {
	return Derive([]byte(SeedCollateralMint), market[:], liquidityMint[:])
}

func CollateralSupplyAddress(market, liquidityMint Address) Address {
	return Derive([]byte(SeedCollateralSupply), market[:], liquidityMint[:])
}

func ObligationAddress(market, owner Address) Address {
	return Derive([]byte(SeedObligation), market[:], owner[:])
}

// ReserveAccounts bundles every address derived for one reserve
type ReserveAccounts struct {
	Reserve          Address `json:"reserve"`
	LiquiditySupply  Address `json:"liquidity_supply"`
	FeeReceiver      Address `json:"fee_receiver"`
	CollateralMint   Address `json:"collateral_mint"`
	CollateralSupply Address `json:"collateral_supply"`
}

func DeriveReserveAccounts(market, liquidityMint Address) ReserveAccounts {
	return ReserveAccounts{
		Reserve:          ReserveAddress(market, liquidityMint),
		LiquiditySupply:  LiquiditySupplyAddress(market, liquidityMint),
		FeeReceiver:      FeeReceiverAddress(market, liquidityMint),
		CollateralMint:   CollateralMintAddress(market, liquidityMint),
		CollateralSupply: CollateralSupplyAddress(market, liquidityMint),
	}
}

// DeriveByKind resolves a derivation by its seed name, for callers that
// pick the kind at runtime (CLI, HTTP). Kinds taking a mint use second.
func DeriveByKind(kind string, first, second Address) (Address, error) {
	switch kind {
	case SeedMarket, "market":
		return MarketAddress(first), nil
	case SeedAuthority:
		return MarketAuthority(first), nil
	case SeedReserve:
		return ReserveAddress(first, second), nil
	case SeedLiquiditySupply:
		return LiquiditySupplyAddress(first, second), nil
	case SeedFeeReceiver:
		return FeeReceiverAddress(first, second), nil
	case SeedCollateralMint:
		return CollateralMintAddress(first, second), nil
	case SeedCollateralSupply:
		return CollateralSupplyAddress(first, second), nil
	case SeedObligation:
		return ObligationAddress(first, second), nil
	default:
		return Zero, fmt.Errorf("unknown derivation kind %q", kind)
	}
}
