package state

import (
	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"
)

// ReserveFees are charged on borrows. BorrowFeeWad is a WAD fraction of
// the borrowed amount; HostFeePercentage is the share of that fee paid to
// the host account named on the borrow, if any.
type ReserveFees struct {
	BorrowFeeWad      uint64 `json:"borrow_fee_wad" toml:"borrow_fee_wad" yaml:"borrow_fee_wad"`
	HostFeePercentage uint8  `json:"host_fee_percentage" toml:"host_fee_percentage" yaml:"host_fee_percentage"`
}

// ReserveConfig holds the rate curve, collateral and fee parameters of a
// reserve. Rates and ratios are whole percentages.
type ReserveConfig struct {
	OptimalUtilizationRate uint8 `json:"optimal_utilization_rate" toml:"optimal_utilization_rate" yaml:"optimal_utilization_rate"`
	LoanToValueRatio       uint8 `json:"loan_to_value_ratio" toml:"loan_to_value_ratio" yaml:"loan_to_value_ratio"`
	LiquidationBonus       uint8 `json:"liquidation_bonus" toml:"liquidation_bonus" yaml:"liquidation_bonus"`
	LiquidationThreshold   uint8 `json:"liquidation_threshold" toml:"liquidation_threshold" yaml:"liquidation_threshold"`
	MinBorrowRate          uint8 `json:"min_borrow_rate" toml:"min_borrow_rate" yaml:"min_borrow_rate"`
	OptimalBorrowRate      uint8 `json:"optimal_borrow_rate" toml:"optimal_borrow_rate" yaml:"optimal_borrow_rate"`
	MaxBorrowRate          uint8 `json:"max_borrow_rate" toml:"max_borrow_rate" yaml:"max_borrow_rate"`

	// Share of interest withheld from suppliers
	ProtocolTakeRate uint8 `json:"protocol_take_rate" toml:"protocol_take_rate" yaml:"protocol_take_rate"`

	Fees ReserveFees `json:"fees" toml:"fees" yaml:"fees"`

	// 0 disables the bound
	MinBorrowAmount uint64 `json:"min_borrow_amount" toml:"min_borrow_amount" yaml:"min_borrow_amount"`
	BorrowLimit     uint64 `json:"borrow_limit" toml:"borrow_limit" yaml:"borrow_limit"`

	OracleFeedID oracle.FeedID `json:"oracle_feed_id" toml:"oracle_feed_id" yaml:"oracle_feed_id"`
}

// DefaultReserveConfig is a conservative stablecoin profile. The feed id
// must still be set by the caller.
func DefaultReserveConfig() ReserveConfig {
	return ReserveConfig{
		OptimalUtilizationRate: 80,
		LoanToValueRatio:       50,
		LiquidationBonus:       5,
		LiquidationThreshold:   55,
		MinBorrowRate:          0,
		OptimalBorrowRate:      4,
		MaxBorrowRate:          30,
		ProtocolTakeRate:       0,
		Fees: ReserveFees{
			BorrowFeeWad:      10_000_000_000_000_000, // 1%
			HostFeePercentage: 20,
		},
	}
}

// ValidateReserveConfig checks ranges and orderings of a reserve config
func ValidateReserveConfig(cfg ReserveConfig) error {
	percents := []struct {
		name  string
		value uint8
	}{
		{"optimal_utilization_rate", cfg.OptimalUtilizationRate},
		{"loan_to_value_ratio", cfg.LoanToValueRatio},
		{"liquidation_bonus", cfg.LiquidationBonus},
		{"liquidation_threshold", cfg.LiquidationThreshold},
		{"min_borrow_rate", cfg.MinBorrowRate},
		{"optimal_borrow_rate", cfg.OptimalBorrowRate},
		{"max_borrow_rate", cfg.MaxBorrowRate},
		{"protocol_take_rate", cfg.ProtocolTakeRate},
		{"host_fee_percentage", cfg.Fees.HostFeePercentage},
	}
	for _, p := range percents {
		if p.value > 100 {
			return lenderr.New(lenderr.CodeInvalidReserveConfig, "%s must be <= 100, got %d", p.name, p.value)
		}
	}
	if cfg.LoanToValueRatio > cfg.LiquidationThreshold {
		return lenderr.New(lenderr.CodeInvalidReserveConfig,
			"loan_to_value_ratio (%d) must be <= liquidation_threshold (%d)",
			cfg.LoanToValueRatio, cfg.LiquidationThreshold)
	}
	if cfg.MinBorrowRate > cfg.OptimalBorrowRate || cfg.OptimalBorrowRate > cfg.MaxBorrowRate {
		return lenderr.New(lenderr.CodeInvalidReserveConfig,
			"borrow rates must satisfy min (%d) <= optimal (%d) <= max (%d)",
			cfg.MinBorrowRate, cfg.OptimalBorrowRate, cfg.MaxBorrowRate)
	}
	if cfg.Fees.BorrowFeeWad >= fpmath.WAD {
		return lenderr.New(lenderr.CodeInvalidReserveConfig, "borrow_fee_wad must be < 1 WAD, got %d", cfg.Fees.BorrowFeeWad)
	}
	if cfg.BorrowLimit > 0 && cfg.MinBorrowAmount > cfg.BorrowLimit {
		return lenderr.New(lenderr.CodeInvalidReserveConfig,
			"min_borrow_amount (%d) exceeds borrow_limit (%d)", cfg.MinBorrowAmount, cfg.BorrowLimit)
	}
	if cfg.OracleFeedID.IsZero() {
		return lenderr.New(lenderr.CodeInvalidOracleConfig, "oracle_feed_id is not set")
	}
	return nil
}
