package main

import (
	"fmt"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/query"
	"LendLedger/internal/state"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const (
	utilizationKey        = "utilization"
	optimalUtilizationKey = "optimal-utilization"
	minRateKey            = "min-rate"
	optimalRateKey        = "optimal-rate"
	maxRateKey            = "max-rate"
	takeRateKey           = "take-rate"
	slotsPerYearKey       = "slots-per-year"
)

var hundred = decimal.NewFromInt(100)

func rateCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "rate",
		Short: "Evaluates the borrow and supply rates at a utilization",
		Args:  cobra.NoArgs,
		RunE:  rateFunc,
	}
	def := state.DefaultReserveConfig()
	flags := c.Flags()
	flags.String(utilizationKey, "0", "Utilization as a fraction in [0, 1]")
	flags.Uint8(optimalUtilizationKey, def.OptimalUtilizationRate, "Kink utilization, percent")
	flags.Uint8(minRateKey, def.MinBorrowRate, "Borrow APR at zero utilization, percent")
	flags.Uint8(optimalRateKey, def.OptimalBorrowRate, "Borrow APR at the kink, percent")
	flags.Uint8(maxRateKey, def.MaxBorrowRate, "Borrow APR at full utilization, percent")
	flags.Uint8(takeRateKey, def.ProtocolTakeRate, "Share of interest withheld from suppliers, percent")
	flags.Uint64(slotsPerYearKey, fpmath.SlotsPerYear, "Compounding periods per year")
	return c
}

func rateFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	raw, err := flags.GetString(utilizationKey)
	if err != nil {
		return err
	}
	util, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("utilization: %w", err)
	}
	if util.IsNegative() || util.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("utilization %s outside [0, 1]", raw)
	}
	utilization, err := fpmath.FromShopspring(util)
	if err != nil {
		return err
	}

	cfg := state.DefaultReserveConfig()
	for key, dst := range map[string]*uint8{
		optimalUtilizationKey: &cfg.OptimalUtilizationRate,
		minRateKey:            &cfg.MinBorrowRate,
		optimalRateKey:        &cfg.OptimalBorrowRate,
		maxRateKey:            &cfg.MaxBorrowRate,
		takeRateKey:           &cfg.ProtocolTakeRate,
	} {
		if *dst, err = flags.GetUint8(key); err != nil {
			return err
		}
	}
	slotsPerYear, err := flags.GetUint64(slotsPerYearKey)
	if err != nil {
		return err
	}
	if slotsPerYear == 0 {
		return fmt.Errorf("%s must be positive", slotsPerYearKey)
	}

	borrowAPR, err := state.BorrowRate(utilization, cfg)
	if err != nil {
		return err
	}
	supplyAPR, err := state.SupplyRate(borrowAPR, utilization, cfg.ProtocolTakeRate)
	if err != nil {
		return err
	}
	borrowAPY, err := query.APY(borrowAPR, slotsPerYear)
	if err != nil {
		return err
	}
	supplyAPY, err := query.APY(supplyAPR, slotsPerYear)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	fmt.Fprintf(out, "utilization  %s%%\n", pct(utilization))
	fmt.Fprintf(out, "borrow APR   %s%%\n", pct(borrowAPR))
	fmt.Fprintf(out, "borrow APY   %s%%\n", pct(borrowAPY))
	fmt.Fprintf(out, "supply APR   %s%%\n", pct(supplyAPR))
	fmt.Fprintf(out, "supply APY   %s%%\n", pct(supplyAPY))
	return nil
}

func pct(d fpmath.Decimal) string {
	return d.ToDecimal().Mul(hundred).Round(4).String()
}
