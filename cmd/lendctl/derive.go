package main

import (
	"fmt"

	"LendLedger/internal/address"

	"github.com/spf13/cobra"
)

func deriveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "derive <kind> <first> [second]",
		Short: "Derives a program address",
		Long: `Derives a program address from its seeds. Kinds:
  lending-market <owner>
  authority <market>
  reserve | liquidity-supply | fee-receiver | collateral-mint | collateral-supply <market> <mint>
  obligation <market> <owner>`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(c *cobra.Command, args []string) error {
			first, err := address.Parse(args[1])
			if err != nil {
				return fmt.Errorf("first: %w", err)
			}
			var second address.Address
			if len(args) == 3 {
				if second, err = address.Parse(args[2]); err != nil {
					return fmt.Errorf("second: %w", err)
				}
			}
			addr, err := address.DeriveByKind(args[0], first, second)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), addr)
			return nil
		},
	}
}
