package main

import (
	"fmt"

	"LendLedger/internal/lenderr"
	"LendLedger/internal/state"

	"github.com/spf13/cobra"
)

func quoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "quote <symbol | 0x-key>",
		Short: "Checks a quote currency for init_market",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var q state.QuoteCurrency
			if err := q.UnmarshalText([]byte(args[0])); err != nil {
				return lenderr.New(lenderr.CodeInvalidQuoteCurrency, "%v", err)
			}
			if err := state.ValidateQuoteCurrency(q); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "%s\t%x\n", q, q[:])
			return nil
		},
	}
}
