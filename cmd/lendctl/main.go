// Command lendctl is the offline toolbox for LendLedger callers: derived
// addresses, rate curve evaluation and quote currency checks.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "lendctl",
		Short:        "LendLedger client utilities",
		SilenceUsage: true,
	}
	root.AddCommand(deriveCommand(), rateCommand(), quoteCommand())
	return root
}
