package app

import (
	"github.com/spf13/cobra"

	"github.com/xab-mack/solguard/internal/cli"
)

// Version is overridden at build time via -ldflags.
var Version = "0.1.0-dev"

func BuildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "solguard",
		Short:        "Rule-based Solidity smart contract vulnerability scanner",
		Version:      Version,
		SilenceUsage: true,
	}
	cli.AddCommands(root)
	return root
}
