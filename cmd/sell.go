package cmd

import (
	"github.com/spf13/cobra"

	"sol-swap/pkg/parser"
	"sol-swap/pkg/types"
)

var sellCmd = &cobra.Command{
	Use:   "sell <token> <percent>",
	Short: "Sell a percentage of a token holding for SOL",
	Long: `Sell a percentage (1-100) of your current holding of a token for SOL and
wait until the sale shows up in your balance.

Examples:
  sol-swap sell DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 100
  sol-swap sell DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 25% --slippage 300`,
	Args: cobra.ExactArgs(2),
	Run:  runSell,
}

func init() {
	rootCmd.AddCommand(sellCmd)
	addTradeFlags(sellCmd)
}

func runSell(cmd *cobra.Command, args []string) {
	mint, err := parser.ParseTokenAddress(args[0])
	exitOnError(err)

	intent, err := intentFromCommand(&parser.Command{Direction: types.Sell, Token: mint, Amount: args[1]}, slippageBps)
	exitOnError(err)

	runTrade(cmd, intent, mint)
}
