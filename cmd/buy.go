package cmd

import (
	"github.com/spf13/cobra"

	"sol-swap/pkg/parser"
	"sol-swap/pkg/types"
)

var buyCmd = &cobra.Command{
	Use:   "buy <token> <sol-amount>",
	Short: "Buy a token with SOL",
	Long: `Buy a token with SOL and wait until the purchase shows up in your balance.

The token can be a mint address or a link that ends with one
(dexscreener, birdeye, solscan, ...).

Examples:
  sol-swap buy DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 0.1
  sol-swap buy https://dexscreener.com/solana/DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 0.25 --slippage 500
  sol-swap buy <mint> 1 --yes --json`,
	Args: cobra.ExactArgs(2),
	Run:  runBuy,
}

func init() {
	rootCmd.AddCommand(buyCmd)
	addTradeFlags(buyCmd)
}

func runBuy(cmd *cobra.Command, args []string) {
	mint, err := parser.ParseTokenAddress(args[0])
	exitOnError(err)

	intent, err := intentFromCommand(&parser.Command{Direction: types.Buy, Token: mint, Amount: args[1]}, slippageBps)
	exitOnError(err)

	runTrade(cmd, intent, mint)
}
