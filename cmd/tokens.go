package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sol-swap/config"
	"sol-swap/pkg/client"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List Solana tokens routable through 1Click",
	Long: `List the Solana tokens supported by the NEAR Intents 1Click API.
Requires a 1Click JWT token (SOL_SWAP_ONECLICK_JWT_TOKEN).

Examples:
  sol-swap list-tokens
  sol-swap list-tokens --symbol USDC`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := config.Get()

	if cfg.OneClick.JWTToken == "" {
		exitOnError(fmt.Errorf("JWT token not found. Please set SOL_SWAP_ONECLICK_JWT_TOKEN or oneclick.jwt_token in .sol-swap.yaml"))
	}
	apiClient := client.NewOneClickClient(cfg.OneClick.JWTToken, cfg.OneClick.BaseURL, nil)

	// Get tokens with spinner
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching supported tokens..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tokens, err := apiClient.GetSupportedTokens(ctx)
	if !jsonOutput {
		s.Stop()
	}
	exitOnError(err)

	var filtered []oneclick.TokenResponse
	for _, token := range tokens {
		if !strings.EqualFold(token.GetBlockchain(), "sol") {
			continue
		}
		if filterSymbol != "" && !strings.Contains(strings.ToUpper(token.GetSymbol()), strings.ToUpper(filterSymbol)) {
			continue
		}
		filtered = append(filtered, token)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].GetSymbol() < filtered[j].GetSymbol()
	})

	if jsonOutput {
		printJSON(filtered)
		return
	}
	displayTokens(filtered)
}

func displayTokens(tokens []oneclick.TokenResponse) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                        SUPPORTED SOLANA TOKENS")
	fmt.Println(strings.Repeat("=", 90) + "\n")

	for _, token := range tokens {
		address := token.GetContractAddress()
		if address == "" {
			address = "native"
		}

		fmt.Printf("  %-10s  %2.0f decimals  %s\n",
			color.YellowString(token.GetSymbol()),
			token.GetDecimals(),
			color.HiBlackString(address))
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", len(tokens))
}
