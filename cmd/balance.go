package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"sol-swap/config"
	"sol-swap/pkg/parser"
)

var balanceCmd = &cobra.Command{
	Use:     "balance [wallet]",
	Aliases: []string{"holdings"},
	Short:   "Show SOL and token balances",
	Long: `Show the SOL balance and every non-zero SPL token balance of a wallet.
Defaults to the wallet of the configured private key.

Examples:
  sol-swap balance
  sol-swap balance 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM --json`,
	Args: cobra.MaximumNArgs(1),
	Run:  runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

type balanceLine struct {
	Mint      string `json:"mint"`
	Amount    uint64 `json:"amount"`
	Formatted string `json:"formatted"`
}

type balanceOutput struct {
	Wallet string        `json:"wallet"`
	SOL    balanceLine   `json:"sol"`
	Tokens []balanceLine `json:"tokens"`
}

func runBalance(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := config.Get()

	var owner solana.PublicKey
	if len(args) == 1 {
		pk, err := solana.PublicKeyFromBase58(args[0])
		exitOnError(err)
		owner = pk
	} else {
		signer, err := cfg.Signer()
		exitOnError(err)
		owner = signer.PublicKey()
	}

	chain := newLedger(cfg)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching balances..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := balanceOutput{Wallet: owner.String(), Tokens: []balanceLine{}}
	lamports, err := chain.NativeBalance(ctx, owner)
	if err == nil {
		out.SOL = balanceLine{Mint: solana.SolMint.String(), Amount: lamports, Formatted: parser.FormatAmount(lamports, 9)}

		holdings, herr := chain.TokenHoldings(ctx, owner)
		err = herr
		for _, h := range holdings {
			decimals, derr := chain.MintDecimals(ctx, h.Mint)
			if derr != nil {
				err = derr
				break
			}
			out.Tokens = append(out.Tokens, balanceLine{Mint: h.Mint, Amount: h.Amount, Formatted: parser.FormatAmount(h.Amount, decimals)})
		}
	}
	if !jsonOutput {
		s.Stop()
	}
	exitOnError(err)

	if jsonOutput {
		printJSON(out)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                           BALANCES")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  Wallet: %s\n", color.CyanString(out.Wallet))
	fmt.Printf("  SOL:    %s\n\n", color.YellowString(out.SOL.Formatted))

	if len(out.Tokens) == 0 {
		fmt.Println("  No token balances.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  MINT\tAMOUNT")
		for _, t := range out.Tokens {
			fmt.Fprintf(w, "  %s\t%s\n", t.Mint, t.Formatted)
		}
		w.Flush()
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
