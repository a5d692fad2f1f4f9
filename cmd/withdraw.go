package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"sol-swap/config"
	"sol-swap/pkg/ledger"
	"sol-swap/pkg/notify"
	"sol-swap/pkg/parser"
)

var withdrawYes bool

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <address> <sol-amount|all>",
	Short: "Send SOL from the trading wallet to another address",
	Long: `Send SOL from the configured wallet to a destination wallet.

'all' sends the whole balance minus what the network fee needs.

Examples:
  sol-swap withdraw 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM 0.5
  sol-swap withdraw 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM all --yes`,
	Args: cobra.ExactArgs(2),
	Run:  runWithdraw,
}

func init() {
	rootCmd.AddCommand(withdrawCmd)

	withdrawCmd.Flags().BoolVarP(&withdrawYes, "yes", "y", false, "Skip confirmation prompt")
}

type withdrawResult struct {
	Status    string `json:"status"`
	From      string `json:"from"`
	To        string `json:"to"`
	Lamports  uint64 `json:"lamports"`
	Amount    string `json:"amount"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runWithdraw(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := config.Get()

	to, err := parseWithdrawAddress(args[0])
	exitOnError(err)

	signer, err := cfg.Signer()
	exitOnError(err)
	if to.Equals(signer.PublicKey()) {
		exitOnError(fmt.Errorf("destination is the trading wallet itself"))
	}

	chain := newLedger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	balance, err := chain.NativeBalance(ctx, signer.PublicKey())
	exitOnError(err)

	lamports, err := withdrawAmount(args[1], balance)
	exitOnError(err)

	result := withdrawResult{
		From:     signer.PublicKey().String(),
		To:       to.String(),
		Lamports: lamports,
		Amount:   parser.FormatAmount(lamports, 9),
	}

	if !jsonOutput && !withdrawYes {
		fmt.Printf("\n  From:    %s\n", color.CyanString(result.From))
		fmt.Printf("  To:      %s\n", color.CyanString(result.To))
		fmt.Printf("  Amount:  %s SOL (balance %s SOL)\n", color.YellowString(result.Amount), parser.FormatAmount(balance, 9))
		if !confirmWithdraw() {
			color.Yellow("Withdrawal cancelled.")
			return
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Withdrawing SOL..."
		s.Start()
	}

	sig, err := chain.Transfer(ctx, signer, result.To, solana.SolMint.String(), lamports)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		log.WithError(err).WithField("to", result.To).Warn("withdrawal failed")
		if jsonOutput {
			result.Status = "failed"
			result.Error = err.Error()
			printJSON(result)
			os.Exit(1)
		}
		exitOnError(fmt.Errorf("failed to withdraw SOL: %w", err))
	}

	result.Status = "sent"
	result.Signature = sig.String()
	log.WithField("txid", result.Signature).Info("withdrawal sent")

	if jsonOutput {
		printJSON(result)
		return
	}

	color.Green("\n✓ Withdrawal sent!")
	fmt.Printf("  Transaction: %s\n\n", color.HiBlackString(notify.ExplorerTxURL+result.Signature))
}

// parseWithdrawAddress accepts wallet addresses only, program-derived
// addresses have no private key to spend from
func parseWithdrawAddress(s string) (solana.PublicKey, error) {
	to, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid destination address: %w", err)
	}
	if !to.IsOnCurve() {
		return solana.PublicKey{}, fmt.Errorf("invalid destination address: %s is not a wallet address", to)
	}
	return to, nil
}

// withdrawAmount resolves "all" or a SOL amount to lamports that the
// balance can cover
func withdrawAmount(arg string, balance uint64) (uint64, error) {
	limit := ledger.MaxNativeTransfer(balance)

	if strings.EqualFold(strings.TrimSpace(arg), "all") {
		if limit == 0 {
			return 0, fmt.Errorf("nothing to withdraw: balance %s SOL does not cover the network fee", parser.FormatAmount(balance, 9))
		}
		return limit, nil
	}

	lamports, err := parser.ParseAmount(arg, 9)
	if err != nil {
		return 0, err
	}
	if lamports > limit {
		return 0, fmt.Errorf("invalid withdrawal amount: at most %s SOL can be withdrawn", parser.FormatAmount(limit, 9))
	}
	return lamports, nil
}

func confirmWithdraw() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with withdrawal? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
