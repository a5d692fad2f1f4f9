package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"sol-swap/config"
	"sol-swap/pkg/parser"
	"sol-swap/pkg/trade"
	"sol-swap/pkg/types"
)

var quoteSlippage uint16

var quoteCmd = &cobra.Command{
	Use:   "quote <buy|sell> <token> <amount>",
	Short: "Show an aggregator quote without trading",
	Long: `Fetch an indicative quote for a trade without submitting anything.
Buy amounts are in SOL, sell amounts are a percentage of your holding.

Examples:
  sol-swap quote buy DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 0.5
  sol-swap quote sell DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 50%
  sol-swap quote buy <mint> 1 --json`,
	Args: cobra.ExactArgs(3),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().Uint16Var(&quoteSlippage, "slippage", 0, "Maximum slippage in basis points (default from config)")
}

// quoteView is a quote resolved to display units
type quoteView struct {
	Direction      types.Direction `json:"direction"`
	SourceAsset    string          `json:"source_asset"`
	DestAsset      string          `json:"dest_asset"`
	InAmount       uint64          `json:"in_amount"`
	OutAmount      uint64          `json:"out_amount"`
	In             string          `json:"in_formatted"`
	Out            string          `json:"out_formatted"`
	Rate           string          `json:"rate"`
	SlippageBps    uint16          `json:"slippage_bps"`
	Aggregator     string          `json:"aggregator"`
	DepositAddress string          `json:"deposit_address,omitempty"`
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := config.Get()

	command, err := parser.ParseTradeCommand(strings.Join(args, " "))
	exitOnError(err)

	slippage := quoteSlippage
	if slippage == 0 {
		slippage = cfg.SlippageBps
	}
	intent, err := intentFromCommand(command, slippage)
	exitOnError(err)

	e, err := newEngine(cfg)
	exitOnError(err)
	intent.Signer = e.signer

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	if intent.Percent {
		intent, err = resolvePercent(ctx, e, intent)
	}
	var view *quoteView
	if err == nil {
		view, err = fetchQuote(ctx, e, intent)
	}
	if !jsonOutput {
		s.Stop()
	}
	exitOnError(err)

	if jsonOutput {
		printJSON(view)
		return
	}
	displayQuote(view)
}

// resolvePercent turns a percentage sell into an amount of the current holding
func resolvePercent(ctx context.Context, e *engine, intent types.TradeIntent) (types.TradeIntent, error) {
	holding, err := e.ledger.HeldAmount(ctx, intent.Owner(), intent.SourceAsset)
	if err != nil {
		return intent, err
	}
	if !holding.Held {
		return intent, trade.ErrBalanceNotFound
	}

	intent.Amount = trade.PercentOf(holding.Amount, intent.Amount)
	intent.Percent = false
	if intent.Amount == 0 {
		return intent, fmt.Errorf("amount to sell rounds down to 0")
	}
	return intent, nil
}

// fetchQuote asks the aggregator for a quote and resolves mint decimals
func fetchQuote(ctx context.Context, e *engine, intent types.TradeIntent) (*quoteView, error) {
	q, err := e.submitter.Quote(ctx, intent)
	if err != nil {
		return nil, err
	}

	inDecimals, err := e.ledger.MintDecimals(ctx, intent.SourceAsset)
	if err != nil {
		return nil, err
	}
	outDecimals, err := e.ledger.MintDecimals(ctx, intent.DestAsset)
	if err != nil {
		return nil, err
	}

	return &quoteView{
		Direction:      intent.Direction,
		SourceAsset:    intent.SourceAsset,
		DestAsset:      intent.DestAsset,
		InAmount:       q.InAmount,
		OutAmount:      q.OutAmount,
		In:             parser.FormatAmount(q.InAmount, inDecimals),
		Out:            parser.FormatAmount(q.OutAmount, outDecimals),
		Rate:           quoteRate(q, inDecimals, outDecimals).StringFixed(8),
		SlippageBps:    intent.MaxSlippageBps,
		Aggregator:     e.submitter.Name(),
		DepositAddress: q.DepositAddress,
	}, nil
}

// quoteRate is the price of one source unit in destination units
func quoteRate(q *types.Quote, inDecimals, outDecimals uint8) decimal.Decimal {
	in := decimal.NewFromBigInt(new(big.Int).SetUint64(q.InAmount), -int32(inDecimals))
	if in.IsZero() {
		return decimal.Zero
	}
	out := decimal.NewFromBigInt(new(big.Int).SetUint64(q.OutAmount), -int32(outDecimals))
	return out.DivRound(in, 12)
}

func displayQuote(v *quoteView) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     TRADE QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Direction:         %s\n", strings.ToUpper(string(v.Direction)))
	fmt.Printf("  From:              %s %s\n", v.In, color.YellowString(assetLabel(v.SourceAsset)))
	fmt.Printf("  To:                ~%s %s\n", v.Out, color.YellowString(assetLabel(v.DestAsset)))
	fmt.Printf("  Rate:              1 %s = %s %s\n", assetLabel(v.SourceAsset), v.Rate, assetLabel(v.DestAsset))
	fmt.Printf("  Max Slippage:      %.2f%%\n", float64(v.SlippageBps)/100)
	fmt.Printf("  Aggregator:        %s\n", v.Aggregator)
	if v.DepositAddress != "" {
		fmt.Printf("  Deposit Address:   %s\n", color.CyanString(v.DepositAddress))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
