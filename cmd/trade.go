package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sol-swap/config"
	"sol-swap/pkg/confirm"
	"sol-swap/pkg/notify"
	"sol-swap/pkg/parser"
	"sol-swap/pkg/types"
)

var (
	slippageBps uint16
	noConfirm   bool
)

// addTradeFlags registers the flags shared by buy and sell
func addTradeFlags(c *cobra.Command) {
	c.Flags().Uint16Var(&slippageBps, "slippage", 0, "Maximum slippage in basis points (default from config)")
	c.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

// tradeResult is the JSON output of a trade command
type tradeResult struct {
	Direction   types.Direction `json:"direction"`
	Token       string          `json:"token"`
	Amount      uint64          `json:"amount,omitempty"`
	TxID        string          `json:"txid,omitempty"`
	SessionID   uint64          `json:"session_id,omitempty"`
	RecordID    string          `json:"record_id,omitempty"`
	Baseline    uint64          `json:"baseline"`
	ExpectedOut uint64          `json:"expected_out,omitempty"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// runTrade executes one intent and blocks until its confirmation session ends
func runTrade(cmd *cobra.Command, intent types.TradeIntent, token string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := config.Get()

	if intent.MaxSlippageBps == 0 {
		intent.MaxSlippageBps = cfg.SlippageBps
	}

	var sinks []notify.Sink
	if !jsonOutput {
		sinks = append(sinks, notify.NewConsole(nil))
	}
	e, err := newEngine(cfg, sinks...)
	exitOnError(err)
	intent.Signer = e.signer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !jsonOutput && !noConfirm {
		previewQuote(ctx, e, intent)
		if !confirmTrade(intent) {
			fmt.Println("\nTrade cancelled.")
			return
		}
	}

	out := tradeResult{Direction: intent.Direction, Token: token}

	receipt, err := e.trader.Execute(ctx, intent)
	if err != nil {
		if jsonOutput {
			out.Status = failureStatus(err)
			out.Error = err.Error()
			printJSON(out)
		} else if !errors.Is(err, types.ErrQuoteUnavailable) && !errors.Is(err, types.ErrSubmissionFailed) {
			// quote and submission failures were already shown by the console sink
			printError(err)
		}
		os.Exit(1)
	}

	out.TxID = receipt.TxID
	out.SessionID = uint64(receipt.SessionID)
	out.RecordID = receipt.RecordID
	out.Baseline = receipt.Baseline
	out.Amount = receipt.Amount
	if receipt.Quote != nil {
		out.ExpectedOut = receipt.Quote.OutAmount
	}

	ev, err := e.trader.Wait(ctx, receipt)
	if err != nil {
		if !jsonOutput {
			color.Yellow("\nReceived shutdown signal. Stopping confirmation...")
		}
		e.shutdown()
		if jsonOutput {
			out.Status = "cancelled"
			out.Error = err.Error()
			printJSON(out)
		} else {
			color.Cyan("The transaction may still settle. Check it later with:")
			color.Cyan("  sol-swap status %s\n", receipt.TxID)
		}
		os.Exit(1)
	}

	out.Status = ev.State.String()
	out.Attempts = ev.Attempt
	if jsonOutput {
		printJSON(out)
	}
	if ev.State != confirm.Confirmed {
		os.Exit(1)
	}
}

// previewQuote shows the aggregator estimate for an intent
func previewQuote(ctx context.Context, e *engine, intent types.TradeIntent) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Fetching quote..."
	s.Start()

	// a percentage sell is previewed against the current holding
	var err error
	if intent.Percent {
		intent, err = resolvePercent(ctx, e, intent)
	}
	var view *quoteView
	if err == nil {
		view, err = fetchQuote(ctx, e, intent)
	}
	s.Stop()

	if err != nil {
		color.Yellow("\nCould not fetch a quote preview: %v", err)
		return
	}
	displayQuote(view)
}

func confirmTrade(intent types.TradeIntent) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\nProceed with %s? (y/N): ", intent.Direction)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// failureStatus maps a submission error to a history status name
func failureStatus(err error) string {
	switch {
	case errors.Is(err, types.ErrInvalidIntent):
		return "invalid"
	case errors.Is(err, types.ErrQuoteUnavailable):
		return "quote_unavailable"
	default:
		return "submission_failed"
	}
}

func assetLabel(mint string) string {
	if mint == types.NativeMint {
		return "SOL"
	}
	return shortAddress(mint)
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

// intentFromCommand converts a parsed trade command into an intent
func intentFromCommand(c *parser.Command, slippage uint16) (types.TradeIntent, error) {
	if c.Direction == types.Buy {
		lamports, err := parser.ParseAmount(c.Amount, 9)
		if err != nil {
			return types.TradeIntent{}, err
		}
		return types.TradeIntent{
			Direction:      types.Buy,
			SourceAsset:    types.NativeMint,
			DestAsset:      c.Token,
			Amount:         lamports,
			MaxSlippageBps: slippage,
		}, nil
	}

	pct, err := parser.ParsePercent(c.Amount)
	if err != nil {
		return types.TradeIntent{}, err
	}
	return types.TradeIntent{
		Direction:      types.Sell,
		SourceAsset:    c.Token,
		DestAsset:      types.NativeMint,
		Amount:         pct,
		Percent:        true,
		MaxSlippageBps: slippage,
	}, nil
}
