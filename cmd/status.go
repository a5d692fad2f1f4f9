package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sol-swap/config"
	"sol-swap/pkg/client"
	"sol-swap/pkg/history"
	"sol-swap/pkg/ledger"
	"sol-swap/pkg/notify"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <txid|record-id>",
	Short: "Check the status of a trade",
	Long: `Check a trade by transaction signature or history record id.

Shows the recorded outcome, the cluster's view of the transaction and, for
1Click trades, the status of the deposit-address swap. The cluster status is
informational: sol-swap confirms trades by watching balances.

Examples:
  sol-swap status 5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW
  sol-swap status 3f1c2a9e-8d4b-4c1e-9f0a-5b7d2e6c8a14 --watch --interval 3`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

// tradeStatus is everything known about one trade
type tradeStatus struct {
	Record   *history.Record                      `json:"record,omitempty"`
	TxID     string                               `json:"txid"`
	Ledger   *ledger.SignatureStatus              `json:"ledger,omitempty"`
	OneClick *oneclick.GetExecutionStatusResponse `json:"oneclick,omitempty"`
}

type statusChecker struct {
	history *history.Manager
	ledger  *ledger.Client
	api     *client.OneClickClient
}

func runStatus(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := config.Get()

	manager, err := history.NewManager(cfg.HistoryPath)
	exitOnError(err)

	checker := &statusChecker{history: manager, ledger: newLedger(cfg)}
	if cfg.OneClick.JWTToken != "" {
		checker.api = client.NewOneClickClient(cfg.OneClick.JWTToken, cfg.OneClick.BaseURL, nil)
	}

	if watchStatus {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		checker.watch(args[0])
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking trade status..."
		s.Start()
	}

	status, err := checker.check(args[0])
	if !jsonOutput {
		s.Stop()
	}
	exitOnError(err)

	if jsonOutput {
		printJSON(status)
		return
	}
	displayStatus(status)
}

// check resolves ref to a history record when possible and queries the cluster
func (c *statusChecker) check(ref string) (*tradeStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status := &tradeStatus{TxID: ref}
	if rec, err := c.history.Get(ref); err == nil {
		status.Record = rec
	} else if rec, err := c.history.FindByTxID(ref); err == nil {
		status.Record = rec
	}
	if status.Record != nil {
		status.TxID = status.Record.TxID
	}

	if status.TxID == "" {
		if status.Record == nil {
			return nil, fmt.Errorf("no trade found for '%s'", ref)
		}
		// the trade never reached the network
		return status, nil
	}

	sig, err := c.ledger.SignatureStatus(ctx, status.TxID)
	if err != nil {
		return nil, err
	}
	status.Ledger = sig

	if status.Record != nil && status.Record.DepositAddress != "" && c.api != nil {
		swap, err := c.api.SwapStatus(ctx, status.Record.DepositAddress)
		if err != nil {
			log.WithError(err).Warn("failed to get 1Click swap status")
		} else {
			status.OneClick = swap
		}
	}

	return status, nil
}

func (c *statusChecker) watch(ref string) {
	fmt.Printf("\nWatching trade %s\n", color.CyanString(ref))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	c.checkAndDisplay(ref)

	// Then check periodically
	for range ticker.C {
		c.checkAndDisplay(ref)
	}
}

func (c *statusChecker) checkAndDisplay(ref string) {
	status, err := c.check(ref)
	if err != nil {
		color.Red("Error: %v", err)
		return
	}

	displayStatus(status)
}

func displayStatus(status *tradeStatus) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        TRADE STATUS")
	fmt.Println(strings.Repeat("=", 70))

	if rec := status.Record; rec != nil {
		fmt.Printf("\n  Record:          %s\n", rec.ID)
		fmt.Printf("  Side:            %s\n", strings.ToUpper(string(rec.Direction)))
		fmt.Printf("  From -> To:      %s -> %s\n", assetLabel(rec.SourceAsset), assetLabel(rec.DestAsset))
		fmt.Printf("  Outcome:         %s\n", getStatusColor(rec.Status))
		if rec.Attempts > 0 {
			fmt.Printf("  Poll Attempts:   %d\n", rec.Attempts)
		}
		if rec.Reason != "" {
			fmt.Printf("  Reason:          %s\n", rec.Reason)
		}
		fmt.Printf("  Created:         %s\n", rec.Created.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("\n  Not found in local history.")
	}

	if status.TxID != "" {
		fmt.Printf("  Transaction:     %s\n", color.CyanString(status.TxID))
		fmt.Printf("  Explorer:        %s\n", color.HiBlackString(notify.ExplorerTxURL+status.TxID))
	}

	if sig := status.Ledger; sig != nil {
		switch {
		case !sig.Found:
			fmt.Printf("  Cluster:         %s\n", color.YellowString("NOT FOUND"))
		case sig.Err != "":
			fmt.Printf("  Cluster:         %s (%s)\n", color.RedString("FAILED"), sig.Err)
		default:
			fmt.Printf("  Cluster:         %s at slot %d\n", getColoredStatus(sig.Status), sig.Slot)
		}
	}

	if swap := status.OneClick; swap != nil {
		fmt.Printf("  1Click Status:   %s\n", getColoredStatus(swap.GetStatus()))
		fmt.Printf("  Last Updated:    %s\n", swap.GetUpdatedAt().Format("2006-01-02 15:04:05"))

		swapDetails := swap.GetSwapDetails()
		for _, tx := range swapDetails.GetDestinationChainTxHashes() {
			if hash := tx.GetHash(); hash != "" {
				fmt.Printf("  Settlement Tx:   %s\n", color.HiBlackString(hash))
			}
		}
		if swapDetails.HasAmountOutFormatted() {
			fmt.Printf("  Amount Out:      %s\n", swapDetails.GetAmountOutFormatted())
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "SUCCESS", "COMPLETED", "FINALIZED", "CONFIRMED":
		return color.GreenString(status)
	case "PENDING_DEPOSIT", "PENDING", "PROCESSING", "PROCESSED":
		return color.YellowString(status)
	case "FAILED", "REFUNDED":
		return color.RedString(status)
	case "INCOMPLETE_DEPOSIT":
		return color.MagentaString(status)
	default:
		return status
	}
}
