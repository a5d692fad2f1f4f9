package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sol-swap/config"
	"sol-swap/pkg/history"
	"sol-swap/pkg/types"
)

var (
	historyStatusFilter string
	historyUnresolved   bool
	historyLimit        int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded trades",
	Long: `List the trades recorded by sol-swap, newest first.

Trades left in the "submitted" state were still being confirmed when an
earlier sol-swap process exited. Check them with 'sol-swap status <txid>'.

Examples:
  sol-swap history
  sol-swap history --status timed_out
  sol-swap history --unresolved --json`,
	Args: cobra.NoArgs,
	Run:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVarP(&historyStatusFilter, "status", "s", "", "Filter by status (submitted, confirmed, timed_out, quote_unavailable, submission_failed, cancelled)")
	historyCmd.Flags().BoolVar(&historyUnresolved, "unresolved", false, "Only show trades that never reached an outcome")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of trades to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := config.Get()

	manager, err := history.NewManager(cfg.HistoryPath)
	exitOnError(err)

	var records []*history.Record
	switch {
	case historyUnresolved:
		records = manager.Unresolved()
	case historyStatusFilter != "":
		status, err := history.ParseStatus(historyStatusFilter)
		exitOnError(err)
		records = manager.ListByStatus(status)
	default:
		records = manager.List()
	}

	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	if jsonOutput {
		printJSON(records)
		return
	}

	if len(records) == 0 {
		color.Yellow("\nNo trades found.\n")
		fmt.Printf("History file: %s\n\n", manager.GetFilePath())
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 120))
	color.Green("                                                TRADE HISTORY")
	fmt.Println(strings.Repeat("=", 120))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nCREATED\tSIDE\tTOKEN\tAMOUNT\tSTATUS\tATTEMPTS\tTX\tREASON")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for _, rec := range records {
		token := rec.DestAsset
		if rec.Direction == types.Sell {
			token = rec.SourceAsset
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
			rec.Created.Format("2006-01-02 15:04:05"),
			strings.ToUpper(string(rec.Direction)),
			shortAddress(token),
			rec.Amount,
			getStatusColor(rec.Status),
			rec.Attempts,
			truncateString(rec.TxID, 16),
			truncateString(rec.Reason, 40))
	}

	w.Flush()
	fmt.Println("\n" + strings.Repeat("=", 120))
	fmt.Printf("Showing %d of %d recorded trade(s)\n", len(records), manager.Count())

	if unresolved := manager.Unresolved(); len(unresolved) > 0 && !historyUnresolved {
		color.Yellow("\n%d trade(s) were never resolved. See: sol-swap history --unresolved", len(unresolved))
	}
	fmt.Println()
}

func getStatusColor(status history.Status) string {
	switch status {
	case history.StatusConfirmed:
		return color.GreenString(string(status))
	case history.StatusSubmitted:
		return color.CyanString(string(status))
	case history.StatusTimedOut, history.StatusCancelled:
		return color.YellowString(string(status))
	case history.StatusQuoteUnavailable, history.StatusSubmissionFailed:
		return color.RedString(string(status))
	default:
		return string(status)
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
