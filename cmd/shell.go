package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sol-swap/config"
	"sol-swap/pkg/confirm"
	"sol-swap/pkg/notify"
	"sol-swap/pkg/parser"
)

const shellHelp = `Start an interactive shell that accepts trade commands. Trades are
confirmed in the background, so several can be in flight at once.

Commands:
  buy <token> <sol-amount>     Buy a token with SOL
  sell <token> <percent>%      Sell a percentage of a holding
  sessions                     List trades still being confirmed
  cancel <session-id>          Stop confirming a trade
  help                         Show this help
  quit                         Stop all sessions and exit`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive trading shell",
	Long:  shellHelp,
	Args:  cobra.NoArgs,
	Run:   runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) {
	cfg := config.Get()

	e, err := newEngine(cfg, notify.NewConsole(nil))
	exitOnError(err)

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                     SOL-SWAP TRADING SHELL")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  Wallet:       %s\n", color.CyanString(e.signer.PublicKey().String()))
	fmt.Printf("  Aggregator:   %s\n", e.submitter.Name())
	fmt.Printf("  Slippage:     %.2f%%\n", float64(cfg.SlippageBps)/100)
	fmt.Printf("  Confirmation: every %s, %d attempts for buys, %d for sells\n",
		cfg.Confirm.PollInterval, cfg.Confirm.BuyMaxAttempts, cfg.Confirm.SellMaxAttempts)

	if unresolved := e.history.Unresolved(); len(unresolved) > 0 {
		color.Yellow("\n  %d trade(s) from an earlier run were never resolved. See: sol-swap history --unresolved", len(unresolved))
	}

	color.Yellow("\n• Type 'help' for commands, 'quit' or Ctrl+C to exit\n")
	fmt.Println(strings.Repeat("=", 70) + "\n")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sh := &shell{engine: e, slippage: cfg.SlippageBps}

	fmt.Print("> ")
loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if !sh.handle(ctx, line) {
				break loop
			}
			fmt.Print("> ")
		case <-sigChan:
			color.Yellow("\nReceived shutdown signal.")
			break loop
		}
	}
	cancel()

	if n := e.registry.Len(); n > 0 {
		color.Yellow("\nStopping %d confirmation session(s)...", n)
	}
	e.shutdown()

	color.Green("\n✓ Shell stopped.")
	fmt.Printf("Trade history: %s\n\n", e.history.GetFilePath())
}

type shell struct {
	engine   *engine
	slippage uint16
}

// handle runs one input line and reports whether the shell should keep going
func (s *shell) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return false
	case "help", "?":
		fmt.Println(shellHelp)
	case "sessions", "ls":
		s.sessions()
	case "cancel":
		if len(fields) != 2 {
			color.Red("usage: cancel <session-id>")
			return true
		}
		s.cancel(fields[1])
	case "buy", "sell":
		s.trade(ctx, line)
	default:
		color.Red("unknown command %q, type 'help' for commands", fields[0])
	}
	return true
}

func (s *shell) trade(ctx context.Context, line string) {
	command, err := parser.ParseTradeCommand(line)
	if err != nil {
		color.Red("%v", err)
		return
	}

	intent, err := intentFromCommand(command, s.slippage)
	if err != nil {
		color.Red("%v", err)
		return
	}
	intent.Signer = s.engine.signer

	receipt, err := s.engine.trader.Execute(ctx, intent)
	if err != nil {
		// submission failures are printed by the console sink
		log.WithError(err).Debug("trade not submitted")
		return
	}

	log.WithFields(logrus.Fields{
		"session": receipt.SessionID,
		"txid":    receipt.TxID,
	}).Debug("trade submitted")
}

func (s *shell) sessions() {
	active := s.engine.registry.Active()
	if len(active) == 0 {
		color.Yellow("No trades are being confirmed.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSIDE\tTOKEN\tATTEMPT\tRUNNING\tTX")
	for _, snap := range active {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			snap.ID,
			strings.ToUpper(string(snap.Direction)),
			shortAddress(snap.Asset),
			snap.Attempt, snap.MaxAttempts,
			time.Since(snap.Started).Truncate(time.Second),
			truncateString(snap.TxID, 16))
	}
	w.Flush()
}

func (s *shell) cancel(arg string) {
	n, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		color.Red("invalid session id %q", arg)
		return
	}

	id := confirm.SessionID(n)
	if !s.engine.trader.Cancel(id) {
		color.Red("no trade is being confirmed as %s", id)
		return
	}
	color.Yellow("Stopped confirming %s. The transaction may still settle.", id)
}
