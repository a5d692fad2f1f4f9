package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sol-swap/config"
	"sol-swap/pkg/client"
	"sol-swap/pkg/confirm"
	"sol-swap/pkg/history"
	"sol-swap/pkg/ledger"
	"sol-swap/pkg/logger"
	"sol-swap/pkg/notify"
	"sol-swap/pkg/trade"
)

var log = logrus.WithField("component", "cli")

var rootCmd = &cobra.Command{
	Use:   "sol-swap",
	Short: "Buy and sell Solana tokens and confirm trades by watching balances",
	Long: `sol-swap buys and sells SPL tokens against SOL through a swap aggregator.
After a transaction is accepted by the network, sol-swap watches your token
balance until the trade shows up (or gives up after a fixed number of polls).

Examples:
  sol-swap buy DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 0.1
  sol-swap sell DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 50
  sol-swap quote buy <mint> 0.5
  sol-swap balance
  sol-swap history --status timed_out
  sol-swap shell`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

// setup loads configuration and initializes logging before any subcommand
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}

	return logger.Init(logger.Config{
		Level:      level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		Console:    verbose,
	})
}

// engine bundles everything a trading command needs
type engine struct {
	signer    solana.PrivateKey
	ledger    *ledger.Client
	submitter client.Submitter
	registry  *confirm.Registry
	history   *history.Manager
	trader    *trade.Trader
}

// newLedger creates a ledger client from configuration
func newLedger(cfg *config.Config) *ledger.Client {
	return ledger.New(cfg.RPCURL, ledger.Options{
		Commitment:    cfg.Commitment,
		SkipPreflight: cfg.SkipPreflight,
		MaxRetries:    cfg.MaxRetries,
	})
}

// newEngine wires the ledger, aggregator, session registry, history and
// notification sinks into a trader
func newEngine(cfg *config.Config, sinks ...notify.Sink) (*engine, error) {
	signer, err := cfg.Signer()
	if err != nil {
		return nil, err
	}

	chain := newLedger(cfg)
	e := &engine{signer: signer, ledger: chain}

	switch cfg.Aggregator {
	case config.AggregatorOneClick:
		e.submitter = client.NewOneClickClient(cfg.OneClick.JWTToken, cfg.OneClick.BaseURL, chain)
	default:
		e.submitter = client.NewJupiterClient(cfg.Jupiter.BaseURL, chain, cfg.Jupiter.PriorityFeeLamports)
	}

	e.registry, err = confirm.NewRegistry(chain, confirm.Policy{
		PollInterval:    cfg.Confirm.PollInterval,
		BuyMaxAttempts:  cfg.Confirm.BuyMaxAttempts,
		SellMaxAttempts: cfg.Confirm.SellMaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}

	e.history, err = history.NewManager(cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade history: %w", err)
	}

	sink := notify.Multi{notify.NewLog()}
	sink = append(sink, sinks...)
	e.trader = trade.NewTrader(chain, e.submitter, e.registry, sink, e.history)
	return e, nil
}

// shutdown cancels every session still confirming
func (e *engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.trader.Shutdown(ctx); err != nil {
		printError(fmt.Errorf("failed to stop confirmation sessions: %w", err))
	}
}

func exitOnError(err error) {
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
