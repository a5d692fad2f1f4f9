package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

const (
	AggregatorJupiter  = "jupiter"
	AggregatorOneClick = "oneclick"
)

// Config holds the application configuration
type Config struct {
	RPCURL        string
	PrivateKey    string
	Commitment    string
	SkipPreflight bool
	MaxRetries    uint

	Aggregator  string
	Jupiter     JupiterConfig
	OneClick    OneClickConfig
	SlippageBps uint16

	Confirm     ConfirmConfig
	HistoryPath string
	Log         LogConfig
}

// JupiterConfig configures the Jupiter quote/swap API
type JupiterConfig struct {
	BaseURL string
	// PriorityFeeLamports of 0 lets the API pick ("auto")
	PriorityFeeLamports uint64
}

// OneClickConfig configures the NEAR Intents 1Click API
type OneClickConfig struct {
	JWTToken string
	BaseURL  string
}

// ConfirmConfig holds the confirmation polling policy
type ConfirmConfig struct {
	PollInterval    time.Duration
	BuyMaxAttempts  int
	SellMaxAttempts int
}

// LogConfig configures logrus output and file rotation
type LogConfig struct {
	Level      string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

var globalConfig *Config

func setDefaults() {
	viper.SetDefault("rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("commitment", "confirmed")
	viper.SetDefault("skip_preflight", false)
	viper.SetDefault("max_retries", 30)
	viper.SetDefault("aggregator", AggregatorJupiter)
	viper.SetDefault("jupiter.base_url", "https://quote-api.jup.ag/v6")
	viper.SetDefault("jupiter.priority_fee_lamports", 0)
	viper.SetDefault("oneclick.base_url", "https://1click.chaindefuser.com")
	viper.SetDefault("slippage_bps", 1000)
	viper.SetDefault("confirm.poll_interval", "3s")
	viper.SetDefault("confirm.buy_max_attempts", 25)
	viper.SetDefault("confirm.sell_max_attempts", 21)
	viper.SetDefault("history_path", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.max_size", 50)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age", 14)
	viper.SetDefault("log.compress", true)
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".sol-swap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from environment variables, nested keys use "_" (SOL_SWAP_CONFIRM_POLL_INTERVAL)
	viper.SetEnvPrefix("SOL_SWAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("rpc_url", "SOL_SWAP_RPC_URL", "RPC_URL")

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		RPCURL:        viper.GetString("rpc_url"),
		PrivateKey:    viper.GetString("private_key"),
		Commitment:    strings.ToLower(viper.GetString("commitment")),
		SkipPreflight: viper.GetBool("skip_preflight"),
		MaxRetries:    viper.GetUint("max_retries"),
		Aggregator:    strings.ToLower(viper.GetString("aggregator")),
		Jupiter: JupiterConfig{
			BaseURL:             viper.GetString("jupiter.base_url"),
			PriorityFeeLamports: viper.GetUint64("jupiter.priority_fee_lamports"),
		},
		OneClick: OneClickConfig{
			JWTToken: viper.GetString("oneclick.jwt_token"),
			BaseURL:  viper.GetString("oneclick.base_url"),
		},
		SlippageBps: uint16(viper.GetUint("slippage_bps")),
		Confirm: ConfirmConfig{
			PollInterval:    viper.GetDuration("confirm.poll_interval"),
			BuyMaxAttempts:  viper.GetInt("confirm.buy_max_attempts"),
			SellMaxAttempts: viper.GetInt("confirm.sell_max_attempts"),
		},
		HistoryPath: viper.GetString("history_path"),
		Log: LogConfig{
			Level:      viper.GetString("log.level"),
			File:       viper.GetString("log.file"),
			MaxSize:    viper.GetInt("log.max_size"),
			MaxBackups: viper.GetInt("log.max_backups"),
			MaxAge:     viper.GetInt("log.max_age"),
			Compress:   viper.GetBool("log.compress"),
		},
	}

	if viper.GetUint("slippage_bps") > 10000 {
		return nil, fmt.Errorf("slippage_bps must be between 0 and 10000, got %d", viper.GetUint("slippage_bps"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL not configured. Please set SOL_SWAP_RPC_URL or rpc_url in .sol-swap.yaml")
	}

	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid commitment %q (expected processed, confirmed or finalized)", c.Commitment)
	}

	switch c.Aggregator {
	case AggregatorJupiter:
		if c.Jupiter.BaseURL == "" {
			return fmt.Errorf("jupiter.base_url is required when aggregator is %q", AggregatorJupiter)
		}
	case AggregatorOneClick:
		if c.OneClick.JWTToken == "" {
			return fmt.Errorf("JWT token not found. Please set SOL_SWAP_ONECLICK_JWT_TOKEN or oneclick.jwt_token in .sol-swap.yaml")
		}
	default:
		return fmt.Errorf("unknown aggregator %q (expected %s or %s)", c.Aggregator, AggregatorJupiter, AggregatorOneClick)
	}

	if c.Confirm.PollInterval <= 0 {
		return fmt.Errorf("confirm.poll_interval must be greater than 0")
	}
	if c.Confirm.BuyMaxAttempts <= 0 || c.Confirm.SellMaxAttempts <= 0 {
		return fmt.Errorf("confirm max attempts must be greater than 0")
	}

	return nil
}

// Signer decodes the configured base58 private key
func (c *Config) Signer() (solana.PrivateKey, error) {
	if c.PrivateKey == "" {
		return nil, fmt.Errorf("private key not found. Please set SOL_SWAP_PRIVATE_KEY environment variable or private_key in .sol-swap.yaml")
	}

	key, err := solana.PrivateKeyFromBase58(c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
