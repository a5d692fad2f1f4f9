package parser

import (
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"strings"

	"sol-swap/pkg/types"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Command is a parsed trade command
type Command struct {
	Direction types.Direction
	Token     string
	// Amount is SOL for buys and a percentage of holdings for sells
	Amount string
}

var (
	commandPattern = regexp.MustCompile(`(?i)^(buy|sell)\s+(\S+)\s+(\d+(?:\.\d+)?)\s*(%|sol)?$`)
	lastSegment    = regexp.MustCompile(`([^/]+)$`)
)

// ParseTradeCommand parses a trade typed by a user
// Examples:
//   - "buy DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 0.5"
//   - "buy https://solscan.io/token/DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 0.5 SOL"
//   - "sell DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 50%"
func ParseTradeCommand(command string) (*Command, error) {
	command = strings.Join(strings.Fields(command), " ")

	matches := commandPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid trade command format. Expected: 'buy <token> <sol amount>' or 'sell <token> <percent>%%'")
	}

	dir := types.Direction(strings.ToLower(matches[1]))
	unit := strings.ToLower(matches[4])
	if dir == types.Buy && unit == "%" {
		return nil, fmt.Errorf("buy amounts are in SOL, not percent")
	}
	if dir == types.Sell && unit == "sol" {
		return nil, fmt.Errorf("sell amounts are a percentage of holdings")
	}

	token, err := ParseTokenAddress(matches[2])
	if err != nil {
		return nil, err
	}

	return &Command{
		Direction: dir,
		Token:     token,
		Amount:    matches[3],
	}, nil
}

// ParseTokenAddress accepts a mint address, a symbol alias for SOL, or an
// explorer link whose last path segment is the mint
func ParseTokenAddress(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("token address is required")
	}

	switch strings.ToUpper(input) {
	case "SOL", "WSOL":
		return types.NativeMint, nil
	}

	candidate := input
	if u, err := url.Parse(input); err == nil && u.Host != "" {
		candidate = strings.TrimSuffix(u.Path, "/")
	}
	if m := lastSegment.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}

	mint, err := solana.PublicKeyFromBase58(candidate)
	if err != nil {
		return "", fmt.Errorf("invalid token address %q: %w", candidate, err)
	}
	return mint.String(), nil
}

// ParseAmount converts a UI amount to the asset's smallest unit
func ParseAmount(amount string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be greater than 0")
	}

	units := d.Shift(int32(decimals)).Floor()
	if units.IsZero() {
		return 0, fmt.Errorf("amount %s is below the smallest unit", amount)
	}

	bi := units.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s is too large", amount)
	}
	return bi.Uint64(), nil
}

// ParsePercent parses a whole percentage between 1 and 100, with or without '%'
func ParsePercent(pct string) (uint64, error) {
	pct = strings.TrimSuffix(strings.TrimSpace(pct), "%")

	d, err := decimal.NewFromString(pct)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q: %w", pct, err)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("percentage must be a whole number")
	}
	if d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(decimal.NewFromInt(100)) {
		return 0, fmt.Errorf("percentage must be between 1 and 100")
	}
	return uint64(d.IntPart()), nil
}

// FormatAmount renders a smallest-unit amount with the given decimals
func FormatAmount(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals)).String()
}
