package cmd

import (
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sol-swap/pkg/parser"
	"sol-swap/pkg/trade"
	"sol-swap/pkg/types"
)

const bonk = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func TestIntentFromCommand(t *testing.T) {
	t.Run("buy converts SOL to lamports", func(t *testing.T) {
		c, err := parser.ParseTradeCommand("buy " + bonk + " 0.25")
		require.NoError(t, err)

		intent, err := intentFromCommand(c, 500)
		require.NoError(t, err)
		assert.Equal(t, types.Buy, intent.Direction)
		assert.Equal(t, types.NativeMint, intent.SourceAsset)
		assert.Equal(t, bonk, intent.DestAsset)
		assert.Equal(t, uint64(250_000_000), intent.Amount)
		assert.False(t, intent.Percent)
		assert.Equal(t, uint16(500), intent.MaxSlippageBps)
	})

	t.Run("sell is a percentage of the holding", func(t *testing.T) {
		c, err := parser.ParseTradeCommand("sell " + bonk + " 40%")
		require.NoError(t, err)

		intent, err := intentFromCommand(c, 1000)
		require.NoError(t, err)
		assert.Equal(t, types.Sell, intent.Direction)
		assert.Equal(t, bonk, intent.SourceAsset)
		assert.Equal(t, types.NativeMint, intent.DestAsset)
		assert.Equal(t, uint64(40), intent.Amount)
		assert.True(t, intent.Percent)
	})

	t.Run("sell above 100 percent", func(t *testing.T) {
		_, err := intentFromCommand(&parser.Command{Direction: types.Sell, Token: bonk, Amount: "150"}, 0)
		assert.Error(t, err)
	})

	t.Run("buy below one lamport", func(t *testing.T) {
		_, err := intentFromCommand(&parser.Command{Direction: types.Buy, Token: bonk, Amount: "0.0000000001"}, 0)
		assert.Error(t, err)
	})
}

func TestQuoteRate(t *testing.T) {
	// 0.5 SOL for 1234.5 of a 5-decimal token
	q := &types.Quote{InAmount: 500_000_000, OutAmount: 123_450_000}
	assert.Equal(t, "2469.00000000", quoteRate(q, 9, 5).StringFixed(8))

	assert.True(t, quoteRate(&types.Quote{OutAmount: 10}, 9, 5).IsZero())
}

func TestFailureStatus(t *testing.T) {
	assert.Equal(t, "invalid", failureStatus(fmt.Errorf("%w: amount must be greater than 0", types.ErrInvalidIntent)))
	assert.Equal(t, "quote_unavailable", failureStatus(fmt.Errorf("%w: no route", types.ErrQuoteUnavailable)))
	assert.Equal(t, "submission_failed", failureStatus(fmt.Errorf("%w: %w", types.ErrSubmissionFailed, trade.ErrBalanceNotFound)))
}

func TestShortAddressAndTruncate(t *testing.T) {
	assert.Equal(t, "DezX...B263", shortAddress(bonk))
	assert.Equal(t, "short", shortAddress("short"))
	assert.Equal(t, "SOL", assetLabel(types.NativeMint))

	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncateString("abc", 10))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}

func TestWithdrawAmount(t *testing.T) {
	const oneSOL = 1_000_000_000

	t.Run("all keeps the fee reserve", func(t *testing.T) {
		lamports, err := withdrawAmount("all", oneSOL)
		require.NoError(t, err)
		assert.Equal(t, uint64(999_995_000), lamports)

		lamports, err = withdrawAmount(" ALL ", oneSOL)
		require.NoError(t, err)
		assert.Equal(t, uint64(999_995_000), lamports)
	})

	t.Run("all with only dust", func(t *testing.T) {
		_, err := withdrawAmount("all", 5000)
		assert.ErrorContains(t, err, "nothing to withdraw")
	})

	t.Run("amount in SOL", func(t *testing.T) {
		lamports, err := withdrawAmount("0.5", oneSOL)
		require.NoError(t, err)
		assert.Equal(t, uint64(500_000_000), lamports)
	})

	t.Run("more than the balance allows", func(t *testing.T) {
		_, err := withdrawAmount("1", oneSOL)
		assert.ErrorContains(t, err, "at most 0.999995 SOL")
	})

	t.Run("not a number", func(t *testing.T) {
		_, err := withdrawAmount("half", oneSOL)
		assert.Error(t, err)
	})
}

func TestParseWithdrawAddress(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	got, err := parseWithdrawAddress(" " + wallet.String() + " ")
	require.NoError(t, err)
	assert.Equal(t, wallet, got)

	// associated token accounts are program-derived
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, solana.MustPublicKeyFromBase58(bonk))
	require.NoError(t, err)
	_, err = parseWithdrawAddress(ata.String())
	assert.ErrorContains(t, err, "not a wallet address")

	_, err = parseWithdrawAddress("not-an-address")
	assert.Error(t, err)
}
