package types

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func newIntent(t *testing.T) TradeIntent {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return TradeIntent{
		Direction:      Buy,
		SourceAsset:    NativeMint,
		DestAsset:      testMint,
		Amount:         500_000_000,
		MaxSlippageBps: 1000,
		Signer:         key,
	}
}

func TestTradeIntentValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TradeIntent)
		ok     bool
	}{
		{"valid buy", func(*TradeIntent) {}, true},
		{"valid percent sell", func(i *TradeIntent) {
			i.Direction, i.SourceAsset, i.DestAsset = Sell, testMint, NativeMint
			i.Percent, i.Amount = true, 50
		}, true},
		{"unknown direction", func(i *TradeIntent) { i.Direction = "hold" }, false},
		{"missing source", func(i *TradeIntent) { i.SourceAsset = "" }, false},
		{"same assets", func(i *TradeIntent) { i.DestAsset = i.SourceAsset }, false},
		{"zero amount", func(i *TradeIntent) { i.Amount = 0 }, false},
		{"percent buy", func(i *TradeIntent) { i.Percent, i.Amount = true, 10 }, false},
		{"percent over 100", func(i *TradeIntent) {
			i.Direction, i.SourceAsset, i.DestAsset = Sell, testMint, NativeMint
			i.Percent, i.Amount = true, 101
		}, false},
		{"slippage over 100%", func(i *TradeIntent) { i.MaxSlippageBps = 10001 }, false},
		{"no signer", func(i *TradeIntent) { i.Signer = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := newIntent(t)
			tt.mutate(&intent)
			err := intent.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidIntent)
			}
		})
	}
}

func TestWatchedAsset(t *testing.T) {
	intent := newIntent(t)
	assert.Equal(t, testMint, intent.WatchedAsset())

	intent.Direction, intent.SourceAsset, intent.DestAsset = Sell, testMint, NativeMint
	assert.Equal(t, testMint, intent.WatchedAsset())
	assert.Equal(t, intent.Signer.PublicKey(), intent.Owner())
}

func TestSubmissionResultErr(t *testing.T) {
	assert.NoError(t, Submitted("sig", nil).Err())
	assert.True(t, Submitted("sig", nil).OK())

	assert.ErrorIs(t, Submitted("", nil).Err(), ErrSubmissionFailed)
	assert.False(t, Submitted("", nil).OK())

	err := QuoteUnavailable("no route").Err()
	assert.True(t, errors.Is(err, ErrQuoteUnavailable))
	assert.Contains(t, err.Error(), "no route")

	assert.ErrorIs(t, SubmissionFailed("rejected").Err(), ErrSubmissionFailed)
	assert.Equal(t, "quote_unavailable", StatusQuoteUnavailable.String())
}
