package trade

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sol-swap/pkg/confirm"
	"sol-swap/pkg/history"
	"sol-swap/pkg/ledger"
	"sol-swap/pkg/notify"
	"sol-swap/pkg/types"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type fakeOracle struct {
	mu     sync.Mutex
	calls  int
	answer func(call int) (ledger.Holding, error)
}

func (o *fakeOracle) HeldAmount(ctx context.Context, owner solana.PublicKey, asset string) (ledger.Holding, error) {
	o.mu.Lock()
	o.calls++
	n := o.calls
	o.mu.Unlock()
	return o.answer(n)
}

func (o *fakeOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func holdings(amounts ...uint64) func(int) (ledger.Holding, error) {
	return func(call int) (ledger.Holding, error) {
		if call > len(amounts) {
			call = len(amounts)
		}
		a := amounts[call-1]
		return ledger.Holding{Amount: a, Held: a > 0}, nil
	}
}

type fakeSubmitter struct {
	mu      sync.Mutex
	result  types.SubmissionResult
	intents []types.TradeIntent
}

func (s *fakeSubmitter) Name() string { return "fake" }

func (s *fakeSubmitter) Quote(ctx context.Context, intent types.TradeIntent) (*types.Quote, error) {
	return &types.Quote{InAmount: intent.Amount, OutAmount: 1}, nil
}

func (s *fakeSubmitter) Execute(ctx context.Context, intent types.TradeIntent) types.SubmissionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, intent)
	return s.result
}

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// stalledClock never lets a session make an attempt
type stalledClock struct{}

func (stalledClock) Now() time.Time { return time.Now() }

func (stalledClock) After(time.Duration) <-chan time.Time { return nil }

type harness struct {
	trader    *Trader
	registry  *confirm.Registry
	oracle    *fakeOracle
	submitter *fakeSubmitter
	sink      *notify.Recorder
	history   *history.Manager
}

func newHarness(t *testing.T, clock confirm.Clock, answer func(int) (ledger.Holding, error), result types.SubmissionResult) *harness {
	t.Helper()

	oracle := &fakeOracle{answer: answer}
	registry, err := confirm.NewRegistry(oracle, confirm.DefaultPolicy(), confirm.WithClock(clock))
	require.NoError(t, err)

	hist, err := history.NewManager(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)

	h := &harness{
		registry:  registry,
		oracle:    oracle,
		submitter: &fakeSubmitter{result: result},
		sink:      &notify.Recorder{},
		history:   hist,
	}
	h.trader = NewTrader(oracle, h.submitter, registry, h.sink, hist)
	return h
}

func buyIntent() types.TradeIntent {
	return types.TradeIntent{
		Direction:      types.Buy,
		SourceAsset:    types.NativeMint,
		DestAsset:      tokenMint,
		Amount:         100_000_000,
		MaxSlippageBps: 1000,
		Signer:         solana.NewWallet().PrivateKey,
	}
}

func sellIntent(pct uint64) types.TradeIntent {
	return types.TradeIntent{
		Direction:      types.Sell,
		SourceAsset:    tokenMint,
		DestAsset:      types.NativeMint,
		Amount:         pct,
		Percent:        true,
		MaxSlippageBps: 1000,
		Signer:         solana.NewWallet().PrivateKey,
	}
}

func waitTerminal(t *testing.T, tr *Trader, r *Receipt) confirm.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := tr.Wait(ctx, r)
	require.NoError(t, err)
	return ev
}

func kinds(events []notify.Event) []notify.Kind {
	out := make([]notify.Kind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestQuoteUnavailableCreatesNoSession(t *testing.T) {
	h := newHarness(t, instantClock{}, holdings(0), types.QuoteUnavailable("no route"))

	receipt, err := h.trader.Execute(context.Background(), buyIntent())
	assert.Nil(t, receipt)
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)

	assert.Zero(t, h.registry.Len())
	assert.Empty(t, h.registry.Active())

	events := h.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindQuoteUnavailable, events[0].Kind)
	assert.Equal(t, "no route", events[0].Reason)
	assert.Zero(t, events[0].SessionID)

	recs := h.history.List()
	require.Len(t, recs, 1)
	assert.Equal(t, history.StatusQuoteUnavailable, recs[0].Status)

	// baseline read only, no polling
	assert.Equal(t, 1, h.oracle.callCount())

	// the failed trade consumed no session id
	h.submitter.result = types.Submitted("tx-1", nil)
	h.oracle.answer = holdings(0, 0, 5)
	receipt, err = h.trader.Execute(context.Background(), buyIntent())
	require.NoError(t, err)
	assert.Equal(t, confirm.SessionID(1), receipt.SessionID)
	waitTerminal(t, h.trader, receipt)
}

func TestSubmissionFailedCreatesNoSession(t *testing.T) {
	h := newHarness(t, instantClock{}, holdings(10), types.SubmissionFailed("blockhash not found"))

	_, err := h.trader.Execute(context.Background(), buyIntent())
	assert.ErrorIs(t, err, types.ErrSubmissionFailed)
	assert.Zero(t, h.registry.Len())
	assert.Equal(t, []notify.Kind{notify.KindSubmissionFailed}, kinds(h.sink.Events()))
}

func TestBuyConfirmed(t *testing.T) {
	h := newHarness(t, instantClock{}, holdings(0, 0, 0, 500), types.Submitted("tx-buy", &types.Quote{OutAmount: 500}))

	receipt, err := h.trader.Execute(context.Background(), buyIntent())
	require.NoError(t, err)
	assert.Equal(t, "tx-buy", receipt.TxID)
	assert.Zero(t, receipt.Baseline)
	assert.NotEmpty(t, receipt.RecordID)

	ev := waitTerminal(t, h.trader, receipt)
	assert.Equal(t, confirm.Confirmed, ev.State)
	assert.Equal(t, 3, ev.Attempt)
	assert.Equal(t, "tx-buy", ev.TxID)

	events := h.sink.Events()
	require.Equal(t, []notify.Kind{notify.KindSubmitted, notify.KindConfirmed}, kinds(events))
	assert.Equal(t, uint64(receipt.SessionID), events[0].SessionID)
	assert.Equal(t, uint64(receipt.SessionID), events[1].SessionID)
	assert.Equal(t, 3, events[1].Attempt)

	rec, err := h.history.Get(receipt.RecordID)
	require.NoError(t, err)
	assert.Equal(t, history.StatusConfirmed, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, uint64(receipt.SessionID), rec.SessionID)
	assert.Equal(t, uint64(500), rec.ExpectedOut)
}

func TestBuyTimedOut(t *testing.T) {
	h := newHarness(t, instantClock{}, holdings(40), types.Submitted("tx", nil))

	receipt, err := h.trader.Execute(context.Background(), buyIntent())
	require.NoError(t, err)

	ev := waitTerminal(t, h.trader, receipt)
	assert.Equal(t, confirm.TimedOut, ev.State)
	assert.Equal(t, 25, ev.Attempt)
	assert.Equal(t, []notify.Kind{notify.KindSubmitted, notify.KindTimedOut}, kinds(h.sink.Events()))

	rec, err := h.history.Get(receipt.RecordID)
	require.NoError(t, err)
	assert.Equal(t, history.StatusTimedOut, rec.Status)
}

func TestSellPercentOfHoldings(t *testing.T) {
	h := newHarness(t, instantClock{}, holdings(1000, 1000, 500), types.Submitted("tx-sell", nil))

	receipt, err := h.trader.Execute(context.Background(), sellIntent(50))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), receipt.Baseline)
	assert.Equal(t, uint64(500), receipt.Amount)

	require.Len(t, h.submitter.intents, 1)
	submitted := h.submitter.intents[0]
	assert.Equal(t, uint64(500), submitted.Amount)
	assert.False(t, submitted.Percent)

	ev := waitTerminal(t, h.trader, receipt)
	assert.Equal(t, confirm.Confirmed, ev.State)
	assert.Equal(t, 2, ev.Attempt)
}

func TestSellWithoutHolding(t *testing.T) {
	h := newHarness(t, instantClock{}, holdings(0), types.Submitted("tx", nil))

	receipt, err := h.trader.Execute(context.Background(), sellIntent(100))
	assert.Nil(t, receipt)
	assert.ErrorIs(t, err, ErrBalanceNotFound)
	assert.ErrorIs(t, err, types.ErrSubmissionFailed)

	assert.Empty(t, h.submitter.intents)
	assert.Zero(t, h.registry.Len())

	events := h.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindSubmissionFailed, events[0].Kind)
	assert.Equal(t, "Token balance not found", events[0].Reason)
}

func TestSellAmountRoundsToZero(t *testing.T) {
	h := newHarness(t, instantClock{}, holdings(1), types.Submitted("tx", nil))

	_, err := h.trader.Execute(context.Background(), sellIntent(50))
	assert.ErrorIs(t, err, types.ErrSubmissionFailed)
	assert.Empty(t, h.submitter.intents)
}

func TestBaselineFailure(t *testing.T) {
	h := newHarness(t, instantClock{}, func(int) (ledger.Holding, error) {
		return ledger.Holding{}, errors.New("rpc down")
	}, types.Submitted("tx", nil))

	_, err := h.trader.Execute(context.Background(), buyIntent())
	assert.ErrorIs(t, err, types.ErrSubmissionFailed)
	assert.Empty(t, h.submitter.intents)
	assert.Equal(t, []notify.Kind{notify.KindSubmissionFailed}, kinds(h.sink.Events()))
}

func TestInvalidIntent(t *testing.T) {
	h := newHarness(t, instantClock{}, holdings(0), types.Submitted("tx", nil))

	intent := buyIntent()
	intent.Amount = 0
	_, err := h.trader.Execute(context.Background(), intent)
	assert.ErrorIs(t, err, types.ErrInvalidIntent)
	assert.Zero(t, h.oracle.callCount())
	assert.Empty(t, h.sink.Events())
}

func TestCancelAndShutdown(t *testing.T) {
	h := newHarness(t, stalledClock{}, holdings(0), types.Submitted("tx", nil))

	first, err := h.trader.Execute(context.Background(), buyIntent())
	require.NoError(t, err)
	second, err := h.trader.Execute(context.Background(), buyIntent())
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, 2, h.registry.Len())

	assert.True(t, h.trader.Cancel(first.SessionID))
	assert.False(t, h.trader.Cancel(first.SessionID))

	_, err = h.trader.Wait(context.Background(), first)
	assert.ErrorIs(t, err, ErrCancelled)

	require.NoError(t, h.trader.Shutdown(context.Background()))
	assert.Zero(t, h.registry.Len())

	for _, r := range []*Receipt{first, second} {
		rec, err := h.history.Get(r.RecordID)
		require.NoError(t, err)
		assert.Equal(t, history.StatusCancelled, rec.Status)
	}

	// cancelled sessions emit nothing after the submitted notice
	assert.Equal(t, []notify.Kind{notify.KindSubmitted, notify.KindSubmitted}, kinds(h.sink.Events()))

	h.submitter.result = types.Submitted("tx-late", nil)
	late, err := h.trader.Execute(context.Background(), buyIntent())
	assert.ErrorIs(t, err, confirm.ErrRegistryClosed)
	require.NotNil(t, late)
	assert.Equal(t, "tx-late", late.TxID)

	// the accepted transaction is still reported once, with its id
	events := h.sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, notify.KindSubmissionFailed, events[2].Kind)
	assert.Equal(t, "tx-late", events[2].TxID)
	assert.Contains(t, events[2].Reason, "not tracked")

	rec, err := h.history.Get(late.RecordID)
	require.NoError(t, err)
	assert.Equal(t, history.StatusCancelled, rec.Status)
}

func TestPercentOf(t *testing.T) {
	tests := []struct {
		amount, pct, want uint64
	}{
		{1000, 50, 500},
		{3, 50, 1},
		{1, 1, 0},
		{999, 100, 999},
		{math.MaxUint64, 100, math.MaxUint64},
		{math.MaxUint64, 50, math.MaxUint64 / 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PercentOf(tt.amount, tt.pct), "%d * %d%%", tt.amount, tt.pct)
	}
}
