package confirm

import (
	"context"
	"sync"
	"testing"
	"time"

	"sol-swap/pkg/ledger"
	"sol-swap/pkg/types"

	"github.com/gagliardetto/solana-go"
)

const (
	tokenMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	otherMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

// fakeOracle answers HeldAmount from a per-asset function of the call number (1-based)
type fakeOracle struct {
	mu     sync.Mutex
	answer map[string]func(call int) (ledger.Holding, error)
	calls  map[string]int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		answer: make(map[string]func(int) (ledger.Holding, error)),
		calls:  make(map[string]int),
	}
}

func (o *fakeOracle) on(asset string, fn func(call int) (ledger.Holding, error)) *fakeOracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answer[asset] = fn
	return o
}

func (o *fakeOracle) HeldAmount(ctx context.Context, owner solana.PublicKey, asset string) (ledger.Holding, error) {
	o.mu.Lock()
	o.calls[asset]++
	n := o.calls[asset]
	fn := o.answer[asset]
	o.mu.Unlock()

	if fn == nil {
		return ledger.Holding{}, nil
	}
	return fn(n)
}

func (o *fakeOracle) callCount(asset string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[asset]
}

func held(amount uint64) ledger.Holding {
	return ledger.Holding{Amount: amount, Held: amount > 0}
}

// script returns answers in order, repeating the last one
func script(holdings ...ledger.Holding) func(int) (ledger.Holding, error) {
	return func(call int) (ledger.Holding, error) {
		if call > len(holdings) {
			return holdings[len(holdings)-1], nil
		}
		return holdings[call-1], nil
	}
}

// instantClock fires every wait immediately and records the requested durations
type instantClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *instantClock) Now() time.Time { return time.Unix(1700000000, 0) }

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// manualClock blocks every wait until the test fires it
type manualClock struct {
	pending chan chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{pending: make(chan chan time.Time, 1024)}
}

func (c *manualClock) Now() time.Time { return time.Unix(1700000000, 0) }

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.pending <- ch
	return ch
}

// next blocks until some session is waiting on the clock
func (c *manualClock) next(t *testing.T) chan time.Time {
	t.Helper()
	select {
	case ch := <-c.pending:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("no session is waiting on the clock")
		return nil
	}
}

// tick releases one waiting session
func (c *manualClock) tick(t *testing.T) {
	t.Helper()
	c.next(t) <- c.Now()
}

func testIntent(t *testing.T, dir types.Direction) types.TradeIntent {
	t.Helper()
	key := solana.NewWallet().PrivateKey

	intent := types.TradeIntent{
		Direction:      dir,
		Amount:         1_000_000,
		MaxSlippageBps: 1000,
		Signer:         key,
	}
	if dir == types.Buy {
		intent.SourceAsset, intent.DestAsset = types.NativeMint, tokenMint
	} else {
		intent.SourceAsset, intent.DestAsset = tokenMint, types.NativeMint
	}
	return intent
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal event")
		return Event{}
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("session goroutine did not exit")
	}
}
