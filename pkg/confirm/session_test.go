package confirm

import (
	"errors"
	"testing"
	"time"

	"sol-swap/pkg/ledger"
	"sol-swap/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, oracle ledger.Oracle, clock Clock) *Registry {
	t.Helper()
	r, err := NewRegistry(oracle, DefaultPolicy(), WithClock(clock))
	require.NoError(t, err)
	return r
}

func TestBuyConfirmedOnThirdAttempt(t *testing.T) {
	oracle := newFakeOracle().on(tokenMint, script(held(0), held(0), held(500)))
	clock := &instantClock{}
	r := newTestRegistry(t, oracle, clock)

	terminal := make(chan Event, 1)
	var progress []Event
	id, err := r.CreateSession(testIntent(t, types.Buy), 0, "txid-a",
		WithTerminal(func(ev Event) { terminal <- ev }),
		WithProgress(func(ev Event) { progress = append(progress, ev) }),
	)
	require.NoError(t, err)

	ev := waitEvent(t, terminal)
	waitClosed(t, r.Wait(id))

	assert.Equal(t, Confirmed, ev.State)
	assert.Equal(t, 3, ev.Attempt)
	assert.Equal(t, "txid-a", ev.TxID)
	assert.Equal(t, id, ev.SessionID)
	assert.Equal(t, uint64(500), ev.Holding.Amount)
	assert.Equal(t, 3, oracle.callCount(tokenMint))

	require.Len(t, progress, 2)
	assert.Equal(t, 1, progress[0].Attempt)
	assert.Equal(t, 2, progress[1].Attempt)
	assert.Equal(t, Polling, progress[1].State)

	assert.Zero(t, r.Len())
	for _, d := range clock.waits {
		assert.Equal(t, 3*time.Second, d)
	}
}

func TestSellTimesOutAfterBudget(t *testing.T) {
	oracle := newFakeOracle().on(tokenMint, script(held(1000)))
	r := newTestRegistry(t, oracle, &instantClock{})

	terminal := make(chan Event, 2)
	progressCount := 0
	_, err := r.CreateSession(testIntent(t, types.Sell), 1000, "txid-b",
		WithTerminal(func(ev Event) { terminal <- ev }),
		WithProgress(func(ev Event) {
			progressCount++
			assert.NotEqual(t, Confirmed, ev.State)
		}),
	)
	require.NoError(t, err)

	ev := waitEvent(t, terminal)
	assert.Equal(t, TimedOut, ev.State)
	assert.Equal(t, 21, ev.Attempt)
	assert.Equal(t, 21, ev.MaxAttempts)
	assert.Equal(t, "txid-b", ev.TxID)
	assert.Equal(t, 21, oracle.callCount(tokenMint))
	assert.Equal(t, 20, progressCount)

	select {
	case extra := <-terminal:
		t.Fatalf("unexpected second terminal event: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBuyTimesOutAfterBudget(t *testing.T) {
	oracle := newFakeOracle().on(tokenMint, script(held(300)))
	r := newTestRegistry(t, oracle, &instantClock{})

	terminal := make(chan Event, 1)
	_, err := r.CreateSession(testIntent(t, types.Buy), 300, "txid", WithTerminal(func(ev Event) { terminal <- ev }))
	require.NoError(t, err)

	ev := waitEvent(t, terminal)
	assert.Equal(t, TimedOut, ev.State)
	assert.Equal(t, 25, ev.Attempt)
	assert.Equal(t, 25, oracle.callCount(tokenMint))
}

func TestDecisionRule(t *testing.T) {
	tests := []struct {
		name      string
		direction types.Direction
		baseline  uint64
		observed  ledger.Holding
		want      State
		attempts  int
	}{
		{"buy more than baseline", types.Buy, 100, held(101), Confirmed, 1},
		{"buy equal to baseline", types.Buy, 100, held(100), TimedOut, 25},
		{"buy less than baseline", types.Buy, 100, held(50), TimedOut, 25},
		{"buy nothing held", types.Buy, 0, ledger.Holding{}, TimedOut, 25},
		{"sell less than baseline", types.Sell, 100, held(99), Confirmed, 1},
		{"sell nothing held", types.Sell, 100, ledger.Holding{}, Confirmed, 1},
		{"sell equal to baseline", types.Sell, 100, held(100), TimedOut, 21},
		{"sell more than baseline", types.Sell, 100, held(150), TimedOut, 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := newFakeOracle().on(tokenMint, script(tt.observed))
			r := newTestRegistry(t, oracle, &instantClock{})

			terminal := make(chan Event, 1)
			_, err := r.CreateSession(testIntent(t, tt.direction), tt.baseline, "tx", WithTerminal(func(ev Event) { terminal <- ev }))
			require.NoError(t, err)

			ev := waitEvent(t, terminal)
			assert.Equal(t, tt.want, ev.State)
			assert.Equal(t, tt.attempts, ev.Attempt)
		})
	}
}

func TestOracleFailuresCountAsAttempts(t *testing.T) {
	t.Run("recovers after failures", func(t *testing.T) {
		oracle := newFakeOracle().on(tokenMint, func(call int) (ledger.Holding, error) {
			if call <= 2 {
				return ledger.Holding{}, errors.New("rpc unavailable")
			}
			return held(10), nil
		})
		r := newTestRegistry(t, oracle, &instantClock{})

		terminal := make(chan Event, 1)
		var failed []Event
		_, err := r.CreateSession(testIntent(t, types.Buy), 0, "tx",
			WithTerminal(func(ev Event) { terminal <- ev }),
			WithProgress(func(ev Event) { failed = append(failed, ev) }),
		)
		require.NoError(t, err)

		ev := waitEvent(t, terminal)
		assert.Equal(t, Confirmed, ev.State)
		assert.Equal(t, 3, ev.Attempt)
		require.Len(t, failed, 2)
		assert.Error(t, failed[0].Err)
	})

	t.Run("sell failure is not read as nothing held", func(t *testing.T) {
		oracle := newFakeOracle().on(tokenMint, func(call int) (ledger.Holding, error) {
			return ledger.Holding{}, errors.New("rpc unavailable")
		})
		r := newTestRegistry(t, oracle, &instantClock{})

		terminal := make(chan Event, 1)
		_, err := r.CreateSession(testIntent(t, types.Sell), 1000, "tx", WithTerminal(func(ev Event) { terminal <- ev }))
		require.NoError(t, err)

		ev := waitEvent(t, terminal)
		assert.Equal(t, TimedOut, ev.State)
		assert.Equal(t, 21, ev.Attempt)
		assert.Error(t, ev.Err)
	})
}

func TestSnapshotDuringPolling(t *testing.T) {
	oracle := newFakeOracle().on(tokenMint, script(held(0)))
	clock := newManualClock()
	r := newTestRegistry(t, oracle, clock)

	intent := testIntent(t, types.Buy)
	id, err := r.CreateSession(intent, 0, "tx-snap")
	require.NoError(t, err)

	clock.tick(t)
	clock.tick(t)
	pending := clock.next(t) // third wait: two attempts have completed

	snap, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, 2, snap.Attempt)
	assert.Equal(t, 25, snap.MaxAttempts)
	assert.Equal(t, Polling, snap.State)
	assert.Equal(t, tokenMint, snap.Asset)
	assert.Equal(t, "tx-snap", snap.TxID)

	assert.True(t, r.Cancel(id))
	pending <- clock.Now()
	waitClosed(t, r.Wait(id))
	assert.Equal(t, 2, oracle.callCount(tokenMint))
}

func TestSessionDropsSigner(t *testing.T) {
	r := newTestRegistry(t, newFakeOracle(), newManualClock())

	id, err := r.CreateSession(testIntent(t, types.Buy), 0, "tx")
	require.NoError(t, err)

	r.mu.Lock()
	sess := r.live[id].session
	r.mu.Unlock()
	assert.Nil(t, sess.intent.Signer)

	r.Cancel(id)
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 25, p.MaxAttempts(types.Buy))
	assert.Equal(t, 21, p.MaxAttempts(types.Sell))

	p.PollInterval = 0
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.SellMaxAttempts = 0
	assert.Error(t, p.Validate())

	_, err := NewRegistry(newFakeOracle(), p)
	assert.Error(t, err)
}
