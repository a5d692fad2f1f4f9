package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"sol-swap/pkg/client"
	"sol-swap/pkg/confirm"
	"sol-swap/pkg/history"
	"sol-swap/pkg/ledger"
	"sol-swap/pkg/notify"
	"sol-swap/pkg/types"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "trade")

var (
	// ErrBalanceNotFound is returned for sells of an asset the owner does not hold
	ErrBalanceNotFound = errors.New("token balance not found")
	// ErrCancelled is returned by Wait when the session was cancelled
	ErrCancelled = errors.New("confirmation cancelled")
)

// History is the durable trade log written at the registry boundary
type History interface {
	RecordSubmission(intent types.TradeIntent, amount, baseline uint64, res types.SubmissionResult, aggregator string) (*history.Record, error)
	RecordFailure(intent types.TradeIntent, amount, baseline uint64, status history.Status, reason string, aggregator string) (*history.Record, error)
	AttachSession(id string, sessionID uint64) error
	MarkTerminal(id string, status history.Status, attempts int) (*history.Record, error)
	MarkCancelled(id string, attempts int, reason string) (*history.Record, error)
}

// Receipt describes a trade accepted by the network
type Receipt struct {
	SessionID confirm.SessionID
	TxID      string
	RecordID  string
	Baseline  uint64
	Amount    uint64
	Quote     *types.Quote

	done chan confirm.Event
}

// Done delivers the terminal confirmation event
func (r *Receipt) Done() <-chan confirm.Event {
	return r.done
}

// Trader runs a trade intent through quote, submission and confirmation
type Trader struct {
	oracle    ledger.Oracle
	submitter client.Submitter
	registry  *confirm.Registry
	sink      notify.Sink
	history   History

	mu      sync.Mutex
	records map[confirm.SessionID]string
}

// NewTrader creates a new trader. hist may be nil.
func NewTrader(oracle ledger.Oracle, submitter client.Submitter, registry *confirm.Registry, sink notify.Sink, hist History) *Trader {
	if sink == nil {
		sink = notify.Multi{}
	}
	return &Trader{
		oracle:    oracle,
		submitter: submitter,
		registry:  registry,
		sink:      sink,
		history:   hist,
		records:   make(map[confirm.SessionID]string),
	}
}

// Registry returns the session registry
func (t *Trader) Registry() *confirm.Registry {
	return t.registry
}

// Execute submits the intent once and starts confirming it. Failures before
// the network accepts the transaction are reported to the sink once and
// never create a session.
func (t *Trader) Execute(ctx context.Context, intent types.TradeIntent) (*Receipt, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	entry := log.WithFields(logrus.Fields{
		"direction": intent.Direction,
		"asset":     intent.WatchedAsset(),
	})

	holding, err := t.oracle.HeldAmount(ctx, intent.Owner(), intent.WatchedAsset())
	if err != nil {
		return t.fail(intent, 0, types.SubmissionFailed(fmt.Sprintf("failed to read balance: %v", err)))
	}
	if intent.Direction == types.Sell && !holding.Held {
		res := types.SubmissionFailed("Token balance not found")
		t.report(intent, 0, 0, res)
		return nil, fmt.Errorf("%w: %w", types.ErrSubmissionFailed, ErrBalanceNotFound)
	}
	// a buy of an asset not yet held starts from zero
	baseline := holding.Amount

	resolved := intent
	if intent.Percent {
		resolved.Amount = PercentOf(baseline, intent.Amount)
		resolved.Percent = false
		if resolved.Amount == 0 {
			return t.fail(intent, baseline, types.SubmissionFailed("amount to sell rounds down to 0"))
		}
	}

	entry.WithFields(logrus.Fields{
		"baseline": baseline,
		"amount":   resolved.Amount,
	}).Debug("submitting trade")

	res := t.submitter.Execute(ctx, resolved)
	if !res.OK() {
		return t.fail(resolved, baseline, res)
	}

	receipt := &Receipt{
		TxID:     res.TxID,
		Baseline: baseline,
		Amount:   resolved.Amount,
		Quote:    res.Quote,
		done:     make(chan confirm.Event, 1),
	}

	if t.history != nil {
		rec, err := t.history.RecordSubmission(resolved, resolved.Amount, baseline, res, t.submitter.Name())
		if err != nil {
			entry.WithError(err).Warn("failed to record submission")
		} else {
			receipt.RecordID = rec.ID
		}
	}

	// the terminal hand-off waits until the submitted notice is out
	ready := make(chan struct{})
	handoff := func(ev confirm.Event) {
		<-ready
		t.finish(receipt.RecordID, ev)
		receipt.done <- ev
	}

	t.mu.Lock()
	id, err := t.registry.CreateSession(resolved, baseline, res.TxID, confirm.WithTerminal(handoff))
	if err == nil && receipt.RecordID != "" {
		t.records[id] = receipt.RecordID
	}
	t.mu.Unlock()

	if err != nil {
		close(ready)
		// the network already has the transaction, so the notice carries its id
		t.sink.Notify(notify.Event{
			Kind:      notify.KindSubmissionFailed,
			TxID:      res.TxID,
			Direction: resolved.Direction,
			Asset:     resolved.WatchedAsset(),
			Reason:    fmt.Sprintf("transaction sent but not tracked: %v", err),
			At:        time.Now(),
		})
		if receipt.RecordID != "" {
			_, _ = t.history.MarkCancelled(receipt.RecordID, 0, err.Error())
		}
		return receipt, fmt.Errorf("failed to start confirmation: %w", err)
	}
	receipt.SessionID = id

	if t.history != nil && receipt.RecordID != "" {
		if err := t.history.AttachSession(receipt.RecordID, uint64(id)); err != nil {
			entry.WithError(err).Warn("failed to link session to history")
		}
	}

	t.sink.Notify(notify.Event{
		Kind:      notify.KindSubmitted,
		SessionID: uint64(id),
		TxID:      res.TxID,
		Direction: resolved.Direction,
		Asset:     resolved.WatchedAsset(),
		At:        time.Now(),
	})
	close(ready)

	return receipt, nil
}

func (t *Trader) finish(recordID string, ev confirm.Event) {
	t.mu.Lock()
	delete(t.records, ev.SessionID)
	t.mu.Unlock()

	kind, status := notify.KindConfirmed, history.StatusConfirmed
	if ev.State == confirm.TimedOut {
		kind, status = notify.KindTimedOut, history.StatusTimedOut
	}

	t.sink.Notify(notify.Event{
		Kind:      kind,
		SessionID: uint64(ev.SessionID),
		TxID:      ev.TxID,
		Direction: ev.Direction,
		Asset:     ev.Asset,
		Attempt:   ev.Attempt,
		At:        time.Now(),
	})

	if t.history != nil && recordID != "" {
		if _, err := t.history.MarkTerminal(recordID, status, ev.Attempt); err != nil {
			log.WithError(err).WithField("record", recordID).Warn("failed to record outcome")
		}
	}
}

// fail reports a failed submission and returns its error
func (t *Trader) fail(intent types.TradeIntent, baseline uint64, res types.SubmissionResult) (*Receipt, error) {
	t.report(intent, intent.Amount, baseline, res)
	return nil, res.Err()
}

func (t *Trader) report(intent types.TradeIntent, amount, baseline uint64, res types.SubmissionResult) {
	kind, status := notify.KindSubmissionFailed, history.StatusSubmissionFailed
	if res.Status == types.StatusQuoteUnavailable {
		kind, status = notify.KindQuoteUnavailable, history.StatusQuoteUnavailable
	}

	t.sink.Notify(notify.Event{
		Kind:      kind,
		Direction: intent.Direction,
		Asset:     intent.WatchedAsset(),
		Reason:    res.Reason,
		At:        time.Now(),
	})

	if t.history != nil {
		if _, err := t.history.RecordFailure(intent, amount, baseline, status, res.Reason, t.submitter.Name()); err != nil {
			log.WithError(err).Warn("failed to record failure")
		}
	}
}

// Wait blocks until the receipt's session is terminal, cancelled, or ctx is done
func (t *Trader) Wait(ctx context.Context, r *Receipt) (confirm.Event, error) {
	select {
	case ev := <-r.done:
		return ev, nil
	case <-t.registry.Wait(r.SessionID):
		select {
		case ev := <-r.done:
			return ev, nil
		default:
			return confirm.Event{}, ErrCancelled
		}
	case <-ctx.Done():
		return confirm.Event{}, ctx.Err()
	}
}

// Cancel stops confirming a session and marks its record cancelled
func (t *Trader) Cancel(id confirm.SessionID) bool {
	snap, _ := t.registry.Lookup(id)
	if !t.registry.Cancel(id) {
		return false
	}
	t.markCancelled(id, snap.Attempt, "cancelled by user")
	return true
}

// Shutdown cancels every live session and marks their records cancelled
func (t *Trader) Shutdown(ctx context.Context) error {
	cancelled, err := t.registry.Shutdown(ctx)
	for _, snap := range cancelled {
		t.markCancelled(snap.ID, snap.Attempt, "shutdown before confirmation")
	}
	return err
}

func (t *Trader) markCancelled(id confirm.SessionID, attempts int, reason string) {
	t.mu.Lock()
	recordID, ok := t.records[id]
	delete(t.records, id)
	t.mu.Unlock()

	if !ok || t.history == nil {
		return
	}
	if _, err := t.history.MarkCancelled(recordID, attempts, reason); err != nil {
		log.WithError(err).WithField("record", recordID).Warn("failed to record cancellation")
	}
}

// PercentOf returns floor(amount * pct / 100)
func PercentOf(amount uint64, pct uint64) uint64 {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).
		Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(pct), 0)).
		Div(decimal.NewFromInt(100)).
		Floor()
	return d.BigInt().Uint64()
}
