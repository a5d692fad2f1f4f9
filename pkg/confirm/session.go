package confirm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sol-swap/pkg/ledger"
	"sol-swap/pkg/types"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "confirm")

// SessionID identifies a confirmation session. Ids start at 1 and are never reused.
type SessionID uint64

func (id SessionID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

// State of a confirmation session
type State int

const (
	Polling State = iota
	Confirmed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == Confirmed || s == TimedOut
}

// Event is emitted after every attempt. The last event of a session has a terminal State.
type Event struct {
	SessionID   SessionID
	TxID        string
	Direction   types.Direction
	Asset       string
	State       State
	Attempt     int
	MaxAttempts int

	// Holding is the observation of this attempt, zero when Err is set
	Holding ledger.Holding
	Err     error
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	ID          SessionID       `json:"id"`
	TxID        string          `json:"txid"`
	Direction   types.Direction `json:"direction"`
	Asset       string          `json:"asset"`
	Baseline    uint64          `json:"baseline"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	State       State           `json:"state"`
	Started     time.Time       `json:"started"`
}

// Session polls the balance oracle for a single submitted trade until the
// expected balance change is observed or the attempt budget is spent.
type Session struct {
	id          SessionID
	intent      types.TradeIntent
	owner       solana.PublicKey
	asset       string
	baseline    uint64
	txid        string
	maxAttempts int
	interval    time.Duration
	started     time.Time

	oracle   ledger.Oracle
	clock    Clock
	progress func(Event)

	// step is held for the duration of one attempt so Cancel can wait it out
	step sync.Mutex

	mu      sync.RWMutex
	attempt int
	state   State
}

func newSession(id SessionID, intent types.TradeIntent, baseline uint64, txid string, policy Policy, oracle ledger.Oracle, clock Clock) *Session {
	owner := intent.Owner()
	// keep a read-only copy without signing material
	intent.Signer = nil

	return &Session{
		id:          id,
		intent:      intent,
		owner:       owner,
		asset:       intent.WatchedAsset(),
		baseline:    baseline,
		txid:        txid,
		maxAttempts: policy.MaxAttempts(intent.Direction),
		interval:    policy.PollInterval,
		started:     clock.Now(),
		oracle:      oracle,
		clock:       clock,
		state:       Polling,
	}
}

// ID returns the session id
func (s *Session) ID() SessionID {
	return s.id
}

// Snapshot returns a copy of the session's current state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		ID:          s.id,
		TxID:        s.txid,
		Direction:   s.intent.Direction,
		Asset:       s.asset,
		Baseline:    s.baseline,
		Attempt:     s.attempt,
		MaxAttempts: s.maxAttempts,
		State:       s.state,
		Started:     s.started,
	}
}

// run drives the state machine until a terminal state is reached or ctx is
// cancelled. ok is false when the session was cancelled.
func (s *Session) run(ctx context.Context) (Event, bool) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, false
		case <-s.clock.After(s.interval):
		}

		ev, ok := s.poll(ctx)
		if !ok {
			return Event{}, false
		}
		if ev.State.Terminal() {
			return ev, true
		}
		s.emitProgress(ev)
	}
}

// poll runs one attempt: increment, query, decide
func (s *Session) poll(ctx context.Context) (Event, bool) {
	s.step.Lock()
	defer s.step.Unlock()

	if ctx.Err() != nil {
		return Event{}, false
	}

	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.mu.Unlock()

	holding, err := s.oracle.HeldAmount(ctx, s.owner, s.asset)
	if ctx.Err() != nil {
		return Event{}, false
	}

	entry := log.WithFields(logrus.Fields{
		"session": s.id.String(),
		"txid":    s.txid,
		"attempt": attempt,
	})

	next := Polling
	switch {
	case err != nil:
		entry.WithError(err).Warn("balance query failed")
		holding = ledger.Holding{}
	case s.observed(holding):
		next = Confirmed
	}
	if next == Polling && attempt >= s.maxAttempts {
		next = TimedOut
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	entry.WithFields(logrus.Fields{
		"held":     holding.Amount,
		"baseline": s.baseline,
		"state":    next.String(),
	}).Debug("poll attempt")

	return Event{
		SessionID:   s.id,
		TxID:        s.txid,
		Direction:   s.intent.Direction,
		Asset:       s.asset,
		State:       next,
		Attempt:     attempt,
		MaxAttempts: s.maxAttempts,
		Holding:     holding,
		Err:         err,
	}, true
}

// observed applies the decision rule: a buy needs more than the baseline,
// a sell needs less than the baseline or nothing held.
func (s *Session) observed(h ledger.Holding) bool {
	if s.intent.Direction == types.Buy {
		return h.Held && h.Amount > s.baseline
	}
	return !h.Held || h.Amount < s.baseline
}

func (s *Session) emitProgress(ev Event) {
	if s.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("session", s.id.String()).Errorf("progress observer panicked: %v", r)
		}
	}()
	s.progress(ev)
}
