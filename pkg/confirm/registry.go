package confirm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"sol-swap/pkg/ledger"
	"sol-swap/pkg/types"

	"github.com/sirupsen/logrus"
)

// TerminalFunc receives the single terminal event of a session
type TerminalFunc func(Event)

// SessionOption configures a session at creation
type SessionOption func(*entry)

// WithTerminal registers a terminal callback before the session starts polling
func WithTerminal(cb TerminalFunc) SessionOption {
	return func(e *entry) {
		if cb != nil {
			e.callbacks = append(e.callbacks, cb)
		}
	}
}

// WithProgress observes every non-terminal attempt of the session
func WithProgress(fn func(Event)) SessionOption {
	return func(e *entry) {
		e.session.progress = fn
	}
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}

type entry struct {
	session   *Session
	cancel    context.CancelFunc
	callbacks []TerminalFunc
	done      chan struct{}
}

// Registry owns every live confirmation session. Sessions are independent:
// the registry never orders or serializes sessions against each other.
type Registry struct {
	oracle ledger.Oracle
	policy Policy
	clock  Clock

	nextID atomic.Uint64

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	live   map[SessionID]*entry
}

// NewRegistry creates a new session registry
func NewRegistry(oracle ledger.Oracle, policy Policy, opts ...RegistryOption) (*Registry, error) {
	if oracle == nil {
		return nil, fmt.Errorf("balance oracle is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid confirmation policy: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	r := &Registry{
		oracle: oracle,
		policy: policy,
		clock:  RealClock{},
		ctx:    ctx,
		stop:   stop,
		live:   make(map[SessionID]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Policy returns the registry's polling policy
func (r *Registry) Policy() Policy {
	return r.policy
}

// CreateSession starts confirming a submitted trade and returns its id.
// baseline is the watched asset quantity observed right before submission.
func (r *Registry) CreateSession(intent types.TradeIntent, baseline uint64, txid string, opts ...SessionOption) (SessionID, error) {
	if !intent.Direction.Valid() {
		return 0, fmt.Errorf("%w: unknown direction %q", types.ErrInvalidIntent, intent.Direction)
	}
	if len(intent.Signer) == 0 {
		return 0, fmt.Errorf("%w: signer is required", types.ErrInvalidIntent)
	}
	if txid == "" {
		return 0, fmt.Errorf("transaction id is required")
	}

	id := SessionID(r.nextID.Add(1))
	sess := newSession(id, intent, baseline, txid, r.policy, r.oracle, r.clock)

	ctx, cancel := context.WithCancel(r.ctx)
	e := &entry{
		session: sess,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return 0, ErrRegistryClosed
	}
	r.live[id] = e
	r.wg.Add(1)
	r.mu.Unlock()

	log.WithFields(logrus.Fields{
		"session":      id.String(),
		"txid":         txid,
		"direction":    intent.Direction,
		"asset":        sess.asset,
		"baseline":     baseline,
		"max_attempts": sess.maxAttempts,
	}).Info("confirmation session started")

	go r.drive(ctx, e)

	return id, nil
}

func (r *Registry) drive(ctx context.Context, e *entry) {
	defer r.wg.Done()
	defer close(e.done)
	defer e.cancel()

	ev, ok := e.session.run(ctx)
	if !ok {
		return
	}

	// only the goroutine that still finds its own entry may report
	r.mu.Lock()
	if r.live[ev.SessionID] != e {
		r.mu.Unlock()
		return
	}
	delete(r.live, ev.SessionID)
	callbacks := e.callbacks
	e.callbacks = nil
	r.mu.Unlock()

	log.WithFields(logrus.Fields{
		"session": ev.SessionID.String(),
		"txid":    ev.TxID,
		"state":   ev.State.String(),
		"attempt": ev.Attempt,
	}).Info("confirmation session finished")

	for _, cb := range callbacks {
		r.invoke(cb, ev)
	}
}

func (r *Registry) invoke(cb TerminalFunc, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("session", ev.SessionID.String()).Errorf("terminal callback panicked: %v", rec)
		}
	}()
	cb(ev)
}

// OnTerminal registers a callback invoked exactly once when the session
// reaches a terminal state
func (r *Registry) OnTerminal(id SessionID, cb TerminalFunc) error {
	if cb == nil {
		return fmt.Errorf("callback is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.callbacks = append(e.callbacks, cb)
	return nil
}

// Cancel stops a session and removes it from the registry. When Cancel
// returns, no further balance query or terminal callback happens for it.
// It reports whether a live session was cancelled.
func (r *Registry) Cancel(id SessionID) bool {
	r.mu.Lock()
	e, ok := r.live[id]
	if ok {
		delete(r.live, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.halt(e)
	log.WithField("session", id.String()).Info("confirmation session cancelled")
	return true
}

// halt cancels the session context and waits out an attempt in flight
func (r *Registry) halt(e *entry) {
	e.cancel()
	e.session.step.Lock()
	e.session.step.Unlock()
}

// Lookup returns a snapshot of a live session
func (r *Registry) Lookup(id SessionID) (Snapshot, bool) {
	r.mu.Lock()
	e, ok := r.live[id]
	r.mu.Unlock()

	if !ok {
		return Snapshot{}, false
	}
	return e.session.Snapshot(), true
}

// Active returns snapshots of all live sessions ordered by id
func (r *Registry) Active() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.live))
	for _, e := range r.live {
		sessions = append(sessions, e.session)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Wait returns a channel closed once the session's goroutine has exited.
// Unknown ids get an already closed channel.
func (r *Registry) Wait(id SessionID) <-chan struct{} {
	r.mu.Lock()
	e, ok := r.live[id]
	r.mu.Unlock()

	if !ok {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return e.done
}

// Shutdown cancels every live session and waits for their goroutines,
// bounded by ctx. It returns snapshots of the sessions it cancelled.
func (r *Registry) Shutdown(ctx context.Context) ([]Snapshot, error) {
	r.mu.Lock()
	r.closed = true
	entries := make([]*entry, 0, len(r.live))
	for id, e := range r.live {
		entries = append(entries, e)
		delete(r.live, id)
	}
	r.mu.Unlock()

	cancelled := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		r.halt(e)
		cancelled = append(cancelled, e.session.Snapshot())
	}
	r.stop()
	sort.Slice(cancelled, func(i, j int) bool { return cancelled[i].ID < cancelled[j].ID })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if len(cancelled) > 0 {
			log.Infof("cancelled %d confirmation session(s)", len(cancelled))
		}
		return cancelled, nil
	case <-ctx.Done():
		return cancelled, fmt.Errorf("failed to stop confirmation sessions: %w", ctx.Err())
	}
}
