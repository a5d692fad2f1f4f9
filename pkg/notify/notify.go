package notify

import (
	"sync"
	"time"

	"sol-swap/pkg/types"
)

// Kind of a notification
type Kind string

const (
	KindSubmitted        Kind = "submitted"
	KindConfirmed        Kind = "confirmed"
	KindTimedOut         Kind = "timed_out"
	KindQuoteUnavailable Kind = "quote_unavailable"
	KindSubmissionFailed Kind = "submission_failed"
)

// Terminal reports whether the kind ends a trade's notifications
func (k Kind) Terminal() bool {
	return k != KindSubmitted
}

// Failure reports whether the kind is a failed outcome
func (k Kind) Failure() bool {
	return k == KindTimedOut || k == KindQuoteUnavailable || k == KindSubmissionFailed
}

// Event is a status update for one trade. SessionID is 0 when no
// confirmation session was created.
type Event struct {
	Kind      Kind            `json:"kind"`
	SessionID uint64          `json:"session_id,omitempty"`
	TxID      string          `json:"txid,omitempty"`
	Direction types.Direction `json:"direction"`
	Asset     string          `json:"asset"`
	Reason    string          `json:"reason,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`
	At        time.Time       `json:"at"`
}

// Sink receives trade status updates for display to the user
type Sink interface {
	Notify(Event)
}

// Func adapts a function to a Sink
type Func func(Event)

func (f Func) Notify(ev Event) { f(ev) }

// Multi fans an event out to several sinks in order
type Multi []Sink

func (m Multi) Notify(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(ev)
		}
	}
}

// Recorder keeps every event it receives
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the received events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
