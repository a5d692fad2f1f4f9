package history

import (
	"fmt"
	"time"

	"sol-swap/pkg/types"

	"github.com/google/uuid"
)

// Manager provides high-level operations for the trade history
type Manager struct {
	storage *Storage
}

// NewManager creates a new history manager
func NewManager(storagePath string) (*Manager, error) {
	storage, err := NewStorage(storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	return &Manager{
		storage: storage,
	}, nil
}

func newRecord(intent types.TradeIntent, amount, baseline uint64, aggregator string) *Record {
	return &Record{
		ID:          uuid.NewString(),
		Direction:   intent.Direction,
		SourceAsset: intent.SourceAsset,
		DestAsset:   intent.DestAsset,
		Amount:      amount,
		Baseline:    baseline,
		Aggregator:  aggregator,
		Created:     time.Now(),
	}
}

// RecordSubmission stores a trade the network accepted. amount is in the
// smallest unit of the source asset, after percentage resolution.
func (m *Manager) RecordSubmission(intent types.TradeIntent, amount, baseline uint64, res types.SubmissionResult, aggregator string) (*Record, error) {
	if !res.OK() {
		return nil, fmt.Errorf("submission result is not accepted: %s", res.Status)
	}

	rec := newRecord(intent, amount, baseline, aggregator)
	rec.Status = StatusSubmitted
	rec.TxID = res.TxID
	if res.Quote != nil {
		rec.ExpectedOut = res.Quote.OutAmount
		rec.DepositAddress = res.Quote.DepositAddress
	}

	if err := m.storage.Create(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordFailure stores a trade that never reached the network
func (m *Manager) RecordFailure(intent types.TradeIntent, amount, baseline uint64, status Status, reason string, aggregator string) (*Record, error) {
	if status != StatusQuoteUnavailable && status != StatusSubmissionFailed {
		return nil, fmt.Errorf("invalid failure status %q", status)
	}

	now := time.Now()
	rec := newRecord(intent, amount, baseline, aggregator)
	rec.Status = status
	rec.Reason = reason
	rec.Completed = &now

	if err := m.storage.Create(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// AttachSession links a submitted record to its confirmation session
func (m *Manager) AttachSession(id string, sessionID uint64) error {
	_, err := m.storage.Update(id, func(rec *Record) error {
		rec.SessionID = sessionID
		return nil
	})
	return err
}

// MarkTerminal records the confirmation outcome of a submitted trade
func (m *Manager) MarkTerminal(id string, status Status, attempts int) (*Record, error) {
	if status != StatusConfirmed && status != StatusTimedOut {
		return nil, fmt.Errorf("invalid terminal status %q", status)
	}
	return m.finish(id, status, attempts, "")
}

// MarkCancelled records that confirmation tracking was stopped before an outcome
func (m *Manager) MarkCancelled(id string, attempts int, reason string) (*Record, error) {
	return m.finish(id, StatusCancelled, attempts, reason)
}

func (m *Manager) finish(id string, status Status, attempts int, reason string) (*Record, error) {
	return m.storage.Update(id, func(rec *Record) error {
		if rec.Status.Final() {
			return fmt.Errorf("record '%s' is already %s", id, rec.Status)
		}
		now := time.Now()
		rec.Status = status
		rec.Attempts = attempts
		rec.Completed = &now
		if reason != "" {
			rec.Reason = reason
		}
		return nil
	})
}

// Get retrieves a record by id
func (m *Manager) Get(id string) (*Record, error) {
	return m.storage.Get(id)
}

// FindByTxID retrieves the record of a transaction signature
func (m *Manager) FindByTxID(txid string) (*Record, error) {
	recs := m.storage.Filter(func(r *Record) bool { return r.TxID == txid })
	if len(recs) == 0 {
		return nil, fmt.Errorf("no trade found for transaction %s", txid)
	}
	return recs[0], nil
}

// List returns all records, newest first
func (m *Manager) List() []*Record {
	return m.storage.Filter(nil)
}

// ListByStatus returns records filtered by status, newest first
func (m *Manager) ListByStatus(status Status) []*Record {
	return m.storage.Filter(func(r *Record) bool { return r.Status == status })
}

// Unresolved returns submitted trades without an outcome. Sessions are not
// resumed across restarts, so these were left behind by an earlier process.
func (m *Manager) Unresolved() []*Record {
	return m.ListByStatus(StatusSubmitted)
}

// Count returns the number of recorded trades
func (m *Manager) Count() int {
	return m.storage.Count()
}

// GetFilePath returns the history file path
func (m *Manager) GetFilePath() string {
	return m.storage.GetFilePath()
}
