package history

import (
	"fmt"
	"time"

	"sol-swap/pkg/types"
)

// Status of a recorded trade
type Status string

const (
	StatusSubmitted        Status = "submitted"
	StatusConfirmed        Status = "confirmed"
	StatusTimedOut         Status = "timed_out"
	StatusQuoteUnavailable Status = "quote_unavailable"
	StatusSubmissionFailed Status = "submission_failed"
	StatusCancelled        Status = "cancelled"
)

// Final reports whether the record will not change anymore
func (s Status) Final() bool {
	return s != StatusSubmitted
}

// ParseStatus validates a status name
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusSubmitted, StatusConfirmed, StatusTimedOut, StatusQuoteUnavailable, StatusSubmissionFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Record is one trade as seen by this process
type Record struct {
	ID             string          `json:"id"`
	SessionID      uint64          `json:"session_id,omitempty"`
	Direction      types.Direction `json:"direction"`
	SourceAsset    string          `json:"source_asset"`
	DestAsset      string          `json:"dest_asset"`
	Amount         uint64          `json:"amount"`
	Baseline       uint64          `json:"baseline"`
	ExpectedOut    uint64          `json:"expected_out,omitempty"`
	TxID           string          `json:"txid,omitempty"`
	DepositAddress string          `json:"deposit_address,omitempty"`
	Aggregator     string          `json:"aggregator,omitempty"`
	Status         Status          `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	Attempts       int             `json:"attempts,omitempty"`
	Created        time.Time       `json:"created"`
	Completed      *time.Time      `json:"completed,omitempty"`
}
