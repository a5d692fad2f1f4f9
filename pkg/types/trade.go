package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// NativeMint is the wrapped SOL mint, used as the asset id of native SOL
const NativeMint = "So11111111111111111111111111111111111111112"

// MaxSlippageBps is the upper bound of TradeIntent.MaxSlippageBps (100%)
const MaxSlippageBps = 10000

var (
	// ErrInvalidIntent is returned by TradeIntent.Validate
	ErrInvalidIntent = errors.New("invalid trade intent")
	// ErrQuoteUnavailable means the aggregator returned no usable route
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrSubmissionFailed means signing or network submission failed
	ErrSubmissionFailed = errors.New("submission failed")
)

// Direction is the side of a trade
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Valid reports whether d is BUY or SELL
func (d Direction) Valid() bool {
	return d == Buy || d == Sell
}

// TradeIntent is a user's request to convert one asset into another.
// It is created per user action and consumed once.
type TradeIntent struct {
	Direction   Direction
	SourceAsset string
	DestAsset   string

	// Amount is in the smallest unit of SourceAsset, or a percentage of
	// current holdings (1..100) when Percent is set. Percent is SELL only.
	Amount  uint64
	Percent bool

	MaxSlippageBps uint16

	// Signer is owned by the caller and never persisted.
	Signer solana.PrivateKey
}

// Validate checks the intent before any quote is requested
func (t *TradeIntent) Validate() error {
	if !t.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidIntent, t.Direction)
	}
	if t.SourceAsset == "" {
		return fmt.Errorf("%w: source asset is required", ErrInvalidIntent)
	}
	if t.DestAsset == "" {
		return fmt.Errorf("%w: destination asset is required", ErrInvalidIntent)
	}
	if t.SourceAsset == t.DestAsset {
		return fmt.Errorf("%w: source and destination asset are the same", ErrInvalidIntent)
	}
	if t.Amount == 0 {
		return fmt.Errorf("%w: amount must be greater than 0", ErrInvalidIntent)
	}
	if t.Percent {
		if t.Direction != Sell {
			return fmt.Errorf("%w: percentage amounts are only supported for sells", ErrInvalidIntent)
		}
		if t.Amount > 100 {
			return fmt.Errorf("%w: percentage must be between 1 and 100", ErrInvalidIntent)
		}
	}
	if t.MaxSlippageBps > MaxSlippageBps {
		return fmt.Errorf("%w: slippage must be between 0 and %d bps", ErrInvalidIntent, MaxSlippageBps)
	}
	if len(t.Signer) == 0 {
		return fmt.Errorf("%w: signer is required", ErrInvalidIntent)
	}
	return nil
}

// Owner returns the public identity whose holdings the trade changes
func (t *TradeIntent) Owner() solana.PublicKey {
	return t.Signer.PublicKey()
}

// WatchedAsset is the asset whose balance confirms the trade:
// the destination asset for BUY, the source asset for SELL.
func (t *TradeIntent) WatchedAsset() string {
	if t.Direction == Buy {
		return t.DestAsset
	}
	return t.SourceAsset
}

// Quote is an aggregator estimate, valid only for the immediate submission
type Quote struct {
	InAmount  uint64
	OutAmount uint64

	// Route is aggregator-specific and passed back verbatim on submission
	Route json.RawMessage

	// DepositAddress is set by deposit-address aggregators (1Click)
	DepositAddress string
}

// SubmissionStatus tags a SubmissionResult
type SubmissionStatus int

const (
	StatusSubmitted SubmissionStatus = iota
	StatusQuoteUnavailable
	StatusSubmissionFailed
)

func (s SubmissionStatus) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusQuoteUnavailable:
		return "quote_unavailable"
	case StatusSubmissionFailed:
		return "submission_failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// SubmissionResult is terminal for the submission phase
type SubmissionResult struct {
	Status SubmissionStatus
	TxID   string
	Reason string
	Quote  *Quote
}

// Submitted returns a result carrying the network-assigned transaction id
func Submitted(txid string, quote *Quote) SubmissionResult {
	return SubmissionResult{Status: StatusSubmitted, TxID: txid, Quote: quote}
}

// QuoteUnavailable returns a failed result for the quote step
func QuoteUnavailable(reason string) SubmissionResult {
	return SubmissionResult{Status: StatusQuoteUnavailable, Reason: reason}
}

// SubmissionFailed returns a failed result for the build/sign/submit step
func SubmissionFailed(reason string) SubmissionResult {
	return SubmissionResult{Status: StatusSubmissionFailed, Reason: reason}
}

// OK reports whether the transaction was accepted by the network
func (r SubmissionResult) OK() bool {
	return r.Status == StatusSubmitted && r.TxID != ""
}

// Err maps a failed result to a wrapped sentinel error, nil when submitted
func (r SubmissionResult) Err() error {
	switch r.Status {
	case StatusSubmitted:
		if r.TxID == "" {
			return fmt.Errorf("%w: no transaction id returned", ErrSubmissionFailed)
		}
		return nil
	case StatusQuoteUnavailable:
		return fmt.Errorf("%w: %s", ErrQuoteUnavailable, r.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrSubmissionFailed, r.Reason)
	}
}
