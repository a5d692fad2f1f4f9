package confirm

import (
	"errors"
	"fmt"
	"time"

	"sol-swap/pkg/types"
)

var (
	// ErrSessionNotFound is returned for ids that are not live in the registry
	ErrSessionNotFound = errors.New("session not found")
	// ErrRegistryClosed is returned by CreateSession after Shutdown
	ErrRegistryClosed = errors.New("session registry is shut down")
)

// Policy is the polling schedule and per-direction attempt budget
type Policy struct {
	PollInterval    time.Duration
	BuyMaxAttempts  int
	SellMaxAttempts int
}

// DefaultPolicy polls every 3s, 25 attempts for buys and 21 for sells
func DefaultPolicy() Policy {
	return Policy{
		PollInterval:    3 * time.Second,
		BuyMaxAttempts:  25,
		SellMaxAttempts: 21,
	}
}

// Validate checks the policy values
func (p Policy) Validate() error {
	if p.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than 0, got %s", p.PollInterval)
	}
	if p.BuyMaxAttempts <= 0 || p.SellMaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be greater than 0 (buy=%d, sell=%d)", p.BuyMaxAttempts, p.SellMaxAttempts)
	}
	return nil
}

// MaxAttempts returns the attempt budget for a trade direction
func (p Policy) MaxAttempts(d types.Direction) int {
	if d == types.Buy {
		return p.BuyMaxAttempts
	}
	return p.SellMaxAttempts
}
