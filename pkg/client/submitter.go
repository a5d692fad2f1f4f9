package client

import (
	"context"
	"fmt"

	"sol-swap/pkg/types"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "client")

// Submitter quotes and submits trades through a swap aggregator.
// Execute is called once per intent and never retries.
type Submitter interface {
	Name() string
	Quote(ctx context.Context, intent types.TradeIntent) (*types.Quote, error)
	Execute(ctx context.Context, intent types.TradeIntent) types.SubmissionResult
}

// Sender signs and submits a ledger transaction
type Sender interface {
	SignAndSend(ctx context.Context, tx *solana.Transaction, signer solana.PrivateKey) (solana.Signature, error)
}

// checkIntent rejects intents that cannot be quoted as-is
func checkIntent(intent types.TradeIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if intent.Percent {
		return fmt.Errorf("%w: percentage amount must be resolved before submission", types.ErrInvalidIntent)
	}
	return nil
}

func intentFields(intent types.TradeIntent) logrus.Fields {
	return logrus.Fields{
		"direction": intent.Direction,
		"in":        intent.SourceAsset,
		"out":       intent.DestAsset,
		"amount":    intent.Amount,
	}
}
