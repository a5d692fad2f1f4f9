package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "ledger")

// RPC is the subset of the Solana JSON-RPC client used by this package
type RPC interface {
	GetBalance(ctx context.Context, publicKey solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// Options controls reads and submissions
type Options struct {
	Commitment    string
	SkipPreflight bool
	MaxRetries    uint
}

// Client wraps a Solana RPC endpoint
type Client struct {
	rpc           RPC
	commitment    rpc.CommitmentType
	skipPreflight bool
	maxRetries    uint
}

// New creates a new ledger client for the given RPC URL
func New(rpcURL string, opts Options) *Client {
	return NewWithRPC(rpc.New(rpcURL), opts)
}

// NewWithRPC creates a new ledger client on top of an existing RPC implementation
func NewWithRPC(r RPC, opts Options) *Client {
	return &Client{
		rpc:           r,
		commitment:    ParseCommitment(opts.Commitment),
		skipPreflight: opts.SkipPreflight,
		maxRetries:    opts.MaxRetries,
	}
}

// ParseCommitment maps a config string to a commitment level, defaulting to confirmed
func ParseCommitment(s string) rpc.CommitmentType {
	switch strings.ToLower(s) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// SignAndSend signs tx with signer and submits it.
// The network-assigned signature is returned as soon as the node accepts the transaction.
func (c *Client) SignAndSend(ctx context.Context, tx *solana.Transaction, signer solana.PrivateKey) (solana.Signature, error) {
	owner := signer.PublicKey()

	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	maxRetries := c.maxRetries
	opts := rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: rpc.CommitmentProcessed,
		MaxRetries:          &maxRetries,
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, opts)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	log.WithFields(logrus.Fields{
		"signature": sig.String(),
		"owner":     owner.String(),
	}).Debug("transaction accepted by node")

	return sig, nil
}

// SignatureStatus is the cluster's view of a submitted transaction
type SignatureStatus struct {
	Found         bool    `json:"found"`
	Slot          uint64  `json:"slot,omitempty"`
	Confirmations *uint64 `json:"confirmations,omitempty"`
	Status        string  `json:"status,omitempty"`
	Err           string  `json:"err,omitempty"`
}

// SignatureStatus looks up a transaction signature, searching ledger history.
// It is informational only and never used to confirm a trade.
func (c *Client) SignatureStatus(ctx context.Context, txid string) (*SignatureStatus, error) {
	sig, err := solana.SignatureFromBase58(txid)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction signature: %w", err)
	}

	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}

	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return &SignatureStatus{Found: false}, nil
	}

	v := out.Value[0]
	status := &SignatureStatus{
		Found:         true,
		Slot:          v.Slot,
		Confirmations: v.Confirmations,
		Status:        string(v.ConfirmationStatus),
	}
	if v.Err != nil {
		status.Err = fmt.Sprintf("%v", v.Err)
	}
	return status, nil
}
