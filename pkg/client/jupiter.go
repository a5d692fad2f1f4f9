package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sol-swap/pkg/types"

	"github.com/gagliardetto/solana-go"
	"github.com/go-resty/resty/v2"
)

// JupiterClient quotes and swaps through the Jupiter aggregator API
type JupiterClient struct {
	http        *resty.Client
	sender      Sender
	priorityFee uint64
}

// NewJupiterClient creates a new Jupiter API client. A priorityFee of 0
// lets the API choose the prioritization fee.
func NewJupiterClient(baseURL string, sender Sender, priorityFee uint64) *JupiterClient {
	baseURL = strings.TrimSuffix(baseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")

	return &JupiterClient{
		http:        httpClient,
		sender:      sender,
		priorityFee: priorityFee,
	}
}

func (c *JupiterClient) Name() string { return "jupiter" }

type jupiterQuote struct {
	InputMint      string `json:"inputMint"`
	InAmount       string `json:"inAmount"`
	OutputMint     string `json:"outputMint"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	SlippageBps    int    `json:"slippageBps"`
	Error          string `json:"error"`
}

type jupiterSwapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports interface{}     `json:"prioritizationFeeLamports"`
}

type jupiterSwapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type jupiterError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// Quote requests a route for the intent
func (c *JupiterClient) Quote(ctx context.Context, intent types.TradeIntent) (*types.Quote, error) {
	if err := checkIntent(intent); err != nil {
		return nil, err
	}

	var apiErr jupiterError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   intent.SourceAsset,
			"outputMint":  intent.DestAsset,
			"amount":      strconv.FormatUint(intent.Amount, 10),
			"slippageBps": strconv.FormatUint(uint64(intent.MaxSlippageBps), 10),
		}).
		SetError(&apiErr).
		Get("/quote")
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("quote API returned status %d: %s", resp.StatusCode(), apiErrMessage(apiErr, resp))
	}

	raw := resp.Body()
	var q jupiterQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	if q.Error != "" {
		return nil, fmt.Errorf("quote API error: %s", q.Error)
	}

	out, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil || out == 0 {
		return nil, fmt.Errorf("quote has no output amount")
	}
	in, err := strconv.ParseUint(q.InAmount, 10, 64)
	if err != nil {
		in = intent.Amount
	}

	return &types.Quote{
		InAmount:  in,
		OutAmount: out,
		Route:     json.RawMessage(raw),
	}, nil
}

// Execute quotes, builds, signs and submits the swap exactly once
func (c *JupiterClient) Execute(ctx context.Context, intent types.TradeIntent) types.SubmissionResult {
	entry := log.WithFields(intentFields(intent))

	quote, err := c.Quote(ctx, intent)
	if err != nil {
		entry.WithError(err).Warn("quote unavailable")
		return types.QuoteUnavailable(err.Error())
	}

	tx, err := c.swapTransaction(ctx, quote, intent.Owner())
	if err != nil {
		entry.WithError(err).Warn("failed to build swap transaction")
		return types.SubmissionFailed(err.Error())
	}

	sig, err := c.sender.SignAndSend(ctx, tx, intent.Signer)
	if err != nil {
		entry.WithError(err).Warn("failed to submit swap transaction")
		return types.SubmissionFailed(err.Error())
	}

	entry.WithField("txid", sig.String()).Info("swap submitted")
	return types.Submitted(sig.String(), quote)
}

func (c *JupiterClient) swapTransaction(ctx context.Context, quote *types.Quote, owner solana.PublicKey) (*solana.Transaction, error) {
	var fee interface{} = "auto"
	if c.priorityFee > 0 {
		fee = c.priorityFee
	}

	var (
		out    jupiterSwapResponse
		apiErr jupiterError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(jupiterSwapRequest{
			QuoteResponse:             quote.Route,
			UserPublicKey:             owner.String(),
			WrapAndUnwrapSol:          true,
			DynamicComputeUnitLimit:   true,
			PrioritizationFeeLamports: fee,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/swap")
	if err != nil {
		return nil, fmt.Errorf("failed to request swap transaction: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("swap API returned status %d: %s", resp.StatusCode(), apiErrMessage(apiErr, resp))
	}
	if out.SwapTransaction == "" {
		return nil, fmt.Errorf("swap API returned no transaction")
	}

	tx, err := solana.TransactionFromBase64(out.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("failed to decode swap transaction: %w", err)
	}
	return tx, nil
}

func apiErrMessage(apiErr jupiterError, resp *resty.Response) string {
	if apiErr.Error != "" {
		return apiErr.Error
	}
	return strings.TrimSpace(string(resp.Body()))
}
