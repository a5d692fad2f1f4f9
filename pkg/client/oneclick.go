package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sol-swap/pkg/types"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

const (
	oneClickChain    = "sol"
	oneClickDeadline = 24 * time.Hour
)

// Transferer sends a ledger transfer to a deposit address
type Transferer interface {
	Transfer(ctx context.Context, signer solana.PrivateKey, recipient string, asset string, amount uint64) (solana.Signature, error)
}

// OneClickClient wraps the 1Click SDK. Swaps are executed by transferring the
// source amount to a quoted deposit address.
type OneClickClient struct {
	client   *oneclick.APIClient
	token    string
	transfer Transferer
}

// NewOneClickClient creates a new 1Click API client
func NewOneClickClient(jwtToken, baseURL string, transfer Transferer) *OneClickClient {
	config := oneclick.NewConfiguration()
	if baseURL != "" {
		config.Servers = oneclick.ServerConfigurations{{URL: strings.TrimSuffix(baseURL, "/")}}
	}

	return &OneClickClient{
		client:   oneclick.NewAPIClient(config),
		token:    jwtToken,
		transfer: transfer,
	}
}

func (c *OneClickClient) Name() string { return "oneclick" }

// authCtx returns an authenticated request context
func (c *OneClickClient) authCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.token)
}

// GetSupportedTokens retrieves all supported tokens
func (c *OneClickClient) GetSupportedTokens(ctx context.Context) ([]oneclick.TokenResponse, error) {
	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.authCtx(ctx)).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return resp, nil
}

// FindSolanaToken resolves a Solana mint to a 1Click token
func (c *OneClickClient) FindSolanaToken(ctx context.Context, mint string) (*oneclick.TokenResponse, error) {
	tokens, err := c.GetSupportedTokens(ctx)
	if err != nil {
		return nil, err
	}

	for _, token := range tokens {
		if strings.ToLower(token.GetBlockchain()) != oneClickChain {
			continue
		}
		if mint == types.NativeMint {
			if token.GetContractAddress() == "" && strings.EqualFold(token.GetSymbol(), "SOL") {
				return &token, nil
			}
			continue
		}
		if token.GetContractAddress() == mint {
			return &token, nil
		}
	}

	return nil, fmt.Errorf("token '%s' not found on chain '%s'", mint, oneClickChain)
}

// Quote returns an indicative quote without reserving a deposit address
func (c *OneClickClient) Quote(ctx context.Context, intent types.TradeIntent) (*types.Quote, error) {
	if err := checkIntent(intent); err != nil {
		return nil, err
	}
	return c.quote(ctx, intent, true)
}

// Execute requests a deposit address and sends the source amount to it
func (c *OneClickClient) Execute(ctx context.Context, intent types.TradeIntent) types.SubmissionResult {
	entry := log.WithFields(intentFields(intent))

	if err := checkIntent(intent); err != nil {
		return types.QuoteUnavailable(err.Error())
	}

	quote, err := c.quote(ctx, intent, false)
	if err != nil {
		entry.WithError(err).Warn("quote unavailable")
		return types.QuoteUnavailable(err.Error())
	}
	if quote.DepositAddress == "" {
		return types.QuoteUnavailable("quote has no deposit address")
	}

	sig, err := c.transfer.Transfer(ctx, intent.Signer, quote.DepositAddress, intent.SourceAsset, intent.Amount)
	if err != nil {
		entry.WithError(err).Warn("failed to send deposit")
		return types.SubmissionFailed(err.Error())
	}

	// the deposit is already on the network; notifying 1Click only speeds it up
	if err := c.SubmitDepositTx(ctx, quote.DepositAddress, sig.String()); err != nil {
		entry.WithError(err).Warn("failed to notify deposit")
	}

	entry.WithFields(logrus.Fields{
		"txid":            sig.String(),
		"deposit_address": quote.DepositAddress,
	}).Info("deposit submitted")

	return types.Submitted(sig.String(), quote)
}

func (c *OneClickClient) quote(ctx context.Context, intent types.TradeIntent, dry bool) (*types.Quote, error) {
	sourceToken, err := c.FindSolanaToken(ctx, intent.SourceAsset)
	if err != nil {
		return nil, fmt.Errorf("source token error: %w", err)
	}
	destToken, err := c.FindSolanaToken(ctx, intent.DestAsset)
	if err != nil {
		return nil, fmt.Errorf("destination token error: %w", err)
	}

	owner := intent.Owner().String()

	// request fields follow the API schema
	payload, err := json.Marshal(map[string]interface{}{
		"dry":               dry,
		"swapType":          "EXACT_INPUT",
		"slippageTolerance": intent.MaxSlippageBps,
		"originAsset":       sourceToken.GetAssetId(),
		"depositType":       "ORIGIN_CHAIN",
		"destinationAsset":  destToken.GetAssetId(),
		"amount":            strconv.FormatUint(intent.Amount, 10),
		"refundTo":          owner,
		"refundType":        "ORIGIN_CHAIN",
		"recipient":         owner,
		"recipientType":     "DESTINATION_CHAIN",
		"deadline":          time.Now().Add(oneClickDeadline).UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode quote request: %w", err)
	}

	var quoteReq oneclick.QuoteRequest
	if err := json.Unmarshal(payload, &quoteReq); err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, httpResp, err := c.client.OneClickAPI.GetQuote(c.authCtx(ctx)).QuoteRequest(quoteReq).Execute()
	if err != nil {
		return nil, apiError(httpResp, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty quote response")
	}

	q := resp.GetQuote()
	out, err := strconv.ParseUint(q.GetAmountOut(), 10, 64)
	if err != nil || out == 0 {
		return nil, fmt.Errorf("quote has no output amount")
	}

	route, _ := json.Marshal(resp)

	return &types.Quote{
		InAmount:       intent.Amount,
		OutAmount:      out,
		Route:          route,
		DepositAddress: q.GetDepositAddress(),
	}, nil
}

// SwapStatus checks the execution status of a deposit-address swap
func (c *OneClickClient) SwapStatus(ctx context.Context, depositAddress string) (*oneclick.GetExecutionStatusResponse, error) {
	resp, httpResp, err := c.client.OneClickAPI.GetExecutionStatus(c.authCtx(ctx)).DepositAddress(depositAddress).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return resp, nil
}

// SubmitDepositTx submits the deposit transaction hash
func (c *OneClickClient) SubmitDepositTx(ctx context.Context, depositAddress, txHash string) error {
	req := oneclick.NewSubmitDepositTxRequest(depositAddress, txHash)

	_, httpResp, err := c.client.OneClickAPI.SubmitDepositTx(c.authCtx(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return fmt.Errorf("failed to submit deposit: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return nil
}

// apiError extracts the API's error message from a failed response
func apiError(httpResp *http.Response, err error) error {
	if httpResp == nil {
		return fmt.Errorf("failed to get quote from API: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil || len(bodyBytes) == 0 {
		return fmt.Errorf("failed to get quote from API (status: %d): %w", httpResp.StatusCode, err)
	}

	var errorResp map[string]interface{}
	if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
		if message, ok := errorResp["message"].(string); ok {
			return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, message)
		}
		if errs, ok := errorResp["errors"]; ok {
			return fmt.Errorf("API error (status %d): %v", httpResp.StatusCode, errs)
		}
	}
	return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(bodyBytes))
}
