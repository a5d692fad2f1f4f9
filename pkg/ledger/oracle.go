package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// SPL token account layout: mint(32) owner(32) amount(u64 LE)
	tokenAccountAmountOffset = 64
	// SPL mint layout: mint_authority option(36) supply(8) decimals(1)
	mintDecimalsOffset = 44

	nativeDecimals = 9
)

// Holding is the held quantity of one asset. Held is false when none is held.
type Holding struct {
	Amount uint64
	Held   bool
}

// Oracle reports how much of an asset an owner currently holds
type Oracle interface {
	HeldAmount(ctx context.Context, owner solana.PublicKey, asset string) (Holding, error)
}

// TokenHolding is a non-zero SPL balance of one mint
type TokenHolding struct {
	Mint   string `json:"mint"`
	Amount uint64 `json:"amount"`
}

// HeldAmount returns the owner's balance of asset: lamports for the native
// mint, otherwise the sum over the owner's token accounts for that mint.
func (c *Client) HeldAmount(ctx context.Context, owner solana.PublicKey, asset string) (Holding, error) {
	mint, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return Holding{}, fmt.Errorf("invalid asset %q: %w", asset, err)
	}

	if mint.Equals(solana.SolMint) {
		lamports, err := c.NativeBalance(ctx, owner)
		if err != nil {
			return Holding{}, err
		}
		return Holding{Amount: lamports, Held: lamports > 0}, nil
	}

	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{Mint: &mint},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return Holding{}, fmt.Errorf("failed to get token accounts: %w", err)
	}

	var total uint64
	for _, acc := range out.Value {
		amount, err := tokenAccountAmount(acc)
		if err != nil {
			return Holding{}, err
		}
		total += amount
	}

	return Holding{Amount: total, Held: total > 0}, nil
}

// NativeBalance returns the owner's SOL balance in lamports
func (c *Client) NativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	balance, err := c.rpc.GetBalance(ctx, owner, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance.Value, nil
}

// TokenHoldings lists every non-zero SPL token balance of owner, sorted by mint
func (c *Client) TokenHoldings(ctx context.Context, owner solana.PublicKey) ([]TokenHolding, error) {
	programID := solana.TokenProgramID
	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &programID},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts: %w", err)
	}

	byMint := make(map[string]uint64)
	for _, acc := range out.Value {
		data, err := tokenAccountData(acc)
		if err != nil {
			return nil, err
		}
		amount := binary.LittleEndian.Uint64(data[tokenAccountAmountOffset:])
		if amount == 0 {
			continue
		}
		mint := solana.PublicKeyFromBytes(data[:32]).String()
		byMint[mint] += amount
	}

	holdings := make([]TokenHolding, 0, len(byMint))
	for mint, amount := range byMint {
		holdings = append(holdings, TokenHolding{Mint: mint, Amount: amount})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Mint < holdings[j].Mint })

	return holdings, nil
}

// MintDecimals gets the decimals for a token mint
func (c *Client) MintDecimals(ctx context.Context, asset string) (uint8, error) {
	mint, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return 0, fmt.Errorf("invalid asset %q: %w", asset, err)
	}
	if mint.Equals(solana.SolMint) {
		return nativeDecimals, nil
	}

	accountInfo, err := c.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, fmt.Errorf("mint account %s not found", asset)
		}
		return 0, fmt.Errorf("failed to get mint account info: %w", err)
	}

	data := accountInfo.GetBinary()
	if len(data) <= mintDecimalsOffset {
		return 0, fmt.Errorf("invalid mint account data")
	}

	return data[mintDecimalsOffset], nil
}

func tokenAccountAmount(acc *rpc.TokenAccount) (uint64, error) {
	data, err := tokenAccountData(acc)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data[tokenAccountAmountOffset:]), nil
}

func tokenAccountData(acc *rpc.TokenAccount) ([]byte, error) {
	if acc == nil || acc.Account.Data == nil {
		return nil, fmt.Errorf("token account has no data")
	}
	data := acc.Account.Data.GetBinary()
	if len(data) < tokenAccountAmountOffset+8 {
		return nil, fmt.Errorf("invalid token account data for %s", acc.Pubkey)
	}
	return data, nil
}
