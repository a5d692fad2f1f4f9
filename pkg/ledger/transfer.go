package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// feeReserve is kept back on native transfers to pay the signature fee
const feeReserve = 5000

// MaxNativeTransfer returns the most lamports a wallet holding balance can send
func MaxNativeTransfer(balance uint64) uint64 {
	if balance <= feeReserve {
		return 0
	}
	return balance - feeReserve
}

// Transfer sends amount (smallest unit) of asset from the signer to recipient.
// SPL transfers create the recipient's associated token account when missing.
func (c *Client) Transfer(ctx context.Context, signer solana.PrivateKey, recipient string, asset string, amount uint64) (solana.Signature, error) {
	to, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid recipient address: %w", err)
	}

	mint, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid token mint address: %w", err)
	}

	var instructions []solana.Instruction
	if mint.Equals(solana.SolMint) {
		instructions, err = c.nativeTransfer(ctx, signer.PublicKey(), to, amount)
	} else {
		instructions, err = c.tokenTransfer(ctx, signer.PublicKey(), to, mint, amount)
	}
	if err != nil {
		return solana.Signature{}, err
	}

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	return c.SignAndSend(ctx, tx, signer)
}

func (c *Client) nativeTransfer(ctx context.Context, from, to solana.PublicKey, lamports uint64) ([]solana.Instruction, error) {
	balance, err := c.NativeBalance(ctx, from)
	if err != nil {
		return nil, err
	}

	if balance < lamports+feeReserve {
		return nil, fmt.Errorf("insufficient balance: have %d lamports, need %d (including fees)", balance, lamports+feeReserve)
	}

	return []solana.Instruction{
		system.NewTransferInstruction(lamports, from, to).Build(),
	}, nil
}

func (c *Client) tokenTransfer(ctx context.Context, from, to, mint solana.PublicKey, amount uint64) ([]solana.Instruction, error) {
	source, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive associated token address: %w", err)
	}

	// only the associated account is debited, other accounts of the mint don't count
	held, err := c.tokenAccountBalance(ctx, source)
	if err != nil {
		return nil, err
	}
	if held < amount {
		return nil, fmt.Errorf("insufficient token balance: have %d, need %d", held, amount)
	}

	dest, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive associated token address: %w", err)
	}

	exists, err := c.accountExists(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to check destination account: %w", err)
	}

	var instructions []solana.Instruction
	if !exists {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(from, to, mint).Build())
	}

	instructions = append(instructions, token.NewTransferInstruction(
		amount,
		source,
		dest,
		from,
		[]solana.PublicKey{}, // no multisig
	).Build())

	return instructions, nil
}

// tokenAccountBalance returns the raw balance of one token account, 0 when it does not exist
func (c *Client) tokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetTokenAccountBalance(ctx, account, c.commitment)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) || strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token balance: %w", err)
	}
	return amount, nil
}

func (c *Client) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return info.Value != nil, nil
}
