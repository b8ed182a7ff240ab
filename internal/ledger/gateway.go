package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kaikasekai/forecastd/internal/domain"
)

// Config holds the deployed contract addresses.
type Config struct {
	ContractAddress string
	TokenAddress    string
	NFTAddress      string
}

// Gateway exposes the subscription contract, the stable-token contract, and
// the proof NFT contract behind typed calls. All monetary values are
// *big.Int in the token's smallest unit (6 decimals for USDC); the gateway
// never reinterprets or rounds them — formatting is the caller's concern.
//
// Reads work with a nil session; writes require one and otherwise fail with
// ErrNoSession. The gateway does not retry; any call may fail with a network
// error, a user rejection, or a revert, and callers catch and report.
type Gateway struct {
	client       *ethclient.Client
	session      *Session
	contractAddr common.Address
	sub          *bind.BoundContract
	token        *bind.BoundContract
	nft          *bind.BoundContract
	logger       *slog.Logger
}

// NewGateway binds the contracts at the configured addresses. The NFT
// contract is optional; an empty address disables the proof gallery reads.
func NewGateway(client *ethclient.Client, cfg Config, session *Session, logger *slog.Logger) *Gateway {
	contractAddr := common.HexToAddress(cfg.ContractAddress)

	g := &Gateway{
		client:       client,
		session:      session,
		contractAddr: contractAddr,
		sub:          bind.NewBoundContract(contractAddr, subscriptionABI, client, client, client),
		token:        bind.NewBoundContract(common.HexToAddress(cfg.TokenAddress), tokenABI, client, client, client),
		logger:       logger.With(slog.String("component", "ledger")),
	}
	if cfg.NFTAddress != "" {
		g.nft = bind.NewBoundContract(common.HexToAddress(cfg.NFTAddress), nftABI, client, client, client)
	}
	return g
}

// ContractAddress returns the subscription contract address (the allowance
// spender).
func (g *Gateway) ContractAddress() common.Address {
	return g.contractAddr
}

// ---------------------------------------------------------------------------
// Subscription contract reads
// ---------------------------------------------------------------------------

// Price returns the subscription price in token micro-units.
func (g *Gateway) Price(ctx context.Context) (*big.Int, error) {
	return g.callUint(ctx, g.sub, "price")
}

// WhitelistPrice returns the referrer-whitelist price in token micro-units.
func (g *Gateway) WhitelistPrice(ctx context.Context) (*big.Int, error) {
	return g.callUint(ctx, g.sub, "whitelistPrice")
}

// FeedbackPrice returns the feedback-payment price in token micro-units.
func (g *Gateway) FeedbackPrice(ctx context.Context) (*big.Int, error) {
	return g.callUint(ctx, g.sub, "feedbackPrice")
}

// NextEndTime returns the end timestamp the next subscription will receive.
func (g *Gateway) NextEndTime(ctx context.Context) (time.Time, error) {
	ts, err := g.callUint(ctx, g.sub, "nextEndTime")
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts.Int64(), 0).UTC(), nil
}

// HasEverSubscribed reports whether the account subscribed at least once.
func (g *Gateway) HasEverSubscribed(ctx context.Context, account common.Address) (bool, error) {
	return g.callBool(ctx, g.sub, "hasEverSubscribed", account)
}

// IsWhitelistedReferrer reports whether the account bought referrer status.
func (g *Gateway) IsWhitelistedReferrer(ctx context.Context, account common.Address) (bool, error) {
	return g.callBool(ctx, g.sub, "whitelistedReferrers", account)
}

// Status derives the subscription snapshot for an account from ledger truth.
// ActiveNow compares the on-chain end timestamp against wall-clock time at
// the moment of the query.
func (g *Gateway) Status(ctx context.Context, account common.Address) (domain.SubscriptionStatus, error) {
	end, err := g.callUint(ctx, g.sub, "subscriptionEnd", account)
	if err != nil {
		return domain.SubscriptionStatus{}, err
	}
	ever, err := g.callBool(ctx, g.sub, "hasEverSubscribed", account)
	if err != nil {
		return domain.SubscriptionStatus{}, err
	}

	endTime := time.Unix(end.Int64(), 0).UTC()
	return domain.SubscriptionStatus{
		EndTime:        endTime,
		EverSubscribed: ever,
		ActiveNow:      endTime.After(time.Now()),
	}, nil
}

// ---------------------------------------------------------------------------
// Token contract
// ---------------------------------------------------------------------------

// BalanceOf returns the account's token balance in micro-units.
func (g *Gateway) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return g.callUint(ctx, g.token, "balanceOf", account)
}

// Allowance returns how much the subscription contract may currently spend
// on the owner's behalf.
func (g *Gateway) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return g.callUint(ctx, g.token, "allowance", owner, g.contractAddr)
}

// Approve grants the subscription contract an allowance of exactly amount
// and waits for the transaction to confirm. Exact-amount approvals only; the
// daemon never requests an unlimited allowance.
func (g *Gateway) Approve(ctx context.Context, amount *big.Int) error {
	return g.transact(ctx, g.token, "approve", g.contractAddr, amount)
}

// ---------------------------------------------------------------------------
// Subscription contract writes
// ---------------------------------------------------------------------------

// Subscribe submits the subscription purchase. referrer may be the zero
// address; referral rewards and discounts are contract-side logic.
func (g *Gateway) Subscribe(ctx context.Context, referrer common.Address) error {
	return g.transact(ctx, g.sub, "subscribe", referrer)
}

// Donate transfers amount micro-units to the contract as a donation.
func (g *Gateway) Donate(ctx context.Context, amount *big.Int) error {
	return g.transact(ctx, g.sub, "donate", amount)
}

// BuyWhitelist purchases referrer-whitelist status for the session account.
func (g *Gateway) BuyWhitelist(ctx context.Context) error {
	return g.transact(ctx, g.sub, "buyWhitelist")
}

// PayFeedback pays the feedback fee for the session account.
func (g *Gateway) PayFeedback(ctx context.Context) error {
	return g.transact(ctx, g.sub, "payFeedback")
}

// ---------------------------------------------------------------------------
// Proof NFT reads
// ---------------------------------------------------------------------------

// NFTTotalSupply returns the number of minted proof tokens.
func (g *Gateway) NFTTotalSupply(ctx context.Context) (int64, error) {
	if g.nft == nil {
		return 0, nil
	}
	total, err := g.callUint(ctx, g.nft, "totalSupply")
	if err != nil {
		return 0, err
	}
	return total.Int64(), nil
}

// NFTTokenURI returns the metadata URI of one proof token.
func (g *Gateway) NFTTokenURI(ctx context.Context, id int64) (string, error) {
	if g.nft == nil {
		return "", fmt.Errorf("ledger: tokenURI: no nft contract configured")
	}
	var out []any
	if err := g.nft.Call(&bind.CallOpts{Context: ctx}, &out, "tokenURI", big.NewInt(id)); err != nil {
		return "", fmt.Errorf("ledger: tokenURI(%d): %w", id, err)
	}
	uri, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("ledger: tokenURI(%d): unexpected result type %T", id, out[0])
	}
	return uri, nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (g *Gateway) callUint(ctx context.Context, c *bind.BoundContract, method string, args ...any) (*big.Int, error) {
	var out []any
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("ledger: %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("ledger: %s: unexpected result type %T", method, out[0])
	}
	return v, nil
}

func (g *Gateway) callBool(ctx context.Context, c *bind.BoundContract, method string, args ...any) (bool, error) {
	var out []any
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return false, fmt.Errorf("ledger: %s: %w", method, err)
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("ledger: %s: unexpected result type %T", method, out[0])
	}
	return v, nil
}

// transact submits a state-changing call and blocks until it is mined. A
// mined-but-reverted receipt is reported as an error carrying the tx hash;
// the node's revert reason, when present, arrives wrapped in the submission
// error instead.
func (g *Gateway) transact(ctx context.Context, c *bind.BoundContract, method string, args ...any) error {
	if g.session == nil {
		return domain.ErrNoSession
	}

	tx, err := c.Transact(g.session.transactOpts(ctx), method, args...)
	if err != nil {
		return fmt.Errorf("ledger: %s: %w", method, err)
	}

	g.logger.Info("transaction submitted",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
	)

	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return fmt.Errorf("ledger: %s: wait for confirmation: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("ledger: %s: transaction %s reverted", method, tx.Hash().Hex())
	}

	g.logger.Info("transaction confirmed",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	return nil
}
