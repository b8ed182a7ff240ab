// Package workflow implements the paid-action saga shared by the four
// on-chain purchases: subscribe, buy-whitelist, donate, and pay-feedback.
//
// Every invocation walks the same sequence — guard, validate, price query,
// balance check, allowance check with an exact-amount approve when needed,
// execute, post-effect, cleanup — differing only in which price to read and
// which contract call to submit. The steps are pure reads or independently
// confirmed transactions; the workflow's only job is sequencing, not
// atomicity.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kaikasekai/forecastd/internal/debuglog"
	"github.com/kaikasekai/forecastd/internal/domain"
)

// Action names as reported in results, journal entries, and notifications.
const (
	ActionSubscribe    = "subscribe"
	ActionBuyWhitelist = "buy_whitelist"
	ActionDonate       = "donate"
	ActionPayFeedback  = "pay_feedback"
)

// Ledger is the slice of the ledger gateway the workflow drives. Amounts are
// integers in the token's smallest unit. Write calls block until the
// transaction confirms.
type Ledger interface {
	Price(ctx context.Context) (*big.Int, error)
	WhitelistPrice(ctx context.Context) (*big.Int, error)
	FeedbackPrice(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner common.Address) (*big.Int, error)
	Approve(ctx context.Context, amount *big.Int) error
	Subscribe(ctx context.Context, referrer common.Address) error
	Donate(ctx context.Context, amount *big.Int) error
	BuyWhitelist(ctx context.Context) error
	PayFeedback(ctx context.Context) error
	Status(ctx context.Context, account common.Address) (domain.SubscriptionStatus, error)
}

// Notifier receives best-effort operator notifications about action
// outcomes. May be satisfied by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RunnerConfig bundles the Runner dependencies.
type RunnerConfig struct {
	Ledger        Ledger
	Account       common.Address
	HasSession    bool
	TokenDecimals int32
	// StepTimeout bounds each confirmation wait (approve and execute) so a
	// hung transaction cannot hold the busy guard forever.
	StepTimeout time.Duration
	Journal     *debuglog.Journal
	Notifier    Notifier
	Logger      *slog.Logger
}

// Runner executes paid actions for one account. The mutex is the busy guard:
// at most one action is in flight per process, and a second invocation fails
// its guard step without making a single network call.
type Runner struct {
	mu sync.Mutex

	ledger        Ledger
	account       common.Address
	hasSession    bool
	tokenDecimals int32
	stepTimeout   time.Duration
	journal       *debuglog.Journal
	notifier      Notifier
	logger        *slog.Logger

	stateMu          sync.RWMutex
	status           domain.SubscriptionStatus
	statusKnown      bool
	feedbackUnlocked bool
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	journal := cfg.Journal
	if journal == nil {
		journal = debuglog.New(1)
	}
	return &Runner{
		ledger:        cfg.Ledger,
		account:       cfg.Account,
		hasSession:    cfg.HasSession,
		tokenDecimals: cfg.TokenDecimals,
		stepTimeout:   cfg.StepTimeout,
		journal:       journal,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger.With(slog.String("component", "workflow")),
	}
}

// Account returns the account the runner acts for.
func (r *Runner) Account() common.Address {
	return r.account
}

// HasSession reports whether a signing session is configured.
func (r *Runner) HasSession() bool {
	return r.hasSession
}

// Status returns the cached subscription snapshot. It is refreshed at
// startup and after every successful subscribe, and goes stale in between.
func (r *Runner) Status() (domain.SubscriptionStatus, bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.status, r.statusKnown
}

// RefreshStatus re-derives the subscription snapshot from ledger truth and
// caches it.
func (r *Runner) RefreshStatus(ctx context.Context) (domain.SubscriptionStatus, error) {
	st, err := r.ledger.Status(ctx, r.account)
	if err != nil {
		return domain.SubscriptionStatus{}, err
	}
	r.stateMu.Lock()
	r.status = st
	r.statusKnown = true
	r.stateMu.Unlock()
	return st, nil
}

// FeedbackUnlocked reports whether a feedback payment succeeded in this
// process, which is what gates the feedback-send endpoint.
func (r *Runner) FeedbackUnlocked() bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.feedbackUnlocked
}

// plan parameterizes one action for the shared saga.
type plan struct {
	action string
	// validate runs after the guard; it may record warnings. Only subscribe
	// uses it (referrer canonicalization).
	validate func(res *domain.ActionResult) error
	// amount produces the required payment: a contract price query, or the
	// caller-supplied donation amount.
	amount func(ctx context.Context) (*big.Int, error)
	// checkBalance requests a proactive balance check before any
	// transaction; actions without it let the contract call fail instead.
	checkBalance bool
	execute      func(ctx context.Context, amount *big.Int) error
	// post runs after a confirmed execute. Its failure does not undo the
	// action; it is reported as a warning.
	post func(ctx context.Context, res *domain.ActionResult) error
}

// Subscribe purchases (or extends) the subscription. A malformed referrer or
// the caller's own address never blocks the purchase: the referrer is
// dropped, the discount forfeited, and a warning recorded.
func (r *Runner) Subscribe(ctx context.Context, referrer string) (domain.ActionResult, error) {
	var ref common.Address
	return r.run(ctx, plan{
		action: ActionSubscribe,
		validate: func(res *domain.ActionResult) error {
			var warning string
			ref, warning = resolveReferrer(referrer, r.account)
			if warning != "" {
				res.Warnings = append(res.Warnings, warning)
				r.journal.Appendf("subscribe: %s", warning)
			}
			return nil
		},
		amount:       r.ledger.Price,
		checkBalance: true,
		execute: func(ctx context.Context, _ *big.Int) error {
			return r.ledger.Subscribe(ctx, ref)
		},
		post: func(ctx context.Context, res *domain.ActionResult) error {
			st, err := r.RefreshStatus(ctx)
			if err != nil {
				return err
			}
			res.Status = &st
			return nil
		},
	})
}

// BuyWhitelist purchases referrer-whitelist status. No proactive balance
// check: an underfunded purchase surfaces as a revert.
func (r *Runner) BuyWhitelist(ctx context.Context) (domain.ActionResult, error) {
	return r.run(ctx, plan{
		action: ActionBuyWhitelist,
		amount: r.ledger.WhitelistPrice,
		execute: func(ctx context.Context, _ *big.Int) error {
			return r.ledger.BuyWhitelist(ctx)
		},
	})
}

// Donate transfers a caller-chosen amount (a decimal token string, e.g.
// "12.50") to the contract.
func (r *Runner) Donate(ctx context.Context, amount string) (domain.ActionResult, error) {
	return r.run(ctx, plan{
		action: ActionDonate,
		amount: func(context.Context) (*big.Int, error) {
			return parseAmount(amount, r.tokenDecimals)
		},
		checkBalance: true,
		execute: func(ctx context.Context, amt *big.Int) error {
			return r.ledger.Donate(ctx, amt)
		},
	})
}

// PayFeedback pays the feedback fee and unlocks the feedback-send form.
func (r *Runner) PayFeedback(ctx context.Context) (domain.ActionResult, error) {
	return r.run(ctx, plan{
		action: ActionPayFeedback,
		amount: r.ledger.FeedbackPrice,
		execute: func(ctx context.Context, _ *big.Int) error {
			return r.ledger.PayFeedback(ctx)
		},
		post: func(_ context.Context, res *domain.ActionResult) error {
			r.stateMu.Lock()
			r.feedbackUnlocked = true
			r.stateMu.Unlock()
			res.FeedbackUnlocked = true
			return nil
		},
	})
}

// run is the shared saga. The busy guard is released in a defer so it runs
// on every exit path; a stuck guard would deadlock all four actions.
func (r *Runner) run(ctx context.Context, p plan) (domain.ActionResult, error) {
	res := domain.ActionResult{
		ID:     uuid.NewString(),
		Action: p.action,
	}

	// Guard.
	if !r.hasSession {
		return res, domain.ErrNoSession
	}
	if !r.mu.TryLock() {
		r.logger.Debug("action rejected, another is in flight", slog.String("action", p.action))
		return res, domain.ErrBusy
	}
	defer r.mu.Unlock()

	logger := r.logger.With(
		slog.String("action", p.action),
		slog.String("invocation", res.ID),
	)
	r.journal.Appendf("%s: started", p.action)

	fail := func(step string, err error) (domain.ActionResult, error) {
		wrapped := fmt.Errorf("workflow: %s: %s: %w", p.action, step, err)
		logger.Error("action failed",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
		r.journal.Appendf("%s: %s failed: %v", p.action, step, err)
		r.notify(ctx, "action_failed", p.action, wrapped.Error())
		return res, wrapped
	}

	// Validate.
	if p.validate != nil {
		if err := p.validate(&res); err != nil {
			return fail("validate", err)
		}
	}

	// PriceQuery.
	amount, err := p.amount(ctx)
	if err != nil {
		return fail("price query", err)
	}
	r.journal.Appendf("%s: required amount %s", p.action, amount)

	// BalanceCheck.
	if p.checkBalance {
		bal, err := r.ledger.BalanceOf(ctx, r.account)
		if err != nil {
			return fail("balance check", err)
		}
		if bal.Cmp(amount) < 0 {
			return fail("balance check", fmt.Errorf("%w: have %s, need %s", domain.ErrInsufficientBalance, bal, amount))
		}
	}

	// AllowanceCheck: approve exactly the required amount, only when the
	// standing allowance falls short.
	allowance, err := r.ledger.Allowance(ctx, r.account)
	if err != nil {
		return fail("allowance check", err)
	}
	if allowance.Cmp(amount) < 0 {
		r.journal.Appendf("%s: approving %s", p.action, amount)
		if err := r.step(ctx, func(ctx context.Context) error {
			return r.ledger.Approve(ctx, amount)
		}); err != nil {
			return fail("approve", err)
		}
		res.Approved = true
		r.journal.Appendf("%s: approve confirmed", p.action)
	}

	// Execute.
	r.journal.Appendf("%s: submitting", p.action)
	if err := r.step(ctx, func(ctx context.Context) error {
		return p.execute(ctx, amount)
	}); err != nil {
		return fail("execute", err)
	}
	r.journal.Appendf("%s: confirmed", p.action)

	// PostEffect. The purchase already confirmed; a failure here degrades to
	// a warning rather than marking the action failed.
	if p.post != nil {
		if err := p.post(ctx, &res); err != nil {
			logger.Warn("post effect failed", slog.String("error", err.Error()))
			res.Warnings = append(res.Warnings, fmt.Sprintf("post effect failed: %v", err))
		}
	}

	res.Message = p.action + " confirmed"
	logger.Info("action confirmed")
	r.notify(ctx, "action_success", p.action, res.Message)
	return res, nil
}

// step bounds one confirmation wait with the configured timeout.
func (r *Runner) step(ctx context.Context, fn func(context.Context) error) error {
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (r *Runner) notify(ctx context.Context, event, action, message string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, event, "forecastd: "+action, message); err != nil {
		r.logger.Debug("notification failed", slog.String("error", err.Error()))
	}
}

// resolveReferrer canonicalizes the optional referrer address. Malformed
// input and self-referral both degrade to the zero address with a warning;
// they never block the subscription, only forfeit the discount.
func resolveReferrer(raw string, self common.Address) (common.Address, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, ""
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, "invalid referrer address, subscribing without discount"
	}
	addr := common.HexToAddress(raw)
	if addr == self {
		return common.Address{}, "own address given as referrer, subscribing without discount"
	}
	return addr, ""
}

// parseAmount converts a decimal token string ("12.50") to micro-units.
func parseAmount(raw string, decimals int32) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", domain.ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, raw)
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: must be positive", domain.ErrInvalidAmount)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: more than %d decimal places", domain.ErrInvalidAmount, decimals)
	}
	return scaled.BigInt(), nil
}
