package workflow

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaikasekai/forecastd/internal/debuglog"
	"github.com/kaikasekai/forecastd/internal/domain"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

// fakeLedger is an in-memory Ledger that counts every call, so tests can
// assert not just outcomes but exactly which network traffic an invocation
// produced.
type fakeLedger struct {
	mu sync.Mutex

	price     *big.Int
	balance   *big.Int
	allowance *big.Int
	status    domain.SubscriptionStatus

	priceErr     error
	balanceErr   error
	allowanceErr error
	approveErr   error
	execErr      error
	statusErr    error

	calls          int
	balanceCalls   int
	approves       []*big.Int
	subscribes     []common.Address
	donations      []*big.Int
	whitelistCalls int
	feedbackCalls  int

	// When set, execute-stage calls signal execStarted and then block until
	// execGate closes.
	execGate    chan struct{}
	execStarted chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		price:     big.NewInt(50_000_000),
		balance:   big.NewInt(100_000_000),
		allowance: big.NewInt(0),
		status: domain.SubscriptionStatus{
			EndTime:        time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			EverSubscribed: true,
			ActiveNow:      true,
		},
	}
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLedger) read(err error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return err
}

func (f *fakeLedger) Price(context.Context) (*big.Int, error) {
	if err := f.read(f.priceErr); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.price), nil
}

func (f *fakeLedger) WhitelistPrice(ctx context.Context) (*big.Int, error) {
	return f.Price(ctx)
}

func (f *fakeLedger) FeedbackPrice(ctx context.Context) (*big.Int, error) {
	return f.Price(ctx)
}

func (f *fakeLedger) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	f.balanceCalls++
	f.mu.Unlock()
	if err := f.read(f.balanceErr); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeLedger) Allowance(context.Context, common.Address) (*big.Int, error) {
	if err := f.read(f.allowanceErr); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeLedger) Approve(_ context.Context, amount *big.Int) error {
	f.mu.Lock()
	f.calls++
	f.approves = append(f.approves, new(big.Int).Set(amount))
	f.mu.Unlock()
	return f.approveErr
}

func (f *fakeLedger) execute(ctx context.Context, record func()) error {
	f.mu.Lock()
	f.calls++
	record()
	gate, started := f.execGate, f.execStarted
	f.mu.Unlock()

	if started != nil {
		close(started)
		f.mu.Lock()
		f.execStarted = nil
		f.mu.Unlock()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.execErr
}

func (f *fakeLedger) Subscribe(ctx context.Context, referrer common.Address) error {
	return f.execute(ctx, func() { f.subscribes = append(f.subscribes, referrer) })
}

func (f *fakeLedger) Donate(ctx context.Context, amount *big.Int) error {
	return f.execute(ctx, func() { f.donations = append(f.donations, new(big.Int).Set(amount)) })
}

func (f *fakeLedger) BuyWhitelist(ctx context.Context) error {
	return f.execute(ctx, func() { f.whitelistCalls++ })
}

func (f *fakeLedger) PayFeedback(ctx context.Context) error {
	return f.execute(ctx, func() { f.feedbackCalls++ })
}

func (f *fakeLedger) Status(context.Context, common.Address) (domain.SubscriptionStatus, error) {
	if err := f.read(f.statusErr); err != nil {
		return domain.SubscriptionStatus{}, err
	}
	return f.status, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func newTestRunner(l *fakeLedger) *Runner {
	return NewRunner(RunnerConfig{
		Ledger:        l,
		Account:       testAccount,
		HasSession:    true,
		TokenDecimals: 6,
		StepTimeout:   time.Minute,
		Journal:       debuglog.New(64),
		Logger:        slog.Default(),
	})
}

func TestRunWithoutSession(t *testing.T) {
	l := newFakeLedger()
	r := NewRunner(RunnerConfig{
		Ledger:        l,
		HasSession:    false,
		TokenDecimals: 6,
		Journal:       debuglog.New(64),
		Logger:        slog.Default(),
	})

	_, err := r.Subscribe(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrNoSession)
	assert.Zero(t, l.count(), "a session-less invocation must not touch the network")
}

func TestSubscribeApprovesExactAmountThenExecutes(t *testing.T) {
	l := newFakeLedger() // allowance 0, price 50 USDC
	r := newTestRunner(l)

	res, err := r.Subscribe(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, l.approves, 1, "allowance short of the price requires exactly one approve")
	assert.Zero(t, l.approves[0].Cmp(big.NewInt(50_000_000)), "approve must cover exactly the price")
	require.Len(t, l.subscribes, 1)
	assert.True(t, res.Approved)
	assert.Empty(t, res.Warnings)

	require.NotNil(t, res.Status, "subscribe refreshes the snapshot after confirmation")
	assert.True(t, res.Status.ActiveNow)
}

func TestSubscribeSkipsApproveWhenAllowanceCovers(t *testing.T) {
	l := newFakeLedger()
	l.allowance = big.NewInt(50_000_000)
	r := newTestRunner(l)

	res, err := r.Subscribe(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, l.approves)
	assert.False(t, res.Approved)
	require.Len(t, l.subscribes, 1)
}

func TestSubscribeReferrerHandling(t *testing.T) {
	valid := common.HexToAddress("0x2222222222222222222222222222222222222222")

	tests := []struct {
		name     string
		referrer string
		want     common.Address
		warning  bool
	}{
		{name: "empty", referrer: "", want: common.Address{}},
		{name: "valid", referrer: valid.Hex(), want: valid},
		{name: "malformed", referrer: "not-an-address", want: common.Address{}, warning: true},
		{name: "self referral", referrer: testAccount.Hex(), want: common.Address{}, warning: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLedger()
			r := newTestRunner(l)

			res, err := r.Subscribe(context.Background(), tt.referrer)
			require.NoError(t, err, "a bad referrer must never block the purchase")

			require.Len(t, l.subscribes, 1)
			assert.Equal(t, tt.want, l.subscribes[0])
			if tt.warning {
				assert.NotEmpty(t, res.Warnings)
			} else {
				assert.Empty(t, res.Warnings)
			}
		})
	}
}

func TestSubscribeInsufficientBalance(t *testing.T) {
	l := newFakeLedger()
	l.balance = big.NewInt(10_000_000)
	r := newTestRunner(l)

	_, err := r.Subscribe(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Empty(t, l.approves, "no transaction may follow a failed balance check")
	assert.Empty(t, l.subscribes)
}

func TestBuyWhitelistSkipsBalanceCheck(t *testing.T) {
	l := newFakeLedger()
	l.balance = big.NewInt(1) // would fail a proactive check
	l.allowance = big.NewInt(50_000_000)
	r := newTestRunner(l)

	_, err := r.BuyWhitelist(context.Background())
	require.NoError(t, err)
	assert.Zero(t, l.balanceCalls, "whitelist purchase lets the contract enforce funding")
	assert.Equal(t, 1, l.whitelistCalls)
}

func TestDonateAmounts(t *testing.T) {
	t.Run("decimal string becomes smallest units", func(t *testing.T) {
		l := newFakeLedger()
		l.allowance = big.NewInt(100_000_000)
		r := newTestRunner(l)

		_, err := r.Donate(context.Background(), "12.50")
		require.NoError(t, err)
		require.Len(t, l.donations, 1)
		assert.Zero(t, l.donations[0].Cmp(big.NewInt(12_500_000)))
	})

	t.Run("invalid amounts are rejected before any transaction", func(t *testing.T) {
		for _, raw := range []string{"", "abc", "0", "-5", "1.1234567"} {
			l := newFakeLedger()
			r := newTestRunner(l)

			_, err := r.Donate(context.Background(), raw)
			require.ErrorIs(t, err, domain.ErrInvalidAmount, "amount %q", raw)
			assert.Empty(t, l.approves)
			assert.Empty(t, l.donations)
		}
	})
}

func TestPayFeedbackUnlocksSending(t *testing.T) {
	l := newFakeLedger()
	r := newTestRunner(l)

	assert.False(t, r.FeedbackUnlocked())

	res, err := r.PayFeedback(context.Background())
	require.NoError(t, err)
	assert.True(t, res.FeedbackUnlocked)
	assert.True(t, r.FeedbackUnlocked())
	assert.Equal(t, 1, l.feedbackCalls)
}

func TestBusyRejectsSecondInvocation(t *testing.T) {
	l := newFakeLedger()
	l.allowance = big.NewInt(100_000_000)
	l.execGate = make(chan struct{})
	l.execStarted = make(chan struct{})
	r := newTestRunner(l)

	done := make(chan error, 1)
	go func() {
		_, err := r.Donate(context.Background(), "1")
		done <- err
	}()

	<-l.execStarted
	before := l.count()

	_, err := r.Subscribe(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrBusy)
	assert.Equal(t, before, l.count(), "a rejected invocation must make zero network calls")

	close(l.execGate)
	require.NoError(t, <-done)

	// The guard is free again once the first action finishes.
	_, err = r.Subscribe(context.Background(), "")
	require.NoError(t, err)
}

func TestGuardReleasedAfterEveryFailure(t *testing.T) {
	tests := []struct {
		name  string
		inject func(l *fakeLedger)
		reset  func(l *fakeLedger)
	}{
		{
			name:   "price query fails",
			inject: func(l *fakeLedger) { l.priceErr = assert.AnError },
			reset:     func(l *fakeLedger) { l.priceErr = nil },
		},
		{
			name:   "balance check fails",
			inject: func(l *fakeLedger) { l.balanceErr = assert.AnError },
			reset:     func(l *fakeLedger) { l.balanceErr = nil },
		},
		{
			name:   "allowance check fails",
			inject: func(l *fakeLedger) { l.allowanceErr = assert.AnError },
			reset:     func(l *fakeLedger) { l.allowanceErr = nil },
		},
		{
			name:   "approve fails",
			inject: func(l *fakeLedger) { l.approveErr = assert.AnError },
			reset:     func(l *fakeLedger) { l.approveErr = nil },
		},
		{
			name:   "execute fails",
			inject: func(l *fakeLedger) { l.execErr = assert.AnError },
			reset:     func(l *fakeLedger) { l.execErr = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLedger()
			r := newTestRunner(l)

			tt.inject(l)
			_, err := r.Subscribe(context.Background(), "")
			require.Error(t, err)

			// The busy guard must be free for the next attempt no matter
			// where the previous one died.
			tt.reset(l)
			_, err = r.Subscribe(context.Background(), "")
			require.NoError(t, err)
		})
	}
}

func TestPostEffectFailureIsOnlyAWarning(t *testing.T) {
	l := newFakeLedger()
	l.statusErr = assert.AnError
	r := newTestRunner(l)

	res, err := r.Subscribe(context.Background(), "")
	require.NoError(t, err, "the purchase already confirmed; a failed refresh must not fail it")
	assert.NotEmpty(t, res.Warnings)
	assert.Nil(t, res.Status)
}

func TestNotifierReceivesOutcomes(t *testing.T) {
	l := newFakeLedger()
	n := &fakeNotifier{}
	r := NewRunner(RunnerConfig{
		Ledger:        l,
		Account:       testAccount,
		HasSession:    true,
		TokenDecimals: 6,
		Journal:       debuglog.New(64),
		Notifier:      n,
		Logger:        slog.Default(),
	})

	_, err := r.BuyWhitelist(context.Background())
	require.NoError(t, err)

	l.execErr = assert.AnError
	_, err = r.BuyWhitelist(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"action_success", "action_failed"}, n.events)
}

func TestStatusCache(t *testing.T) {
	l := newFakeLedger()
	r := newTestRunner(l)

	_, known := r.Status()
	assert.False(t, known)

	st, err := r.RefreshStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.ActiveNow)

	cached, known := r.Status()
	assert.True(t, known)
	assert.Equal(t, st, cached)
}
