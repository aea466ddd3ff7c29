package sale

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"launchpad/core/events"
	"launchpad/native/bank"
	"launchpad/native/common"
	"launchpad/storage"
)

var (
	ownerAddr    = [20]byte{0x01}
	aliceAddr    = [20]byte{0x02}
	bobAddr      = [20]byte{0x03}
	campaignAddr = [20]byte{0x04}
	tokenAddr    = [20]byte{0x05}
	feeAddr      = [20]byte{0x06}
	poolAddr     = [20]byte{0x07}
	receiverAddr = [20]byte{0x08}
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(ev events.Event) { c.events = append(c.events, ev) }

func (c *captureEmitter) last() events.Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

type testEnv struct {
	engine  *Engine
	ledger  *Ledger
	base    *bank.Ledger
	tokens  *bank.Ledger
	pool    *bank.Pool
	emitted *captureEmitter
	now     int64
}

func (env *testEnv) setNow(now int64) { env.now = now }

func (env *testEnv) baseBalance(t *testing.T, addr [20]byte) uint64 {
	t.Helper()
	balance, err := env.base.BalanceOf(addr)
	if err != nil {
		t.Fatalf("base balance: %v", err)
	}
	return balance.Uint64()
}

func (env *testEnv) tokenBalance(t *testing.T, addr [20]byte) uint64 {
	t.Helper()
	balance, err := env.tokens.BalanceOf(addr)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	return balance.Uint64()
}

// newTestEnv wires a configured engine over MemDB-backed ledger and in-memory
// bank collaborators. Mutators adjust the config before Configure runs.
func newTestEnv(t *testing.T, mutators ...func(cfg *CampaignConfig)) *testEnv {
	t.Helper()
	env := &testEnv{
		ledger:  NewLedger(storage.NewMemDB()),
		base:    bank.NewLedger("BASE"),
		tokens:  bank.NewLedger("SALE"),
		emitted: &captureEmitter{},
		now:     500,
	}
	env.pool = bank.NewPool(poolAddr, campaignAddr, env.base, env.tokens)
	env.pool.SetNowFunc(func() int64 { return env.now })

	env.engine = NewEngine(env.ledger)
	env.engine.SetBaseGateway(env.base)
	env.engine.SetTokenGateway(env.tokens)
	env.engine.SetLiquidityGateway(env.pool)
	env.engine.SetFeeOracle(bank.StaticFeeOracle{Recipient: feeAddr, Percent: 10})
	env.engine.SetEmitter(env.emitted)
	env.engine.SetNowFunc(func() int64 { return env.now })

	cfg := testConfig()
	cfg.Owner = ownerAddr
	cfg.Token = tokenAddr
	cfg.Campaign = campaignAddr
	for _, mutate := range mutators {
		mutate(cfg)
	}
	if err := env.engine.Configure(cfg); err != nil {
		t.Fatalf("configure: %v", err)
	}

	env.tokens.Mint(campaignAddr, uint256.NewInt(200_000))
	env.base.Mint(aliceAddr, uint256.NewInt(1000))
	env.base.Mint(bobAddr, uint256.NewInt(1000))
	env.base.Mint(ownerAddr, uint256.NewInt(1000))
	return env
}

func mustDeposit(t *testing.T, env *testEnv, addr [20]byte, value uint64) *DepositResult {
	t.Helper()
	result, err := env.engine.Deposit(addr, uint256.NewInt(value))
	if err != nil {
		t.Fatalf("deposit %d from %x: %v", value, addr[:1], err)
	}
	return result
}

func TestConfigureOnce(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Configure(testConfig()); !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("expected ErrAlreadyConfigured, got %v", err)
	}
}

func TestConfigureRejectsInvalid(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	engine := NewEngine(ledger)

	cfg := testConfig()
	cfg.Token = [20]byte{}
	if err := engine.Configure(cfg); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("zero token: %v", err)
	}

	cfg = testConfig()
	cfg.Softcap = uint256.NewInt(200)
	if err := engine.Configure(cfg); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("softcap above hardcap: %v", err)
	}

	cfg = testConfig()
	cfg.StartTime = 1000
	cfg.EndTime = 100
	if err := engine.Configure(cfg); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("inverted window: %v", err)
	}
}

// Scenario A: raiseMin=1, raiseMax=10, hardcap=100, tokenRate=1000,
// decimals adjustment 0. A single deposit of 10 allocates 10000 tokens.
func TestDepositScenarioA(t *testing.T) {
	env := newTestEnv(t)

	result := mustDeposit(t, env, aliceAddr, 10)
	if result.Accepted.Uint64() != 10 || result.Tokens.Uint64() != 10_000 || !result.Returned.IsZero() {
		t.Fatalf("result = accepted %s tokens %s returned %s", result.Accepted.Dec(), result.Tokens.Dec(), result.Returned.Dec())
	}

	st, phase, err := env.engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.RaisedAmount.Uint64() != 10 || st.SoldAmount.Uint64() != 10_000 || st.NumBuyers != 1 {
		t.Fatalf("status = raised %s sold %s buyers %d", st.RaisedAmount.Dec(), st.SoldAmount.Dec(), st.NumBuyers)
	}
	if phase != PhaseActive {
		t.Fatalf("phase = %s, want active", phase)
	}
	if got := env.baseBalance(t, aliceAddr); got != 990 {
		t.Fatalf("alice base = %d, want 990", got)
	}
	if got := env.baseBalance(t, campaignAddr); got != 10 {
		t.Fatalf("campaign base = %d, want 10", got)
	}
}

// Scenario B: a deposit that overshoots the remaining global room is clipped
// to the room and the surplus returned; filling the hardcap flips the phase
// to successful.
func TestDepositClippedAtHardcap(t *testing.T) {
	env := newTestEnv(t, func(cfg *CampaignConfig) {
		cfg.RaiseMax = uint256.NewInt(100)
	})

	mustDeposit(t, env, aliceAddr, 95)
	result := mustDeposit(t, env, bobAddr, 10)
	if result.Accepted.Uint64() != 5 || result.Returned.Uint64() != 5 || result.Tokens.Uint64() != 5_000 {
		t.Fatalf("result = accepted %s returned %s tokens %s", result.Accepted.Dec(), result.Returned.Dec(), result.Tokens.Dec())
	}
	if got := env.baseBalance(t, bobAddr); got != 995 {
		t.Fatalf("bob base = %d, want 995 (only the clipped amount pulled)", got)
	}

	st, phase, err := env.engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.RaisedAmount.Uint64() != 100 || st.NumBuyers != 2 {
		t.Fatalf("raised %s buyers %d", st.RaisedAmount.Dec(), st.NumBuyers)
	}
	if phase != PhaseSuccessful {
		t.Fatalf("phase = %s, want successful", phase)
	}

	// The deposit event carries the original submitted value.
	deposit, ok := env.emitted.last().(events.SaleDeposit)
	if !ok {
		t.Fatalf("last event = %T, want SaleDeposit", env.emitted.last())
	}
	if deposit.Submitted.Uint64() != 10 || deposit.Accepted.Uint64() != 5 {
		t.Fatalf("event submitted %s accepted %s", deposit.Submitted.Dec(), deposit.Accepted.Dec())
	}
}

func TestDepositPerBuyerClipping(t *testing.T) {
	env := newTestEnv(t)

	mustDeposit(t, env, aliceAddr, 7)
	result := mustDeposit(t, env, aliceAddr, 7)
	if result.Accepted.Uint64() != 3 || result.Returned.Uint64() != 4 {
		t.Fatalf("second deposit accepted %s returned %s, want 3/4", result.Accepted.Dec(), result.Returned.Dec())
	}

	st, _, err := env.engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.NumBuyers != 1 {
		t.Fatalf("numBuyers = %d, want 1 for repeat depositor", st.NumBuyers)
	}
	rec, err := env.engine.Participant(aliceAddr)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if rec.BaseDeposited.Uint64() != 10 || rec.SaleAllocated.Uint64() != 10_000 {
		t.Fatalf("record = %s/%s", rec.BaseDeposited.Dec(), rec.SaleAllocated.Dec())
	}
}

func TestDepositBounds(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(0)); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("below min: %v", err)
	}
	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(11)); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("above max: %v", err)
	}
}

func TestDepositPhaseGating(t *testing.T) {
	env := newTestEnv(t)

	env.setNow(50)
	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(5)); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("queued: %v", err)
	}
	env.setNow(1500)
	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(5)); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("failed: %v", err)
	}
}

func TestDepositWhitelistGating(t *testing.T) {
	env := newTestEnv(t, func(cfg *CampaignConfig) {
		cfg.Mode = ModeAllowlisted
	})

	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(5)); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("unlisted: %v", err)
	}
	if err := env.engine.AddWhitelist(ownerAddr, [][20]byte{aliceAddr}); err != nil {
		t.Fatalf("add whitelist: %v", err)
	}
	mustDeposit(t, env, aliceAddr, 5)

	if err := env.engine.RemoveWhitelist(ownerAddr, [][20]byte{aliceAddr}); err != nil {
		t.Fatalf("remove whitelist: %v", err)
	}
	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(5)); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("after removal: %v", err)
	}
}

func TestDepositPublicUnlockWindow(t *testing.T) {
	env := newTestEnv(t, func(cfg *CampaignConfig) {
		cfg.Mode = ModePublic
		cfg.PublicUnlockTime = 700
	})

	// Before the unlock instant public mode still requires membership.
	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(5)); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("before unlock: %v", err)
	}
	if err := env.engine.AddWhitelist(ownerAddr, [][20]byte{aliceAddr}); err != nil {
		t.Fatalf("add whitelist: %v", err)
	}
	mustDeposit(t, env, aliceAddr, 5)

	env.setNow(700)
	mustDeposit(t, env, bobAddr, 5)
}

func TestDepositZeroAllocation(t *testing.T) {
	env := newTestEnv(t, func(cfg *CampaignConfig) {
		cfg.TokenRate = uint256.NewInt(1)
		cfg.DecimalsAdjustment = 3
	})

	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(5)); !errors.Is(err, ErrZeroAllocation) {
		t.Fatalf("expected ErrZeroAllocation, got %v", err)
	}
}

func TestDepositInsufficientReserve(t *testing.T) {
	env := newTestEnv(t)
	// Drain the campaign's token reserve below what a deposit would imply.
	if err := env.tokens.Transfer(campaignAddr, ownerAddr, uint256.NewInt(195_000)); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(10)); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected ErrInsufficientReserve, got %v", err)
	}
}

func TestRaisedEqualsSumOfDeposits(t *testing.T) {
	env := newTestEnv(t)

	mustDeposit(t, env, aliceAddr, 10)
	mustDeposit(t, env, bobAddr, 8)
	mustDeposit(t, env, ownerAddr, 4)

	st, _, err := env.engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var sum uint64
	for _, addr := range [][20]byte{aliceAddr, bobAddr, ownerAddr} {
		rec, err := env.engine.Participant(addr)
		if err != nil {
			t.Fatalf("participant: %v", err)
		}
		sum += rec.BaseDeposited.Uint64()
	}
	if st.RaisedAmount.Uint64() != sum {
		t.Fatalf("raised %s != participant sum %d", st.RaisedAmount.Dec(), sum)
	}
	if st.NumBuyers != 3 {
		t.Fatalf("numBuyers = %d, want 3", st.NumBuyers)
	}
	// soldAmount is the raised amount converted through tokenRate.
	if st.SoldAmount.Uint64() != sum*1000 {
		t.Fatalf("sold %s != %d", st.SoldAmount.Dec(), sum*1000)
	}
}

// fillHardcap tops the raise up with count distinct buyers of 10 each.
func fillHardcap(t *testing.T, env *testEnv, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		var buyer [20]byte
		buyer[0] = 0x40
		buyer[1] = byte(i)
		env.base.Mint(buyer, uint256.NewInt(100))
		mustDeposit(t, env, buyer, 10)
	}
}

func TestWithdrawTokensHappyPath(t *testing.T) {
	env := newTestEnv(t)
	mustDeposit(t, env, aliceAddr, 10)
	fillHardcap(t, env, 9)

	env.setNow(600)
	if err := env.engine.WithdrawTokens(aliceAddr); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := env.tokenBalance(t, aliceAddr); got != 10_000 {
		t.Fatalf("alice tokens = %d, want 10000", got)
	}

	// The record is zeroed, not deleted: a second claim finds nothing.
	if err := env.engine.WithdrawTokens(aliceAddr); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("second claim: %v", err)
	}
	rec, err := env.engine.Participant(aliceAddr)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if !rec.BaseDeposited.IsZero() || !rec.SaleAllocated.IsZero() {
		t.Fatal("record not zeroed after claim")
	}

	st, _, err := env.engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.TokensWithdrawn.Uint64() != 10_000 {
		t.Fatalf("tokensWithdrawn = %s", st.TokensWithdrawn.Dec())
	}
}

func TestWithdrawTokensRespectsLockDelay(t *testing.T) {
	env := newTestEnv(t, func(cfg *CampaignConfig) {
		cfg.LockDelay = 200
	})
	mustDeposit(t, env, aliceAddr, 10)
	fillHardcap(t, env, 9)

	// First terminal observation pins the success time.
	env.setNow(600)
	if err := env.engine.WithdrawTokens(aliceAddr); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("inside lock delay: %v", err)
	}
	env.setNow(799)
	if err := env.engine.WithdrawTokens(aliceAddr); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("one second early: %v", err)
	}
	env.setNow(800)
	if err := env.engine.WithdrawTokens(aliceAddr); err != nil {
		t.Fatalf("after lock delay: %v", err)
	}
}

// Scenario C: raised stalls below softcap past the deadline. Refunds succeed,
// token withdrawal reports the wrong phase.
func TestFailedCampaignRefunds(t *testing.T) {
	env := newTestEnv(t)
	mustDeposit(t, env, aliceAddr, 10)
	mustDeposit(t, env, bobAddr, 10)

	env.setNow(1500)
	phase, err := env.engine.Phase()
	if err != nil || phase != PhaseFailed {
		t.Fatalf("phase = %s, %v", phase, err)
	}
	if err := env.engine.WithdrawTokens(aliceAddr); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("withdrawTokens on failed: %v", err)
	}
	if err := env.engine.WithdrawRefund(aliceAddr); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := env.baseBalance(t, aliceAddr); got != 1000 {
		t.Fatalf("alice base = %d, want full 1000 back", got)
	}
	if err := env.engine.WithdrawRefund(aliceAddr); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("second refund: %v", err)
	}

	st, _, err := env.engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.BaseWithdrawn.Uint64() != 10 {
		t.Fatalf("baseWithdrawn = %s", st.BaseWithdrawn.Dec())
	}
}

func TestOwnerRefundSweepsUnsold(t *testing.T) {
	env := newTestEnv(t)
	mustDeposit(t, env, ownerAddr, 10)
	mustDeposit(t, env, aliceAddr, 10)

	env.setNow(1500)
	if err := env.engine.WithdrawRefund(ownerAddr); err != nil {
		t.Fatalf("owner refund: %v", err)
	}
	if got := env.tokenBalance(t, campaignAddr); got != 0 {
		t.Fatalf("campaign still holds %d tokens after owner sweep", got)
	}
	if got := env.tokenBalance(t, ownerAddr); got != 200_000 {
		t.Fatalf("owner tokens = %d, want 200000", got)
	}
	// Non-owner refunds never sweep.
	if err := env.engine.WithdrawRefund(aliceAddr); err != nil {
		t.Fatalf("alice refund: %v", err)
	}
}

func TestCanceledCampaignRefunds(t *testing.T) {
	env := newTestEnv(t)
	mustDeposit(t, env, aliceAddr, 10)

	if err := env.engine.SetCanceled(aliceAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner cancel: %v", err)
	}
	if err := env.engine.SetCanceled(ownerAddr); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	phase, err := env.engine.Phase()
	if err != nil || phase != PhaseCanceled {
		t.Fatalf("phase = %s, %v", phase, err)
	}
	if err := env.engine.WithdrawRefund(aliceAddr); err != nil {
		t.Fatalf("refund after cancel: %v", err)
	}
	if _, err := env.engine.Deposit(bobAddr, uint256.NewInt(5)); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("deposit after cancel: %v", err)
	}
}

func TestFinalizeHappyPath(t *testing.T) {
	env := newTestEnv(t, func(cfg *CampaignConfig) {
		cfg.RaiseMax = uint256.NewInt(100)
	})
	mustDeposit(t, env, aliceAddr, 100)

	env.setNow(600)
	if err := env.engine.Finalize(ownerAddr, receiverAddr); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// 10% fee on 100 raised, then 60% of the remaining 90 seeds the pool at
	// the liquidity rate of 800 tokens per base unit.
	if got := env.baseBalance(t, feeAddr); got != 10 {
		t.Fatalf("fee recipient = %d, want 10", got)
	}
	reserveToken, reserveBase := env.pool.Reserves()
	if reserveBase.Uint64() != 54 || reserveToken.Uint64() != 43_200 {
		t.Fatalf("pool reserves = %s tokens / %s base, want 43200/54", reserveToken.Dec(), reserveBase.Dec())
	}
	if units := env.pool.Liquidity(receiverAddr); units.IsZero() {
		t.Fatal("receiver holds no liquidity units")
	}
	if got := env.baseBalance(t, receiverAddr); got != 36 {
		t.Fatalf("receiver remainder = %d, want 36", got)
	}
	if got := env.baseBalance(t, campaignAddr); got != 0 {
		t.Fatalf("campaign base = %d, want 0", got)
	}

	phase, err := env.engine.Phase()
	if err != nil || phase != PhaseFinalized {
		t.Fatalf("phase = %s, %v", phase, err)
	}
	// Finalize is one-shot.
	if err := env.engine.Finalize(ownerAddr, receiverAddr); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("second finalize: %v", err)
	}
	// And cancellation can no longer rewind it.
	if err := env.engine.SetCanceled(ownerAddr); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("cancel after finalize: %v", err)
	}
}

func TestFinalizeAccessAndPhase(t *testing.T) {
	env := newTestEnv(t)
	mustDeposit(t, env, aliceAddr, 10)

	if err := env.engine.Finalize(aliceAddr, receiverAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner finalize: %v", err)
	}
	if err := env.engine.Finalize(ownerAddr, receiverAddr); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("finalize while active: %v", err)
	}
}

func TestFinalizeInsufficientTokens(t *testing.T) {
	env := newTestEnv(t, func(cfg *CampaignConfig) {
		cfg.RaiseMax = uint256.NewInt(100)
		// A liquidity rate far above the sale rate demands more tokens
		// than the campaign reserve holds.
		cfg.LiquidityRate = uint256.NewInt(10_000)
	})
	mustDeposit(t, env, aliceAddr, 100)

	env.setNow(600)
	feeBefore := env.baseBalance(t, feeAddr)
	if err := env.engine.Finalize(ownerAddr, receiverAddr); !errors.Is(err, ErrInsufficientTokens) {
		t.Fatalf("expected ErrInsufficientTokens, got %v", err)
	}
	// The fee transfer performed before the failure was compensated.
	if got := env.baseBalance(t, feeAddr); got != feeBefore {
		t.Fatalf("fee recipient kept %d after rollback", got-feeBefore)
	}
	if got := env.baseBalance(t, campaignAddr); got != 100 {
		t.Fatalf("campaign base = %d, want 100 restored", got)
	}
	st, _, err := env.engine.Status()
	if err != nil || st.Finalized {
		t.Fatalf("finalized flag set after failed finalize (err %v)", err)
	}
}

// reentrantBase wraps the base gateway and re-enters Deposit from within the
// transfer callback, mimicking a malicious external collaborator.
type reentrantBase struct {
	inner  *bank.Ledger
	engine *Engine
	target [20]byte
	seen   error
}

func (r *reentrantBase) BalanceOf(holder [20]byte) (*uint256.Int, error) {
	return r.inner.BalanceOf(holder)
}

func (r *reentrantBase) Transfer(from, to [20]byte, amount *uint256.Int) error {
	_, r.seen = r.engine.Deposit(r.target, uint256.NewInt(5))
	if r.seen != nil {
		return r.seen
	}
	return r.inner.Transfer(from, to, amount)
}

// Scenario D: a reentrant deposit from within a gateway callback fails on the
// guard and the ledger keeps its prior totals.
func TestReentrantDepositRejected(t *testing.T) {
	env := newTestEnv(t)
	attacker := &reentrantBase{inner: env.base, engine: env.engine, target: bobAddr}
	env.engine.SetBaseGateway(attacker)

	_, err := env.engine.Deposit(aliceAddr, uint256.NewInt(10))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("outer deposit: %v", err)
	}
	if !errors.Is(attacker.seen, common.ErrReentrantCall) {
		t.Fatalf("inner deposit: %v, want ErrReentrantCall", attacker.seen)
	}

	st, _, err := env.engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.RaisedAmount.IsZero() || !st.SoldAmount.IsZero() || st.NumBuyers != 0 {
		t.Fatalf("ledger mutated: raised %s sold %s buyers %d", st.RaisedAmount.Dec(), st.SoldAmount.Dec(), st.NumBuyers)
	}
	rec, err := env.engine.Participant(aliceAddr)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if !rec.BaseDeposited.IsZero() {
		t.Fatalf("participant mutated: %s", rec.BaseDeposited.Dec())
	}
	if got := env.baseBalance(t, aliceAddr); got != 1000 {
		t.Fatalf("alice base = %d, want untouched 1000", got)
	}
}

// statusReadingTokens reads the campaign status from inside the token
// transfer callback, the way a concurrent status query would interleave with
// a settlement in flight.
type statusReadingTokens struct {
	inner  TokenGateway
	engine *Engine
	seen   error
}

func (g *statusReadingTokens) BalanceOf(holder [20]byte) (*uint256.Int, error) {
	return g.inner.BalanceOf(holder)
}

func (g *statusReadingTokens) Approve(owner, spender [20]byte, amount *uint256.Int) error {
	return g.inner.Approve(owner, spender, amount)
}

func (g *statusReadingTokens) Transfer(from, to [20]byte, amount *uint256.Int) error {
	_, _, g.seen = g.engine.Status()
	return g.inner.Transfer(from, to, amount)
}

// A status read that overlaps a guarded mutation must fail on the guard
// instead of loading stale totals and persisting them back over the
// mutation's writes.
func TestStatusSerializedWithMutations(t *testing.T) {
	env := newTestEnv(t)
	mustDeposit(t, env, aliceAddr, 10)
	fillHardcap(t, env, 9)

	reader := &statusReadingTokens{inner: env.tokens, engine: env.engine}
	env.engine.SetTokenGateway(reader)

	env.setNow(600)
	if err := env.engine.WithdrawTokens(aliceAddr); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !errors.Is(reader.seen, common.ErrReentrantCall) {
		t.Fatalf("status during withdraw: %v, want ErrReentrantCall", reader.seen)
	}

	env.engine.SetTokenGateway(env.tokens)
	st, _, err := env.engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.TokensWithdrawn.Uint64() != 10_000 {
		t.Fatalf("tokensWithdrawn = %s, want 10000 intact", st.TokensWithdrawn.Dec())
	}
}

func TestSetSaleMode(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.SetSaleMode(aliceAddr, ModeAllowlisted, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner: %v", err)
	}
	if err := env.engine.SetSaleMode(ownerAddr, ModeAllowlisted, 0); err != nil {
		t.Fatalf("switch to allowlisted: %v", err)
	}
	if _, err := env.engine.Deposit(aliceAddr, uint256.NewInt(5)); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("deposit in allowlisted mode: %v", err)
	}
	if err := env.engine.SetSaleMode(ownerAddr, ModePublic, 0); err != nil {
		t.Fatalf("switch to public: %v", err)
	}
	mustDeposit(t, env, aliceAddr, 5)
}

func TestSetOwnerHandsOver(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.SetOwner(aliceAddr, bobAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner: %v", err)
	}
	if err := env.engine.SetOwner(ownerAddr, bobAddr); err != nil {
		t.Fatalf("handover: %v", err)
	}
	if err := env.engine.SetLockDelay(ownerAddr, 100); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("former owner kept control: %v", err)
	}
	if err := env.engine.SetLockDelay(bobAddr, 100); err != nil {
		t.Fatalf("new owner: %v", err)
	}
}

func TestSetLockDelay(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.SetLockDelay(ownerAddr, -1); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("negative delay: %v", err)
	}
	if err := env.engine.SetLockDelay(ownerAddr, 250); err != nil {
		t.Fatalf("set lock delay: %v", err)
	}
	cfg, err := env.engine.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.LockDelay != 250 {
		t.Fatalf("lockDelay = %d, want 250", cfg.LockDelay)
	}
	ev, ok := env.emitted.last().(events.SaleLockDelaySet)
	if !ok {
		t.Fatalf("last event = %T, want SaleLockDelaySet", env.emitted.last())
	}
	if ev.Delay != 250 {
		t.Fatalf("event delay = %d, want 250", ev.Delay)
	}
}

func TestProgress(t *testing.T) {
	env := newTestEnv(t)

	pct, err := env.engine.Progress()
	if err != nil || pct != 0 {
		t.Fatalf("empty progress = %d, %v", pct, err)
	}
	mustDeposit(t, env, aliceAddr, 10)
	mustDeposit(t, env, bobAddr, 10)
	pct, err = env.engine.Progress()
	if err != nil || pct != 20 {
		t.Fatalf("progress = %d, %v, want 20", pct, err)
	}
}

func TestProgressZeroHardcap(t *testing.T) {
	// A zero hardcap cannot pass Configure, but Progress must still guard
	// the division for state written by older versions.
	ledger := NewLedger(storage.NewMemDB())
	cfg := testConfig()
	cfg.Hardcap = uint256.NewInt(0)
	if err := ledger.ConfigPut(cfg); err != nil {
		t.Fatalf("put config: %v", err)
	}
	engine := NewEngine(ledger)
	pct, err := engine.Progress()
	if err != nil || pct != 0 {
		t.Fatalf("progress = %d, %v, want 0 with no error", pct, err)
	}
}

func TestUnconfiguredEngine(t *testing.T) {
	engine := NewEngine(NewLedger(storage.NewMemDB()))
	engine.SetBaseGateway(bank.NewLedger("BASE"))
	engine.SetTokenGateway(bank.NewLedger("SALE"))
	if _, err := engine.Deposit(aliceAddr, uint256.NewInt(5)); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.SetCanceled(ownerAddr); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("cancel: %v", err)
	}
}
