package sale

import (
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"launchpad/core/events"
	"launchpad/native/common"
)

// Engine wires the crowdsale business logic with the persistence ledger and
// the external collaborators. All state-mutating entry points share a single
// non-reentrant call guard; a campaign instance is therefore one logical
// serialized unit regardless of how callers interleave.
type Engine struct {
	guard   common.CallGuard
	ledger  *Ledger
	tokens  TokenGateway
	base    BaseGateway
	pool    LiquidityGateway
	oracle  FeeOracle
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a sale engine bound to the supplied ledger with a no-op
// emitter. Gateways are wired via the setters before the first operation.
func NewEngine(ledger *Ledger) *Engine {
	return &Engine{
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetTokenGateway configures the sale-token collaborator.
func (e *Engine) SetTokenGateway(gateway TokenGateway) { e.tokens = gateway }

// SetBaseGateway configures the base-currency collaborator.
func (e *Engine) SetBaseGateway(gateway BaseGateway) { e.base = gateway }

// SetLiquidityGateway configures the pool-seeding collaborator.
func (e *Engine) SetLiquidityGateway(gateway LiquidityGateway) { e.pool = gateway }

// SetFeeOracle configures the fee-split collaborator queried at finalization.
func (e *Engine) SetFeeOracle(oracle FeeOracle) { e.oracle = oracle }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadCampaign() (*CampaignConfig, *CampaignStatus, error) {
	if e == nil || e.ledger == nil {
		return nil, nil, fmt.Errorf("sale: engine not configured")
	}
	cfg, ok, err := e.ledger.ConfigGet()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNotConfigured
	}
	st, err := e.ledger.StatusGet()
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// phaseOf derives the current phase and persists the success-time memo the
// first time a terminal success is observed.
func (e *Engine) phaseOf(cfg *CampaignConfig, st *CampaignStatus, now int64) (Phase, error) {
	phase, recorded := derivePhase(cfg, st, now)
	if recorded {
		if err := e.ledger.StatusPut(st); err != nil {
			return phase, err
		}
	}
	return phase, nil
}

func requireOwner(cfg *CampaignConfig, caller [20]byte) error {
	if cfg == nil || caller != cfg.Owner {
		return ErrUnauthorized
	}
	return nil
}

// deriveCampaignAddress produces the address holding the campaign's balances
// when the configuration does not pin one explicitly.
func deriveCampaignAddress(owner, token [20]byte, startTime int64) [20]byte {
	seed := make([]byte, 0, 48)
	seed = append(seed, owner[:]...)
	seed = append(seed, token[:]...)
	seed = append(seed, byte(startTime>>24), byte(startTime>>16), byte(startTime>>8), byte(startTime))
	digest := ethcrypto.Keccak256(seed)
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// Configure initialises the campaign exactly once. The configuration is
// immutable afterwards except through the explicitly exposed owner setters.
func (e *Engine) Configure(cfg *CampaignConfig) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if e.ledger == nil {
		return fmt.Errorf("sale: engine not configured")
	}
	if _, ok, err := e.ledger.ConfigGet(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyConfigured
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	stored := cfg.Clone()
	if stored.Campaign == ([20]byte{}) {
		stored.Campaign = deriveCampaignAddress(stored.Owner, stored.Token, stored.StartTime)
	}
	if err := e.ledger.ConfigPut(stored); err != nil {
		return err
	}
	if err := e.ledger.StatusPut(newCampaignStatus()); err != nil {
		return err
	}
	e.emit(events.SaleConfigured{
		Token:     stored.Token,
		Owner:     stored.Owner,
		Softcap:   cloneAmount(stored.Softcap),
		Hardcap:   cloneAmount(stored.Hardcap),
		StartTime: stored.StartTime,
		EndTime:   stored.EndTime,
	})
	return nil
}

// DepositResult reports the outcome of an accepted contribution.
type DepositResult struct {
	Accepted *uint256.Int
	Returned *uint256.Int
	Tokens   *uint256.Int
}

// Deposit validates and records a contribution of value base currency from
// the participant. Deposits that exceed remaining per-buyer or global room
// are clipped, never rejected: only the accepted portion is pulled from the
// participant, so the surplus stays with the sender in the same operation.
func (e *Engine) Deposit(participant [20]byte, value *uint256.Int) (*DepositResult, error) {
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	if e.base == nil || e.tokens == nil {
		return nil, fmt.Errorf("sale: gateways not configured")
	}
	cfg, st, err := e.loadCampaign()
	if err != nil {
		return nil, err
	}
	now := e.now()
	phase, err := e.phaseOf(cfg, st, now)
	if err != nil {
		return nil, err
	}
	if phase != PhaseActive {
		return nil, fmt.Errorf("%w: deposit requires active, campaign is %s", ErrInvalidPhase, phase)
	}
	if err := e.checkAccess(cfg, participant, now); err != nil {
		return nil, err
	}
	value = cloneAmount(value)
	if value.Cmp(cfg.RaiseMin) < 0 || value.Cmp(cfg.RaiseMax) > 0 {
		return nil, fmt.Errorf("%w: value %s outside [%s, %s]", ErrOutOfBounds, value.Dec(), cfg.RaiseMin.Dec(), cfg.RaiseMax.Dec())
	}

	rec, err := e.ledger.ParticipantGet(participant)
	if err != nil {
		return nil, err
	}
	perBuyerRoom, err := checkedSub(cfg.RaiseMax, rec.BaseDeposited)
	if err != nil {
		perBuyerRoom = uint256.NewInt(0)
	}
	globalRoom, err := checkedSub(cfg.Hardcap, st.RaisedAmount)
	if err != nil {
		return nil, err
	}
	accepted := minAmount(value, perBuyerRoom, globalRoom)
	tokensSold, err := e.convert(accepted, cfg.TokenRate, cfg.DecimalsAdjustment)
	if err != nil {
		return nil, err
	}
	if tokensSold.IsZero() {
		return nil, ErrZeroAllocation
	}

	// The campaign must already hold enough sale tokens to cover every
	// allocation outstanding after this deposit.
	reserve, err := e.tokens.BalanceOf(cfg.Campaign)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	outstanding, err := checkedSub(st.SoldAmount, st.TokensWithdrawn)
	if err != nil {
		return nil, err
	}
	required, err := checkedAdd(outstanding, tokensSold)
	if err != nil {
		return nil, err
	}
	if reserve.Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: reserve %s below required %s", ErrInsufficientReserve, reserve.Dec(), required.Dec())
	}

	prevRec := rec.Clone()
	prevStatus := st.Clone()

	if rec.BaseDeposited.IsZero() {
		st.NumBuyers++
	}
	if rec.BaseDeposited, err = checkedAdd(rec.BaseDeposited, accepted); err != nil {
		return nil, err
	}
	if rec.SaleAllocated, err = checkedAdd(rec.SaleAllocated, tokensSold); err != nil {
		return nil, err
	}
	if st.RaisedAmount, err = checkedAdd(st.RaisedAmount, accepted); err != nil {
		return nil, err
	}
	if st.SoldAmount, err = checkedAdd(st.SoldAmount, tokensSold); err != nil {
		return nil, err
	}
	if err := e.ledger.ParticipantPut(participant, rec); err != nil {
		return nil, err
	}
	if err := e.ledger.StatusPut(st); err != nil {
		// Participant write may already be durable; restore it.
		_ = e.ledger.ParticipantPut(participant, prevRec)
		return nil, err
	}

	if err := e.base.Transfer(participant, cfg.Campaign, accepted); err != nil {
		_ = e.ledger.ParticipantPut(participant, prevRec)
		_ = e.ledger.StatusPut(prevStatus)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	returned, err := checkedSub(value, accepted)
	if err != nil {
		returned = uint256.NewInt(0)
	}
	e.emit(events.SaleDeposit{
		Buyer:     participant,
		Submitted: cloneAmount(value),
		Accepted:  cloneAmount(accepted),
		Returned:  cloneAmount(returned),
		Tokens:    cloneAmount(tokensSold),
	})
	return &DepositResult{Accepted: accepted, Returned: returned, Tokens: tokensSold}, nil
}

// checkAccess enforces the whitelist rules for the current sale mode.
func (e *Engine) checkAccess(cfg *CampaignConfig, participant [20]byte, now int64) error {
	gated := cfg.Mode == ModeAllowlisted ||
		(cfg.Mode == ModePublic && cfg.PublicUnlockTime > 0 && now < cfg.PublicUnlockTime)
	if !gated {
		return nil
	}
	listed, err := e.ledger.Whitelisted(participant)
	if err != nil {
		return err
	}
	if !listed {
		return ErrNotWhitelisted
	}
	return nil
}

// convert turns a base-currency amount into sale tokens at the given rate.
func (e *Engine) convert(amount, rate *uint256.Int, adjustment uint8) (*uint256.Int, error) {
	scaled, err := checkedMul(amount, rate)
	if err != nil {
		return nil, err
	}
	divisor, err := pow10(adjustment)
	if err != nil {
		return nil, err
	}
	return checkedDiv(scaled, divisor)
}

// Phase reports the campaign's current lifecycle phase. It takes the call
// guard: the first observation of a terminal success persists the
// success-time memo, and that write must not interleave with a mutation in
// flight.
func (e *Engine) Phase() (Phase, error) {
	if err := e.guard.Enter(); err != nil {
		return PhaseQueued, err
	}
	defer e.guard.Exit()
	cfg, st, err := e.loadCampaign()
	if err != nil {
		return PhaseQueued, err
	}
	return e.phaseOf(cfg, st, e.now())
}

// Status returns a copy of the campaign totals together with the phase. Takes
// the call guard for the same reason as Phase.
func (e *Engine) Status() (*CampaignStatus, Phase, error) {
	if err := e.guard.Enter(); err != nil {
		return nil, PhaseQueued, err
	}
	defer e.guard.Exit()
	cfg, st, err := e.loadCampaign()
	if err != nil {
		return nil, PhaseQueued, err
	}
	phase, err := e.phaseOf(cfg, st, e.now())
	if err != nil {
		return nil, PhaseQueued, err
	}
	return st.Clone(), phase, nil
}

// Config returns a copy of the campaign configuration.
func (e *Engine) Config() (*CampaignConfig, error) {
	cfg, _, err := e.loadCampaign()
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

// Progress reports raised/hardcap as a whole percentage. A zero hardcap is
// reported as zero progress rather than a division failure.
func (e *Engine) Progress() (uint64, error) {
	cfg, st, err := e.loadCampaign()
	if err != nil {
		return 0, err
	}
	if cfg.Hardcap == nil || cfg.Hardcap.IsZero() {
		return 0, nil
	}
	scaled, err := checkedMul(st.RaisedAmount, uint256.NewInt(100))
	if err != nil {
		return 0, err
	}
	pct, err := checkedDiv(scaled, cfg.Hardcap)
	if err != nil {
		return 0, err
	}
	return pct.Uint64(), nil
}

// Participant returns a copy of the record for the supplied address.
func (e *Engine) Participant(addr [20]byte) (*ParticipantRecord, error) {
	if e == nil || e.ledger == nil {
		return nil, fmt.Errorf("sale: engine not configured")
	}
	rec, err := e.ledger.ParticipantGet(addr)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}
