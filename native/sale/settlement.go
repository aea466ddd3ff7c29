package sale

import (
	"fmt"

	"github.com/holiman/uint256"

	"launchpad/core/events"
)

// WithdrawTokens transfers the participant's full sale-token allocation once
// the campaign has succeeded and the lock delay has elapsed. The record is
// zeroed, never deleted, so a second call fails with ErrNothingToWithdraw.
func (e *Engine) WithdrawTokens(participant [20]byte) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if e.tokens == nil {
		return fmt.Errorf("sale: gateways not configured")
	}
	cfg, st, err := e.loadCampaign()
	if err != nil {
		return err
	}
	now := e.now()
	phase, err := e.phaseOf(cfg, st, now)
	if err != nil {
		return err
	}
	if phase != PhaseSuccessful {
		return fmt.Errorf("%w: token withdrawal requires successful, campaign is %s", ErrInvalidPhase, phase)
	}
	if now < st.EndTime+cfg.LockDelay {
		return fmt.Errorf("%w: lock delay active until %d", ErrInvalidPhase, st.EndTime+cfg.LockDelay)
	}
	rec, err := e.ledger.ParticipantGet(participant)
	if err != nil {
		return err
	}
	if rec.SaleAllocated.IsZero() {
		return ErrNothingToWithdraw
	}
	remaining, err := checkedSub(st.SoldAmount, st.TokensWithdrawn)
	if err != nil {
		return err
	}
	if remaining.Cmp(rec.SaleAllocated) < 0 {
		return ErrNothingToWithdraw
	}

	prevRec := rec.Clone()
	prevStatus := st.Clone()
	amount := cloneAmount(rec.SaleAllocated)

	if st.TokensWithdrawn, err = checkedAdd(st.TokensWithdrawn, amount); err != nil {
		return err
	}
	rec.BaseDeposited.Clear()
	rec.SaleAllocated.Clear()
	if err := e.ledger.ParticipantPut(participant, rec); err != nil {
		return err
	}
	if err := e.ledger.StatusPut(st); err != nil {
		_ = e.ledger.ParticipantPut(participant, prevRec)
		return err
	}

	if err := e.tokens.Transfer(cfg.Campaign, participant, amount); err != nil {
		_ = e.ledger.ParticipantPut(participant, prevRec)
		_ = e.ledger.StatusPut(prevStatus)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(events.SaleTokensClaimed{Buyer: participant, Amount: cloneAmount(amount)})
	return nil
}

// WithdrawRefund returns the caller's base-currency deposit once the campaign
// has failed or been canceled. When the caller is the campaign owner the
// unsold sale-token balance is swept back to the owner in the same operation.
func (e *Engine) WithdrawRefund(caller [20]byte) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if e.base == nil || e.tokens == nil {
		return fmt.Errorf("sale: gateways not configured")
	}
	cfg, st, err := e.loadCampaign()
	if err != nil {
		return err
	}
	phase, err := e.phaseOf(cfg, st, e.now())
	if err != nil {
		return err
	}
	if phase != PhaseFailed && phase != PhaseCanceled {
		return fmt.Errorf("%w: refund requires failed or canceled, campaign is %s", ErrInvalidPhase, phase)
	}
	rec, err := e.ledger.ParticipantGet(caller)
	if err != nil {
		return err
	}
	if rec.BaseDeposited.IsZero() {
		return ErrNothingToWithdraw
	}
	balance, err := e.base.BalanceOf(cfg.Campaign)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if balance.Cmp(rec.BaseDeposited) < 0 {
		return fmt.Errorf("%w: campaign balance %s below deposit %s", ErrInsufficientReserve, balance.Dec(), rec.BaseDeposited.Dec())
	}

	prevRec := rec.Clone()
	prevStatus := st.Clone()
	amount := cloneAmount(rec.BaseDeposited)

	if st.BaseWithdrawn, err = checkedAdd(st.BaseWithdrawn, amount); err != nil {
		return err
	}
	rec.BaseDeposited.Clear()
	rec.SaleAllocated.Clear()
	if err := e.ledger.ParticipantPut(caller, rec); err != nil {
		return err
	}
	if err := e.ledger.StatusPut(st); err != nil {
		_ = e.ledger.ParticipantPut(caller, prevRec)
		return err
	}

	if err := e.base.Transfer(cfg.Campaign, caller, amount); err != nil {
		_ = e.ledger.ParticipantPut(caller, prevRec)
		_ = e.ledger.StatusPut(prevStatus)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(events.SaleRefunded{Buyer: caller, Amount: cloneAmount(amount)})

	if caller == cfg.Owner {
		if err := e.sweepUnsold(cfg, caller, prevRec, prevStatus, amount); err != nil {
			return err
		}
	}
	return nil
}

// sweepUnsold returns the campaign's remaining sale-token balance to the
// owner. It runs only as a coupled side effect of the owner's own refund.
func (e *Engine) sweepUnsold(cfg *CampaignConfig, owner [20]byte, prevRec *ParticipantRecord, prevStatus *CampaignStatus, refunded *uint256.Int) error {
	unsold, err := e.tokens.BalanceOf(cfg.Campaign)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if unsold.IsZero() {
		return nil
	}
	if err := e.tokens.Transfer(cfg.Campaign, owner, unsold); err != nil {
		// Unwind the refund so the operation stays atomic.
		_ = e.base.Transfer(owner, cfg.Campaign, refunded)
		_ = e.ledger.ParticipantPut(owner, prevRec)
		_ = e.ledger.StatusPut(prevStatus)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(events.SaleUnsoldSwept{Owner: owner, Amount: cloneAmount(unsold)})
	return nil
}
