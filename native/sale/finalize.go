package sale

import (
	"fmt"

	"github.com/holiman/uint256"

	"launchpad/core/events"
)

// finalizeDeadlineSlack bounds how long the pool-seeding call may remain
// pending before the liquidity gateway must reject it.
const finalizeDeadlineSlack int64 = 300

// Finalize splits the raised proceeds, seeds the liquidity pool and marks the
// campaign permanently finalized. Owner-only and callable exactly once: any
// failure before the terminal flag is written unwinds every transfer
// performed in the same call and leaves the campaign Successful.
func (e *Engine) Finalize(caller, liquidityReceiver [20]byte) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if e.base == nil || e.tokens == nil || e.pool == nil || e.oracle == nil {
		return fmt.Errorf("sale: gateways not configured")
	}
	cfg, st, err := e.loadCampaign()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return err
	}
	now := e.now()
	phase, err := e.phaseOf(cfg, st, now)
	if err != nil {
		return err
	}
	if phase != PhaseSuccessful {
		return fmt.Errorf("%w: finalize requires successful, campaign is %s", ErrInvalidPhase, phase)
	}

	// Transfers performed before a failure are compensated in reverse order.
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	recipient, err := e.oracle.FeeRecipient()
	if err != nil {
		return fmt.Errorf("%w: fee oracle: %v", ErrTransferFailed, err)
	}
	if recipient == ([20]byte{}) {
		recipient = cfg.FeeRecipient
	}
	percent, err := e.oracle.FeePercent()
	if err != nil {
		return fmt.Errorf("%w: fee oracle: %v", ErrTransferFailed, err)
	}
	if percent > 100 {
		return fmt.Errorf("%w: fee percent %d above 100", ErrInvalidConfiguration, percent)
	}

	balance, err := e.base.BalanceOf(cfg.Campaign)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	fee, err := percentOf(balance, percent)
	if err != nil {
		return err
	}
	if !fee.IsZero() && recipient != ([20]byte{}) {
		if err := e.base.Transfer(cfg.Campaign, recipient, fee); err != nil {
			return fmt.Errorf("%w: fee transfer: %v", ErrTransferFailed, err)
		}
		feePaid := cloneAmount(fee)
		feeRecipient := recipient
		undo = append(undo, func() { _ = e.base.Transfer(feeRecipient, cfg.Campaign, feePaid) })
	}

	remaining, err := e.base.BalanceOf(cfg.Campaign)
	if err != nil {
		rollback()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	liquidityBase, err := percentOf(remaining, cfg.LiquidityPercent)
	if err != nil {
		rollback()
		return err
	}
	liquidityTokens, err := e.convert(liquidityBase, cfg.LiquidityRate, cfg.DecimalsAdjustment)
	if err != nil {
		rollback()
		return err
	}
	tokenBalance, err := e.tokens.BalanceOf(cfg.Campaign)
	if err != nil {
		rollback()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if tokenBalance.Cmp(liquidityTokens) < 0 {
		rollback()
		return fmt.Errorf("%w: need %s sale tokens for liquidity, hold %s", ErrInsufficientTokens, liquidityTokens.Dec(), tokenBalance.Dec())
	}

	poolAddr := gatewayAddress(e.pool)
	if err := e.tokens.Approve(cfg.Campaign, poolAddr, liquidityTokens); err != nil {
		rollback()
		return fmt.Errorf("%w: approve: %v", ErrTransferFailed, err)
	}
	undo = append(undo, func() { _ = e.tokens.Approve(cfg.Campaign, poolAddr, uint256.NewInt(0)) })

	tokenUsed, baseUsed, err := e.pool.AddLiquidity(cfg.Token, liquidityTokens, liquidityBase, uint256.NewInt(0), uint256.NewInt(0), liquidityReceiver, now+finalizeDeadlineSlack)
	if err != nil {
		rollback()
		return fmt.Errorf("%w: add liquidity: %v", ErrTransferFailed, err)
	}

	remainder, err := checkedSub(remaining, baseUsed)
	if err != nil {
		rollback()
		return err
	}
	if !remainder.IsZero() {
		if err := e.base.Transfer(cfg.Campaign, liquidityReceiver, remainder); err != nil {
			rollback()
			return fmt.Errorf("%w: remainder transfer: %v", ErrTransferFailed, err)
		}
	}

	st.Finalized = true
	if st.EndTime == 0 {
		st.EndTime = now
	}
	if err := e.ledger.StatusPut(st); err != nil {
		if !remainder.IsZero() {
			_ = e.base.Transfer(liquidityReceiver, cfg.Campaign, remainder)
		}
		rollback()
		return err
	}

	e.emit(events.SaleFinalized{
		Receiver:        liquidityReceiver,
		Fee:             cloneAmount(fee),
		LiquidityBase:   cloneAmount(baseUsed),
		LiquidityTokens: cloneAmount(tokenUsed),
		Remainder:       cloneAmount(remainder),
	})
	return nil
}

// percentOf computes value*percent/100 through the checked helpers.
func percentOf(value *uint256.Int, percent uint8) (*uint256.Int, error) {
	scaled, err := checkedMul(value, uint256.NewInt(uint64(percent)))
	if err != nil {
		return nil, err
	}
	return checkedDiv(scaled, uint256.NewInt(100))
}

// gatewayAddress resolves the spender address a pool implementation pulls
// approved tokens from. Gateways that expose no identity fall back to the
// zero address; in-process pools ignore the approval entirely.
func gatewayAddress(pool LiquidityGateway) [20]byte {
	type addressed interface{ Address() [20]byte }
	if a, ok := pool.(addressed); ok {
		return a.Address()
	}
	return [20]byte{}
}
