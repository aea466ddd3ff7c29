package sale

import (
	"fmt"

	"launchpad/core/events"
)

// AddWhitelist grants the supplied addresses allow-listed access. Owner-only,
// batched and idempotent: addresses already present are counted as no-ops.
func (e *Engine) AddWhitelist(caller [20]byte, addrs [][20]byte) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	cfg, _, err := e.loadCampaign()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return err
	}
	added := 0
	for _, addr := range addrs {
		present, err := e.ledger.Whitelisted(addr)
		if err != nil {
			return err
		}
		if present {
			continue
		}
		if err := e.ledger.WhitelistAdd(addr); err != nil {
			return err
		}
		added++
	}
	if added > 0 {
		e.emit(events.SaleWhitelistUpdated{Added: added})
	}
	return nil
}

// RemoveWhitelist revokes allow-listed access. Owner-only, batched and
// idempotent.
func (e *Engine) RemoveWhitelist(caller [20]byte, addrs [][20]byte) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	cfg, _, err := e.loadCampaign()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return err
	}
	removed := 0
	for _, addr := range addrs {
		present, err := e.ledger.Whitelisted(addr)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		if err := e.ledger.WhitelistRemove(addr); err != nil {
			return err
		}
		removed++
	}
	if removed > 0 {
		e.emit(events.SaleWhitelistUpdated{Removed: removed})
	}
	return nil
}

// Whitelisted reports whether the address currently holds allow-listed
// access.
func (e *Engine) Whitelisted(addr [20]byte) (bool, error) {
	if e == nil || e.ledger == nil {
		return false, fmt.Errorf("sale: engine not configured")
	}
	return e.ledger.Whitelisted(addr)
}

// SetSaleMode switches between public and allow-listed participation. For
// public mode an optional unlock time keeps the whitelist in force until the
// supplied instant.
func (e *Engine) SetSaleMode(caller [20]byte, mode SaleMode, unlockTime int64) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	cfg, _, err := e.loadCampaign()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown sale mode", ErrInvalidConfiguration)
	}
	if unlockTime < 0 {
		return fmt.Errorf("%w: negative unlock time", ErrInvalidConfiguration)
	}
	cfg.Mode = mode
	if mode == ModePublic {
		cfg.PublicUnlockTime = unlockTime
	} else {
		cfg.PublicUnlockTime = 0
	}
	if err := e.ledger.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(events.SaleModeChanged{Mode: mode.String(), UnlockTime: cfg.PublicUnlockTime})
	return nil
}

// SetCanceled aborts the campaign. Once canceled participants claim refunds;
// a finalized campaign can no longer be canceled.
func (e *Engine) SetCanceled(caller [20]byte) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	cfg, st, err := e.loadCampaign()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return err
	}
	if st.Finalized {
		return fmt.Errorf("%w: campaign already finalized", ErrInvalidPhase)
	}
	if cfg.Canceled {
		return nil
	}
	cfg.Canceled = true
	if err := e.ledger.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(events.SaleCanceled{Owner: caller})
	return nil
}

// SetLockDelay adjusts the waiting period between success and the first token
// withdrawal.
func (e *Engine) SetLockDelay(caller [20]byte, delay int64) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	cfg, _, err := e.loadCampaign()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return err
	}
	if delay < 0 {
		return fmt.Errorf("%w: negative lock delay", ErrInvalidConfiguration)
	}
	cfg.LockDelay = delay
	if err := e.ledger.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(events.SaleLockDelaySet{Delay: delay})
	return nil
}

// SetOwner hands campaign control to a new owner address.
func (e *Engine) SetOwner(caller, next [20]byte) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	cfg, _, err := e.loadCampaign()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return err
	}
	if next == ([20]byte{}) {
		return fmt.Errorf("%w: zero owner address", ErrInvalidConfiguration)
	}
	previous := cfg.Owner
	cfg.Owner = next
	if err := e.ledger.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(events.SaleOwnerChanged{Previous: previous, Next: next})
	return nil
}

// SetFeeRecipient configures the fallback recipient used when the fee oracle
// reports a zero address at finalization.
func (e *Engine) SetFeeRecipient(caller, recipient [20]byte) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	cfg, _, err := e.loadCampaign()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return err
	}
	cfg.FeeRecipient = recipient
	return e.ledger.ConfigPut(cfg)
}
