package events

import (
	"encoding/hex"
	"strconv"

	"github.com/holiman/uint256"

	"launchpad/core/types"
)

const (
	TypeSaleConfigured    = "sale.configured"
	TypeSaleDeposit       = "sale.deposit"
	TypeSaleTokensClaimed = "sale.tokens_claimed"
	TypeSaleRefunded      = "sale.refunded"
	TypeSaleUnsoldSwept   = "sale.unsold_swept"
	TypeSaleFinalized     = "sale.finalized"
	TypeSaleCanceled      = "sale.canceled"
	TypeSaleWhitelist     = "sale.whitelist_updated"
	TypeSaleModeChanged   = "sale.mode_changed"
	TypeSaleOwnerChanged  = "sale.owner_changed"
	TypeSaleLockDelaySet  = "sale.lock_delay_set"
)

type SaleConfigured struct {
	Token     [20]byte
	Owner     [20]byte
	Softcap   *uint256.Int
	Hardcap   *uint256.Int
	StartTime int64
	EndTime   int64
}

func (SaleConfigured) EventType() string { return TypeSaleConfigured }

func (e SaleConfigured) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleConfigured,
		Attributes: map[string]string{
			"token":     addrHex(e.Token),
			"owner":     addrHex(e.Owner),
			"softcap":   formatAmount(e.Softcap),
			"hardcap":   formatAmount(e.Hardcap),
			"startTime": intToString(e.StartTime),
			"endTime":   intToString(e.EndTime),
		},
	}
}

// SaleDeposit records an accepted contribution. Submitted carries the original
// value the buyer sent, Accepted the clipped amount actually credited and
// Returned the surplus handed back in the same operation.
type SaleDeposit struct {
	Buyer     [20]byte
	Submitted *uint256.Int
	Accepted  *uint256.Int
	Returned  *uint256.Int
	Tokens    *uint256.Int
}

func (SaleDeposit) EventType() string { return TypeSaleDeposit }

func (e SaleDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleDeposit,
		Attributes: map[string]string{
			"buyer":     addrHex(e.Buyer),
			"submitted": formatAmount(e.Submitted),
			"accepted":  formatAmount(e.Accepted),
			"returned":  formatAmount(e.Returned),
			"tokens":    formatAmount(e.Tokens),
		},
	}
}

type SaleTokensClaimed struct {
	Buyer  [20]byte
	Amount *uint256.Int
}

func (SaleTokensClaimed) EventType() string { return TypeSaleTokensClaimed }

func (e SaleTokensClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleTokensClaimed,
		Attributes: map[string]string{
			"buyer":  addrHex(e.Buyer),
			"amount": formatAmount(e.Amount),
		},
	}
}

type SaleRefunded struct {
	Buyer  [20]byte
	Amount *uint256.Int
}

func (SaleRefunded) EventType() string { return TypeSaleRefunded }

func (e SaleRefunded) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleRefunded,
		Attributes: map[string]string{
			"buyer":  addrHex(e.Buyer),
			"amount": formatAmount(e.Amount),
		},
	}
}

type SaleUnsoldSwept struct {
	Owner  [20]byte
	Amount *uint256.Int
}

func (SaleUnsoldSwept) EventType() string { return TypeSaleUnsoldSwept }

func (e SaleUnsoldSwept) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleUnsoldSwept,
		Attributes: map[string]string{
			"owner":  addrHex(e.Owner),
			"amount": formatAmount(e.Amount),
		},
	}
}

type SaleFinalized struct {
	Receiver        [20]byte
	Fee             *uint256.Int
	LiquidityBase   *uint256.Int
	LiquidityTokens *uint256.Int
	Remainder       *uint256.Int
}

func (SaleFinalized) EventType() string { return TypeSaleFinalized }

func (e SaleFinalized) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleFinalized,
		Attributes: map[string]string{
			"receiver":        addrHex(e.Receiver),
			"fee":             formatAmount(e.Fee),
			"liquidityBase":   formatAmount(e.LiquidityBase),
			"liquidityTokens": formatAmount(e.LiquidityTokens),
			"remainder":       formatAmount(e.Remainder),
		},
	}
}

type SaleCanceled struct {
	Owner [20]byte
}

func (SaleCanceled) EventType() string { return TypeSaleCanceled }

func (e SaleCanceled) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleCanceled,
		Attributes: map[string]string{
			"owner": addrHex(e.Owner),
		},
	}
}

type SaleWhitelistUpdated struct {
	Added   int
	Removed int
}

func (SaleWhitelistUpdated) EventType() string { return TypeSaleWhitelist }

func (e SaleWhitelistUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleWhitelist,
		Attributes: map[string]string{
			"added":   strconv.Itoa(e.Added),
			"removed": strconv.Itoa(e.Removed),
		},
	}
}

type SaleModeChanged struct {
	Mode       string
	UnlockTime int64
}

func (SaleModeChanged) EventType() string { return TypeSaleModeChanged }

func (e SaleModeChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleModeChanged,
		Attributes: map[string]string{
			"mode":       e.Mode,
			"unlockTime": intToString(e.UnlockTime),
		},
	}
}

type SaleOwnerChanged struct {
	Previous [20]byte
	Next     [20]byte
}

func (SaleOwnerChanged) EventType() string { return TypeSaleOwnerChanged }

func (e SaleOwnerChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleOwnerChanged,
		Attributes: map[string]string{
			"previous": addrHex(e.Previous),
			"next":     addrHex(e.Next),
		},
	}
}

type SaleLockDelaySet struct {
	Delay int64
}

func (SaleLockDelaySet) EventType() string { return TypeSaleLockDelaySet }

func (e SaleLockDelaySet) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleLockDelaySet,
		Attributes: map[string]string{
			"delay": intToString(e.Delay),
		},
	}
}

func addrHex(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
