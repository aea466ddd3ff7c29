package sale

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Error taxonomy shared by the deposit, settlement and finalization engines.
// Every operation either fully succeeds or fails with one of these reasons;
// no partial ledger writes survive a failure.
var (
	ErrUnauthorized         = errors.New("sale: unauthorized")
	ErrAlreadyConfigured    = errors.New("sale: campaign already configured")
	ErrNotConfigured        = errors.New("sale: campaign not configured")
	ErrInvalidConfiguration = errors.New("sale: invalid configuration")
	ErrInvalidPhase         = errors.New("sale: operation not allowed in current phase")
	ErrNotWhitelisted       = errors.New("sale: participant not whitelisted")
	ErrOutOfBounds          = errors.New("sale: deposit outside per-transaction bounds")
	ErrZeroAllocation       = errors.New("sale: deposit converts to zero tokens")
	ErrInsufficientReserve  = errors.New("sale: campaign reserve insufficient")
	ErrInsufficientTokens   = errors.New("sale: token balance insufficient")
	ErrNothingToWithdraw    = errors.New("sale: nothing to withdraw")
	ErrTransferFailed       = errors.New("sale: transfer failed")
)

// SaleMode controls who may deposit. In Allowlisted mode only whitelisted
// addresses participate; Public mode still consults the whitelist until
// PublicUnlockTime has passed.
type SaleMode uint8

const (
	ModePublic SaleMode = iota
	ModeAllowlisted
)

func (m SaleMode) Valid() bool {
	return m == ModePublic || m == ModeAllowlisted
}

func (m SaleMode) String() string {
	switch m {
	case ModePublic:
		return "public"
	case ModeAllowlisted:
		return "allowlisted"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseSaleMode resolves the canonical lowercase mode names.
func ParseSaleMode(s string) (SaleMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return ModePublic, nil
	case "allowlisted", "whitelist", "whitelisted":
		return ModeAllowlisted, nil
	default:
		return ModePublic, fmt.Errorf("sale: unknown sale mode %q", s)
	}
}

// Phase is the lifecycle state derived from configuration, ledger totals and
// wall-clock time. It is never stored; see Engine.Phase.
type Phase uint8

const (
	PhaseQueued Phase = iota
	PhaseActive
	PhaseSuccessful
	PhaseFailed
	PhaseCanceled
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseQueued:
		return "queued"
	case PhaseActive:
		return "active"
	case PhaseSuccessful:
		return "successful"
	case PhaseFailed:
		return "failed"
	case PhaseCanceled:
		return "canceled"
	case PhaseFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Terminal reports whether the phase permanently ends deposits.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSuccessful, PhaseFailed, PhaseCanceled, PhaseFinalized:
		return true
	default:
		return false
	}
}

// CampaignConfig holds the organizer-supplied sale parameters. It is set once
// by Configure and mutated afterwards only through the owner-gated setters.
type CampaignConfig struct {
	Owner        [20]byte
	Token        [20]byte
	Campaign     [20]byte // address holding the campaign's base and token balances
	FeeRecipient [20]byte // fallback when the fee oracle reports a zero recipient

	// TokenRate is the number of sale token units minted per unit of base
	// currency, before dividing by 10^DecimalsAdjustment. LiquidityRate is
	// the equivalent rate applied when seeding the pool.
	TokenRate          *uint256.Int
	LiquidityRate      *uint256.Int
	DecimalsAdjustment uint8

	// RaiseMin and RaiseMax bound a single deposit transaction's value, not
	// the participant's cumulative total.
	RaiseMin *uint256.Int
	RaiseMax *uint256.Int

	Softcap          *uint256.Int
	Hardcap          *uint256.Int
	LiquidityPercent uint8

	StartTime        int64
	EndTime          int64
	Mode             SaleMode
	PublicUnlockTime int64
	LockDelay        int64

	Canceled bool
}

// Clone returns a deep copy so callers can mutate freely without aliasing the
// stored configuration.
func (c *CampaignConfig) Clone() *CampaignConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.TokenRate = cloneAmount(c.TokenRate)
	clone.LiquidityRate = cloneAmount(c.LiquidityRate)
	clone.RaiseMin = cloneAmount(c.RaiseMin)
	clone.RaiseMax = cloneAmount(c.RaiseMax)
	clone.Softcap = cloneAmount(c.Softcap)
	clone.Hardcap = cloneAmount(c.Hardcap)
	return &clone
}

// Validate rejects configurations the engines cannot run safely.
func (c *CampaignConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfiguration)
	}
	if c.Token == ([20]byte{}) {
		return fmt.Errorf("%w: zero token address", ErrInvalidConfiguration)
	}
	if c.Owner == ([20]byte{}) {
		return fmt.Errorf("%w: zero owner address", ErrInvalidConfiguration)
	}
	if c.TokenRate == nil || c.TokenRate.IsZero() {
		return fmt.Errorf("%w: token rate must be positive", ErrInvalidConfiguration)
	}
	if c.LiquidityRate == nil || c.LiquidityRate.IsZero() {
		return fmt.Errorf("%w: liquidity rate must be positive", ErrInvalidConfiguration)
	}
	if c.Hardcap == nil || c.Hardcap.IsZero() {
		return fmt.Errorf("%w: hardcap must be positive", ErrInvalidConfiguration)
	}
	if c.Softcap == nil || c.Softcap.Cmp(c.Hardcap) > 0 {
		return fmt.Errorf("%w: softcap exceeds hardcap", ErrInvalidConfiguration)
	}
	if c.RaiseMin == nil || c.RaiseMax == nil || c.RaiseMin.Cmp(c.RaiseMax) > 0 {
		return fmt.Errorf("%w: raise bounds inverted", ErrInvalidConfiguration)
	}
	if c.RaiseMax.IsZero() {
		return fmt.Errorf("%w: raise max must be positive", ErrInvalidConfiguration)
	}
	if c.LiquidityPercent > 100 {
		return fmt.Errorf("%w: liquidity percent above 100", ErrInvalidConfiguration)
	}
	if c.StartTime >= c.EndTime {
		return fmt.Errorf("%w: start time not before end time", ErrInvalidConfiguration)
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: unknown sale mode", ErrInvalidConfiguration)
	}
	if c.LockDelay < 0 {
		return fmt.Errorf("%w: negative lock delay", ErrInvalidConfiguration)
	}
	return nil
}

// CampaignStatus tracks campaign-wide mutable totals. Invariants maintained by
// the engines: RaisedAmount never exceeds the hardcap, TokensWithdrawn never
// exceeds SoldAmount, BaseWithdrawn never exceeds RaisedAmount, and Finalized
// is one-way.
type CampaignStatus struct {
	RaisedAmount    *uint256.Int
	SoldAmount      *uint256.Int
	TokensWithdrawn *uint256.Int
	BaseWithdrawn   *uint256.Int
	NumBuyers       uint64

	// EndTime is the wall-clock instant at which the campaign was first
	// observed terminal-successful, set once.
	EndTime   int64
	Finalized bool
}

func newCampaignStatus() *CampaignStatus {
	return &CampaignStatus{
		RaisedAmount:    uint256.NewInt(0),
		SoldAmount:      uint256.NewInt(0),
		TokensWithdrawn: uint256.NewInt(0),
		BaseWithdrawn:   uint256.NewInt(0),
	}
}

// Clone returns a deep copy of the status.
func (s *CampaignStatus) Clone() *CampaignStatus {
	if s == nil {
		return newCampaignStatus()
	}
	clone := *s
	clone.RaisedAmount = cloneAmount(s.RaisedAmount)
	clone.SoldAmount = cloneAmount(s.SoldAmount)
	clone.TokensWithdrawn = cloneAmount(s.TokensWithdrawn)
	clone.BaseWithdrawn = cloneAmount(s.BaseWithdrawn)
	return &clone
}

// ParticipantRecord tracks one address's contribution. Records are created
// lazily on first deposit and zeroed, never deleted, when claimed.
type ParticipantRecord struct {
	BaseDeposited *uint256.Int
	SaleAllocated *uint256.Int
}

func newParticipantRecord() *ParticipantRecord {
	return &ParticipantRecord{
		BaseDeposited: uint256.NewInt(0),
		SaleAllocated: uint256.NewInt(0),
	}
}

// Clone returns a deep copy of the record.
func (p *ParticipantRecord) Clone() *ParticipantRecord {
	if p == nil {
		return newParticipantRecord()
	}
	return &ParticipantRecord{
		BaseDeposited: cloneAmount(p.BaseDeposited),
		SaleAllocated: cloneAmount(p.SaleAllocated),
	}
}
