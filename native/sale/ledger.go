package sale

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"launchpad/storage"
)

// Ledger persists the campaign configuration, campaign-wide totals, and
// per-participant records in the underlying key-value store. Amounts are
// stored as decimal strings and times as unsigned seconds so the RLP encoding
// stays canonical.
type Ledger struct {
	db storage.Database
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

type storedConfig struct {
	Owner              [20]byte
	Token              [20]byte
	Campaign           [20]byte
	FeeRecipient       [20]byte
	TokenRate          string
	LiquidityRate      string
	DecimalsAdjustment uint8
	RaiseMin           string
	RaiseMax           string
	Softcap            string
	Hardcap            string
	LiquidityPercent   uint8
	StartTime          uint64
	EndTime            uint64
	Mode               uint8
	PublicUnlockTime   uint64
	LockDelay          uint64
	Canceled           bool
}

type storedStatus struct {
	RaisedAmount    string
	SoldAmount      string
	TokensWithdrawn string
	BaseWithdrawn   string
	NumBuyers       uint64
	EndTime         uint64
	Finalized       bool
}

type storedParticipant struct {
	BaseDeposited string
	SaleAllocated string
}

// ConfigPut persists the campaign configuration.
func (l *Ledger) ConfigPut(cfg *CampaignConfig) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sale: ledger not configured")
	}
	if cfg == nil {
		return fmt.Errorf("sale: nil config")
	}
	stored := storedConfig{
		Owner:              cfg.Owner,
		Token:              cfg.Token,
		Campaign:           cfg.Campaign,
		FeeRecipient:       cfg.FeeRecipient,
		TokenRate:          encodeAmount(cfg.TokenRate),
		LiquidityRate:      encodeAmount(cfg.LiquidityRate),
		DecimalsAdjustment: cfg.DecimalsAdjustment,
		RaiseMin:           encodeAmount(cfg.RaiseMin),
		RaiseMax:           encodeAmount(cfg.RaiseMax),
		Softcap:            encodeAmount(cfg.Softcap),
		Hardcap:            encodeAmount(cfg.Hardcap),
		LiquidityPercent:   cfg.LiquidityPercent,
		StartTime:          clampTime(cfg.StartTime),
		EndTime:            clampTime(cfg.EndTime),
		Mode:               uint8(cfg.Mode),
		PublicUnlockTime:   clampTime(cfg.PublicUnlockTime),
		LockDelay:          clampTime(cfg.LockDelay),
		Canceled:           cfg.Canceled,
	}
	return l.put(configKey, &stored)
}

// ConfigGet loads the campaign configuration. The boolean reports whether the
// campaign has been configured.
func (l *Ledger) ConfigGet() (*CampaignConfig, bool, error) {
	var stored storedConfig
	ok, err := l.get(configKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	cfg := &CampaignConfig{
		Owner:              stored.Owner,
		Token:              stored.Token,
		Campaign:           stored.Campaign,
		FeeRecipient:       stored.FeeRecipient,
		DecimalsAdjustment: stored.DecimalsAdjustment,
		LiquidityPercent:   stored.LiquidityPercent,
		StartTime:          int64(stored.StartTime),
		EndTime:            int64(stored.EndTime),
		Mode:               SaleMode(stored.Mode),
		PublicUnlockTime:   int64(stored.PublicUnlockTime),
		LockDelay:          int64(stored.LockDelay),
		Canceled:           stored.Canceled,
	}
	fields := []struct {
		dst **uint256.Int
		src string
	}{
		{&cfg.TokenRate, stored.TokenRate},
		{&cfg.LiquidityRate, stored.LiquidityRate},
		{&cfg.RaiseMin, stored.RaiseMin},
		{&cfg.RaiseMax, stored.RaiseMax},
		{&cfg.Softcap, stored.Softcap},
		{&cfg.Hardcap, stored.Hardcap},
	}
	for _, field := range fields {
		value, err := decodeAmount(field.src)
		if err != nil {
			return nil, false, err
		}
		*field.dst = value
	}
	return cfg, true, nil
}

// StatusPut persists the campaign totals.
func (l *Ledger) StatusPut(st *CampaignStatus) error {
	if st == nil {
		return fmt.Errorf("sale: nil status")
	}
	stored := storedStatus{
		RaisedAmount:    encodeAmount(st.RaisedAmount),
		SoldAmount:      encodeAmount(st.SoldAmount),
		TokensWithdrawn: encodeAmount(st.TokensWithdrawn),
		BaseWithdrawn:   encodeAmount(st.BaseWithdrawn),
		NumBuyers:       st.NumBuyers,
		EndTime:         clampTime(st.EndTime),
		Finalized:       st.Finalized,
	}
	return l.put(statusKey, &stored)
}

// StatusGet loads the campaign totals, returning a zeroed status when none
// have been recorded yet.
func (l *Ledger) StatusGet() (*CampaignStatus, error) {
	var stored storedStatus
	ok, err := l.get(statusKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newCampaignStatus(), nil
	}
	st := &CampaignStatus{
		NumBuyers: stored.NumBuyers,
		EndTime:   int64(stored.EndTime),
		Finalized: stored.Finalized,
	}
	if st.RaisedAmount, err = decodeAmount(stored.RaisedAmount); err != nil {
		return nil, err
	}
	if st.SoldAmount, err = decodeAmount(stored.SoldAmount); err != nil {
		return nil, err
	}
	if st.TokensWithdrawn, err = decodeAmount(stored.TokensWithdrawn); err != nil {
		return nil, err
	}
	if st.BaseWithdrawn, err = decodeAmount(stored.BaseWithdrawn); err != nil {
		return nil, err
	}
	return st, nil
}

// ParticipantPut persists the record for the supplied address. Records are
// zeroed on claim, never deleted, so a claimed record stays claimed.
func (l *Ledger) ParticipantPut(addr [20]byte, rec *ParticipantRecord) error {
	if rec == nil {
		return fmt.Errorf("sale: nil participant record")
	}
	stored := storedParticipant{
		BaseDeposited: encodeAmount(rec.BaseDeposited),
		SaleAllocated: encodeAmount(rec.SaleAllocated),
	}
	return l.put(participantKey(addr), &stored)
}

// ParticipantGet loads the record for the supplied address, returning a fresh
// zero record when the address has never deposited.
func (l *Ledger) ParticipantGet(addr [20]byte) (*ParticipantRecord, error) {
	var stored storedParticipant
	ok, err := l.get(participantKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newParticipantRecord(), nil
	}
	rec := &ParticipantRecord{}
	if rec.BaseDeposited, err = decodeAmount(stored.BaseDeposited); err != nil {
		return nil, err
	}
	if rec.SaleAllocated, err = decodeAmount(stored.SaleAllocated); err != nil {
		return nil, err
	}
	return rec, nil
}

// WhitelistAdd marks the address as allow-listed. Adding a present address is
// a no-op.
func (l *Ledger) WhitelistAdd(addr [20]byte) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sale: ledger not configured")
	}
	return l.db.Put(whitelistKey(addr), []byte{1})
}

// WhitelistRemove clears the address. Removing an absent address is a no-op.
func (l *Ledger) WhitelistRemove(addr [20]byte) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sale: ledger not configured")
	}
	return l.db.Delete(whitelistKey(addr))
}

// Whitelisted reports membership for the supplied address.
func (l *Ledger) Whitelisted(addr [20]byte) (bool, error) {
	if l == nil || l.db == nil {
		return false, fmt.Errorf("sale: ledger not configured")
	}
	return l.db.Has(whitelistKey(addr))
}

func (l *Ledger) put(key []byte, value interface{}) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sale: ledger not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("sale: encode %q: %w", key, err)
	}
	return l.db.Put(key, encoded)
}

func (l *Ledger) get(key []byte, out interface{}) (bool, error) {
	if l == nil || l.db == nil {
		return false, fmt.Errorf("sale: ledger not configured")
	}
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("sale: decode %q: %w", key, err)
	}
	return true, nil
}

func encodeAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func decodeAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return uint256.NewInt(0), nil
	}
	value, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("sale: decode amount %q: %w", s, err)
	}
	return value, nil
}

func clampTime(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
