package bank

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// Ledger is an account-keyed balance book for a single asset. The campaign
// engine consumes it both as the base-currency gateway and as the sale-token
// gateway; the only contract the engine relies on is that a transfer either
// fully succeeds or returns an error. A transfer that would report a false
// boolean in an on-chain setting surfaces here as an insufficient-funds or
// allowance error.
type Ledger struct {
	mu         sync.Mutex
	symbol     string
	balances   map[[20]byte]*uint256.Int
	allowances map[[20]byte]map[[20]byte]*uint256.Int
}

// NewLedger creates an empty ledger for the named asset.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:     symbol,
		balances:   make(map[[20]byte]*uint256.Int),
		allowances: make(map[[20]byte]map[[20]byte]*uint256.Int),
	}
}

// Symbol returns the asset name the ledger tracks.
func (l *Ledger) Symbol() string { return l.symbol }

// Mint credits freshly issued units to the holder.
func (l *Ledger) Mint(to [20]byte, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(to, amount)
}

// BalanceOf reports the holder's current balance.
func (l *Ledger) BalanceOf(holder [20]byte) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance, ok := l.balances[holder]; ok {
		return new(uint256.Int).Set(balance), nil
	}
	return uint256.NewInt(0), nil
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to [20]byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// Approve authorises the spender to pull up to amount from the owner.
func (l *Ledger) Approve(owner, spender [20]byte, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[[20]byte]*uint256.Int)
		l.allowances[owner] = spenders
	}
	if amount == nil {
		amount = uint256.NewInt(0)
	}
	spenders[spender] = new(uint256.Int).Set(amount)
	return nil
}

// Allowance reports the remaining amount the spender may pull from the owner.
func (l *Ledger) Allowance(owner, spender [20]byte) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if spenders, ok := l.allowances[owner]; ok {
		if remaining, ok := spenders[spender]; ok {
			return new(uint256.Int).Set(remaining)
		}
	}
	return uint256.NewInt(0)
}

// TransferFrom pulls amount from the owner on behalf of the spender,
// consuming allowance.
func (l *Ledger) TransferFrom(spender, owner, to [20]byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	spenders, ok := l.allowances[owner]
	if !ok {
		return fmt.Errorf("bank: no %s allowance for spender", l.symbol)
	}
	remaining, ok := spenders[spender]
	if !ok || remaining.Cmp(amount) < 0 {
		return fmt.Errorf("bank: %s allowance exceeded", l.symbol)
	}
	if err := l.move(owner, to, amount); err != nil {
		return err
	}
	spenders[spender] = new(uint256.Int).Sub(remaining, amount)
	return nil
}

// move and credit assume the lock is held.
func (l *Ledger) move(from, to [20]byte, amount *uint256.Int) error {
	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("bank: insufficient %s balance", l.symbol)
	}
	l.balances[from] = new(uint256.Int).Sub(balance, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(to [20]byte, amount *uint256.Int) {
	if balance, ok := l.balances[to]; ok {
		l.balances[to] = new(uint256.Int).Add(balance, amount)
		return
	}
	l.balances[to] = new(uint256.Int).Set(amount)
}
