package bank

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

// Pool is a minimal liquidity pool the finalization engine seeds with raised
// base currency and a matching token amount. It pulls tokens from the funder
// through the approval granted before the call and credits liquidity units to
// the receiver.
type Pool struct {
	addr   [20]byte
	funder [20]byte
	base   *Ledger
	tokens *Ledger

	mu           sync.Mutex
	reserveBase  *uint256.Int
	reserveToken *uint256.Int
	liquidity    map[[20]byte]*uint256.Int
	nowFn        func() int64
}

// NewPool creates a pool holding its reserves at addr and pulling deposits
// from the funder account.
func NewPool(addr, funder [20]byte, base, tokens *Ledger) *Pool {
	return &Pool{
		addr:         addr,
		funder:       funder,
		base:         base,
		tokens:       tokens,
		reserveBase:  uint256.NewInt(0),
		reserveToken: uint256.NewInt(0),
		liquidity:    make(map[[20]byte]*uint256.Int),
		nowFn:        func() int64 { return time.Now().Unix() },
	}
}

// Address returns the account holding the pool reserves.
func (p *Pool) Address() [20]byte { return p.addr }

// SetNowFunc overrides the deadline clock, for tests.
func (p *Pool) SetNowFunc(now func() int64) {
	if now == nil {
		p.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	p.nowFn = now
}

// AddLiquidity pulls tokenAmount (via allowance) and baseAmount from the
// funder into the pool reserves and credits liquidity units to the receiver.
// The full requested amounts are consumed; the minima exist for interface
// compatibility with routers that may consume less.
func (p *Pool) AddLiquidity(token [20]byte, tokenAmount, baseAmount, minToken, minBase *uint256.Int, receiver [20]byte, deadline int64) (*uint256.Int, *uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nowFn() > deadline {
		return nil, nil, fmt.Errorf("bank: liquidity deadline expired")
	}
	if tokenAmount == nil || baseAmount == nil {
		return nil, nil, fmt.Errorf("bank: nil liquidity amounts")
	}
	if minToken != nil && tokenAmount.Cmp(minToken) < 0 {
		return nil, nil, fmt.Errorf("bank: token amount below minimum")
	}
	if minBase != nil && baseAmount.Cmp(minBase) < 0 {
		return nil, nil, fmt.Errorf("bank: base amount below minimum")
	}
	if err := p.tokens.TransferFrom(p.addr, p.funder, p.addr, tokenAmount); err != nil {
		return nil, nil, err
	}
	if err := p.base.Transfer(p.funder, p.addr, baseAmount); err != nil {
		// Undo the token pull so a failed seeding leaves no residue.
		_ = p.tokens.Transfer(p.addr, p.funder, tokenAmount)
		return nil, nil, err
	}
	p.reserveToken = new(uint256.Int).Add(p.reserveToken, tokenAmount)
	p.reserveBase = new(uint256.Int).Add(p.reserveBase, baseAmount)
	if units, ok := p.liquidity[receiver]; ok {
		p.liquidity[receiver] = new(uint256.Int).Add(units, baseAmount)
	} else {
		p.liquidity[receiver] = new(uint256.Int).Set(baseAmount)
	}
	return new(uint256.Int).Set(tokenAmount), new(uint256.Int).Set(baseAmount), nil
}

// Liquidity reports the units credited to the holder.
func (p *Pool) Liquidity(holder [20]byte) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if units, ok := p.liquidity[holder]; ok {
		return new(uint256.Int).Set(units)
	}
	return uint256.NewInt(0)
}

// Reserves reports the current pool reserves.
func (p *Pool) Reserves() (*uint256.Int, *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.reserveToken), new(uint256.Int).Set(p.reserveBase)
}
