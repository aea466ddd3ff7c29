package sale

import "github.com/holiman/uint256"

// The engines talk to the out-of-scope collaborators through the narrow
// interfaces below. Implementations live outside this package (see
// native/bank); the engine only cares that a transfer either fully succeeded
// or reported an error; adapters are responsible for mapping "call succeeded
// but returned false" style results onto ErrTransferFailed.

// TokenGateway exposes the sale token held and distributed by the campaign.
type TokenGateway interface {
	BalanceOf(holder [20]byte) (*uint256.Int, error)
	Transfer(from, to [20]byte, amount *uint256.Int) error
	Approve(owner, spender [20]byte, amount *uint256.Int) error
}

// BaseGateway exposes the base currency participants deposit.
type BaseGateway interface {
	BalanceOf(holder [20]byte) (*uint256.Int, error)
	Transfer(from, to [20]byte, amount *uint256.Int) error
}

// LiquidityGateway seeds a liquidity pool with raised base currency and a
// matching token amount, crediting pool ownership to the receiver. It returns
// the amounts actually consumed, which may be below the supplied maxima.
type LiquidityGateway interface {
	AddLiquidity(token [20]byte, tokenAmount, baseAmount, minToken, minBase *uint256.Int, receiver [20]byte, deadline int64) (tokenUsed, baseUsed *uint256.Int, err error)
}

// FeeOracle reports the platform's finalization fee split. It is queried
// fresh at finalization time, never cached.
type FeeOracle interface {
	FeeRecipient() ([20]byte, error)
	FeePercent() (uint8, error)
}
