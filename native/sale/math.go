package sale

import (
	"errors"

	"github.com/holiman/uint256"
)

// Checked arithmetic over the 256-bit unsigned domain used for currency and
// token quantities. Overflow, underflow and division by zero surface as
// distinct errors instead of wrapping; every quantity update in the engines
// goes through these helpers.
var (
	ErrArithmeticOverflow  = errors.New("sale: arithmetic overflow")
	ErrArithmeticUnderflow = errors.New("sale: arithmetic underflow")
	ErrDivisionByZero      = errors.New("sale: division by zero")
)

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrArithmeticUnderflow
	}
	return diff, nil
}

func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	prod, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return prod, nil
}

func checkedDiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b == nil || b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

func checkedMod(a, b *uint256.Int) (*uint256.Int, error) {
	if b == nil || b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Mod(a, b), nil
}

// pow10 returns 10^exp, failing when the result no longer fits in 256 bits.
func pow10(exp uint8) (*uint256.Int, error) {
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < exp; i++ {
		var err error
		result, err = checkedMul(result, ten)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func minAmount(values ...*uint256.Int) *uint256.Int {
	if len(values) == 0 {
		return uint256.NewInt(0)
	}
	least := values[0]
	for _, v := range values[1:] {
		if v.Cmp(least) < 0 {
			least = v
		}
	}
	return new(uint256.Int).Set(least)
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(v)
}
