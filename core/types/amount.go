package types

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shardnode/txcore/params"
)

// maxAmountBits is the width of the native unit domain.
const maxAmountBits = 128

var (
	ErrAmountOverflow  = errors.New("amount exceeds 128 bits")
	ErrAmountUnderflow = errors.New("amount underflow")

	weiScale = uint256.NewInt(params.EvmZilScalingFactor)
)

// Amount is a value in the native unit (Qa). The zero value is zero Qa.
//
// Amounts never mix with Wei implicitly: FromWei and ToWei are the only
// crossings between the two unit systems.
type Amount struct {
	qa uint256.Int
}

// AmountFromUint64 returns the amount of v Qa.
func AmountFromUint64(v uint64) Amount {
	var a Amount
	a.qa.SetUint64(v)
	return a
}

// FromQa wraps a Qa value. It fails if the value does not fit in 128 bits.
func FromQa(v *uint256.Int) (Amount, error) {
	var a Amount
	if v == nil {
		return a, nil
	}
	if v.BitLen() > maxAmountBits {
		return a, ErrAmountOverflow
	}
	a.qa.Set(v)
	return a, nil
}

// MustFromQa is like FromQa but panics on overflow. Intended for constants.
func MustFromQa(v *uint256.Int) Amount {
	a, err := FromQa(v)
	if err != nil {
		panic(err)
	}
	return a
}

// FromWei converts a Wei value to Qa, truncating the remainder. Callers that
// convert in the other direction are responsible for conservative rounding.
func FromWei(v *uint256.Int) (Amount, error) {
	if v == nil {
		return Amount{}, nil
	}
	return FromQa(new(uint256.Int).Div(v, weiScale))
}

// AmountFromDecimal parses a decimal Qa string.
func AmountFromDecimal(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromQa(v)
}

// ToQa returns a copy of the amount in Qa.
func (a Amount) ToQa() *uint256.Int {
	return new(uint256.Int).Set(&a.qa)
}

// ToWei returns the amount in Wei. A 128 bit value times the scaling factor
// always fits in 256 bits.
func (a Amount) ToWei() *uint256.Int {
	return new(uint256.Int).Mul(&a.qa, weiScale)
}

// Uint64 returns the amount as uint64 and whether it fit.
func (a Amount) Uint64() (uint64, bool) {
	return a.qa.Uint64(), a.qa.IsUint64()
}

func (a Amount) IsZero() bool     { return a.qa.IsZero() }
func (a Amount) Cmp(b Amount) int { return a.qa.Cmp(&b.qa) }
func (a Amount) Eq(b Amount) bool { return a.qa.Eq(&b.qa) }
func (a Amount) Lt(b Amount) bool { return a.qa.Lt(&b.qa) }
func (a Amount) Gt(b Amount) bool { return a.qa.Gt(&b.qa) }

// Add returns a+b, failing if the sum leaves the 128 bit domain.
func (a Amount) Add(b Amount) (Amount, error) {
	var r Amount
	r.qa.Add(&a.qa, &b.qa) // two 128 bit values cannot overflow 256 bits
	if r.qa.BitLen() > maxAmountBits {
		return Amount{}, ErrAmountOverflow
	}
	return r, nil
}

// Sub returns a-b, failing if b is larger than a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.qa.Lt(&b.qa) {
		return Amount{}, ErrAmountUnderflow
	}
	var r Amount
	r.qa.Sub(&a.qa, &b.qa)
	return r, nil
}

// MulUint64 returns a*n, failing if the product leaves the 128 bit domain.
func (a Amount) MulUint64(n uint64) (Amount, error) {
	var r Amount
	if _, overflow := r.qa.MulOverflow(&a.qa, uint256.NewInt(n)); overflow || r.qa.BitLen() > maxAmountBits {
		return Amount{}, ErrAmountOverflow
	}
	return r, nil
}

// String returns the decimal Qa value.
func (a Amount) String() string {
	return a.qa.Dec()
}

// MarshalText implements encoding.TextMarshaler using the decimal form.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.qa.Dec()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(input []byte) error {
	v, err := AmountFromDecimal(string(input))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
