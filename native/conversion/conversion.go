package conversion

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNegativeAmount = errors.New("conversion: amount must not be negative")
	ErrInvalidRate    = errors.New("conversion: rate denominator must be positive")
)

// Converter turns a raw payment into the value the split engine divides.
type Converter interface {
	Convert(raw *big.Int) (*big.Int, error)
}

// Identity passes the raw value through unchanged.
type Identity struct{}

// Convert implements Converter.
func (Identity) Convert(raw *big.Int) (*big.Int, error) {
	if raw == nil {
		return big.NewInt(0), nil
	}
	if raw.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	return new(big.Int).Set(raw), nil
}

// FixedRate converts at Num/Den, rounding down.
type FixedRate struct {
	Num uint64
	Den uint64
}

// NewFixedRate validates the rate.
func NewFixedRate(num, den uint64) (FixedRate, error) {
	if den == 0 {
		return FixedRate{}, ErrInvalidRate
	}
	return FixedRate{Num: num, Den: den}, nil
}

// Convert implements Converter.
func (r FixedRate) Convert(raw *big.Int) (*big.Int, error) {
	if r.Den == 0 {
		return nil, ErrInvalidRate
	}
	if raw == nil {
		return big.NewInt(0), nil
	}
	if raw.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	out := new(big.Int).Mul(raw, new(big.Int).SetUint64(r.Num))
	return out.Quo(out, new(big.Int).SetUint64(r.Den)), nil
}

// String renders the rate as num/den.
func (r FixedRate) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}
