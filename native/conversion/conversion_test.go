package conversion

import (
	"errors"
	"math/big"
	"testing"
)

func TestIdentity(t *testing.T) {
	raw := big.NewInt(407_894)
	out, err := Identity{}.Convert(raw)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out.Cmp(raw) != 0 {
		t.Fatalf("expected %s, got %s", raw, out)
	}
	out.SetInt64(1)
	if raw.Int64() != 407_894 {
		t.Fatalf("identity must not alias its input")
	}
	if _, err := (Identity{}).Convert(big.NewInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestFixedRateRoundsDown(t *testing.T) {
	cases := []struct {
		num, den uint64
		raw      int64
		want     int64
	}{
		{1, 1, 10, 10},
		{3, 2, 7, 10},
		{1, 3, 10, 3},
		{0, 5, 10, 0},
	}
	for _, tc := range cases {
		rate, err := NewFixedRate(tc.num, tc.den)
		if err != nil {
			t.Fatalf("rate %d/%d: %v", tc.num, tc.den, err)
		}
		out, err := rate.Convert(big.NewInt(tc.raw))
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		if out.Int64() != tc.want {
			t.Fatalf("%s of %d: expected %d, got %s", rate, tc.raw, tc.want, out)
		}
	}
}

func TestFixedRateRejectsZeroDenominator(t *testing.T) {
	if _, err := NewFixedRate(1, 0); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
	if _, err := (FixedRate{Num: 1}).Convert(big.NewInt(1)); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
}
