package state

import (
	"errors"
	"math/big"
)

var (
	balancePrefix = []byte("revshare/balance/")

	// ErrNegativeBalance is returned when a write would store a negative amount.
	ErrNegativeBalance = errors.New("state: negative balance")
)

func balanceKey(addr [20]byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr[:])
	return buf
}

// BalanceOf returns the stored balance of addr, or zero when none exists.
func BalanceOf(r Reader, addr [20]byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := r.KVGet(balanceKey(addr), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// Balance returns the committed balance of addr.
func (m *Manager) Balance(addr [20]byte) (*big.Int, error) {
	return BalanceOf(m, addr)
}

// Balance returns the balance of addr including staged writes.
func (tx *Tx) Balance(addr [20]byte) (*big.Int, error) {
	return BalanceOf(tx, addr)
}

// SetBalance stages a new balance for addr.
func (tx *Tx) SetBalance(addr [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return ErrNegativeBalance
	}
	return tx.KVPut(balanceKey(addr), new(big.Int).Set(amount))
}
