package claims

import "math/big"

// Request names the units to claim against one snapshot ledger.
type Request struct {
	Ledger string
	Units  []uint64
}

// LedgerPayout is the reward collected from one ledger during a withdrawal.
type LedgerPayout struct {
	Ledger string
	Units  []uint64
	Amount *big.Int
}

// Withdrawal describes a completed payout.
type Withdrawal struct {
	Account   [20]byte
	Reference string
	// Balance is the standing account balance included in Amount.
	Balance *big.Int
	Rewards []LedgerPayout
	Amount  *big.Int
}

// UnitIDs flattens the requested units in request order.
func (w *Withdrawal) UnitIDs() []uint64 {
	if w == nil {
		return nil
	}
	var ids []uint64
	for _, r := range w.Rewards {
		ids = append(ids, r.Units...)
	}
	return ids
}

// Transfer moves a finished payout to its destination.
type Transfer interface {
	Transfer(to [20]byte, amount *big.Int, reference string) error
}

// TransferFunc adapts a function to the Transfer interface.
type TransferFunc func(to [20]byte, amount *big.Int, reference string) error

// Transfer implements Transfer.
func (f TransferFunc) Transfer(to [20]byte, amount *big.Int, reference string) error {
	return f(to, amount, reference)
}
