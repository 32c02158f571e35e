package claims

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"nameshare/core/events"
	"nameshare/native/snapshot"
)

type engineState interface {
	Balance(addr [20]byte) (*big.Int, error)
	SetBalance(addr [20]byte, amount *big.Int) error
}

type claimLedger interface {
	Check(unitID uint64, claimant [20]byte) error
	Pending(unitID uint64, claimant [20]byte) (*big.Int, error)
	Claim(unitID uint64, claimant [20]byte) (*big.Int, error)
}

// Engine pays out an account's accumulated class balance together with the
// per-unit snapshot rewards of the units it owns.
type Engine struct {
	st       engineState
	ledgers  map[string]claimLedger
	transfer Transfer
	emitter  events.Emitter
	refFn    func() string
}

// NewEngine constructs a withdraw engine over st.
func NewEngine(st engineState) *Engine {
	return &Engine{
		st:      st,
		ledgers: make(map[string]claimLedger),
		emitter: events.NoopEmitter{},
		refFn:   uuid.NewString,
	}
}

// SetLedger registers the snapshot ledger claimed against for name.
func (e *Engine) SetLedger(name string, ledger claimLedger) {
	if ledger == nil {
		delete(e.ledgers, name)
		return
	}
	e.ledgers[name] = ledger
}

// SetTransfer configures the collaborator that moves payouts. Without one the
// payout is only booked.
func (e *Engine) SetTransfer(t Transfer) { e.transfer = t }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetReferenceFunc overrides the generator of transfer references.
func (e *Engine) SetReferenceFunc(fn func() string) {
	if fn == nil {
		e.refFn = uuid.NewString
		return
	}
	e.refFn = fn
}

// Balance returns the standing balance of account.
func (e *Engine) Balance(account [20]byte) (*big.Int, error) {
	if e == nil || e.st == nil {
		return nil, ErrNilState
	}
	return e.st.Balance(account)
}

// Withdraw claims unitIDs against the holders ledger and pays them out with
// the account balance.
func (e *Engine) Withdraw(target [20]byte, unitIDs []uint64) (*Withdrawal, error) {
	return e.WithdrawFrom(target, []Request{{Ledger: snapshot.LedgerHolders, Units: unitIDs}})
}

// WithdrawFrom pays target its balance plus the rewards of every requested
// unit in a single payout. Every unit is checked before anything is written;
// the first ineligible unit aborts the whole withdrawal. Callers run the
// engine inside a transaction that is discarded when an error is returned.
func (e *Engine) WithdrawFrom(target [20]byte, requests []Request) (*Withdrawal, error) {
	if e == nil || e.st == nil {
		return nil, ErrNilState
	}
	if target == ([20]byte{}) {
		return nil, ErrInvalidAccount
	}

	expected := big.NewInt(0)
	for _, req := range requests {
		ledger, ok := e.ledgers[req.Ledger]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, req.Ledger)
		}
		seen := make(map[uint64]struct{}, len(req.Units))
		for _, id := range req.Units {
			if err := ledger.Check(id, target); err != nil {
				return nil, err
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			pending, err := ledger.Pending(id, target)
			if err != nil {
				return nil, err
			}
			expected.Add(expected, pending)
		}
	}

	balance, err := e.st.Balance(target)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Add(balance, expected)
	if amount.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}

	w := &Withdrawal{
		Account:   target,
		Reference: e.refFn(),
		Balance:   new(big.Int).Set(balance),
		Amount:    new(big.Int).Set(balance),
	}
	for _, req := range requests {
		ledger := e.ledgers[req.Ledger]
		payout := LedgerPayout{Ledger: req.Ledger, Units: append([]uint64(nil), req.Units...), Amount: big.NewInt(0)}
		for _, id := range req.Units {
			reward, err := ledger.Claim(id, target)
			if err != nil {
				return nil, err
			}
			payout.Amount.Add(payout.Amount, reward)
		}
		w.Amount.Add(w.Amount, payout.Amount)
		w.Rewards = append(w.Rewards, payout)
	}

	if balance.Sign() > 0 {
		if err := e.st.SetBalance(target, big.NewInt(0)); err != nil {
			return nil, err
		}
	}
	if e.transfer != nil {
		if err := e.transfer.Transfer(target, new(big.Int).Set(w.Amount), w.Reference); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	if balance.Sign() > 0 {
		e.emitter.Emit(events.BalanceChanged{
			Account:    target,
			Class:      "withdraw",
			Delta:      new(big.Int).Neg(balance),
			NewBalance: big.NewInt(0),
		})
	}
	e.emitter.Emit(events.Withdrawn{
		Account:   target,
		UnitIDs:   w.UnitIDs(),
		Amount:    new(big.Int).Set(w.Amount),
		Reference: w.Reference,
	})
	return w, nil
}
