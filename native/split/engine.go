package split

import (
	"fmt"
	"math/big"

	"nameshare/core/events"
	"nameshare/native/collections"
)

type engineState interface {
	Balance(addr [20]byte) (*big.Int, error)
	SetBalance(addr [20]byte, amount *big.Int) error
}

type collectionSource interface {
	Get(id string) (*collections.Collection, error)
}

type depositor interface {
	Deposit(amount *big.Int) error
}

// Engine divides each revenue event among the stakeholder classes of its
// collection and books every share.
type Engine struct {
	st              engineState
	configs         collectionSource
	pools           map[string]depositor
	protocolAccount [20]byte
	emitter         events.Emitter
}

// NewEngine constructs a split engine. protocolAccount receives the protocol
// class of every collection.
func NewEngine(st engineState, configs collectionSource, protocolAccount [20]byte) *Engine {
	return &Engine{
		st:              st,
		configs:         configs,
		pools:           make(map[string]depositor),
		protocolAccount: protocolAccount,
		emitter:         events.NoopEmitter{},
	}
}

// SetPool registers the snapshot ledger that receives deposits for name.
func (e *Engine) SetPool(name string, pool depositor) {
	if pool == nil {
		delete(e.pools, name)
		return
	}
	e.pools[name] = pool
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) breakdown(collectionID string, referer [20]byte, value *big.Int) (*Breakdown, error) {
	if e == nil || e.configs == nil {
		return nil, ErrNilState
	}
	c, err := e.configs.Get(collectionID)
	if err != nil {
		return nil, err
	}
	shares, err := Divide(value, Table(c, referer, e.protocolAccount))
	if err != nil {
		return nil, err
	}
	for _, s := range shares {
		if !s.Destination.IsPool() {
			continue
		}
		if _, ok := e.pools[s.Destination.Ledger]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, s.Destination.Ledger)
		}
	}
	return &Breakdown{CollectionID: c.ID, Value: new(big.Int).Set(value), Shares: shares}, nil
}

// Preview computes the division of value for collectionID without booking
// anything. The referral row is addressed to the null account.
func (e *Engine) Preview(collectionID string, value *big.Int) (*Breakdown, error) {
	return e.breakdown(collectionID, [20]byte{}, value)
}

// Collect divides converted among the classes of collectionID and books each
// share. raw is the pre-conversion value and is only reported. The referer is
// credited as given, including the null account.
func (e *Engine) Collect(collectionID string, referer [20]byte, raw, converted *big.Int) (*Breakdown, error) {
	if e == nil || e.st == nil {
		return nil, ErrNilState
	}
	b, err := e.breakdown(collectionID, referer, converted)
	if err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Collected{
		CollectionID:   b.CollectionID,
		Referer:        referer,
		RawValue:       copyBig(raw),
		ConvertedValue: new(big.Int).Set(converted),
	})
	for _, s := range b.Shares {
		if s.Amount.Sign() == 0 {
			continue
		}
		if s.Destination.IsPool() {
			if err := e.pools[s.Destination.Ledger].Deposit(s.Amount); err != nil {
				return nil, fmt.Errorf("split: deposit %s: %w", s.Class, err)
			}
			continue
		}
		if err := e.credit(s.Destination.Account, s.Class, s.Amount); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (e *Engine) credit(addr [20]byte, class Class, amount *big.Int) error {
	balance, err := e.st.Balance(addr)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	if err := e.st.SetBalance(addr, balance); err != nil {
		return err
	}
	e.emitter.Emit(events.BalanceChanged{
		Account:    addr,
		Class:      string(class),
		Delta:      new(big.Int).Set(amount),
		NewBalance: new(big.Int).Set(balance),
	})
	return nil
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
