package split

import (
	"math/big"

	"github.com/holiman/uint256"

	"nameshare/native/collections"
	"nameshare/native/snapshot"
)

// Class names a stakeholder class receiving part of every revenue event.
type Class string

const (
	ClassReferral  Class = "referral"
	ClassCommunity Class = "community"
	ClassProtocol  Class = "protocol"
	ClassEcosystem Class = "ecosystem"
	ClassHolders   Class = "holders"
)

// Destination is where a class share is booked: an account balance, or the
// pool of a snapshot ledger when Ledger is set.
type Destination struct {
	Account [20]byte
	Ledger  string
}

// ToAccount books a share to an account balance.
func ToAccount(addr [20]byte) Destination { return Destination{Account: addr} }

// ToPool books a share into the named snapshot ledger.
func ToPool(ledger string) Destination { return Destination{Ledger: ledger} }

// IsPool reports whether the destination is a snapshot ledger.
func (d Destination) IsPool() bool { return d.Ledger != "" }

// Allocation is one row of the split table. The residual row receives
// whatever the floored rows leave, so the table always sums to the input.
type Allocation struct {
	Class       Class
	Percent     uint32
	Destination Destination
	Residual    bool
}

// Table builds the split table for a collection. The holders class is the
// residual; it is pooled into the holders ledger or paid to the collection's
// payout target depending on the collection's configuration.
func Table(c *collections.Collection, referer, protocolAccount [20]byte) []Allocation {
	holders := ToPool(snapshot.LedgerHolders)
	if !c.PoolsIntoHolderLedger {
		holders = ToAccount(c.PayoutTarget)
	}
	return []Allocation{
		{Class: ClassReferral, Percent: c.ReferralShare, Destination: ToAccount(referer)},
		{Class: ClassCommunity, Percent: c.CommunityShare, Destination: ToAccount(c.PayoutTarget)},
		{Class: ClassProtocol, Percent: c.ProtocolShare, Destination: ToAccount(protocolAccount)},
		{Class: ClassEcosystem, Percent: c.EcosystemShare, Destination: ToPool(snapshot.LedgerEcosystem)},
		{Class: ClassHolders, Percent: c.HolderShare(), Destination: holders, Residual: true},
	}
}

// Share is a computed row of a breakdown.
type Share struct {
	Class       Class
	Percent     uint32
	Destination Destination
	Amount      *big.Int
}

// Breakdown is the full division of one converted value.
type Breakdown struct {
	CollectionID string
	Value        *big.Int
	Shares       []Share
}

// Amount returns the amount assigned to class, or zero.
func (b *Breakdown) Amount(class Class) *big.Int {
	for _, s := range b.Shares {
		if s.Class == class {
			return new(big.Int).Set(s.Amount)
		}
	}
	return big.NewInt(0)
}

// Total sums every share.
func (b *Breakdown) Total() *big.Int {
	total := big.NewInt(0)
	for _, s := range b.Shares {
		total.Add(total, s.Amount)
	}
	return total
}

var percentDenom = uint256.NewInt(collections.ShareDenominator)

// Divide applies the table to value. Non-residual rows are floored
// independently; the residual row is value minus their sum.
func Divide(value *big.Int, table []Allocation) ([]Share, error) {
	if value == nil || value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(value)
	if overflow {
		return nil, ErrAmountOverflow
	}
	shares := make([]Share, len(table))
	assigned := new(uint256.Int)
	residual := -1
	for i, row := range table {
		shares[i] = Share{Class: row.Class, Percent: row.Percent, Destination: row.Destination}
		if row.Residual {
			residual = i
			continue
		}
		amount, _ := new(uint256.Int).MulDivOverflow(v, uint256.NewInt(uint64(row.Percent)), percentDenom)
		assigned.Add(assigned, amount)
		shares[i].Amount = amount.ToBig()
	}
	rest := new(uint256.Int)
	if assigned.Lt(v) {
		rest.Sub(v, assigned)
	}
	if residual >= 0 {
		shares[residual].Amount = rest.ToBig()
	}
	return shares, nil
}
