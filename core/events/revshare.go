package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nameshare/core/types"
)

const (
	// TypeCollectionRegistered is emitted when a collection's revenue split is
	// first configured.
	TypeCollectionRegistered = "revshare.collection.registered"
	// TypeCollected is emitted for every revenue event processed by the split
	// engine.
	TypeCollected = "revshare.collected"
	// TypeBalanceChanged is emitted whenever an account balance moves.
	TypeBalanceChanged = "revshare.balance.changed"
	// TypePoolChanged is emitted whenever a snapshot ledger pool moves.
	TypePoolChanged = "revshare.pool.changed"
	// TypeSnapshotCreated is emitted when a snapshot fixes a new per-unit
	// reward.
	TypeSnapshotCreated = "revshare.snapshot.created"
	// TypeWithdrawn is emitted when an account pulls its balance and unit
	// rewards.
	TypeWithdrawn = "revshare.withdrawn"
)

// CollectionRegistered captures the immutable split configuration of a newly
// registered collection.
type CollectionRegistered struct {
	CollectionID          string
	PayoutTarget          [20]byte
	ReferralShare         uint32
	CommunityShare        uint32
	EcosystemShare        uint32
	ProtocolShare         uint32
	PoolsIntoHolderLedger bool
}

// EventType implements the Event interface.
func (CollectionRegistered) EventType() string { return TypeCollectionRegistered }

// Event converts the registration to the generic event payload.
func (e CollectionRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeCollectionRegistered,
		Attributes: map[string]string{
			"collection":     e.CollectionID,
			"payoutTarget":   addrHex(e.PayoutTarget),
			"referralShare":  strconv.FormatUint(uint64(e.ReferralShare), 10),
			"communityShare": strconv.FormatUint(uint64(e.CommunityShare), 10),
			"ecosystemShare": strconv.FormatUint(uint64(e.EcosystemShare), 10),
			"protocolShare":  strconv.FormatUint(uint64(e.ProtocolShare), 10),
			"holderLedger":   strconv.FormatBool(e.PoolsIntoHolderLedger),
		},
	}
}

// Collected records a processed revenue event.
type Collected struct {
	CollectionID   string
	Referer        [20]byte
	RawValue       *big.Int
	ConvertedValue *big.Int
}

// EventType implements the Event interface.
func (Collected) EventType() string { return TypeCollected }

// Event converts the collection to the generic event payload.
func (e Collected) Event() *types.Event {
	return &types.Event{
		Type: TypeCollected,
		Attributes: map[string]string{
			"collection":     e.CollectionID,
			"referer":        addrHex(e.Referer),
			"rawValue":       amountString(e.RawValue),
			"convertedValue": amountString(e.ConvertedValue),
		},
	}
}

// BalanceChanged records a signed movement of an account balance. Class names
// the stakeholder class that produced the credit, or "withdraw" for payouts.
type BalanceChanged struct {
	Account    [20]byte
	Class      string
	Delta      *big.Int
	NewBalance *big.Int
}

// EventType implements the Event interface.
func (BalanceChanged) EventType() string { return TypeBalanceChanged }

// Event converts the balance movement to the generic event payload.
func (e BalanceChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeBalanceChanged,
		Attributes: map[string]string{
			"account":    addrHex(e.Account),
			"class":      e.Class,
			"delta":      amountString(e.Delta),
			"newBalance": amountString(e.NewBalance),
		},
	}
}

// PoolChanged records a deposit into (or a snapshot draining of) a ledger pool.
type PoolChanged struct {
	Ledger  string
	Delta   *big.Int
	NewPool *big.Int
}

// EventType implements the Event interface.
func (PoolChanged) EventType() string { return TypePoolChanged }

// Event converts the pool movement to the generic event payload.
func (e PoolChanged) Event() *types.Event {
	return &types.Event{
		Type: TypePoolChanged,
		Attributes: map[string]string{
			"ledger":  e.Ledger,
			"delta":   amountString(e.Delta),
			"newPool": amountString(e.NewPool),
		},
	}
}

// SnapshotCreated captures the reward fixed by a snapshot.
type SnapshotCreated struct {
	Ledger        string
	Epoch         uint64
	RewardPerUnit *big.Int
	Supply        uint64
	UnclaimedPool *big.Int
	Watermark     uint64
	Time          int64
	// Expired is the part of the previous epoch's reward nobody claimed.
	Expired *big.Int
}

// EventType implements the Event interface.
func (SnapshotCreated) EventType() string { return TypeSnapshotCreated }

// Event converts the snapshot to the generic event payload.
func (e SnapshotCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeSnapshotCreated,
		Attributes: map[string]string{
			"ledger":        e.Ledger,
			"epoch":         strconv.FormatUint(e.Epoch, 10),
			"rewardPerUnit": amountString(e.RewardPerUnit),
			"supply":        strconv.FormatUint(e.Supply, 10),
			"unclaimedPool": amountString(e.UnclaimedPool),
			"watermark":     strconv.FormatUint(e.Watermark, 10),
			"time":          strconv.FormatInt(e.Time, 10),
			"expired":       amountString(e.Expired),
		},
	}
}

// Withdrawn records a completed payout.
type Withdrawn struct {
	Account   [20]byte
	UnitIDs   []uint64
	Amount    *big.Int
	Reference string
}

// EventType implements the Event interface.
func (Withdrawn) EventType() string { return TypeWithdrawn }

// Event converts the withdrawal to the generic event payload.
func (e Withdrawn) Event() *types.Event {
	ids := make([]string, len(e.UnitIDs))
	for i, id := range e.UnitIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return &types.Event{
		Type: TypeWithdrawn,
		Attributes: map[string]string{
			"account":   addrHex(e.Account),
			"units":     strings.Join(ids, ","),
			"amount":    amountString(e.Amount),
			"reference": e.Reference,
		},
	}
}

func addrHex(addr [20]byte) string {
	return common.BytesToAddress(addr[:]).Hex()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
