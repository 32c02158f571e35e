package snapshot

import "math/big"

const (
	// LedgerHolders distributes the holders class across every registered unit.
	LedgerHolders = "holders"
	// LedgerEcosystem distributes the ecosystem class across ecosystem units.
	LedgerEcosystem = "ecosystem"
)

// Ownership is the enumerable ownership source a ledger distributes against.
// Mint points are assigned monotonically when a unit is created; Watermark is
// the highest mint point handed out so far.
type Ownership interface {
	TotalSupply() (uint64, error)
	OwnerOf(unitID uint64) ([20]byte, error)
	MintPointOf(unitID uint64) (uint64, error)
	Watermark() (uint64, error)
}

// State is the persisted accounting of one ledger instance.
type State struct {
	// Pool holds deposits not yet converted into a per-unit reward.
	Pool *big.Int
	// UnclaimedPool is the division remainder carried into the next snapshot.
	UnclaimedPool *big.Int
	// LastReward is the per-unit reward fixed by the latest snapshot.
	LastReward *big.Int
	LastSupply uint64
	// LastSnapshotPoint is the mint-point watermark of the latest snapshot.
	LastSnapshotPoint uint64
	LastSnapshotTime  uint64
	// Epoch counts snapshots taken; zero means none yet.
	Epoch uint64
	// Claimed is the reward paid out against the current epoch.
	Claimed *big.Int
	// ExpiredTotal accumulates rewards of superseded epochs never claimed.
	ExpiredTotal   *big.Int
	DepositedTotal *big.Int
}

func newState() *State {
	return &State{
		Pool:           big.NewInt(0),
		UnclaimedPool:  big.NewInt(0),
		LastReward:     big.NewInt(0),
		Claimed:        big.NewInt(0),
		ExpiredTotal:   big.NewInt(0),
		DepositedTotal: big.NewInt(0),
	}
}

func (s *State) normalize() *State {
	s.Pool = normalizeBig(s.Pool)
	s.UnclaimedPool = normalizeBig(s.UnclaimedPool)
	s.LastReward = normalizeBig(s.LastReward)
	s.Claimed = normalizeBig(s.Claimed)
	s.ExpiredTotal = normalizeBig(s.ExpiredTotal)
	s.DepositedTotal = normalizeBig(s.DepositedTotal)
	return s
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	return clone.normalize()
}

// Outstanding is the part of the current epoch's reward not yet claimed.
func (s *State) Outstanding() *big.Int {
	if s == nil || s.Epoch == 0 {
		return big.NewInt(0)
	}
	total := new(big.Int).Mul(normalizeBig(s.LastReward), new(big.Int).SetUint64(s.LastSupply))
	total.Sub(total, normalizeBig(s.Claimed))
	if total.Sign() < 0 {
		return big.NewInt(0)
	}
	return total
}

// Result describes a snapshot that was just taken.
type Result struct {
	Epoch         uint64
	RewardPerUnit *big.Int
	Supply        uint64
	UnclaimedPool *big.Int
	Watermark     uint64
	Time          int64
	Expired       *big.Int
	Distributed   *big.Int
}

func normalizeBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
