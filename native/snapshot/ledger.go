package snapshot

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"nameshare/core/events"
)

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger pools value for one stakeholder class and periodically converts the
// pool into a fixed per-unit reward against an ownership source. Every unit
// minted at or before a snapshot's watermark may claim that reward once.
type Ledger struct {
	name        string
	st          ledgerState
	owners      Ownership
	emitter     events.Emitter
	nowFn       func() int64
	minInterval time.Duration
}

// NewLedger constructs the ledger instance called name. Snapshots after the
// first are rejected until minInterval has elapsed since the previous one.
func NewLedger(name string, st ledgerState, owners Ownership, minInterval time.Duration) *Ledger {
	return &Ledger{
		name:        name,
		st:          st,
		owners:      owners,
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
		minInterval: minInterval,
	}
}

// SetEmitter configures the event emitter used by the ledger.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

// Name returns the ledger's identifier.
func (l *Ledger) Name() string { return l.name }

// MinInterval returns the snapshot cadence gate.
func (l *Ledger) MinInterval() time.Duration { return l.minInterval }

func (l *Ledger) stateKey() []byte {
	return []byte("snapshot/" + l.name + "/state")
}

func (l *Ledger) claimKey(unitID uint64) []byte {
	return []byte("snapshot/" + l.name + "/claimed/" + strconv.FormatUint(unitID, 10))
}

// State returns a copy of the ledger accounting.
func (l *Ledger) State() (*State, error) {
	s := new(State)
	ok, err := l.st.KVGet(l.stateKey(), s)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: load state: %w", l.name, err)
	}
	if !ok {
		return newState(), nil
	}
	return s.normalize(), nil
}

func (l *Ledger) putState(s *State) error {
	return l.st.KVPut(l.stateKey(), s)
}

// Deposit adds amount to the undistributed pool.
func (l *Ledger) Deposit(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	s, err := l.State()
	if err != nil {
		return err
	}
	s.Pool.Add(s.Pool, amount)
	s.DepositedTotal.Add(s.DepositedTotal, amount)
	if err := l.putState(s); err != nil {
		return err
	}
	l.emitter.Emit(events.PoolChanged{
		Ledger:  l.name,
		Delta:   new(big.Int).Set(amount),
		NewPool: new(big.Int).Set(s.Pool),
	})
	return nil
}

// NextSnapshotAt returns the earliest unix time the next snapshot may be
// taken. The boolean is false before the first snapshot, which is never gated.
func (l *Ledger) NextSnapshotAt() (int64, bool, error) {
	s, err := l.State()
	if err != nil {
		return 0, false, err
	}
	if s.Epoch == 0 {
		return 0, false, nil
	}
	return int64(s.LastSnapshotTime) + l.gateSeconds(), true, nil
}

// gateSeconds is minInterval rounded up to whole seconds. Snapshot times are
// kept in unix seconds, so an elapsed count e satisfies e*1s >= minInterval
// exactly when e >= gateSeconds.
func (l *Ledger) gateSeconds() int64 {
	if l.minInterval <= 0 {
		return 0
	}
	secs := int64(l.minInterval / time.Second)
	if l.minInterval%time.Second != 0 {
		secs++
	}
	return secs
}

// TakeSnapshot fixes a new per-unit reward from the pool plus the carried
// remainder. The remainder of the division is carried into the next snapshot.
func (l *Ledger) TakeSnapshot() (*Result, error) {
	if l.owners == nil {
		return nil, ErrOwnershipNotSet
	}
	s, err := l.State()
	if err != nil {
		return nil, err
	}
	now := l.nowFn()
	if s.Epoch > 0 {
		elapsed := now - int64(s.LastSnapshotTime)
		if gate := l.gateSeconds(); elapsed < gate {
			next := int64(s.LastSnapshotTime) + gate
			return nil, fmt.Errorf("%w: %s ledger opens at %d, now %d", ErrSnapshotTooEarly, l.name, next, now)
		}
	}
	supply, err := l.owners.TotalSupply()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: total supply: %w", l.name, err)
	}
	if supply == 0 {
		return nil, fmt.Errorf("%w: %s ledger", ErrNoSupply, l.name)
	}
	watermark, err := l.owners.Watermark()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: watermark: %w", l.name, err)
	}

	available := new(big.Int).Add(s.Pool, s.UnclaimedPool)
	reward, remainder := new(big.Int), new(big.Int)
	reward.QuoRem(available, new(big.Int).SetUint64(supply), remainder)
	expired := s.Outstanding()
	drained := new(big.Int).Set(s.Pool)

	s.LastReward = reward
	s.LastSupply = supply
	s.UnclaimedPool = remainder
	s.Pool = big.NewInt(0)
	s.LastSnapshotPoint = watermark
	if now < 0 {
		now = 0
	}
	s.LastSnapshotTime = uint64(now)
	s.Epoch++
	s.Claimed = big.NewInt(0)
	s.ExpiredTotal.Add(s.ExpiredTotal, expired)
	if err := l.putState(s); err != nil {
		return nil, err
	}

	result := &Result{
		Epoch:         s.Epoch,
		RewardPerUnit: new(big.Int).Set(reward),
		Supply:        supply,
		UnclaimedPool: new(big.Int).Set(remainder),
		Watermark:     watermark,
		Time:          now,
		Expired:       expired,
		Distributed:   new(big.Int).Mul(reward, new(big.Int).SetUint64(supply)),
	}
	if drained.Sign() > 0 {
		l.emitter.Emit(events.PoolChanged{
			Ledger:  l.name,
			Delta:   new(big.Int).Neg(drained),
			NewPool: big.NewInt(0),
		})
	}
	l.emitter.Emit(events.SnapshotCreated{
		Ledger:        l.name,
		Epoch:         result.Epoch,
		RewardPerUnit: new(big.Int).Set(reward),
		Supply:        supply,
		UnclaimedPool: new(big.Int).Set(remainder),
		Watermark:     watermark,
		Time:          now,
		Expired:       new(big.Int).Set(expired),
	})
	return result, nil
}

// eligibility checks ownership and the watermark and reports whether the unit
// already claimed against the current epoch. The claim marker records the
// epoch, not the watermark: when no unit is minted between two snapshots the
// watermark is unchanged, yet each snapshot is a separate reward that every
// eligible unit may claim once.
func (l *Ledger) eligibility(s *State, unitID uint64, claimant [20]byte) (bool, error) {
	if l.owners == nil {
		return false, ErrOwnershipNotSet
	}
	owner, err := l.owners.OwnerOf(unitID)
	if err != nil {
		return false, fmt.Errorf("%w: unit %d: %v", ErrTokenNotOwned, unitID, err)
	}
	if owner != claimant {
		return false, fmt.Errorf("%w: unit %d", ErrTokenNotOwned, unitID)
	}
	mintPoint, err := l.owners.MintPointOf(unitID)
	if err != nil {
		return false, fmt.Errorf("%w: unit %d: %v", ErrTokenNotInSnapshot, unitID, err)
	}
	if s.Epoch == 0 || mintPoint > s.LastSnapshotPoint {
		return false, fmt.Errorf("%w: unit %d minted at %d, watermark %d", ErrTokenNotInSnapshot, unitID, mintPoint, s.LastSnapshotPoint)
	}
	var marker uint64
	found, err := l.st.KVGet(l.claimKey(unitID), &marker)
	if err != nil {
		return false, err
	}
	return found && marker == s.Epoch, nil
}

// Check reports whether claimant may claim unitID against the current
// snapshot. A unit that already claimed is still eligible; it claims zero.
func (l *Ledger) Check(unitID uint64, claimant [20]byte) error {
	s, err := l.State()
	if err != nil {
		return err
	}
	_, err = l.eligibility(s, unitID, claimant)
	return err
}

// Claim pays the current per-unit reward for unitID to claimant. A unit that
// already claimed against the current epoch yields zero.
func (l *Ledger) Claim(unitID uint64, claimant [20]byte) (*big.Int, error) {
	s, err := l.State()
	if err != nil {
		return nil, err
	}
	claimed, err := l.eligibility(s, unitID, claimant)
	if err != nil {
		return nil, err
	}
	if claimed {
		return big.NewInt(0), nil
	}
	if err := l.st.KVPut(l.claimKey(unitID), s.Epoch); err != nil {
		return nil, err
	}
	s.Claimed.Add(s.Claimed, s.LastReward)
	if err := l.putState(s); err != nil {
		return nil, err
	}
	return new(big.Int).Set(s.LastReward), nil
}

// Pending reports what Claim would pay without recording anything. Ineligible
// units report zero.
func (l *Ledger) Pending(unitID uint64, claimant [20]byte) (*big.Int, error) {
	s, err := l.State()
	if err != nil {
		return nil, err
	}
	claimed, err := l.eligibility(s, unitID, claimant)
	if errors.Is(err, ErrTokenNotOwned) || errors.Is(err, ErrTokenNotInSnapshot) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	if claimed {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(s.LastReward), nil
}
