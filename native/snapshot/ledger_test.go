package snapshot

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"nameshare/core/events"
	"nameshare/core/state"
	"nameshare/storage"
)

type fakeUnit struct {
	owner     [20]byte
	mintPoint uint64
}

type fakeOwnership struct {
	units     map[uint64]*fakeUnit
	watermark uint64
}

func newFakeOwnership() *fakeOwnership {
	return &fakeOwnership{units: make(map[uint64]*fakeUnit)}
}

func (f *fakeOwnership) mint(id uint64, owner [20]byte) {
	f.watermark++
	f.units[id] = &fakeUnit{owner: owner, mintPoint: f.watermark}
}

func (f *fakeOwnership) TotalSupply() (uint64, error) { return uint64(len(f.units)), nil }

func (f *fakeOwnership) OwnerOf(id uint64) ([20]byte, error) {
	u, ok := f.units[id]
	if !ok {
		return [20]byte{}, errors.New("no such unit")
	}
	return u.owner, nil
}

func (f *fakeOwnership) MintPointOf(id uint64) (uint64, error) {
	u, ok := f.units[id]
	if !ok {
		return 0, errors.New("no such unit")
	}
	return u.mintPoint, nil
}

func (f *fakeOwnership) Watermark() (uint64, error) { return f.watermark, nil }

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(e events.Event) { c.events = append(c.events, e) }

type clock struct{ now int64 }

func (c *clock) Now() int64 { return c.now }

func newTestLedger(t *testing.T, owners Ownership, interval time.Duration) (*Ledger, *clock) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tx := state.NewManager(db).Begin()
	clk := &clock{now: 1_700_000_000}
	l := NewLedger(LedgerHolders, tx, owners, interval)
	l.SetNowFunc(clk.Now)
	return l, clk
}

var (
	alice = [20]byte{19: 0xA1}
	bob   = [20]byte{19: 0xB0}
)

func TestSnapshotWorkedExample(t *testing.T) {
	owners := newFakeOwnership()
	for id := uint64(1); id <= 5; id++ {
		owners.mint(id, alice)
	}
	l, _ := newTestLedger(t, owners, time.Hour)
	if err := l.Deposit(big.NewInt(2_389_475)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	res, err := l.TakeSnapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if res.RewardPerUnit.Cmp(big.NewInt(477_895)) != 0 {
		t.Fatalf("reward per unit: got %s", res.RewardPerUnit)
	}
	if res.UnclaimedPool.Sign() != 0 || res.Supply != 5 || res.Watermark != 5 || res.Epoch != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	reward, err := l.Claim(3, alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if reward.Cmp(big.NewInt(477_895)) != 0 {
		t.Fatalf("claimed %s", reward)
	}
}

func TestSnapshotRemainderCarriesForward(t *testing.T) {
	owners := newFakeOwnership()
	for id := uint64(1); id <= 3; id++ {
		owners.mint(id, alice)
	}
	l, clk := newTestLedger(t, owners, time.Minute)
	if err := l.Deposit(big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	first, err := l.TakeSnapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if first.RewardPerUnit.Int64() != 3 || first.UnclaimedPool.Int64() != 1 {
		t.Fatalf("unexpected first snapshot %+v", first)
	}
	if err := l.Deposit(big.NewInt(2)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clk.now += 60
	second, err := l.TakeSnapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if second.RewardPerUnit.Int64() != 1 || second.UnclaimedPool.Sign() != 0 {
		t.Fatalf("remainder not folded into next snapshot: %+v", second)
	}
}

func TestSnapshotRemainderIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	owners := newFakeOwnership()
	l, clk := newTestLedger(t, owners, 0)
	var nextID uint64
	for round := 0; round < 200; round++ {
		for n := rng.Intn(4); n >= 0; n-- {
			nextID++
			owners.mint(nextID, alice)
		}
		if err := l.Deposit(big.NewInt(rng.Int63n(1_000_000_007))); err != nil {
			t.Fatalf("deposit: %v", err)
		}
		before, err := l.State()
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		clk.now++
		res, err := l.TakeSnapshot()
		if err != nil {
			t.Fatalf("round %d: snapshot: %v", round, err)
		}
		lhs := new(big.Int).Mul(res.RewardPerUnit, new(big.Int).SetUint64(res.Supply))
		lhs.Add(lhs, res.UnclaimedPool)
		rhs := new(big.Int).Add(before.Pool, before.UnclaimedPool)
		if lhs.Cmp(rhs) != 0 {
			t.Fatalf("round %d: %s != %s", round, lhs, rhs)
		}
		if res.UnclaimedPool.Cmp(new(big.Int).SetUint64(res.Supply)) >= 0 {
			t.Fatalf("round %d: remainder %s not below supply %d", round, res.UnclaimedPool, res.Supply)
		}
	}
}

func TestSnapshotCadenceGate(t *testing.T) {
	owners := newFakeOwnership()
	owners.mint(1, alice)
	l, clk := newTestLedger(t, owners, 24*time.Hour)

	if _, err := l.TakeSnapshot(); err != nil {
		t.Fatalf("first snapshot must not be gated: %v", err)
	}
	if err := l.Deposit(big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	before, _ := l.State()

	clk.now += int64((24*time.Hour)/time.Second) - 1
	if _, err := l.TakeSnapshot(); !errors.Is(err, ErrSnapshotTooEarly) {
		t.Fatalf("expected ErrSnapshotTooEarly, got %v", err)
	}
	after, _ := l.State()
	if after.Epoch != before.Epoch || after.Pool.Cmp(before.Pool) != 0 {
		t.Fatalf("rejected snapshot mutated state")
	}
	next, gated, err := l.NextSnapshotAt()
	if err != nil || !gated {
		t.Fatalf("next snapshot: gated=%v err=%v", gated, err)
	}
	if next != clk.now+1 {
		t.Fatalf("next snapshot at %d, want %d", next, clk.now+1)
	}

	clk.now++
	res, err := l.TakeSnapshot()
	if err != nil {
		t.Fatalf("snapshot at interval boundary: %v", err)
	}
	if res.Epoch != 2 || res.RewardPerUnit.Int64() != 100 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSnapshotCadenceGateSubSecond(t *testing.T) {
	cases := []struct {
		name     string
		interval time.Duration
		gate     int64
	}{
		{name: "500ms", interval: 500 * time.Millisecond, gate: 1},
		{name: "1500ms", interval: 1500 * time.Millisecond, gate: 2},
		{name: "1ns", interval: time.Nanosecond, gate: 1},
		{name: "zero", interval: 0, gate: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			owners := newFakeOwnership()
			owners.mint(1, alice)
			l, clk := newTestLedger(t, owners, tc.interval)
			if _, err := l.TakeSnapshot(); err != nil {
				t.Fatalf("first snapshot: %v", err)
			}
			next, gated, err := l.NextSnapshotAt()
			if err != nil || !gated {
				t.Fatalf("next snapshot: gated=%v err=%v", gated, err)
			}
			if next != clk.now+tc.gate {
				t.Fatalf("next snapshot at %d, want %d", next, clk.now+tc.gate)
			}
			if tc.gate > 0 {
				clk.now += tc.gate - 1
				if _, err := l.TakeSnapshot(); !errors.Is(err, ErrSnapshotTooEarly) {
					t.Fatalf("expected ErrSnapshotTooEarly, got %v", err)
				}
				clk.now++
			}
			if _, err := l.TakeSnapshot(); err != nil {
				t.Fatalf("snapshot once the interval elapsed: %v", err)
			}
		})
	}
}

func TestSnapshotNoSupply(t *testing.T) {
	l, _ := newTestLedger(t, newFakeOwnership(), 0)
	if err := l.Deposit(big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.TakeSnapshot(); !errors.Is(err, ErrNoSupply) {
		t.Fatalf("expected ErrNoSupply, got %v", err)
	}
	s, _ := l.State()
	if s.Epoch != 0 || s.Pool.Int64() != 5 {
		t.Fatalf("failed snapshot mutated state: %+v", s)
	}
}

func TestClaimRequiresOwnership(t *testing.T) {
	owners := newFakeOwnership()
	owners.mint(1, alice)
	l, _ := newTestLedger(t, owners, 0)
	if err := l.Deposit(big.NewInt(9)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.TakeSnapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := l.Claim(1, bob); !errors.Is(err, ErrTokenNotOwned) {
		t.Fatalf("expected ErrTokenNotOwned, got %v", err)
	}
	if _, err := l.Claim(99, alice); !errors.Is(err, ErrTokenNotOwned) {
		t.Fatalf("expected ErrTokenNotOwned for unknown unit, got %v", err)
	}
}

func TestClaimBeforeFirstSnapshot(t *testing.T) {
	owners := newFakeOwnership()
	owners.mint(1, alice)
	l, _ := newTestLedger(t, owners, 0)
	if _, err := l.Claim(1, alice); !errors.Is(err, ErrTokenNotInSnapshot) {
		t.Fatalf("expected ErrTokenNotInSnapshot, got %v", err)
	}
}

func TestNoDoubleClaim(t *testing.T) {
	owners := newFakeOwnership()
	owners.mint(1, alice)
	owners.mint(2, alice)
	l, _ := newTestLedger(t, owners, 0)
	if err := l.Deposit(big.NewInt(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.TakeSnapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	first, err := l.Claim(1, alice)
	if err != nil || first.Int64() != 25 {
		t.Fatalf("first claim: %v %v", first, err)
	}
	second, err := l.Claim(1, alice)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.Sign() != 0 {
		t.Fatalf("double claim paid %s", second)
	}
	pending, err := l.Pending(1, alice)
	if err != nil || pending.Sign() != 0 {
		t.Fatalf("pending after claim: %v %v", pending, err)
	}
	pending, err = l.Pending(2, alice)
	if err != nil || pending.Int64() != 25 {
		t.Fatalf("pending for unclaimed unit: %v %v", pending, err)
	}
	s, _ := l.State()
	if s.Claimed.Int64() != 25 || s.Outstanding().Int64() != 25 {
		t.Fatalf("claimed=%s outstanding=%s", s.Claimed, s.Outstanding())
	}
}

func TestLateMintWaitsForNextSnapshot(t *testing.T) {
	owners := newFakeOwnership()
	owners.mint(1, alice)
	l, clk := newTestLedger(t, owners, time.Second)
	if err := l.Deposit(big.NewInt(40)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.TakeSnapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	owners.mint(2, bob)
	if _, err := l.Claim(2, bob); !errors.Is(err, ErrTokenNotInSnapshot) {
		t.Fatalf("expected ErrTokenNotInSnapshot, got %v", err)
	}
	pending, err := l.Pending(2, bob)
	if err != nil || pending.Sign() != 0 {
		t.Fatalf("pending for late unit: %v %v", pending, err)
	}

	if err := l.Deposit(big.NewInt(40)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clk.now++
	if _, err := l.TakeSnapshot(); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	reward, err := l.Claim(2, bob)
	if err != nil {
		t.Fatalf("claim after later snapshot: %v", err)
	}
	if reward.Int64() != 20 {
		t.Fatalf("late unit reward %s", reward)
	}
}

func TestNewEpochReopensClaimsWithoutNewMints(t *testing.T) {
	owners := newFakeOwnership()
	owners.mint(1, alice)
	l, clk := newTestLedger(t, owners, time.Second)
	emitter := &capturingEmitter{}
	l.SetEmitter(emitter)

	if err := l.Deposit(big.NewInt(7)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.TakeSnapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if r, _ := l.Claim(1, alice); r.Int64() != 7 {
		t.Fatalf("first epoch reward %s", r)
	}
	if err := l.Deposit(big.NewInt(11)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clk.now++
	res, err := l.TakeSnapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if res.Watermark != 1 {
		t.Fatalf("watermark moved without mints: %d", res.Watermark)
	}
	if r, _ := l.Claim(1, alice); r.Int64() != 11 {
		t.Fatalf("second epoch reward %s", r)
	}
	if r, _ := l.Claim(1, alice); r.Sign() != 0 {
		t.Fatalf("repeat claim within the epoch paid %s", r)
	}

	var snapshots int
	for _, e := range emitter.events {
		if _, ok := e.(events.SnapshotCreated); ok {
			snapshots++
		}
	}
	if snapshots != 2 {
		t.Fatalf("expected 2 snapshot events, got %d", snapshots)
	}
}

func TestUnclaimedRewardsExpire(t *testing.T) {
	owners := newFakeOwnership()
	owners.mint(1, alice)
	owners.mint(2, bob)
	l, clk := newTestLedger(t, owners, time.Second)
	if err := l.Deposit(big.NewInt(30)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.TakeSnapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := l.Claim(1, alice); err != nil {
		t.Fatalf("claim: %v", err)
	}
	clk.now++
	res, err := l.TakeSnapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if res.Expired.Int64() != 15 {
		t.Fatalf("expected 15 expired, got %s", res.Expired)
	}
	s, _ := l.State()
	if s.ExpiredTotal.Int64() != 15 || s.DepositedTotal.Int64() != 30 {
		t.Fatalf("unexpected totals %+v", s)
	}
}

func TestDepositValidation(t *testing.T) {
	l, _ := newTestLedger(t, newFakeOwnership(), 0)
	emitter := &capturingEmitter{}
	l.SetEmitter(emitter)
	if err := l.Deposit(big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := l.Deposit(nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
	if err := l.Deposit(big.NewInt(0)); err != nil {
		t.Fatalf("zero deposit: %v", err)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("no-op deposits emitted %d events", len(emitter.events))
	}
	if err := l.Deposit(big.NewInt(3)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	evt, ok := emitter.events[0].(events.PoolChanged)
	if !ok || evt.Ledger != LedgerHolders || evt.Delta.Int64() != 3 || evt.NewPool.Int64() != 3 {
		t.Fatalf("unexpected event %#v", emitter.events[0])
	}
}

func TestCheckDoesNotRecordClaim(t *testing.T) {
	owners := newFakeOwnership()
	owners.mint(1, alice)
	l, _ := newTestLedger(t, owners, 0)
	if err := l.Check(1, alice); !errors.Is(err, ErrTokenNotInSnapshot) {
		t.Fatalf("expected ErrTokenNotInSnapshot, got %v", err)
	}
	if err := l.Deposit(big.NewInt(4)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.TakeSnapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := l.Check(1, bob); !errors.Is(err, ErrTokenNotOwned) {
		t.Fatalf("expected ErrTokenNotOwned, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := l.Check(1, alice); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	got, err := l.Claim(1, alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got.Int64() != 4 {
		t.Fatalf("expected reward 4 after checks, got %s", got)
	}
	if err := l.Check(1, alice); err != nil {
		t.Fatalf("check after claim: %v", err)
	}
}
