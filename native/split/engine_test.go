package split

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"nameshare/core/events"
	"nameshare/core/state"
	"nameshare/native/collections"
	"nameshare/native/snapshot"
	"nameshare/storage"
)

type recordingPool struct {
	total *big.Int
	calls int
}

func (p *recordingPool) Deposit(amount *big.Int) error {
	if p.total == nil {
		p.total = big.NewInt(0)
	}
	p.total.Add(p.total, amount)
	p.calls++
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(e events.Event) { c.events = append(c.events, e) }

var (
	payout   = [20]byte{19: 0x01}
	referer  = [20]byte{19: 0x02}
	protocol = [20]byte{19: 0x03}
)

type fixture struct {
	engine    *Engine
	registry  *collections.Registry
	tx        *state.Tx
	holders   *recordingPool
	ecosystem *recordingPool
	emitter   *capturingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tx := state.NewManager(db).Begin()
	registry := collections.NewRegistry(tx, 5)
	f := &fixture{
		registry:  registry,
		tx:        tx,
		holders:   &recordingPool{},
		ecosystem: &recordingPool{},
		emitter:   &capturingEmitter{},
	}
	f.engine = NewEngine(tx, registry, protocol)
	f.engine.SetPool(snapshot.LedgerHolders, f.holders)
	f.engine.SetPool(snapshot.LedgerEcosystem, f.ecosystem)
	f.engine.SetEmitter(f.emitter)
	return f
}

func (f *fixture) balance(t *testing.T, addr [20]byte) int64 {
	t.Helper()
	bal, err := f.tx.Balance(addr)
	require.NoError(t, err)
	return bal.Int64()
}

func TestCollectWorkedExample(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Register("a", payout, 13, 54, true)
	require.NoError(t, err)

	b, err := f.engine.Collect("a", referer, big.NewInt(1_000), big.NewInt(407_894))
	require.NoError(t, err)

	require.Equal(t, int64(53_026), b.Amount(ClassReferral).Int64())
	require.Equal(t, int64(220_262), b.Amount(ClassCommunity).Int64())
	require.Equal(t, int64(20_394), b.Amount(ClassProtocol).Int64())
	require.Equal(t, int64(57_105), b.Amount(ClassEcosystem).Int64())
	require.Equal(t, int64(57_107), b.Amount(ClassHolders).Int64())
	require.Equal(t, int64(407_894), b.Total().Int64())

	require.Equal(t, int64(53_026), f.balance(t, referer))
	require.Equal(t, int64(220_262), f.balance(t, payout))
	require.Equal(t, int64(20_394), f.balance(t, protocol))
	require.Equal(t, int64(57_105), f.ecosystem.total.Int64())
	require.Equal(t, int64(57_107), f.holders.total.Int64())

	require.NotEmpty(t, f.emitter.events)
	collected, ok := f.emitter.events[0].(events.Collected)
	require.True(t, ok)
	require.Equal(t, "a", collected.CollectionID)
	require.Equal(t, int64(1_000), collected.RawValue.Int64())
	require.Equal(t, int64(407_894), collected.ConvertedValue.Int64())

	var balanceEvents int
	for _, e := range f.emitter.events {
		if _, ok := e.(events.BalanceChanged); ok {
			balanceEvents++
		}
	}
	require.Equal(t, 3, balanceEvents)
}

func TestCollectConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(99), big.NewInt(101)}
	for i := 0; i < 64; i++ {
		values = append(values, big.NewInt(rng.Int63()))
	}
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	values = append(values, max)

	for referral := uint32(0); referral <= 95; referral += 5 {
		for community := uint32(0); referral+community <= 95; community += 7 {
			c := &collections.Collection{
				ReferralShare:         referral,
				CommunityShare:        community,
				ProtocolShare:         5,
				PoolsIntoHolderLedger: true,
			}
			eco, err := collections.EcosystemShare(referral, community, 5)
			require.NoError(t, err)
			c.EcosystemShare = eco
			table := Table(c, referer, protocol)
			for _, v := range values {
				shares, err := Divide(v, table)
				require.NoError(t, err)
				total := big.NewInt(0)
				for _, s := range shares {
					require.GreaterOrEqual(t, s.Amount.Sign(), 0)
					total.Add(total, s.Amount)
				}
				require.Zerof(t, total.Cmp(v), "referral=%d community=%d value=%s total=%s", referral, community, v, total)
			}
		}
	}
}

func TestCollectHoldersToPayoutTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Register("direct", payout, 10, 20, false)
	require.NoError(t, err)

	b, err := f.engine.Collect("direct", referer, nil, big.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, int64(100), b.Amount(ClassReferral).Int64())
	require.Equal(t, int64(200), b.Amount(ClassCommunity).Int64())
	require.Equal(t, int64(50), b.Amount(ClassProtocol).Int64())
	require.Equal(t, int64(325), b.Amount(ClassEcosystem).Int64())
	require.Equal(t, int64(325), b.Amount(ClassHolders).Int64())

	require.Equal(t, int64(525), f.balance(t, payout))
	require.Equal(t, 0, f.holders.calls)
	require.Equal(t, int64(325), f.ecosystem.total.Int64())
}

func TestCollectNullRefererAccrues(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Register("a", payout, 10, 10, true)
	require.NoError(t, err)
	_, err = f.engine.Collect("a", [20]byte{}, nil, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(10), f.balance(t, [20]byte{}))
}

func TestCollectRejections(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Register("a", payout, 10, 10, true)
	require.NoError(t, err)

	_, err = f.engine.Collect("missing", referer, nil, big.NewInt(100))
	require.True(t, errors.Is(err, collections.ErrUnknownCollection))

	_, err = f.engine.Collect("a", referer, nil, big.NewInt(-1))
	require.True(t, errors.Is(err, ErrInvalidAmount))

	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = f.engine.Collect("a", referer, nil, huge)
	require.True(t, errors.Is(err, ErrAmountOverflow))

	f.engine.SetPool(snapshot.LedgerEcosystem, nil)
	_, err = f.engine.Collect("a", referer, nil, big.NewInt(100))
	require.True(t, errors.Is(err, ErrUnknownLedger))

	require.Empty(t, f.emitter.events)
	require.Equal(t, int64(0), f.balance(t, referer))
}

func TestPreviewDoesNotBook(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Register("a", payout, 13, 54, true)
	require.NoError(t, err)
	pending := f.tx.Pending()

	b, err := f.engine.Preview("a", big.NewInt(407_894))
	require.NoError(t, err)
	require.Equal(t, int64(407_894), b.Total().Int64())
	require.Equal(t, pending, f.tx.Pending())
	require.Empty(t, f.emitter.events)
	require.Nil(t, f.holders.total)
}

func TestTableShape(t *testing.T) {
	c := &collections.Collection{ReferralShare: 13, CommunityShare: 54, EcosystemShare: 14, ProtocolShare: 5, PayoutTarget: payout, PoolsIntoHolderLedger: true}
	table := Table(c, referer, protocol)
	require.Len(t, table, 5)
	var residuals int
	for _, row := range table {
		if row.Residual {
			residuals++
			require.Equal(t, ClassHolders, row.Class)
			require.Equal(t, snapshot.LedgerHolders, row.Destination.Ledger)
		}
	}
	require.Equal(t, 1, residuals)
	require.Equal(t, referer, table[0].Destination.Account)
	require.Equal(t, protocol, table[2].Destination.Account)
	require.True(t, table[3].Destination.IsPool())
}
