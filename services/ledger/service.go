package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nameshare/core/events"
	"nameshare/core/state"
	"nameshare/native/claims"
	"nameshare/native/collections"
	"nameshare/native/conversion"
	"nameshare/native/snapshot"
	"nameshare/native/split"
	"nameshare/native/units"
	"nameshare/observability/metrics"
	"nameshare/storage"
)

// ErrUnknownLedger is returned when an operation names a ledger the service
// does not host.
var ErrUnknownLedger = errors.New("ledger: unknown ledger")

// ErrUncommittedTransfer is returned when a withdrawal's transfer succeeded
// but the state commit that follows it failed. The payout has left while the
// balance and claim markers are unchanged; the error carries the transfer
// reference for reconciliation.
var ErrUncommittedTransfer = errors.New("ledger: transfer sent but state not committed")

// Transferer moves a withdrawal payout to its destination account.
type Transferer interface {
	Transfer(ctx context.Context, to [20]byte, amount *big.Int, reference string) error
}

// TransferFunc adapts a function to the Transferer interface.
type TransferFunc func(ctx context.Context, to [20]byte, amount *big.Int, reference string) error

// Transfer implements Transferer.
func (f TransferFunc) Transfer(ctx context.Context, to [20]byte, amount *big.Int, reference string) error {
	return f(ctx, to, amount, reference)
}

// Service hosts the configuration store, the split engine, both snapshot
// ledgers and the withdraw engine over one state database. Every mutating
// call runs in its own staged transaction and either commits in full or
// leaves state untouched; events are published only after a commit.
type Service struct {
	mu sync.Mutex

	state           *state.Manager
	protocolShare   uint32
	protocolAccount [20]byte
	intervals       map[string]time.Duration

	clock     clockwork.Clock
	converter conversion.Converter
	transfer  Transferer
	emitter   events.Emitter
	logger    *slog.Logger
	metrics   *metrics.LedgerMetrics
	tracer    trace.Tracer
	refFn     func() string
}

// Option customises the service instance.
type Option func(*Service)

// WithClock sets the clock used for snapshot cadence and registration times.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithConverter sets the currency conversion applied to raw revenue.
func WithConverter(c conversion.Converter) Option {
	return func(s *Service) { s.converter = c }
}

// WithTransferer supplies the payout rail used by withdrawals.
func WithTransferer(t Transferer) Option {
	return func(s *Service) { s.transfer = t }
}

// WithEmitter sets the destination of committed events.
func WithEmitter(e events.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracerProvider sets the provider of per-operation spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithProtocolShare sets the global protocol percentage.
func WithProtocolShare(share uint32) Option {
	return func(s *Service) { s.protocolShare = share }
}

// WithSnapshotInterval sets the minimum interval between snapshots of ledger.
func WithSnapshotInterval(ledger string, interval time.Duration) Option {
	return func(s *Service) { s.intervals[ledger] = interval }
}

// WithReferenceFunc overrides the generator of withdrawal references.
func WithReferenceFunc(fn func() string) Option {
	return func(s *Service) { s.refFn = fn }
}

// New constructs the service over db. protocolAccount receives the protocol
// class of every collection.
func New(db storage.Database, protocolAccount [20]byte, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: database required")
	}
	if protocolAccount == ([20]byte{}) {
		return nil, fmt.Errorf("ledger: protocol account required")
	}
	svc := &Service{
		state:           state.NewManager(db),
		protocolShare:   5,
		protocolAccount: protocolAccount,
		intervals: map[string]time.Duration{
			snapshot.LedgerHolders:   24 * time.Hour,
			snapshot.LedgerEcosystem: 24 * time.Hour,
		},
		clock:     clockwork.NewRealClock(),
		converter: conversion.Identity{},
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		refFn:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.protocolShare > collections.ShareDenominator {
		return nil, fmt.Errorf("ledger: protocol share %d exceeds %d", svc.protocolShare, collections.ShareDenominator)
	}
	if svc.metrics == nil {
		svc.metrics = metrics.Ledger()
	}
	if svc.emitter == nil {
		svc.emitter = events.NoopEmitter{}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.converter == nil {
		svc.converter = conversion.Identity{}
	}
	if svc.refFn == nil {
		svc.refFn = uuid.NewString
	}
	return svc, nil
}

// Ledgers lists the hosted snapshot ledgers.
func (s *Service) Ledgers() []string {
	names := make([]string, 0, len(s.intervals))
	for name := range s.intervals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const tracerName = "nameshare/services/ledger"

// session wires every engine to one staged transaction.
type session struct {
	ctx      context.Context
	tx       *state.Tx
	buf      *events.Buffer
	registry *collections.Registry
	units    map[string]*units.Registry
	ledgers  map[string]*snapshot.Ledger
	split    *split.Engine
	claims   *claims.Engine

	// transferRef is set once a payout left through the transfer rail.
	transferRef string
}

func (s *Service) begin(ctx context.Context) *session {
	tx := s.state.Begin()
	buf := &events.Buffer{}
	now := func() int64 { return s.clock.Now().Unix() }

	sess := &session{
		ctx:      ctx,
		tx:       tx,
		buf:      buf,
		registry: collections.NewRegistry(tx, s.protocolShare),
		units:    make(map[string]*units.Registry, len(s.intervals)),
		ledgers:  make(map[string]*snapshot.Ledger, len(s.intervals)),
		claims:   claims.NewEngine(tx),
	}
	sess.registry.SetEmitter(buf)
	sess.registry.SetNowFunc(now)
	sess.split = split.NewEngine(tx, sess.registry, s.protocolAccount)
	sess.split.SetEmitter(buf)
	sess.claims.SetEmitter(buf)
	sess.claims.SetReferenceFunc(s.refFn)
	for name, interval := range s.intervals {
		set := units.NewRegistry(name, tx)
		l := snapshot.NewLedger(name, tx, set, interval)
		l.SetEmitter(buf)
		l.SetNowFunc(now)
		sess.units[name] = set
		sess.ledgers[name] = l
		sess.split.SetPool(name, l)
		sess.claims.SetLedger(name, l)
	}
	return sess
}

func (s *Service) commit(sess *session) error {
	if err := sess.tx.Commit(); err != nil {
		sess.buf.Reset()
		return err
	}
	sess.buf.Flush(s.emitter)
	return nil
}

func (sess *session) ledger(name string) (*snapshot.Ledger, error) {
	l, ok := sess.ledgers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, name)
	}
	return l, nil
}

func (sess *session) unitSet(name string) (*units.Registry, error) {
	set, ok := sess.units[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, name)
	}
	return set, nil
}

// run executes fn inside a fresh transaction and commits when it succeeds.
// Each call is one span named after op.
func (s *Service) run(ctx context.Context, op string, fn func(*session) error) error {
	ctx, span := s.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.String("ledger.operation", op)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.begin(ctx)
	if err := fn(sess); err != nil {
		sess.tx.Discard()
		s.reject(span, op, err)
		return err
	}
	if err := s.commit(sess); err != nil {
		if sess.transferRef != "" {
			s.logger.Error("transfer sent but commit failed", "operation", op, "reference", sess.transferRef, "error", err)
			err = fmt.Errorf("%w: reference %s: %v", ErrUncommittedTransfer, sess.transferRef, err)
		}
		s.reject(span, op, err)
		return err
	}
	return nil
}

// view executes fn against a transaction that is always discarded.
func (s *Service) view(fn func(*session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.begin(context.Background())
	defer sess.tx.Discard()
	return fn(sess)
}

func (s *Service) reject(span trace.Span, op string, err error) {
	reason := reasonOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	s.metrics.ObserveRejection(op, reason)
	s.logger.Warn("operation rejected", "operation", op, "reason", reason, "error", err)
}

func (s *Service) observePools(sess *session) {
	for name, l := range sess.ledgers {
		st, err := l.State()
		if err != nil {
			continue
		}
		s.metrics.SetPool(name, st.Pool, st.UnclaimedPool)
	}
}

// RegisterCollection records the write-once split configuration of id.
func (s *Service) RegisterCollection(id string, payoutTarget [20]byte, referralShare, communityShare uint32, poolsIntoHolderLedger bool) (*collections.Collection, error) {
	var out *collections.Collection
	err := s.run(context.Background(), "register", func(sess *session) error {
		c, err := sess.registry.Register(id, payoutTarget, referralShare, communityShare, poolsIntoHolderLedger)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if list, err := s.Collections(); err == nil {
		s.metrics.SetCollections(len(list))
	}
	s.logger.Info("collection registered", "collection", out.ID, "ecosystemShare", out.EcosystemShare)
	return out, nil
}

// Collection returns the configuration of id.
func (s *Service) Collection(id string) (*collections.Collection, error) {
	var out *collections.Collection
	err := s.view(func(sess *session) error {
		c, err := sess.registry.Get(id)
		out = c
		return err
	})
	return out, err
}

// Collections lists every registered collection sorted by id.
func (s *Service) Collections() ([]*collections.Collection, error) {
	var out []*collections.Collection
	err := s.view(func(sess *session) error {
		list, err := sess.registry.List()
		out = list
		return err
	})
	return out, err
}

// Collect converts raw and divides the result among the classes of
// collectionID.
func (s *Service) Collect(ctx context.Context, collectionID string, referer [20]byte, raw *big.Int) (*split.Breakdown, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *split.Breakdown
	err := s.run(ctx, "collect", func(sess *session) error {
		converted, err := s.converter.Convert(raw)
		if err != nil {
			return err
		}
		b, err := sess.split.Collect(collectionID, referer, raw, converted)
		if err != nil {
			return err
		}
		out = b
		s.observePools(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCollected(out.CollectionID, out.Value)
	for _, share := range out.Shares {
		s.metrics.ObserveDistributed(string(share.Class), share.Amount)
	}
	s.logger.Info("revenue collected", "collection", out.CollectionID, "amount", out.Value.String())
	return out, nil
}

// Preview reports how raw would be divided for collectionID without booking
// anything.
func (s *Service) Preview(collectionID string, raw *big.Int) (*split.Breakdown, error) {
	var out *split.Breakdown
	err := s.view(func(sess *session) error {
		converted, err := s.converter.Convert(raw)
		if err != nil {
			return err
		}
		b, err := sess.split.Preview(collectionID, converted)
		out = b
		return err
	})
	return out, err
}

// MintUnit creates a unit for owner in the unit set distributed by ledger.
func (s *Service) MintUnit(ledger string, owner [20]byte) (*units.Record, error) {
	var out *units.Record
	err := s.run(context.Background(), "mint", func(sess *session) error {
		set, err := sess.unitSet(ledger)
		if err != nil {
			return err
		}
		rec, err := set.Mint(owner)
		out = rec
		return err
	})
	return out, err
}

// TransferUnit moves a unit between owners. Its mint point is unchanged.
func (s *Service) TransferUnit(ledger string, unitID uint64, from, to [20]byte) (*units.Record, error) {
	var out *units.Record
	err := s.run(context.Background(), "transfer-unit", func(sess *session) error {
		set, err := sess.unitSet(ledger)
		if err != nil {
			return err
		}
		rec, err := set.Transfer(unitID, from, to)
		out = rec
		return err
	})
	return out, err
}

// TakeSnapshot fixes a new per-unit reward on ledger.
func (s *Service) TakeSnapshot(ledger string) (*snapshot.Result, error) {
	var out *snapshot.Result
	err := s.run(context.Background(), "snapshot", func(sess *session) error {
		l, err := sess.ledger(ledger)
		if err != nil {
			return err
		}
		res, err := l.TakeSnapshot()
		if err != nil {
			return err
		}
		out = res
		s.observePools(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSnapshot(ledger)
	s.logger.Info("snapshot taken",
		"ledger", ledger,
		"epoch", out.Epoch,
		"rewardPerUnit", out.RewardPerUnit.String(),
		"supply", out.Supply,
		"unclaimedPool", out.UnclaimedPool.String())
	return out, nil
}

// Withdraw pays target its balance plus the holder rewards of unitIDs.
func (s *Service) Withdraw(ctx context.Context, target [20]byte, unitIDs []uint64) (*claims.Withdrawal, error) {
	return s.WithdrawFrom(ctx, target, []claims.Request{{Ledger: snapshot.LedgerHolders, Units: unitIDs}})
}

// WithdrawFrom pays target its balance plus the rewards of every requested
// unit across ledgers. The transfer runs before the state is committed; a
// failed transfer leaves everything unchanged. A commit failure after a
// successful transfer returns ErrUncommittedTransfer with the reference.
func (s *Service) WithdrawFrom(ctx context.Context, target [20]byte, requests []claims.Request) (*claims.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *claims.Withdrawal
	err := s.run(ctx, "withdraw", func(sess *session) error {
		if s.transfer != nil {
			sess.claims.SetTransfer(claims.TransferFunc(func(to [20]byte, amount *big.Int, reference string) error {
				if err := s.transfer.Transfer(sess.ctx, to, amount, reference); err != nil {
					return err
				}
				sess.transferRef = reference
				return nil
			}))
		}
		w, err := sess.claims.WithdrawFrom(target, requests)
		out = w
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveWithdrawal(out.Amount)
	s.logger.Info("withdrawal paid", "reference", out.Reference, "amount", out.Amount.String())
	return out, nil
}

// Balance returns the committed standing balance of account.
func (s *Service) Balance(account [20]byte) (*big.Int, error) {
	return s.state.Balance(account)
}

// LedgerState returns the accounting of ledger.
func (s *Service) LedgerState(ledger string) (*snapshot.State, error) {
	var out *snapshot.State
	err := s.view(func(sess *session) error {
		l, err := sess.ledger(ledger)
		if err != nil {
			return err
		}
		st, err := l.State()
		out = st
		return err
	})
	return out, err
}

// Pending reports what claimant would receive for unitID on ledger.
func (s *Service) Pending(ledger string, unitID uint64, claimant [20]byte) (*big.Int, error) {
	var out *big.Int
	err := s.view(func(sess *session) error {
		l, err := sess.ledger(ledger)
		if err != nil {
			return err
		}
		amount, err := l.Pending(unitID, claimant)
		out = amount
		return err
	})
	return out, err
}

// NextSnapshotAt returns the earliest time ledger accepts a snapshot. The
// boolean is false while the ledger has never been snapshotted.
func (s *Service) NextSnapshotAt(ledger string) (time.Time, bool, error) {
	var (
		at    int64
		gated bool
	)
	err := s.view(func(sess *session) error {
		l, err := sess.ledger(ledger)
		if err != nil {
			return err
		}
		at, gated, err = l.NextSnapshotAt()
		return err
	})
	if err != nil || !gated {
		return time.Time{}, false, err
	}
	return time.Unix(at, 0), true, nil
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.clock.Now() }
