package keeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"nameshare/native/snapshot"
)

// Snapshotter is the part of the ledger service the keeper drives.
type Snapshotter interface {
	Ledgers() []string
	NextSnapshotAt(ledger string) (time.Time, bool, error)
	TakeSnapshot(ledger string) (*snapshot.Result, error)
	Now() time.Time
}

// Keeper takes a snapshot of every hosted ledger as soon as its cadence gate
// opens. It polls at most once per interval.
type Keeper struct {
	svc     Snapshotter
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New constructs a keeper polling svc no more than once per interval.
func New(svc Snapshotter, interval time.Duration, logger *slog.Logger) *Keeper {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{
		svc:     svc,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "keeper"),
	}
}

// Run polls until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	for {
		if err := k.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		k.Tick()
	}
}

// Tick snapshots every ledger whose gate is open and returns the results.
func (k *Keeper) Tick() []*snapshot.Result {
	var taken []*snapshot.Result
	now := k.svc.Now()
	for _, name := range k.svc.Ledgers() {
		next, gated, err := k.svc.NextSnapshotAt(name)
		if err != nil {
			k.logger.Error("read snapshot schedule", "ledger", name, "error", err)
			continue
		}
		if gated && now.Before(next) {
			continue
		}
		res, err := k.svc.TakeSnapshot(name)
		switch {
		case errors.Is(err, snapshot.ErrSnapshotTooEarly), errors.Is(err, snapshot.ErrNoSupply):
			k.logger.Debug("snapshot skipped", "ledger", name, "reason", err)
			continue
		case err != nil:
			k.logger.Error("snapshot failed", "ledger", name, "error", err)
			continue
		}
		k.logger.Info("snapshot scheduled", "ledger", name, "epoch", res.Epoch)
		taken = append(taken, res)
	}
	return taken
}
