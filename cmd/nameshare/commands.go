package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nameshare/config"
	"nameshare/crypto"
	"nameshare/native/claims"
	"nameshare/native/collections"
	"nameshare/native/snapshot"
	"nameshare/native/units"
	"nameshare/observability/server"
	"nameshare/services/keeper"
	"nameshare/services/ledger"
)

// bookedTransfer records payouts in the log. Settlement on an external rail
// is performed by the operator from the journaled Withdrawn events.
type bookedTransfer struct {
	logger *slog.Logger
}

func (b bookedTransfer) Transfer(_ context.Context, to [20]byte, amount *big.Int, reference string) error {
	b.logger.Info("payout booked", "account", crypto.Address(to).String(), "amount", amount.String(), "reference", reference)
	return nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func fail(e *env, err error) int {
	fmt.Fprintf(e.stderr, "Error: %v\n", err)
	return 1
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func parseUnits(raw string) ([]uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid unit id %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}

func runInit(g globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "config: %s\nprotocol account: %s\ndata dir: %s\n", g.configPath, cfg.ProtocolAccount, cfg.DataDir)
	return 0
}

func runRegister(e *env, args []string) int {
	fs := newFlagSet("register", e.stderr)
	id := fs.String("id", "", "collection id")
	payoutFlag := fs.String("payout", "", "payout target account")
	referral := fs.Uint("referral", 0, "referral share percent")
	community := fs.Uint("community", 0, "community share percent")
	direct := fs.Bool("direct", false, "send the holders share to the payout target instead of the holder ledger")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	payout, err := crypto.ParseAddress(*payoutFlag)
	if err != nil {
		return fail(e, fmt.Errorf("--payout: %w", err))
	}
	c, err := e.svc.RegisterCollection(*id, payout, uint32(*referral), uint32(*community), !*direct)
	if err != nil {
		return fail(e, err)
	}
	return e.print(collectionView(c))
}

func runCollection(e *env, args []string) int {
	fs := newFlagSet("collection", e.stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		return fail(e, errors.New("usage: collection <id>"))
	}
	c, err := e.svc.Collection(fs.Arg(0))
	if err != nil {
		return fail(e, err)
	}
	return e.print(collectionView(c))
}

func runCollections(e *env, args []string) int {
	list, err := e.svc.Collections()
	if err != nil {
		return fail(e, err)
	}
	views := make([]collectionOutput, 0, len(list))
	for _, c := range list {
		views = append(views, collectionView(c))
	}
	return e.print(views)
}

func runMint(e *env, args []string) int {
	fs := newFlagSet("mint", e.stderr)
	ledgerName := fs.String("ledger", snapshot.LedgerHolders, "unit set to mint into")
	ownerFlag := fs.String("owner", "", "owner account")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	owner, err := crypto.ParseAccount(*ownerFlag)
	if err != nil {
		return fail(e, fmt.Errorf("--owner: %w", err))
	}
	rec, err := e.svc.MintUnit(*ledgerName, owner)
	if err != nil {
		return fail(e, err)
	}
	return e.print(unitView(*ledgerName, rec))
}

func runTransferUnit(e *env, args []string) int {
	fs := newFlagSet("transfer-unit", e.stderr)
	ledgerName := fs.String("ledger", snapshot.LedgerHolders, "unit set")
	unit := fs.Uint64("unit", 0, "unit id")
	fromFlag := fs.String("from", "", "current owner")
	toFlag := fs.String("to", "", "new owner")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	from, err := crypto.ParseAccount(*fromFlag)
	if err != nil {
		return fail(e, fmt.Errorf("--from: %w", err))
	}
	to, err := crypto.ParseAccount(*toFlag)
	if err != nil {
		return fail(e, fmt.Errorf("--to: %w", err))
	}
	rec, err := e.svc.TransferUnit(*ledgerName, *unit, from, to)
	if err != nil {
		return fail(e, err)
	}
	return e.print(unitView(*ledgerName, rec))
}

func runCollect(e *env, args []string) int {
	fs := newFlagSet("collect", e.stderr)
	id := fs.String("collection", "", "collection id")
	refererFlag := fs.String("referer", "", "referer account (empty for none)")
	amountFlag := fs.String("amount", "", "raw revenue amount")
	dryRun := fs.Bool("dry-run", false, "preview the split without booking it")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	amount, err := parseAmount(*amountFlag)
	if err != nil {
		return fail(e, err)
	}
	if *dryRun {
		b, err := e.svc.Preview(*id, amount)
		if err != nil {
			return fail(e, err)
		}
		return e.print(breakdownView(b))
	}
	var referer crypto.Address
	if strings.TrimSpace(*refererFlag) != "" {
		if referer, err = crypto.ParseAddress(*refererFlag); err != nil {
			return fail(e, fmt.Errorf("--referer: %w", err))
		}
	}
	b, err := e.svc.Collect(context.Background(), *id, referer, amount)
	if err != nil {
		return fail(e, err)
	}
	return e.print(breakdownView(b))
}

func runSnapshot(e *env, args []string) int {
	fs := newFlagSet("snapshot", e.stderr)
	ledgerName := fs.String("ledger", snapshot.LedgerHolders, "ledger to snapshot")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	res, err := e.svc.TakeSnapshot(*ledgerName)
	if err != nil {
		return fail(e, err)
	}
	return e.print(snapshotView(*ledgerName, res))
}

func runWithdraw(e *env, args []string) int {
	fs := newFlagSet("withdraw", e.stderr)
	accountFlag := fs.String("account", "", "account to pay out")
	holderUnits := fs.String("units", "", "comma separated holder unit ids")
	ecoUnits := fs.String("ecosystem-units", "", "comma separated ecosystem unit ids")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	account, err := crypto.ParseAddress(*accountFlag)
	if err != nil {
		return fail(e, fmt.Errorf("--account: %w", err))
	}
	holders, err := parseUnits(*holderUnits)
	if err != nil {
		return fail(e, err)
	}
	eco, err := parseUnits(*ecoUnits)
	if err != nil {
		return fail(e, err)
	}
	requests := []claims.Request{{Ledger: snapshot.LedgerHolders, Units: holders}}
	if len(eco) > 0 {
		requests = append(requests, claims.Request{Ledger: snapshot.LedgerEcosystem, Units: eco})
	}
	w, err := e.svc.WithdrawFrom(context.Background(), account, requests)
	if err != nil {
		return fail(e, err)
	}
	return e.print(withdrawalView(w))
}

func runBalance(e *env, args []string) int {
	fs := newFlagSet("balance", e.stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		return fail(e, errors.New("usage: balance <account>"))
	}
	account, err := crypto.ParseAddress(fs.Arg(0))
	if err != nil {
		return fail(e, err)
	}
	bal, err := e.svc.Balance(account)
	if err != nil {
		return fail(e, err)
	}
	return e.print(balanceOutput{Account: account.String(), Balance: bal.String()})
}

func runLedger(e *env, args []string) int {
	fs := newFlagSet("ledger", e.stderr)
	ledgerName := fs.String("ledger", snapshot.LedgerHolders, "ledger to inspect")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	st, err := e.svc.LedgerState(*ledgerName)
	if err != nil {
		return fail(e, err)
	}
	out := ledgerView(*ledgerName, st)
	if next, gated, err := e.svc.NextSnapshotAt(*ledgerName); err == nil && gated {
		out.NextSnapshotAt = next.UTC().Format(time.RFC3339)
	}
	return e.print(out)
}

func runPending(e *env, args []string) int {
	fs := newFlagSet("pending", e.stderr)
	ledgerName := fs.String("ledger", snapshot.LedgerHolders, "ledger")
	unit := fs.Uint64("unit", 0, "unit id")
	accountFlag := fs.String("account", "", "claimant account")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	account, err := crypto.ParseAddress(*accountFlag)
	if err != nil {
		return fail(e, fmt.Errorf("--account: %w", err))
	}
	amount, err := e.svc.Pending(*ledgerName, *unit, account)
	if err != nil {
		return fail(e, err)
	}
	return e.print(pendingOutput{Ledger: *ledgerName, Unit: *unit, Amount: amount.String()})
}

func runEvents(e *env, args []string) int {
	fs := newFlagSet("events", e.stderr)
	limit := fs.Int("limit", 20, "number of events")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if e.journal == nil {
		return fail(e, errors.New("event journal not configured (set EventLogDSN)"))
	}
	recs, err := e.journal.List(*limit)
	if err != nil {
		return fail(e, err)
	}
	out := make([]eventOutput, 0, len(recs))
	for _, r := range recs {
		attrs, err := r.Attrs()
		if err != nil {
			return fail(e, err)
		}
		out = append(out, eventOutput{Seq: r.Seq, Type: r.Type, Time: r.CreatedAt.Format(time.RFC3339), Attributes: attrs})
	}
	return e.print(out)
}

func runKeeper(e *env, args []string) int {
	fs := newFlagSet("keeper", e.stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if addr := strings.TrimSpace(e.cfg.MetricsAddress); addr != "" {
		cfg := server.Config{
			Ledger:   e.svc,
			NotFound: []error{ledger.ErrUnknownLedger, collections.ErrUnknownCollection, units.ErrUnitNotFound},
		}
		if e.journal != nil {
			cfg.Events = e.journal
		}
		srv = &http.Server{
			Addr:         addr,
			Handler:      server.New(cfg),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			e.logger.Info("ops server listening", "address", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("ops server stopped", "error", err)
				stop()
			}
		}()
	}

	k := keeper.New(e.svc, e.cfg.KeeperPollInterval.Duration, e.logger)
	err := k.Run(ctx)
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			_ = srv.Close()
		}
	}
	if err != nil {
		return fail(e, err)
	}
	return 0
}
