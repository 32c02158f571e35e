package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nameshare/config"
	"nameshare/core/events"
	"nameshare/native/snapshot"
	"nameshare/observability/logging"
	nsotel "nameshare/observability/otel"
	"nameshare/services/eventlog"
	"nameshare/services/ledger"
	"nameshare/storage"
)

const defaultConfig = "./config.toml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// globals are the flags accepted before the command name.
type globals struct {
	configPath string
	output     string
}

func parseGlobals(args []string, stderr io.Writer) (globals, []string, bool) {
	g := globals{configPath: defaultConfig, output: "text"}
	fs := flag.NewFlagSet("nameshare", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", g.configPath, "path to the TOML configuration")
	fs.StringVar(&g.output, "o", g.output, "output format: text, json or yaml")
	if err := fs.Parse(args); err != nil {
		return g, nil, false
	}
	switch g.output {
	case "text", "json", "yaml":
	default:
		fmt.Fprintf(stderr, "Error: unknown output format %q\n", g.output)
		return g, nil, false
	}
	return g, fs.Args(), true
}

func run(args []string, stdout, stderr io.Writer) int {
	g, rest, ok := parseGlobals(args, stderr)
	if !ok {
		return 1
	}
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	command, cmdArgs := rest[0], rest[1:]
	if command == "init" {
		return runInit(g, cmdArgs, stdout, stderr)
	}
	handler, ok := commands[command]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		fmt.Fprintln(stderr, usage())
		return 1
	}

	e, err := openEnv(g, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer e.close()
	return handler(e, cmdArgs)
}

var commands = map[string]func(*env, []string) int{
	"register":      runRegister,
	"collection":    runCollection,
	"collections":   runCollections,
	"mint":          runMint,
	"transfer-unit": runTransferUnit,
	"collect":       runCollect,
	"snapshot":      runSnapshot,
	"withdraw":      runWithdraw,
	"balance":       runBalance,
	"ledger":        runLedger,
	"pending":       runPending,
	"events":        runEvents,
	"keeper":        runKeeper,
}

func usage() string {
	return strings.TrimSpace(`
Usage: nameshare [--config path] [-o text|json|yaml] <command> [flags]

Commands:
  init           write a default configuration
  register       register a collection's revenue split
  collection     show one collection
  collections    list collections
  mint           mint a unit into a ledger's unit set
  transfer-unit  move a unit between owners
  collect        book a revenue event (--dry-run previews)
  snapshot       take a snapshot of a ledger
  withdraw       pay out an account balance and unit rewards
  balance        show an account balance
  ledger         show a ledger's accounting
  pending        show what a unit would claim
  events         list journaled events
  keeper         run the snapshot keeper and ops server`)
}

// env carries the opened configuration, storage and service for one command.
type env struct {
	cfg     *config.Config
	output  string
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
	db      storage.Database
	journal *eventlog.Journal
	svc     *ledger.Service

	shutdownTracing func(context.Context) error
}

func openEnv(g globals, stdout, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rt, err := cfg.Runtime()
	if err != nil {
		return nil, err
	}
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.DataDir, "nameshare.log")
	}
	logger := logging.SetupWithOptions("nameshare", cfg.Environment, logging.Options{File: logFile})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	e := &env{cfg: cfg, output: g.output, stdout: stdout, stderr: stderr, logger: logger, db: db}

	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		shutdown, err := nsotel.Init(context.Background(), nsotel.Config{
			ServiceName: "nameshare",
			Environment: cfg.Environment,
			Endpoint:    endpoint,
			Insecure:    cfg.OTLPInsecure,
			Headers:     nsotel.ParseHeaders(cfg.OTLPHeaders),
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		e.shutdownTracing = shutdown
	}

	var emitter events.Emitter = events.NoopEmitter{}
	if strings.TrimSpace(cfg.EventLogDSN) != "" {
		gdb, err := eventlog.Open(cfg.EventLogDSN)
		if err != nil {
			e.close()
			return nil, err
		}
		journal, err := eventlog.NewJournal(gdb, logger)
		if err != nil {
			if sqlDB, derr := gdb.DB(); derr == nil {
				sqlDB.Close()
			}
			e.close()
			return nil, err
		}
		logger.Debug("event journal opened", slog.String("dsn", logging.MaskDSN(cfg.EventLogDSN)))
		e.journal = journal
		emitter = journal
	}

	svc, err := ledger.New(db, rt.ProtocolAccount,
		ledger.WithProtocolShare(rt.ProtocolShare),
		ledger.WithConverter(rt.Conversion),
		ledger.WithSnapshotInterval(snapshot.LedgerHolders, rt.HolderSnapshotInterval),
		ledger.WithSnapshotInterval(snapshot.LedgerEcosystem, rt.EcosystemSnapshotInterval),
		ledger.WithEmitter(emitter),
		ledger.WithLogger(logger),
		ledger.WithTransferer(bookedTransfer{logger: logger}),
	)
	if err != nil {
		e.close()
		return nil, err
	}
	e.svc = svc
	return e, nil
}

func (e *env) close() {
	if e.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.shutdownTracing(ctx); err != nil {
			e.logger.Warn("flush traces", "error", err)
		}
		cancel()
	}
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			e.logger.Warn("close event journal", "error", err)
		}
	}
	if e.db != nil {
		e.db.Close()
	}
}
