package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/semanticarchitectures/Framework/pkg/config"
	"github.com/semanticarchitectures/Framework/pkg/dao"
	"github.com/semanticarchitectures/Framework/pkg/eventlog"
	"github.com/semanticarchitectures/Framework/pkg/lock"
	"github.com/semanticarchitectures/Framework/pkg/observability"
)

// runRunCmd implements `daosim run`.
//
// Exit codes:
//
//	0 = scenario completed
//	2 = configuration or runtime error
func runRunCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		scenarioPath string
		seed         uint64
		days         int
		jsonOutput   bool
		verifyReward bool
		dbPath       string
	)
	cmd.StringVar(&scenarioPath, "scenario", "", "Scenario YAML file (default: built-in demo)")
	cmd.Uint64Var(&seed, "seed", 0, "Override the policy random seed")
	cmd.IntVar(&days, "days", 0, "Override the simulated days of every mission")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.BoolVar(&verifyReward, "verify-rewards", false, "Gate payouts on oracle verification")
	cmd.StringVar(&dbPath, "db", "", "Event store DSN (overrides EVENT_STORE/DATABASE_URL)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := config.DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := config.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		base = p
	}

	scenario, err := loadScenario(scenarioPath, base)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	policy := *scenario.Policy
	cmd.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			policy.RandomSeed = seed
		}
	})

	opts := dao.Options{Policy: &policy, Verification: verifyReward}

	driver, dsn := cfg.SQLDriver(), cfg.DatabaseURL
	if dbPath != "" {
		driver, dsn = driverFor(dbPath), dbPath
	}
	if driver != "" {
		db, err := openEventDB(driver, dsn)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer func() { _ = db.Close() }()
		store := eventlog.NewSQLStore(db)
		if err := store.Init(ctx); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: init event store: %v\n", err)
			return 2
		}
		if existing, err := store.List(ctx); err == nil && len(existing) > 0 {
			_, _ = fmt.Fprintf(stderr, "Error: event store %s already holds %d events\n", dsn, len(existing))
			return 2
		}
		opts.EventStore = store
	}

	if cfg.RedisAddr != "" {
		rl := lock.NewRedisLocker(lock.RedisOptions{Addr: cfg.RedisAddr})
		defer func() { _ = rl.Close() }()
		opts.Locker = rl
	}

	if cfg.OTelEnabled {
		oc := observability.DefaultConfig()
		oc.ServiceVersion = Version
		oc.OTLPEndpoint = cfg.OTLPEndpoint
		provider, err := observability.New(ctx, oc)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer func() { _ = provider.Shutdown(context.Background()) }()
		opts.Telemetry = provider
	}

	d, err := dao.New(ctx, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	results, err := scenario.play(ctx, d, days)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	stats := d.Stats()
	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Proposals []ProposalResult `json:"proposals"`
			Stats     dao.Stats        `json:"stats"`
		}{results, stats}); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		return 0
	}

	printProposals(stdout, results)
	printMissions(stdout, results)
	printAgents(stdout, stats)
	printSummary(stdout, stats)
	return 0
}
