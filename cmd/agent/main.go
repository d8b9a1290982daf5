package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyarena/server/internal/agent"
	"github.com/skyarena/server/internal/config"
	"github.com/skyarena/server/internal/data"
	"github.com/skyarena/server/internal/logging"
	"github.com/skyarena/server/internal/relocation"
	"github.com/skyarena/server/internal/scripting"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rosterPath := "data/yaml/roster.yaml"
	if p := os.Getenv("ARENA_ROSTER"); p != "" {
		rosterPath = p
	}
	var (
		scriptsDir string
		seed       int64
		logCfg     config.LoggingConfig
	)
	flag.StringVar(&rosterPath, "roster", rosterPath, "path to the agent roster")
	flag.StringVar(&scriptsDir, "scripts", "", "strategy script directory (overrides the roster)")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "strategy random seed")
	flag.StringVar(&logCfg.Level, "log-level", "info", "log level")
	flag.StringVar(&logCfg.Format, "log-format", "console", `"console" or "json"`)
	flag.Parse()

	log, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	roster, err := data.LoadRoster(rosterPath)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	if scriptsDir == "" {
		scriptsDir = roster.ScriptsDir
	}
	strategy, err := scripting.NewEngine(scriptsDir, seed, log)
	if err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}
	defer strategy.Close()

	log.Info("agent starting",
		zap.Int("characters", roster.Count()),
		zap.Int("nodes", len(roster.Nodes)),
		zap.Strings("strategies", strategy.Strategies()),
		zap.Duration("interval", roster.Interval),
		zap.Uint64("relocation_retries", roster.Relocation.Retries))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cluster := agent.NewCluster(roster, &http.Client{Timeout: 10 * time.Second})
	relocator := relocation.NewRelocator(log, roster.Relocation.Backoff, roster.Relocation.Retries)
	if err := agent.RunRoster(ctx, roster, cluster, strategy, relocator, log); err != nil {
		return err
	}
	log.Info("agent finished")
	return nil
}
