package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skyarena/server/internal/api"
	"github.com/skyarena/server/internal/config"
	"github.com/skyarena/server/internal/engine"
	"github.com/skyarena/server/internal/logging"
	"github.com/skyarena/server/internal/relocation"
	"github.com/skyarena/server/internal/world"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              Sky Arena  v0.1.0            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m         turn-based arena node (Go)        \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mNode:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, value any) {
	val := fmt.Sprint(value)
	dotsLen := 42 - len(label) - len(val)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), val)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main node logic ───────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/arena.toml"
	if p := os.Getenv("ARENA_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the node config file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Arena rules
	printSection("Arena")
	rules := world.Rules{StatBudget: cfg.Arena.StatBudget, MaxSpeed: cfg.Arena.MaxSpeed}
	printStat("Stat budget", rules.StatBudget)
	printStat("Max speed", rules.MaxSpeed)
	printStat("Min players", cfg.Arena.MinPlayers)
	printStat("Turn poll", cfg.Arena.PollInterval)
	printStat("Seed", cfg.Arena.Seed)
	fmt.Println()

	// 4. Relocation leases
	printSection("Relocation")
	var signer *relocation.Signer
	if cfg.Relocation.Enabled {
		signer, err = relocation.NewSigner(cfg.Server.Name, cfg.Relocation.ClusterSecret, cfg.Relocation.LeaseTTL)
		if err != nil {
			return fmt.Errorf("relocation signer: %w", err)
		}
		printOK(fmt.Sprintf("Leases signed as %q (ttl %s)", cfg.Server.Name, cfg.Relocation.LeaseTTL))
	} else {
		printOK("Relocation disabled, FLY only skips the turn")
	}
	fmt.Println()

	// 5. Engine and HTTP surface
	eng := engine.New(engine.Options{
		Node:              cfg.Server.Name,
		Rules:             rules,
		MinPlayers:        cfg.Arena.MinPlayers,
		PollInterval:      cfg.Arena.PollInterval,
		StartPollInterval: cfg.Arena.StartPollInterval,
		Seed:              cfg.Arena.Seed,
		Signer:            signer,
	}, log)

	hub := api.NewHub(log)
	hub.Attach(eng.Bus())

	if log.Core().Enabled(zap.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Handler:      api.NewRouter(api.NewHandler(eng, hub, log)),
		ReadTimeout:  cfg.Network.ReadTimeout,
		WriteTimeout: cfg.Network.WriteTimeout,
	}
	ln, err := net.Listen("tcp", cfg.Network.BindAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Network.BindAddress, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 6. Turn loop
	if cfg.Arena.AutoStart {
		if err := eng.Start(); err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	printSection("Node ready")
	printReady(fmt.Sprintf("Listening on %s", ln.Addr().String()))
	if cfg.Arena.AutoStart {
		printReady(fmt.Sprintf("Turn loop waiting for %d players", cfg.Arena.MinPlayers))
	} else {
		printReady("Turn loop idle, POST /start to begin")
	}
	fmt.Println()

	select {
	case sig := <-shutdownCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("http server failed", zap.Error(err))
	}

	if err := eng.Stop(); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		log.Warn("engine stop", zap.Error(err))
	}
	hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("node stopped", zap.Int("turn", eng.CurrentTurn()))
	return nil
}
