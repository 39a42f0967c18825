// Package main is the entry point for the Crewforge engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/crewforge/engine/internal/artifact"
	"github.com/crewforge/engine/internal/bus"
	"github.com/crewforge/engine/internal/config"
	"github.com/crewforge/engine/internal/decision"
	"github.com/crewforge/engine/internal/generate"
	"github.com/crewforge/engine/internal/ipc"
	"github.com/crewforge/engine/internal/orchestrator"
	"github.com/crewforge/engine/internal/store"
	"github.com/crewforge/engine/internal/worker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration JSON file")
	request := flag.String("request", "", "start a project for this request text")
	flag.Parse()

	if *showVersion {
		fmt.Printf("crewforge %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	// Resolve config path: --config flag > CF_CONFIG env > auto-discover.
	path := *configPath
	if path == "" {
		path = os.Getenv("CF_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}

	var cfg *config.Config
	var err error
	if path == "" {
		cfg = config.Default("data")
	} else if cfg, err = config.Load(path); err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	decisions, err := decision.NewStore(filepath.Join(cfg.DataDir, "decisions"), cfg.AuthorityRole)
	if err != nil {
		log.Fatalf("open decision store: %v", err)
	}
	artifacts, err := artifact.NewStore(filepath.Join(cfg.DataDir, "artifacts"))
	if err != nil {
		log.Fatalf("open artifact store: %v", err)
	}

	b := bus.New(bus.WithQueueDepth(cfg.QueueDepth), bus.WithHistorySize(cfg.HistorySize))

	// Wire the generation provider registry.
	registry := generate.NewRegistry()
	for name, pc := range cfg.Providers {
		if err := registry.Register(generate.ProviderSpec{
			Name:    name,
			Command: pc.Command,
			Args:    pc.Args,
			Env:     pc.Env,
		}); err != nil {
			log.Fatalf("register provider %s: %v", name, err)
		}
	}

	var gen generate.Generator = &generate.StaticGenerator{}
	if cfg.Provider != "" {
		spec, err := registry.Get(cfg.Provider)
		if err != nil {
			log.Fatalf("provider %s: %v", cfg.Provider, err)
		}
		gen = generate.NewCommandGenerator(spec, time.Duration(cfg.TaskDeadlineSec)*time.Second)
	}

	orch := orchestrator.New(orchestrator.Config{
		Project:              cfg.Project,
		AuthorityRole:        cfg.AuthorityRole,
		Resolver:             cfg.Resolver,
		RemediationRole:      cfg.RemediationRole,
		MaxRemediationRounds: cfg.MaxRemediationRounds,
		TaskDeadline:         time.Duration(cfg.TaskDeadlineSec) * time.Second,
		WatchInterval:        time.Duration(cfg.WatchIntervalSec) * time.Second,
	}, b, decisions, artifacts, db)

	// Load the crew: a roles file overrides the built-in pipeline roles.
	roles := worker.DefaultRoles()
	if cfg.RolesPath != "" {
		roles, err = worker.LoadRoles(cfg.RolesPath)
		if err != nil {
			log.Fatalf("load roles: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, role := range roles {
		w := worker.New(role, b, artifacts, gen)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Printf("worker %s: %v", w.Role.Name, err)
			}
		}()
	}

	go func() {
		if err := orch.Run(ctx); err != nil {
			log.Printf("orchestrator: %v", err)
		}
	}()
	orch.StartWatchdog(ctx)

	if *request != "" {
		if err := orch.StartProject(ctx, *request); err != nil {
			log.Fatalf("start project: %v", err)
		}
	}

	handler := &ipc.Handler{
		Orchestrator: orch,
		Bus:          b,
		Decisions:    decisions,
		DB:           db,
		TransRepo:    &store.TransitionRepo{},
		AuditRepo:    &store.AuditRepo{},
		Project:      cfg.Project,
	}
	srv := ipc.NewServer(handler, cfg.ListenAddr)

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("shutting down...")

		orch.StopWatchdog()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("crewforge engine listening on %s", cfg.ListenAddr)

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// discoverConfig looks for config.json next to the executable, then in the cwd.
func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	return ""
}
