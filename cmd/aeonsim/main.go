// Command aeonsim runs the AEON colony simulation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lordpba/AEON/internal/api"
	"github.com/lordpba/AEON/internal/config"
	"github.com/lordpba/AEON/internal/engine"
	"github.com/lordpba/AEON/internal/environment"
	"github.com/lordpba/AEON/internal/events"
	"github.com/lordpba/AEON/internal/feed"
	"github.com/lordpba/AEON/internal/observability"
	"github.com/lordpba/AEON/internal/persistence"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config (default: built-in colony)")
	fresh := flag.Bool("fresh", false, "ignore stored saves and start a new colony")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
		slog.Info("config loaded", "path", *configPath, "colony", cfg.Name)
	}

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// Flag a database produced under different settings before anything
	// tries to resume from it.
	fp := cfg.Fingerprint()
	if prev, err := db.GetMeta("config_fingerprint"); err == nil && prev != fp {
		slog.Warn("database was produced under a different configuration",
			"path", cfg.DBPath)
	}
	if err := db.SetMeta("config_fingerprint", fp); err != nil {
		slog.Error("failed to record config fingerprint", "error", err)
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng, err := engine.New(cfg, logger, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		slog.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	env := environment.New(cfg.Seed)
	eng.SetEnvironment(env)

	// Resume from the latest save unless a fresh start was requested.
	if !*fresh {
		doc, err := db.LoadLatest()
		switch {
		case err == nil:
			eng.Pause()
			if rerr := eng.Restore(doc); rerr != nil {
				slog.Error("stored save is unusable, starting fresh", "save", doc.ID, "error", rerr)
				eng.Resume()
			} else {
				if !doc.Clock.Paused {
					eng.Resume()
				}
				slog.Info("resumed from save", "save", doc.ID, "sol", doc.Clock.Sol)
			}
		case errors.Is(err, persistence.ErrNoSaves):
			slog.Info("no saves found, starting new colony", "colony", cfg.Name)
		default:
			slog.Error("failed to load latest save", "error", err)
			os.Exit(1)
		}
	}

	// ── Listeners ─────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewCollector()
	eng.Subscribe(metrics)

	hub := feed.NewHub(logger)
	go hub.Run(ctx)
	eng.Subscribe(hub)

	eng.Subscribe(&recorder{db: db, cfg: cfg, lastSave: eng.Sol()})

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("AEON_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("AEON_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Engine:   eng,
		DB:       db,
		Hub:      hub,
		Metrics:  metrics.Handler(),
		Env:      env,
		Port:     cfg.APIPort,
		AdminKey: adminKey,
	}
	apiServer.Start()

	// ── Run ───────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	fmt.Printf("\n%s is live: %d colonists, %d monitored systems.\n",
		cfg.Name, cfg.Population, len(cfg.Components))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("API shutdown failed", "error", err)
	}

	slog.Info("final save...")
	if err := db.StoreSave(eng.Save()); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. Colony state saved.")
}

// recorder persists what the simulation produces: every event goes to
// the audit log as it fires, and the snapshot carried by the tick is
// stored as a save document every AutosaveSols of simulated time.
type recorder struct {
	db       *persistence.DB
	cfg      *config.Config
	lastSave float64
}

func (r *recorder) OnEvent(e events.Event) {
	if err := r.db.AppendEvents([]events.Event{e}); err != nil {
		slog.Error("event audit write failed", "event", e.ID, "error", err)
	}
}

func (r *recorder) OnTick(s engine.TickSummary) {
	if r.cfg.AutosaveSols <= 0 || s.Sol-r.lastSave < r.cfg.AutosaveSols {
		return
	}
	r.lastSave = s.Sol
	doc := engine.DocumentFrom(s.State)
	if err := r.db.StoreSave(doc); err != nil {
		slog.Error("autosave failed", "error", err)
		return
	}
	slog.Info("autosave", "save", doc.ID, "sol", s.Sol)
}
