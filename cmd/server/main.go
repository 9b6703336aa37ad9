package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"neurogel.ai/internal/mind"
	"neurogel.ai/internal/persistence/indexdb"
	"neurogel.ai/internal/persistence/state"
	"neurogel.ai/internal/persistence/steplog"
	"neurogel.ai/internal/sim/gel"
	"neurogel.ai/internal/sim/tuning"
	"neurogel.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: ./configs/tuning.yaml)")
		statePath  = flag.String("state", "", "state file to load (default: <data>/state.json if present)")
		stepRateHz = flag.Int("step_rate_hz", 0, "steps per second (overrides tuning)")
		sweepSec   = flag.Int("sweep_interval_s", 0, "sweeper interval seconds (overrides tuning)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite step/audit index")
		saveOnExit = flag.Bool("save_on_exit", true, "write state on shutdown")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join("configs", "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("no tuning file at %s, using defaults", tp)
	}
	hz := tune.StepRateHz
	if *stepRateHz > 0 {
		hz = *stepRateHz
	}
	if hz <= 0 {
		hz = 10
	}
	sweepEvery := time.Duration(tune.SweepIntervalSec) * time.Second
	if *sweepSec > 0 {
		sweepEvery = time.Duration(*sweepSec) * time.Second
	}
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Second
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	g := gel.New(tune.Params(), logger)
	concepts := mind.NewConcepts(g, log.New(os.Stdout, "[mind] ", log.LstdFlags|log.Lmicroseconds))
	mood := mind.NewMood()
	assoc := mind.NewAssociations(concepts, logger)
	if err := assoc.OpenDB(filepath.Join(*dataDir, "mind.db")); err != nil {
		logger.Fatalf("open association db: %v", err)
	}
	defer assoc.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.Open(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
	}

	slog := steplog.New(*dataDir)
	defer slog.Close()

	// Resume from a state file when one exists.
	sp := strings.TrimSpace(*statePath)
	if sp == "" {
		candidate := filepath.Join(*dataDir, "state.json")
		if _, err := os.Stat(candidate); err == nil {
			sp = candidate
		}
	}
	if sp != "" {
		if err := state.Load(sp, g, concepts, assoc); err != nil {
			switch {
			case errors.Is(err, state.ErrUnsupportedVersion):
				logger.Fatalf("state version: %v", err)
			case errors.Is(err, state.ErrCorruptState):
				logger.Fatalf("state corrupt: %v", err)
			default:
				logger.Fatalf("state read: %v", err)
			}
		}
		logger.Printf("resumed from %s at step %d (%d live cells)", sp, g.StepCount(), g.LiveCount())
		idx.WriteAudit(indexdb.AuditRow{Step: g.StepCount(), Kind: "load", Detail: sp})
	}

	// Collaborators ride the step barrier.
	g.OnStep(concepts.OnStep)
	g.OnStep(mood.OnStep)
	g.OnStep(assoc.OnStep)
	g.OnStep(func(step uint64, stats gel.StepStats) {
		e := steplog.Entry{
			Step:        step,
			Live:        stats.Live,
			Spawned:     stats.Spawned,
			MeanCharge:  stats.MeanCharge,
			MeanValence: stats.MeanValence,
			At:          time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := slog.WriteStep(e); err != nil {
			logger.Printf("step log: %v", err)
		}
		idx.WriteStep(indexdb.StepRow{
			Step:        step,
			Live:        stats.Live,
			Spawned:     stats.Spawned,
			MeanCharge:  stats.MeanCharge,
			MeanValence: stats.MeanValence,
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := gel.NewSweeper(g, sweepEvery, log.New(os.Stdout, "[sweeper] ", log.LstdFlags|log.Lmicroseconds))
	go sweeper.Run(ctx)

	go func() {
		if err := g.Run(ctx, hz); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("step loop: %v", err)
			stop()
		}
	}()

	// Association flushes are periodic, not per-step.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				assoc.Flush()
			}
		}
	}()

	viz := ws.NewServer(g, concepts, mood, hz, log.New(os.Stdout, "[viz] ", log.LstdFlags|log.Lmicroseconds))
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/viz/bootstrap", viz.BootstrapHandler())
	mux.HandleFunc("/v1/viz/ws", viz.WSHandler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("listening on %s (stepping at %d hz)", *addr, hz)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("http: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if *saveOnExit {
		out := filepath.Join(*dataDir, "state.json")
		if err := state.Save(out, g, concepts, assoc); err != nil {
			logger.Printf("save state: %v", err)
		} else {
			logger.Printf("saved state to %s at step %d", out, g.StepCount())
			idx.WriteAudit(indexdb.AuditRow{Step: g.StepCount(), Kind: "save", Detail: out})
		}
	}
	assoc.Flush()
}
