package gel

import (
	"context"
	"io"
	"log"
	"time"
)

// Sweeper periodically evicts cells that are simultaneously cold, quiet
// and un-reinforced: non-concept kind, dormant past the TTL, charge at or
// under epsilon, and no crystallized edge. Eviction is best-effort; a cell
// that vanishes between check and act is a no-op.
type Sweeper struct {
	gel      *Gel
	interval time.Duration
	log      *log.Logger
}

func NewSweeper(g *Gel, interval time.Duration, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sweeper{gel: g, interval: interval, log: logger}
}

// Run sweeps on the configured interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Printf("evicted %d dormant cells (%d live)", n, s.gel.LiveCount())
			}
		}
	}
}

// Sweep runs one eviction pass and reports how many cells were despawned.
func (s *Sweeper) Sweep() int {
	g := s.gel
	if !g.booted() {
		return 0
	}
	p := g.Params()
	cur := g.StepCount()
	evicted := 0
	for _, lc := range g.index.ListLive() {
		kind, charge, lastActive, anyCrystal := lc.Cell.sweepView()
		if kind == KindConcept {
			continue
		}
		if anyCrystal || charge > p.DespawnChargeEps {
			continue
		}
		if cur-lastActive < p.DespawnDormancyTTL {
			continue
		}
		if g.DespawnCell(lc.Coord) {
			evicted++
		}
	}
	return evicted
}
