package gel

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// StepStats summarizes one completed step for listeners and loggers.
type StepStats struct {
	Live        int
	Spawned     int
	MeanCharge  float64
	MeanValence float64
}

// StepListener is notified after each completed step. Listeners run on the
// stepping goroutine and should return quickly.
type StepListener func(step uint64, stats StepStats)

// Gel coordinates the substrate: it owns the step barrier, on-demand cell
// creation and destruction, and region-level operations. All external
// callers go through it.
type Gel struct {
	p     Params
	log   *log.Logger
	index *Index

	step atomic.Uint64

	// stepMu serializes steps against despawn, reset and import, so a
	// cell is never destroyed mid-fan-out.
	stepMu sync.Mutex

	lmu       sync.Mutex
	listeners []StepListener
}

func New(p Params, logger *log.Logger) *Gel {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	g := &Gel{p: p, log: logger}
	g.index = NewIndex(&g.p)
	return g
}

func (g *Gel) booted() bool { return g != nil && g.index != nil }

func (g *Gel) Params() Params { return g.p }

func (g *Gel) StepCount() uint64 {
	if !g.booted() {
		return 0
	}
	return g.step.Load()
}

// OnStep registers a listener for step completions.
func (g *Gel) OnStep(l StepListener) {
	g.lmu.Lock()
	defer g.lmu.Unlock()
	g.listeners = append(g.listeners, l)
}

func (g *Gel) notify(step uint64, stats StepStats) {
	g.lmu.Lock()
	ls := make([]StepListener, len(g.listeners))
	copy(ls, g.listeners)
	g.lmu.Unlock()
	for _, l := range ls {
		l(step, stats)
	}
}

// Step advances the whole substrate from step t to t+1: capture a charge
// snapshot, fan the per-cell updates out over a bounded worker pool, then
// promote pending input that crossed the spawn threshold. The step counter
// only advances after every cell's update has completed.
func (g *Gel) Step() (uint64, error) {
	if !g.booted() {
		return 0, ErrNotBooted
	}
	g.stepMu.Lock()
	defer g.stepMu.Unlock()
	return g.stepLocked()
}

// StepN runs n sequential steps; a failed step aborts the rest.
func (g *Gel) StepN(n int) (uint64, error) {
	if !g.booted() {
		return 0, ErrNotBooted
	}
	g.stepMu.Lock()
	defer g.stepMu.Unlock()
	cur := g.step.Load()
	for i := 0; i < n; i++ {
		var err error
		if cur, err = g.stepLocked(); err != nil {
			return cur, fmt.Errorf("step %d of %d: %w", i+1, n, err)
		}
	}
	return cur, nil
}

func (g *Gel) stepLocked() (uint64, error) {
	next := g.step.Load() + 1
	live := g.index.ListLive()

	// The snapshot is the only cross-cell data a cell may see this step.
	charges := make(map[Coord]float64, len(live))
	valences := make(map[Coord]float64, len(live))
	for _, lc := range live {
		ch, v := lc.Cell.chargeValence()
		charges[lc.Coord] = ch
		valences[lc.Coord] = v
	}

	workers := g.p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(live) {
		workers = len(live)
	}

	type part struct {
		charge  float64
		valence float64
	}
	parts := make([]part, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for wi := 0; wi < workers; wi++ {
		lo := wi * len(live) / workers
		hi := (wi + 1) * len(live) / workers
		wg.Add(1)
		go func(wi int, cells []LiveCell) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[wi] = fmt.Errorf("worker %d: %v: %w", wi, r, ErrSpawnFailed)
				}
			}()
			for _, lc := range cells {
				pre := charges[lc.Coord]
				lc.Cell.Step(charges, valences, next)
				// Active cells leak a sliver of charge into empty
				// adjacent coordinates; that is how the substrate
				// reaches into unoccupied space.
				if pre > g.p.ActivationThreshold {
					for _, off := range NeighborOffsets {
						n := lc.Coord.Add(off)
						if _, ok := charges[n]; !ok {
							g.index.AddPending(n, pre*g.p.LeakFraction)
						}
					}
				}
				ch, v := lc.Cell.chargeValence()
				parts[wi].charge += ch
				parts[wi].valence += ch * v
			}
		}(wi, live[lo:hi])
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return g.step.Load(), err
		}
	}

	// Promotion: pending coordinates that crossed the spawn threshold
	// become live interstitial cells carrying the drained input.
	spawned := 0
	for coord, amt := range g.index.TakePendingAbove(g.p.SpawnThreshold) {
		c, created := g.index.Ensure(coord, KindInterstitial, nil)
		if created {
			spawned++
			c.Stimulate(amt, 0)
		}
	}

	g.step.Store(next)

	stats := StepStats{Live: len(live), Spawned: spawned}
	var sumCharge, sumWeighted float64
	for _, p := range parts {
		sumCharge += p.charge
		sumWeighted += p.valence
	}
	if len(live) > 0 {
		stats.MeanCharge = sumCharge / float64(len(live))
	}
	if sumCharge > 0 {
		stats.MeanValence = sumWeighted / sumCharge
	}
	g.notify(next, stats)
	return next, nil
}

// Run steps the substrate at the given rate until the context ends or a
// step fails.
func (g *Gel) Run(ctx context.Context, hz int) error {
	if !g.booted() {
		return ErrNotBooted
	}
	if hz <= 0 {
		hz = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := g.Step(); err != nil {
				g.log.Printf("step failed: %v", err)
				return err
			}
		}
	}
}

// EnsureCell creates (or revives, or merges owners into) the cell at
// coord. Creation races resolve to the same handle, never an error.
func (g *Gel) EnsureCell(coord Coord, kind Kind, owners []string) (*Cell, error) {
	if !g.booted() {
		return nil, ErrNotBooted
	}
	c, _ := g.index.Ensure(coord, kind, owners)
	return c, nil
}

// DespawnCell evicts the live cell at coord to dormant storage. Holding
// the step lock keeps eviction out of the middle of a fan-out.
func (g *Gel) DespawnCell(coord Coord) bool {
	if !g.booted() {
		return false
	}
	g.stepMu.Lock()
	defer g.stepMu.Unlock()
	return g.index.Despawn(coord)
}

// Stimulate injects charge at one coordinate, creating an interstitial
// cell if none exists there.
func (g *Gel) Stimulate(coord Coord, amount, valence float64) error {
	if !g.booted() {
		return ErrNotBooted
	}
	c, _ := g.index.Ensure(coord, KindInterstitial, nil)
	c.Stimulate(amount, valence)
	return nil
}

// StimulateRegion stimulates every coordinate in the disc around center.
func (g *Gel) StimulateRegion(center Coord, radius int, amount, valence float64) error {
	if !g.booted() {
		return ErrNotBooted
	}
	for _, coord := range DiscCoords(center, radius) {
		c, _ := g.index.Ensure(coord, KindInterstitial, nil)
		c.Stimulate(amount, valence)
	}
	return nil
}

// RegisterRegion ensures every coordinate in the disc as a concept cell
// owned by name.
func (g *Gel) RegisterRegion(name string, center Coord, radius int) error {
	if !g.booted() {
		return ErrNotBooted
	}
	owners := []string{name}
	for _, coord := range DiscCoords(center, radius) {
		g.index.Ensure(coord, KindConcept, owners)
	}
	return nil
}

// UnregisterRegion removes name from the owner sets of the disc's cells,
// live and dormant. Cells left with no owners demote to interstitial so
// the sweeper can reclaim them.
func (g *Gel) UnregisterRegion(name string, center Coord, radius int) {
	if !g.booted() {
		return
	}
	for _, coord := range DiscCoords(center, radius) {
		if c, ok := g.index.Get(coord); ok {
			c.dropOwner(name)
			continue
		}
		if snap, ok := g.index.GetDormant(coord); ok {
			kept := snap.Owners[:0]
			for _, o := range snap.Owners {
				if o != name {
					kept = append(kept, o)
				}
			}
			snap.Owners = kept
			if len(kept) == 0 && snap.Kind == KindConcept {
				snap.Kind = KindInterstitial
			}
			g.index.putDormant(coord, snap)
		}
	}
}

// GetCharge reads a coordinate's charge, falling back from live to
// dormant to zero.
func (g *Gel) GetCharge(coord Coord) float64 {
	if !g.booted() {
		return 0
	}
	if c, ok := g.index.Get(coord); ok {
		return c.Charge()
	}
	if snap, ok := g.index.GetDormant(coord); ok {
		return snap.Charge
	}
	return 0
}

// GetState returns the full cell view at coord (live or dormant).
func (g *Gel) GetState(coord Coord) (CellSnapshot, bool) {
	if !g.booted() {
		return CellSnapshot{}, false
	}
	if c, ok := g.index.Get(coord); ok {
		return c.Snapshot(), true
	}
	return g.index.GetDormant(coord)
}

func (g *Gel) Bounds() (Bounds, bool) {
	if !g.booted() {
		return Bounds{}, false
	}
	return g.index.Bounds()
}

func (g *Gel) LiveCount() int {
	if !g.booted() {
		return 0
	}
	return g.index.LiveCount()
}

// Charges snapshots every live cell's charge (debug/export).
func (g *Gel) Charges() map[Coord]float64 {
	if !g.booted() {
		return nil
	}
	live := g.index.ListLive()
	out := make(map[Coord]float64, len(live))
	for _, lc := range live {
		out[lc.Coord] = lc.Cell.Charge()
	}
	return out
}

// Reset drops all live, dormant and pending state and rewinds the step
// counter. Used before a full state load.
func (g *Gel) Reset() {
	if !g.booted() {
		return
	}
	g.stepMu.Lock()
	defer g.stepMu.Unlock()
	g.index.Reset()
	g.step.Store(0)
}

// Export captures the substrate for persistence: params, step counter and
// every cell, live or dormant, as a passive snapshot.
type Export struct {
	StepCount uint64
	Params    Params
	Cells     map[Coord]CellSnapshot
}

func (g *Gel) Export() Export {
	if !g.booted() {
		return Export{}
	}
	g.stepMu.Lock()
	defer g.stepMu.Unlock()
	ex := Export{
		StepCount: g.step.Load(),
		Params:    g.p,
		Cells:     map[Coord]CellSnapshot{},
	}
	g.index.mu.RLock()
	for coord, snap := range g.index.dormant {
		ex.Cells[coord] = snap
	}
	cells := make([]LiveCell, 0, len(g.index.live))
	for coord, c := range g.index.live {
		cells = append(cells, LiveCell{coord, c})
	}
	g.index.mu.RUnlock()
	for _, lc := range cells {
		ex.Cells[lc.Coord] = lc.Cell.Snapshot()
	}
	return ex
}

// Import replaces the substrate wholesale with exported state. Every cell
// comes back live; the sweeper re-evicts cold ones on its own schedule.
func (g *Gel) Import(ex Export) error {
	if !g.booted() {
		return ErrNotBooted
	}
	g.stepMu.Lock()
	defer g.stepMu.Unlock()
	g.index.Reset()
	g.p = ex.Params
	g.step.Store(ex.StepCount)
	for coord, snap := range ex.Cells {
		c, _ := g.index.Ensure(coord, snap.Kind, nil)
		c.Restore(snap)
	}
	// Restore may have replaced neighbor maps; re-establish symmetric
	// wiring between adjacent live cells.
	for _, lc := range g.index.ListLive() {
		for _, off := range NeighborOffsets {
			if n, ok := g.index.Get(lc.Coord.Add(off)); ok {
				lc.Cell.ConnectNeighbor(off)
				n.ConnectNeighbor(off.Neg())
			}
		}
	}
	return nil
}

// DiscCoords lists the coordinates within radius of center.
func DiscCoords(center Coord, radius int) []Coord {
	if radius < 0 {
		return nil
	}
	out := make([]Coord, 0, (2*radius+1)*(2*radius+1))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				out = append(out, Coord{center.X + dx, center.Y + dy})
			}
		}
	}
	return out
}
