package gel

import (
	"sort"
	"sync"
)

// Edge is one directed connection to an adjacent coordinate.
type Edge struct {
	Weight       float64
	Crystallized bool
}

// CellSnapshot is the full passive state of a cell. It is what dormant
// storage holds and what the persistence layer serializes.
type CellSnapshot struct {
	Kind           Kind
	Owners         []string
	Charge         float64
	Valence        float64
	Neighbors      map[Offset]Edge
	LastStep       uint64
	LastActiveStep uint64
}

// Cell is the unit of substrate state at one coordinate. Its internals are
// guarded by its own mutex; during a step each cell is touched by exactly
// one worker, so the lock only contends with external stimulation and
// read accessors.
type Cell struct {
	mu sync.Mutex

	coord  Coord
	p      *Params
	kind   Kind
	owners map[string]struct{}

	charge  float64
	valence float64

	neighbors map[Offset]*Edge

	lastStep       uint64
	lastActiveStep uint64
}

func newCell(coord Coord, kind Kind, p *Params) *Cell {
	return &Cell{
		coord:     coord,
		p:         p,
		kind:      kind,
		owners:    map[string]struct{}{},
		neighbors: map[Offset]*Edge{},
	}
}

func (c *Cell) Coord() Coord { return c.coord }

// Stimulate injects charge (and optionally valence, scaled by the injected
// amount) directly into the cell. Always succeeds.
func (c *Cell) Stimulate(amount, valenceDelta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charge = clamp01(c.charge + amount)
	c.valence = clampSigned(c.valence + valenceDelta*amount)
	if c.charge > c.p.ActivationThreshold && c.lastStep > c.lastActiveStep {
		c.lastActiveStep = c.lastStep
	}
}

// Step advances the cell from its current state to the next, reading
// cross-cell data only from the pre-captured charge/valence snapshots.
// Missing neighbors read as zero.
func (c *Cell) Step(charges, valences map[Coord]float64, stepCount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.p
	prof := c.kind.Profile()

	// Stability clamp: scale all flows so the summed coupling stays under
	// the ceiling. Without this, heavily crystallized neighborhoods
	// oscillate with period 2 instead of converging.
	var chargeCoupling, valenceCoupling float64
	for _, e := range c.neighbors {
		chargeCoupling += e.Weight * p.PropagationRate
		valenceCoupling += e.Weight * p.ValenceRate
	}
	chargeScale := 1.0
	if chargeCoupling > p.ChargeCouplingCeiling {
		chargeScale = p.ChargeCouplingCeiling / chargeCoupling
	}
	valenceScale := 1.0
	if valenceCoupling > p.ValenceCouplingCeiling {
		valenceScale = p.ValenceCouplingCeiling / valenceCoupling
	}

	var dCharge, dValence float64
	for off, e := range c.neighbors {
		n := c.coord.Add(off)
		nc := charges[n]
		nv := valences[n]
		dCharge += (nc - c.charge) * e.Weight * p.PropagationRate * prof.Propagation * chargeScale
		dValence += (nv - c.valence) * e.Weight * p.ValenceRate * prof.Propagation * valenceScale
	}

	newCharge := clamp01(c.charge + dCharge)
	newValence := clampSigned(c.valence + dValence)

	// Hebbian reinforcement: edges between co-active cells grow.
	if newCharge > p.ActivationThreshold {
		for off, e := range c.neighbors {
			if charges[c.coord.Add(off)] > p.ActivationThreshold {
				e.Weight += p.LearningRate * prof.Learning
				if e.Weight > p.WMax {
					e.Weight = p.WMax
				}
			}
		}
	}

	// Crystallization latch and weight decay. Crystallized edges decay at
	// a small fraction of the plain rate; the flag itself never clears.
	for _, e := range c.neighbors {
		if e.Weight >= p.CrystalThreshold {
			e.Crystallized = true
		}
		d := p.WeightDecay * prof.WeightDecay
		if e.Crystallized {
			d *= p.CrystalDecayFactor
		}
		e.Weight -= d
		if e.Weight < p.WMin {
			e.Weight = p.WMin
		}
	}

	cd := p.ChargeDecay * prof.ChargeDecay
	if cd > 0.95 {
		cd = 0.95
	}
	newCharge *= 1 - cd
	vd := p.ValenceDecay * prof.ChargeDecay
	if vd > 0.95 {
		vd = 0.95
	}
	newValence *= 1 - vd

	c.charge = newCharge
	c.valence = newValence
	c.lastStep = stepCount
	if newCharge > p.ActivationThreshold {
		c.lastActiveStep = stepCount
	}
}

// ConnectNeighbor inserts an edge at the given offset if absent. An
// existing edge (including its crystallized flag) is left untouched.
func (c *Cell) ConnectNeighbor(off Offset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.neighbors[off]; ok {
		return
	}
	c.neighbors[off] = &Edge{Weight: c.p.WInit}
}

func (c *Cell) adoptOwners(owners []string) {
	if len(owners) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range owners {
		if o != "" {
			c.owners[o] = struct{}{}
		}
	}
	// A claimed cell is always a concept cell.
	if len(c.owners) > 0 {
		c.kind = KindConcept
	}
}

func (c *Cell) dropOwner(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owners, owner)
	if len(c.owners) == 0 && c.kind == KindConcept {
		c.kind = KindInterstitial
	}
}

// Snapshot exports the cell's full state. The result shares nothing with
// the live cell.
func (c *Cell) Snapshot() CellSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Cell) snapshotLocked() CellSnapshot {
	owners := make([]string, 0, len(c.owners))
	for o := range c.owners {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	nbs := make(map[Offset]Edge, len(c.neighbors))
	for off, e := range c.neighbors {
		nbs[off] = *e
	}
	return CellSnapshot{
		Kind:           c.kind,
		Owners:         owners,
		Charge:         c.charge,
		Valence:        c.valence,
		Neighbors:      nbs,
		LastStep:       c.lastStep,
		LastActiveStep: c.lastActiveStep,
	}
}

// Restore overwrites the cell's state from a snapshot.
func (c *Cell) Restore(snap CellSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = snap.Kind
	if c.kind == "" {
		c.kind = KindInterstitial
	}
	c.owners = make(map[string]struct{}, len(snap.Owners))
	for _, o := range snap.Owners {
		c.owners[o] = struct{}{}
	}
	if len(c.owners) > 0 {
		c.kind = KindConcept
	}
	c.charge = clamp01(snap.Charge)
	c.valence = clampSigned(snap.Valence)
	c.neighbors = make(map[Offset]*Edge, len(snap.Neighbors))
	for off, e := range snap.Neighbors {
		ec := e
		c.neighbors[off] = &ec
	}
	c.lastStep = snap.LastStep
	c.lastActiveStep = snap.LastActiveStep
}

func (c *Cell) Charge() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charge
}

func (c *Cell) Valence() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valence
}

func (c *Cell) Kind() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

func (c *Cell) chargeValence() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charge, c.valence
}

// sweepView returns the fields the lifecycle sweeper needs in one lock
// acquisition.
func (c *Cell) sweepView() (kind Kind, charge float64, lastActive uint64, anyCrystal bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.neighbors {
		if e.Crystallized {
			anyCrystal = true
			break
		}
	}
	return c.kind, c.charge, c.lastActiveStep, anyCrystal
}
