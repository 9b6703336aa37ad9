package gel

import (
	"math"
	"testing"
)

func TestStimulate_ClampsChargeAndValence(t *testing.T) {
	p := DefaultParams()
	c := newCell(Coord{0, 0}, KindInterstitial, &p)

	c.Stimulate(2.5, 0)
	if got := c.Charge(); got != 1.0 {
		t.Fatalf("charge = %v, want clamp to 1.0", got)
	}

	c.Stimulate(-5, 0)
	if got := c.Charge(); got != 0 {
		t.Fatalf("charge = %v, want clamp to 0", got)
	}

	c.Stimulate(1.0, 3.0)
	if got := c.Valence(); got != 1.0 {
		t.Fatalf("valence = %v, want clamp to 1.0", got)
	}
	c.Stimulate(1.0, -10.0)
	if got := c.Valence(); got != -1.0 {
		t.Fatalf("valence = %v, want clamp to -1.0", got)
	}
}

func TestConnectNeighbor_DoesNotOverwrite(t *testing.T) {
	p := DefaultParams()
	c := newCell(Coord{0, 0}, KindInterstitial, &p)
	off := Offset{1, 0}

	c.ConnectNeighbor(off)
	if w := c.neighbors[off].Weight; w != p.WInit {
		t.Fatalf("initial weight = %v, want %v", w, p.WInit)
	}

	c.neighbors[off].Weight = 0.9
	c.neighbors[off].Crystallized = true
	c.ConnectNeighbor(off)
	if w := c.neighbors[off].Weight; w != 0.9 {
		t.Fatalf("weight after reconnect = %v, want 0.9", w)
	}
	if !c.neighbors[off].Crystallized {
		t.Fatalf("crystallized flag lost on reconnect")
	}
}

func TestSnapshotRestore_Roundtrip(t *testing.T) {
	p := DefaultParams()
	c := newCell(Coord{2, 3}, KindAxon, &p)
	c.Stimulate(0.6, 0.5)
	c.ConnectNeighbor(Offset{1, 0})
	c.neighbors[Offset{1, 0}].Weight = 0.8
	c.neighbors[Offset{1, 0}].Crystallized = true
	c.adoptOwners([]string{"warmth"})

	snap := c.Snapshot()
	c2 := newCell(Coord{2, 3}, KindInterstitial, &p)
	c2.Restore(snap)

	if c2.Kind() != KindConcept {
		t.Fatalf("kind = %v, want concept (owned cells are concepts)", c2.Kind())
	}
	if c2.Charge() != c.Charge() || c2.Valence() != c.Valence() {
		t.Fatalf("charge/valence mismatch after restore")
	}
	e, ok := c2.neighbors[Offset{1, 0}]
	if !ok || e.Weight != 0.8 || !e.Crystallized {
		t.Fatalf("edge not restored: %+v ok=%v", e, ok)
	}

	// The snapshot is detached from the live cell.
	c.neighbors[Offset{1, 0}].Weight = 0.1
	if c2.neighbors[Offset{1, 0}].Weight != 0.8 {
		t.Fatalf("restored cell shares edge storage with source")
	}
}

func TestStep_HebbianRequiresCoactivation(t *testing.T) {
	p := DefaultParams()

	mk := func() *Cell {
		c := newCell(Coord{0, 0}, KindInterstitial, &p)
		c.Restore(CellSnapshot{
			Kind:      KindInterstitial,
			Charge:    0.8,
			Neighbors: map[Offset]Edge{{1, 0}: {Weight: p.WInit}},
		})
		return c
	}

	// Both sides above the activation threshold: the edge grows.
	c := mk()
	c.Step(map[Coord]float64{{1, 0}: 0.8}, nil, 1)
	if w := c.neighbors[Offset{1, 0}].Weight; w <= p.WInit {
		t.Fatalf("co-active edge weight = %v, want > %v", w, p.WInit)
	}

	// Quiet neighbor: no growth, only decay.
	c = mk()
	c.Step(map[Coord]float64{{1, 0}: 0.1}, nil, 1)
	if w := c.neighbors[Offset{1, 0}].Weight; w >= p.WInit {
		t.Fatalf("quiet edge weight = %v, want < %v", w, p.WInit)
	}
}

func TestStep_CrystallizationLatches(t *testing.T) {
	p := DefaultParams()
	c := newCell(Coord{0, 0}, KindInterstitial, &p)
	c.Restore(CellSnapshot{
		Kind:      KindInterstitial,
		Neighbors: map[Offset]Edge{{1, 0}: {Weight: p.CrystalThreshold + 0.01}},
	})

	c.Step(nil, nil, 1)
	if !c.neighbors[Offset{1, 0}].Crystallized {
		t.Fatalf("edge at threshold+eps not crystallized after step")
	}

	w0 := c.neighbors[Offset{1, 0}].Weight
	for s := uint64(2); s <= 100; s++ {
		c.Step(nil, nil, s)
	}
	e := c.neighbors[Offset{1, 0}]
	if !e.Crystallized {
		t.Fatalf("crystallized flag cleared by later steps")
	}
	if e.Weight >= w0 {
		t.Fatalf("crystallized weight did not decay at all: %v -> %v", w0, e.Weight)
	}
	// ~20x slower than a plain edge over the same window.
	plainLoss := p.WeightDecay * KindInterstitial.Profile().WeightDecay * 99
	if loss := w0 - e.Weight; loss > plainLoss*p.CrystalDecayFactor*1.01 {
		t.Fatalf("crystallized decay too fast: lost %v, plain rate would lose %v", loss, plainLoss)
	}
}

func TestStep_WeightStaysInBounds(t *testing.T) {
	p := DefaultParams()
	c := newCell(Coord{0, 0}, KindConcept, &p)
	c.Restore(CellSnapshot{
		Kind:   KindConcept,
		Charge: 1.0,
		Neighbors: map[Offset]Edge{
			{1, 0}:  {Weight: p.WMax - 0.001},
			{-1, 0}: {Weight: p.WMin + 0.0001},
		},
	})
	charges := map[Coord]float64{{1, 0}: 1.0, {-1, 0}: 0.0}
	for s := uint64(1); s <= 200; s++ {
		c.Step(charges, nil, s)
		for off, e := range c.neighbors {
			if e.Weight < p.WMin || e.Weight > p.WMax {
				t.Fatalf("step %d: weight at %v out of bounds: %v", s, off, e.Weight)
			}
		}
		if ch := c.Charge(); ch < 0 || ch > 1 {
			t.Fatalf("step %d: charge out of bounds: %v", s, ch)
		}
	}
}

func TestStep_ChargeDecayCapped(t *testing.T) {
	p := DefaultParams()
	p.ChargeDecay = 2.0 // interstitial multiplier would push decay past 100%
	c := newCell(Coord{0, 0}, KindInterstitial, &p)
	c.Stimulate(1.0, 0)
	c.Step(nil, nil, 1)
	if got := c.Charge(); got <= 0 {
		t.Fatalf("charge fully erased in one step: %v", got)
	}
	if want := 0.05; math.Abs(c.Charge()-want) > 1e-9 {
		t.Fatalf("charge = %v, want %v (decay capped at 0.95)", c.Charge(), want)
	}
}

func TestStep_KindProfilesDiffer(t *testing.T) {
	p := DefaultParams()
	run := func(kind Kind) float64 {
		c := newCell(Coord{0, 0}, kind, &p)
		c.Restore(CellSnapshot{
			Kind:      kind,
			Neighbors: map[Offset]Edge{{1, 0}: {Weight: p.WInit}},
		})
		c.Step(map[Coord]float64{{1, 0}: 1.0}, nil, 1)
		return c.Charge()
	}
	axon := run(KindAxon)
	interstitial := run(KindInterstitial)
	if axon <= interstitial {
		t.Fatalf("axon should conduct faster than interstitial: %v vs %v", axon, interstitial)
	}
}
