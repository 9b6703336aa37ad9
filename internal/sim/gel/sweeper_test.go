package gel

import "testing"

func newSweepGel(t *testing.T) *Gel {
	t.Helper()
	p := DefaultParams()
	p.DespawnDormancyTTL = 5
	return New(p, nil)
}

func TestSweep_EvictsColdInterstitial(t *testing.T) {
	g := newSweepGel(t)
	cold := Coord{0, 0}
	g.EnsureCell(cold, KindInterstitial, nil)
	if _, err := g.StepN(6); err != nil {
		t.Fatalf("stepN: %v", err)
	}

	s := NewSweeper(g, 0, nil)
	if n := s.Sweep(); n != 1 {
		t.Fatalf("evicted %d cells, want 1", n)
	}
	if _, ok := g.index.Get(cold); ok {
		t.Fatalf("cold cell still live after sweep")
	}
	if _, ok := g.index.GetDormant(cold); !ok {
		t.Fatalf("evicted cell lost its dormant snapshot")
	}
}

func TestSweep_ConceptCellsAreImmune(t *testing.T) {
	g := newSweepGel(t)
	g.EnsureCell(Coord{0, 0}, KindConcept, []string{"x"})
	g.StepN(6)

	if n := NewSweeper(g, 0, nil).Sweep(); n != 0 {
		t.Fatalf("swept %d concept cells, want 0", n)
	}
}

func TestSweep_CrystallizedEdgeProtects(t *testing.T) {
	g := newSweepGel(t)
	c, _ := g.EnsureCell(Coord{0, 0}, KindInterstitial, nil)
	c.ConnectNeighbor(Offset{1, 0})
	c.neighbors[Offset{1, 0}].Crystallized = true
	g.StepN(6)

	if n := NewSweeper(g, 0, nil).Sweep(); n != 0 {
		t.Fatalf("swept a cell with a crystallized edge")
	}
}

func TestSweep_ChargedCellIsImmune(t *testing.T) {
	g := newSweepGel(t)
	g.EnsureCell(Coord{0, 0}, KindInterstitial, nil)
	// Below the activation threshold, so recency never updates; only the
	// residual charge protects the cell.
	g.Stimulate(Coord{0, 0}, 0.2, 0)
	g.StepN(6)
	if n := NewSweeper(g, 0, nil).Sweep(); n != 0 {
		t.Fatalf("swept a cell still carrying charge")
	}
}

func TestSweep_RecentActivityResetsTheClock(t *testing.T) {
	g := newSweepGel(t)
	coord := Coord{0, 0}
	c, _ := g.EnsureCell(coord, KindInterstitial, nil)
	g.StepN(7)
	// Drained cell that was last hot three steps ago: recency alone
	// protects it.
	c.mu.Lock()
	c.lastActiveStep = 4
	c.mu.Unlock()

	if n := NewSweeper(g, 0, nil).Sweep(); n != 0 {
		t.Fatalf("swept a recently active cell")
	}
	g.StepN(3)
	if n := NewSweeper(g, 0, nil).Sweep(); n != 1 {
		t.Fatalf("cell not swept after the dormancy window elapsed")
	}
}
