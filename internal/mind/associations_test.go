package mind

import (
	"math"
	"path/filepath"
	"testing"

	"neurogel.ai/internal/sim/gel"
)

func newHotPair(t *testing.T) (*gel.Gel, *Concepts, *Associations) {
	t.Helper()
	g := newTestGel()
	cs := NewConcepts(g, nil)
	cs.Register("fire", gel.Coord{X: 0, Y: 0}, 1, nil)
	cs.Register("smoke", gel.Coord{X: 20, Y: 0}, 1, nil)
	return g, cs, NewAssociations(cs, nil)
}

func TestAssociations_CoActivationStrengthens(t *testing.T) {
	_, cs, a := newHotPair(t)
	cs.Stimulate("fire", 0.9, 0)
	cs.Stimulate("smoke", 0.9, 0)

	a.OnStep(1, gel.StepStats{})
	if got := a.Strength("fire", "smoke"); math.Abs(got-0.1) > 1e-9 {
		t.Fatalf("strength after one co-activation = %v, want 0.1", got)
	}
	a.OnStep(2, gel.StepStats{})
	if got := a.Strength("fire", "smoke"); math.Abs(got-0.19) > 1e-9 {
		t.Fatalf("strength after two co-activations = %v, want 0.19", got)
	}
	// Saturating form never exceeds 1.
	for i := 0; i < 200; i++ {
		a.OnStep(uint64(i), gel.StepStats{})
	}
	if got := a.Strength("fire", "smoke"); got > 1 {
		t.Fatalf("strength overflowed: %v", got)
	}
}

func TestAssociations_StrengthIsSymmetric(t *testing.T) {
	_, cs, a := newHotPair(t)
	cs.Stimulate("fire", 0.9, 0)
	cs.Stimulate("smoke", 0.9, 0)
	a.OnStep(1, gel.StepStats{})

	if a.Strength("fire", "smoke") != a.Strength("smoke", "fire") {
		t.Fatalf("strength depends on argument order")
	}
}

func TestAssociations_IdlePairsDecayAndVanish(t *testing.T) {
	g, cs, a := newHotPair(t)
	cs.Stimulate("fire", 0.9, 0)
	cs.Stimulate("smoke", 0.9, 0)
	a.OnStep(1, gel.StepStats{})
	s0 := a.Strength("fire", "smoke")

	// Cold substrate: nothing is hot, so the pair only decays.
	g.Reset()
	a.OnStep(2, gel.StepStats{})
	s1 := a.Strength("fire", "smoke")
	if s1 >= s0 {
		t.Fatalf("idle pair did not decay: %v -> %v", s0, s1)
	}
	if want := s0 * 0.995; math.Abs(s1-want) > 1e-12 {
		t.Fatalf("decay = %v, want %v", s1, want)
	}

	// Strengths that decay under the floor are dropped entirely.
	a.mu.Lock()
	a.strengths["fire|smoke"] = 1e-4
	a.mu.Unlock()
	a.OnStep(3, gel.StepStats{})
	a.mu.Lock()
	_, ok := a.strengths["fire|smoke"]
	a.mu.Unlock()
	if ok {
		t.Fatalf("sub-floor strength kept")
	}
}

func TestAssociations_DatabaseRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mind.db")

	_, cs, a := newHotPair(t)
	if err := a.OpenDB(path); err != nil {
		t.Fatalf("open db: %v", err)
	}
	cs.Stimulate("fire", 0.9, 0)
	cs.Stimulate("smoke", 0.9, 0)
	a.OnStep(1, gel.StepStats{})
	want := a.Strength("fire", "smoke")
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, _, b := newHotPair(t)
	if err := b.OpenDB(path); err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer b.Close()
	if got := b.Strength("fire", "smoke"); got != want {
		t.Fatalf("strength after reload = %v, want %v", got, want)
	}
}

func TestAssociations_ExportImport(t *testing.T) {
	_, cs, a := newHotPair(t)
	cs.Stimulate("fire", 0.9, 0)
	cs.Stimulate("smoke", 0.9, 0)
	a.OnStep(1, gel.StepStats{})

	raw := a.Export()
	_, _, b := newHotPair(t)
	b.Import(raw)
	if b.Strength("fire", "smoke") != a.Strength("fire", "smoke") {
		t.Fatalf("import lost strength")
	}

	// Garbage payloads are ignored, not fatal.
	b.Import([]byte("not json"))
	if b.Strength("fire", "smoke") == 0 {
		t.Fatalf("bad import wiped existing strengths")
	}
}
