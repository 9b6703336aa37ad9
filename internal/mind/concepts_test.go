package mind

import (
	"testing"

	"neurogel.ai/internal/sim/gel"
)

func newTestGel() *gel.Gel {
	return gel.New(gel.DefaultParams(), nil)
}

func TestConcepts_RegisterStimulateCharge(t *testing.T) {
	g := newTestGel()
	cs := NewConcepts(g, nil)

	if err := cs.Register("warmth", gel.Coord{X: 0, Y: 0}, 1, []string{"sense"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	snap, ok := g.GetState(gel.Coord{X: 0, Y: 0})
	if !ok || snap.Kind != gel.KindConcept {
		t.Fatalf("region center not a concept cell: ok=%v %+v", ok, snap)
	}

	if !cs.Stimulate("warmth", 0.8, 0.2) {
		t.Fatalf("stimulate unknown concept")
	}
	if got := cs.Charge("warmth"); got != 0.8 {
		t.Fatalf("mean charge = %v, want 0.8", got)
	}
	if got := cs.Charge("nope"); got != 0 {
		t.Fatalf("charge of unknown concept = %v, want 0", got)
	}

	c, ok := cs.Get("warmth")
	if !ok || len(c.Tags) != 1 || c.Tags[0] != "sense" {
		t.Fatalf("get returned %+v ok=%v", c, ok)
	}
}

func TestConcepts_UnregisterReleasesCells(t *testing.T) {
	g := newTestGel()
	cs := NewConcepts(g, nil)
	cs.Register("warmth", gel.Coord{X: 0, Y: 0}, 1, nil)

	if !cs.Unregister("warmth") {
		t.Fatalf("unregister failed")
	}
	if cs.Unregister("warmth") {
		t.Fatalf("double unregister reported success")
	}
	snap, _ := g.GetState(gel.Coord{X: 0, Y: 0})
	if snap.Kind != gel.KindInterstitial || len(snap.Owners) != 0 {
		t.Fatalf("released cell still claimed: %+v", snap)
	}
}

func TestConcepts_NamesSorted(t *testing.T) {
	g := newTestGel()
	cs := NewConcepts(g, nil)
	cs.Register("zebra", gel.Coord{X: 0, Y: 0}, 0, nil)
	cs.Register("apple", gel.Coord{X: 10, Y: 0}, 0, nil)

	names := cs.Names()
	if len(names) != 2 || names[0] != "apple" || names[1] != "zebra" {
		t.Fatalf("names = %v", names)
	}
}

func TestConcepts_ObservePromotesFrequentTerms(t *testing.T) {
	g := newTestGel()
	cs := NewConcepts(g, nil)

	if p := cs.Observe("the ocean is vast"); len(p) != 0 {
		t.Fatalf("promoted on first sighting: %v", p)
	}
	if p := cs.Observe("ocean again"); len(p) != 0 {
		t.Fatalf("promoted on second sighting: %v", p)
	}
	p := cs.Observe("ocean")
	if len(p) != 1 || p[0] != "ocean" {
		t.Fatalf("third sighting promoted %v, want [ocean]", p)
	}
	if _, ok := cs.Get("ocean"); !ok {
		t.Fatalf("promoted term not registered")
	}
	// Known concepts stop being candidates.
	if p := cs.Observe("ocean ocean ocean"); len(p) != 0 {
		t.Fatalf("re-promoted an existing concept: %v", p)
	}
	// Short tokens never qualify.
	cs.Observe("a an the of")
	cs.Observe("a an the of")
	if p := cs.Observe("a an the of"); len(p) != 0 {
		t.Fatalf("promoted short tokens: %v", p)
	}
}

func TestConcepts_PromotionsSpreadOut(t *testing.T) {
	g := newTestGel()
	cs := NewConcepts(g, nil)
	for i := 0; i < 3; i++ {
		cs.Observe("river stone cloud")
	}
	names := cs.Names()
	if len(names) != 3 {
		t.Fatalf("promoted %v, want 3 concepts", names)
	}
	centers := map[gel.Coord]string{}
	for _, n := range names {
		c, _ := cs.Get(n)
		if prev, dup := centers[c.Center]; dup {
			t.Fatalf("%q and %q share center %v", n, prev, c.Center)
		}
		centers[c.Center] = n
	}
}

func TestConcepts_PruneCold(t *testing.T) {
	g := newTestGel()
	cs := NewConcepts(g, nil)
	cs.Register("cold", gel.Coord{X: 0, Y: 0}, 1, nil)
	cs.Register("hot", gel.Coord{X: 20, Y: 0}, 1, nil)

	if _, err := g.StepN(3); err != nil {
		t.Fatalf("stepN: %v", err)
	}
	cs.Stimulate("hot", 0.9, 0)
	cs.OnStep(g.StepCount(), gel.StepStats{})

	pruned := cs.PruneCold(2)
	if len(pruned) != 1 || pruned[0] != "cold" {
		t.Fatalf("pruned %v, want [cold]", pruned)
	}
	if _, ok := cs.Get("hot"); !ok {
		t.Fatalf("recently hot concept was pruned")
	}
}

func TestConcepts_ExportImportRoundtrip(t *testing.T) {
	g := newTestGel()
	cs := NewConcepts(g, nil)
	cs.Register("warmth", gel.Coord{X: 0, Y: 0}, 1, []string{"sense"})
	cs.Register("light", gel.Coord{X: 12, Y: 4}, 2, nil)

	recs := cs.ExportAll()
	if len(recs) != 2 {
		t.Fatalf("exported %d records", len(recs))
	}

	g2 := newTestGel()
	cs2 := NewConcepts(g2, nil)
	cs2.ImportAll(recs)
	for _, name := range []string{"warmth", "light"} {
		want, _ := cs.Get(name)
		got, ok := cs2.Get(name)
		if !ok || got.Center != want.Center || got.Radius != want.Radius {
			t.Fatalf("%q not restored: ok=%v %+v", name, ok, got)
		}
	}
	snap, _ := g2.GetState(gel.Coord{X: 12, Y: 4})
	if snap.Kind != gel.KindConcept {
		t.Fatalf("import did not re-claim region cells")
	}
}
