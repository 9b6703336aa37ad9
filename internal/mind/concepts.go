package mind

import (
	"io"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"

	"neurogel.ai/internal/sim/gel"
)

// Concept is a named circular region of the substrate.
type Concept struct {
	Name   string
	Center gel.Coord
	Radius int
	Tags   []string

	lastHotStep uint64
}

// Concepts maps human-meaningful names onto regions of the gel. It owns
// region naming and discovery; the gel only executes "ensure these
// coordinates, attribute this owner".
type Concepts struct {
	mu sync.Mutex

	g   *gel.Gel
	log *log.Logger

	byName map[string]*Concept

	// Discovery tallies for candidate terms seen in free text.
	candidates map[string]int
	promoteGate int
	placeIdx    int
}

func NewConcepts(g *gel.Gel, logger *log.Logger) *Concepts {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Concepts{
		g:           g,
		log:         logger,
		byName:      map[string]*Concept{},
		candidates:  map[string]int{},
		promoteGate: 3,
	}
}

// Register seeds the named region into the gel and records it.
// Re-registering an existing name updates tags only.
func (cs *Concepts) Register(name string, center gel.Coord, radius int, tags []string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if c, ok := cs.byName[name]; ok {
		c.Tags = append([]string(nil), tags...)
		return nil
	}
	if err := cs.g.RegisterRegion(name, center, radius); err != nil {
		return err
	}
	cs.byName[name] = &Concept{
		Name:   name,
		Center: center,
		Radius: radius,
		Tags:   append([]string(nil), tags...),
	}
	return nil
}

// Unregister removes the concept and releases its claim on the region.
func (cs *Concepts) Unregister(name string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.byName[name]
	if !ok {
		return false
	}
	delete(cs.byName, name)
	cs.g.UnregisterRegion(name, c.Center, c.Radius)
	return true
}

func (cs *Concepts) Get(name string) (Concept, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.byName[name]
	if !ok {
		return Concept{}, false
	}
	return *c, true
}

func (cs *Concepts) Names() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	names := make([]string, 0, len(cs.byName))
	for n := range cs.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Stimulate injects charge across the concept's region.
func (cs *Concepts) Stimulate(name string, amount, valence float64) bool {
	cs.mu.Lock()
	c, ok := cs.byName[name]
	cs.mu.Unlock()
	if !ok {
		return false
	}
	_ = cs.g.StimulateRegion(c.Center, c.Radius, amount, valence)
	return true
}

// Charge is the mean charge over the concept's disc.
func (cs *Concepts) Charge(name string) float64 {
	cs.mu.Lock()
	c, ok := cs.byName[name]
	cs.mu.Unlock()
	if !ok {
		return 0
	}
	return cs.regionCharge(c)
}

func (cs *Concepts) regionCharge(c *Concept) float64 {
	coords := gel.DiscCoords(c.Center, c.Radius)
	if len(coords) == 0 {
		return 0
	}
	var sum float64
	for _, coord := range coords {
		sum += cs.g.GetCharge(coord)
	}
	return sum / float64(len(coords))
}

// ChargeAll samples every concept's mean charge.
func (cs *Concepts) ChargeAll() map[string]float64 {
	cs.mu.Lock()
	list := make([]*Concept, 0, len(cs.byName))
	for _, c := range cs.byName {
		list = append(list, c)
	}
	cs.mu.Unlock()
	out := make(map[string]float64, len(list))
	for _, c := range list {
		out[c.Name] = cs.regionCharge(c)
	}
	return out
}

// OnStep tracks when each concept was last hot, for pruning.
func (cs *Concepts) OnStep(step uint64, _ gel.StepStats) {
	hot := cs.g.Params().ActivationThreshold
	for name, ch := range cs.ChargeAll() {
		if ch > hot {
			cs.mu.Lock()
			if c, ok := cs.byName[name]; ok {
				c.lastHotStep = step
			}
			cs.mu.Unlock()
		}
	}
}

// PruneCold unregisters concepts that have not been hot for coldSteps.
// Returns the pruned names.
func (cs *Concepts) PruneCold(coldSteps uint64) []string {
	cur := cs.g.StepCount()
	cs.mu.Lock()
	var cold []string
	for name, c := range cs.byName {
		if cur-c.lastHotStep >= coldSteps {
			cold = append(cold, name)
		}
	}
	cs.mu.Unlock()
	for _, name := range cold {
		cs.Unregister(name)
		cs.log.Printf("pruned cold concept %q", name)
	}
	sort.Strings(cold)
	return cold
}

var termRe = regexp.MustCompile(`[a-zA-Z][a-zA-Z'-]{3,}`)

// Observe tallies candidate terms from free text; a term seen often
// enough is promoted to a fresh concept on the placement spiral. Returns
// names promoted by this call.
func (cs *Concepts) Observe(text string) []string {
	var promoted []string
	seen := map[string]struct{}{}
	cs.mu.Lock()
	for _, tok := range termRe.FindAllString(strings.ToLower(text), -1) {
		if _, exists := cs.byName[tok]; exists {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		cs.candidates[tok]++
		if cs.candidates[tok] >= cs.promoteGate {
			delete(cs.candidates, tok)
			seen[tok] = struct{}{}
			promoted = append(promoted, tok)
		}
	}
	cs.mu.Unlock()
	for _, name := range promoted {
		center := cs.nextPlacement()
		if err := cs.Register(name, center, 2, []string{"discovered"}); err == nil {
			cs.log.Printf("promoted concept %q at %s", name, center.Key())
		}
	}
	return promoted
}

// nextPlacement walks an outward square spiral so discovered concepts
// spread instead of piling onto one coordinate.
func (cs *Concepts) nextPlacement() gel.Coord {
	cs.mu.Lock()
	i := cs.placeIdx
	cs.placeIdx++
	cs.mu.Unlock()

	if i == 0 {
		return gel.Coord{}
	}
	ring := 1
	for i > 8*ring {
		i -= 8 * ring
		ring++
	}
	pos := i - 1
	side := pos / (2 * ring)
	off := pos % (2 * ring)
	var x, y int
	switch side {
	case 0:
		x, y = -ring+off, -ring
	case 1:
		x, y = ring, -ring+off
	case 2:
		x, y = ring-off, ring
	default:
		x, y = -ring, ring-off
	}
	const spacing = 6 // room for radius-2 discs plus a gap
	return gel.Coord{X: x * spacing, Y: y * spacing}
}

// ConceptRecord is the persistence-facing view of a concept.
type ConceptRecord struct {
	Center gel.Coord
	Radius int
	Tags   []string
	Charge float64
}

func (cs *Concepts) ExportAll() map[string]ConceptRecord {
	out := map[string]ConceptRecord{}
	cs.mu.Lock()
	list := make([]*Concept, 0, len(cs.byName))
	for _, c := range cs.byName {
		list = append(list, c)
	}
	cs.mu.Unlock()
	for _, c := range list {
		out[c.Name] = ConceptRecord{
			Center: c.Center,
			Radius: c.Radius,
			Tags:   append([]string(nil), c.Tags...),
			Charge: cs.regionCharge(c),
		}
	}
	return out
}

// ImportAll replaces the registry from persisted records. The gel is
// assumed to already hold the cells; regions are re-registered to restore
// ownership for any cell the state file lacked.
func (cs *Concepts) ImportAll(recs map[string]ConceptRecord) {
	cs.mu.Lock()
	cs.byName = map[string]*Concept{}
	cs.candidates = map[string]int{}
	cs.mu.Unlock()
	for name, r := range recs {
		_ = cs.Register(name, r.Center, r.Radius, r.Tags)
	}
}
