package gel

import (
	"fmt"
	"strconv"
	"strings"
)

// Coord addresses one cell on the integer plane.
type Coord struct {
	X int
	Y int
}

func (c Coord) Add(o Offset) Coord { return Coord{c.X + o.DX, c.Y + o.DY} }

// Key is the canonical "x:y" form used by the persistence format.
func (c Coord) Key() string { return strconv.Itoa(c.X) + ":" + strconv.Itoa(c.Y) }

func ParseCoordKey(s string) (Coord, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return Coord{}, fmt.Errorf("bad coord key %q", s)
	}
	x, err := strconv.Atoi(a)
	if err != nil {
		return Coord{}, fmt.Errorf("bad coord key %q: %w", s, err)
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return Coord{}, fmt.Errorf("bad coord key %q: %w", s, err)
	}
	return Coord{x, y}, nil
}

// Offset is a relative neighbor position.
type Offset struct {
	DX int
	DY int
}

func (o Offset) Neg() Offset    { return Offset{-o.DX, -o.DY} }
func (o Offset) Key() string    { return strconv.Itoa(o.DX) + ":" + strconv.Itoa(o.DY) }

func ParseOffsetKey(s string) (Offset, error) {
	c, err := ParseCoordKey(s)
	if err != nil {
		return Offset{}, err
	}
	return Offset{c.X, c.Y}, nil
}

// NeighborOffsets is the 8-neighbor (Moore) topology.
var NeighborOffsets = [8]Offset{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Kind is a cell's role in the substrate.
type Kind string

const (
	KindConcept      Kind = "concept"
	KindAxon         Kind = "axon"
	KindInterstitial Kind = "interstitial"
)

func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindConcept, KindAxon, KindInterstitial:
		return Kind(s)
	}
	return KindInterstitial
}

// KindProfile is a fixed multiplier row applied on top of the base rates.
type KindProfile struct {
	Propagation float64
	ChargeDecay float64
	Learning    float64
	WeightDecay float64
}

var kindProfiles = map[Kind]KindProfile{
	KindConcept:      {Propagation: 1.0, ChargeDecay: 0.7, Learning: 1.1, WeightDecay: 0.8},
	KindAxon:         {Propagation: 1.6, ChargeDecay: 0.5, Learning: 0.8, WeightDecay: 0.6},
	KindInterstitial: {Propagation: 0.6, ChargeDecay: 1.5, Learning: 0.6, WeightDecay: 1.4},
}

func (k Kind) Profile() KindProfile {
	if p, ok := kindProfiles[k]; ok {
		return p
	}
	return kindProfiles[KindInterstitial]
}

// Params is the immutable physics bundle for one substrate instance.
type Params struct {
	PropagationRate float64
	ValenceRate     float64

	// Per-step coupling budgets. If the summed edge coupling exceeds the
	// ceiling, all flows are scaled down to it (explicit-Euler stability).
	ChargeCouplingCeiling  float64
	ValenceCouplingCeiling float64

	ChargeDecay  float64
	ValenceDecay float64
	WeightDecay  float64

	LearningRate       float64
	CrystalThreshold   float64
	CrystalDecayFactor float64

	WMin  float64
	WMax  float64
	WInit float64

	ActivationThreshold float64
	SpawnThreshold      float64
	LeakFraction        float64

	DespawnDormancyTTL uint64
	DespawnChargeEps   float64

	// Worker pool size for the per-cell fan-out; 0 means GOMAXPROCS.
	Workers int
}

func DefaultParams() Params {
	return Params{
		PropagationRate:        0.25,
		ValenceRate:            0.15,
		ChargeCouplingCeiling:  0.15,
		ValenceCouplingCeiling: 0.5,
		ChargeDecay:            0.02,
		ValenceDecay:           0.01,
		WeightDecay:            0.001,
		LearningRate:           0.02,
		CrystalThreshold:       0.7,
		CrystalDecayFactor:     0.05,
		WMin:                   0.05,
		WMax:                   1.0,
		WInit:                  0.25,
		ActivationThreshold:    0.3,
		SpawnThreshold:         0.02,
		LeakFraction:           0.03,
		DespawnDormancyTTL:     200,
		DespawnChargeEps:       0.01,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
