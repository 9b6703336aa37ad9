package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"neurogel.ai/internal/mind"
	"neurogel.ai/internal/sim/gel"
)

// Version is the current persistence format tag.
const Version = "v3-sparse"

// VersionV2 is the legacy dense fixed-grid format, upgraded at load time.
const VersionV2 = "v2"

var (
	// ErrUnsupportedVersion marks a state file whose version tag is
	// neither current nor upgradeable.
	ErrUnsupportedVersion = errors.New("state: unsupported version")

	// ErrCorruptState marks a file that failed JSON parsing or schema
	// validation. Distinct from read errors so callers can tell a
	// missing file from a damaged one.
	ErrCorruptState = errors.New("state: corrupt state file")
)

// StateV3 is the on-disk document.
type StateV3 struct {
	Version      string               `json:"version"`
	StepCount    uint64               `json:"step_count"`
	Params       ParamsV3             `json:"params"`
	Cells        map[string]CellV3    `json:"cells"`
	Concepts     map[string]ConceptV3 `json:"concepts,omitempty"`
	Associations json.RawMessage      `json:"associations,omitempty"`
}

type CellV3 struct {
	Charge         float64           `json:"charge"`
	Valence        float64           `json:"valence"`
	Kind           string            `json:"kind"`
	Owners         []string          `json:"owners,omitempty"`
	LastStep       uint64            `json:"last_step"`
	LastActiveStep uint64            `json:"last_active_step"`
	Neighbors      map[string]EdgeV3 `json:"neighbors,omitempty"`
}

type EdgeV3 struct {
	Weight       float64 `json:"weight"`
	Crystallized bool    `json:"crystallized"`
}

type ConceptV3 struct {
	Center [2]int   `json:"center"`
	R      int      `json:"r"`
	Tags   []string `json:"tags,omitempty"`
	Charge float64  `json:"charge"`
}

type ParamsV3 struct {
	PropagationRate        float64 `json:"propagation_rate"`
	ValenceRate            float64 `json:"valence_rate"`
	ChargeCouplingCeiling  float64 `json:"charge_coupling_ceiling"`
	ValenceCouplingCeiling float64 `json:"valence_coupling_ceiling"`
	ChargeDecay            float64 `json:"charge_decay"`
	ValenceDecay           float64 `json:"valence_decay"`
	WeightDecay            float64 `json:"weight_decay"`
	LearningRate           float64 `json:"learning_rate"`
	CrystalThreshold       float64 `json:"crystal_threshold"`
	CrystalDecayFactor     float64 `json:"crystal_decay_factor"`
	WMin                   float64 `json:"w_min"`
	WMax                   float64 `json:"w_max"`
	WInit                  float64 `json:"w_init"`
	ActivationThreshold    float64 `json:"activation_threshold"`
	SpawnThreshold         float64 `json:"spawn_threshold"`
	LeakFraction           float64 `json:"leak_fraction"`
	DespawnDormancyTTL     uint64  `json:"despawn_dormancy_ttl"`
	DespawnChargeEps       float64 `json:"despawn_charge_eps"`
}

func paramsToV3(p gel.Params) ParamsV3 {
	return ParamsV3{
		PropagationRate:        p.PropagationRate,
		ValenceRate:            p.ValenceRate,
		ChargeCouplingCeiling:  p.ChargeCouplingCeiling,
		ValenceCouplingCeiling: p.ValenceCouplingCeiling,
		ChargeDecay:            p.ChargeDecay,
		ValenceDecay:           p.ValenceDecay,
		WeightDecay:            p.WeightDecay,
		LearningRate:           p.LearningRate,
		CrystalThreshold:       p.CrystalThreshold,
		CrystalDecayFactor:     p.CrystalDecayFactor,
		WMin:                   p.WMin,
		WMax:                   p.WMax,
		WInit:                  p.WInit,
		ActivationThreshold:    p.ActivationThreshold,
		SpawnThreshold:         p.SpawnThreshold,
		LeakFraction:           p.LeakFraction,
		DespawnDormancyTTL:     p.DespawnDormancyTTL,
		DespawnChargeEps:       p.DespawnChargeEps,
	}
}

func paramsFromV3(v ParamsV3) gel.Params {
	p := gel.DefaultParams()
	if v.PropagationRate != 0 {
		p.PropagationRate = v.PropagationRate
	}
	if v.ValenceRate != 0 {
		p.ValenceRate = v.ValenceRate
	}
	if v.ChargeCouplingCeiling != 0 {
		p.ChargeCouplingCeiling = v.ChargeCouplingCeiling
	}
	if v.ValenceCouplingCeiling != 0 {
		p.ValenceCouplingCeiling = v.ValenceCouplingCeiling
	}
	if v.ChargeDecay != 0 {
		p.ChargeDecay = v.ChargeDecay
	}
	if v.ValenceDecay != 0 {
		p.ValenceDecay = v.ValenceDecay
	}
	if v.WeightDecay != 0 {
		p.WeightDecay = v.WeightDecay
	}
	if v.LearningRate != 0 {
		p.LearningRate = v.LearningRate
	}
	if v.CrystalThreshold != 0 {
		p.CrystalThreshold = v.CrystalThreshold
	}
	if v.CrystalDecayFactor != 0 {
		p.CrystalDecayFactor = v.CrystalDecayFactor
	}
	if v.WMin != 0 {
		p.WMin = v.WMin
	}
	if v.WMax != 0 {
		p.WMax = v.WMax
	}
	if v.WInit != 0 {
		p.WInit = v.WInit
	}
	if v.ActivationThreshold != 0 {
		p.ActivationThreshold = v.ActivationThreshold
	}
	if v.SpawnThreshold != 0 {
		p.SpawnThreshold = v.SpawnThreshold
	}
	if v.LeakFraction != 0 {
		p.LeakFraction = v.LeakFraction
	}
	if v.DespawnDormancyTTL != 0 {
		p.DespawnDormancyTTL = v.DespawnDormancyTTL
	}
	if v.DespawnChargeEps != 0 {
		p.DespawnChargeEps = v.DespawnChargeEps
	}
	return p
}

// Build assembles the on-disk document from the live components.
func Build(g *gel.Gel, cs *mind.Concepts, assoc *mind.Associations) StateV3 {
	ex := g.Export()
	doc := StateV3{
		Version:   Version,
		StepCount: ex.StepCount,
		Params:    paramsToV3(ex.Params),
		Cells:     make(map[string]CellV3, len(ex.Cells)),
	}
	for coord, snap := range ex.Cells {
		cv := CellV3{
			Charge:         snap.Charge,
			Valence:        snap.Valence,
			Kind:           string(snap.Kind),
			Owners:         snap.Owners,
			LastStep:       snap.LastStep,
			LastActiveStep: snap.LastActiveStep,
		}
		if len(snap.Neighbors) > 0 {
			cv.Neighbors = make(map[string]EdgeV3, len(snap.Neighbors))
			for off, e := range snap.Neighbors {
				cv.Neighbors[off.Key()] = EdgeV3{Weight: e.Weight, Crystallized: e.Crystallized}
			}
		}
		doc.Cells[coord.Key()] = cv
	}
	if cs != nil {
		doc.Concepts = map[string]ConceptV3{}
		for name, r := range cs.ExportAll() {
			doc.Concepts[name] = ConceptV3{
				Center: [2]int{r.Center.X, r.Center.Y},
				R:      r.Radius,
				Tags:   r.Tags,
				Charge: r.Charge,
			}
		}
	}
	if assoc != nil {
		doc.Associations = assoc.Export()
	}
	return doc
}

// Apply restores the document into the components, fully resetting the
// substrate first.
func Apply(doc StateV3, g *gel.Gel, cs *mind.Concepts, assoc *mind.Associations) error {
	ex := gel.Export{
		StepCount: doc.StepCount,
		Params:    paramsFromV3(doc.Params),
		Cells:     make(map[gel.Coord]gel.CellSnapshot, len(doc.Cells)),
	}
	for key, cv := range doc.Cells {
		coord, err := gel.ParseCoordKey(key)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		snap := gel.CellSnapshot{
			Kind:           gel.ParseKind(cv.Kind),
			Owners:         cv.Owners,
			Charge:         cv.Charge,
			Valence:        cv.Valence,
			LastStep:       cv.LastStep,
			LastActiveStep: cv.LastActiveStep,
			Neighbors:      map[gel.Offset]gel.Edge{},
		}
		for ok, ev := range cv.Neighbors {
			off, err := gel.ParseOffsetKey(ok)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptState, err)
			}
			snap.Neighbors[off] = gel.Edge{Weight: ev.Weight, Crystallized: ev.Crystallized}
		}
		ex.Cells[coord] = snap
	}
	if err := g.Import(ex); err != nil {
		return err
	}
	if cs != nil {
		recs := map[string]mind.ConceptRecord{}
		for name, cv := range doc.Concepts {
			recs[name] = mind.ConceptRecord{
				Center: gel.Coord{X: cv.Center[0], Y: cv.Center[1]},
				Radius: cv.R,
				Tags:   cv.Tags,
				Charge: cv.Charge,
			}
		}
		cs.ImportAll(recs)
	}
	if assoc != nil {
		assoc.Import(doc.Associations)
	}
	return nil
}

// Save writes the current state atomically (temp file + rename).
func Save(path string, g *gel.Gel, cs *mind.Concepts, assoc *mind.Associations) error {
	doc := Build(g, cs, assoc)
	b, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads, validates and applies a state file. Read failures,
// malformed JSON, schema violations and unknown versions are all
// distinguishable through errors.Is.
func Load(path string, g *gel.Gel, cs *mind.Concepts, assoc *mind.Associations) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	doc, err := Decode(raw)
	if err != nil {
		return err
	}
	return Apply(doc, g, cs, assoc)
}

// Decode parses a state file body, upgrading the legacy dense format when
// it is detected.
func Decode(raw []byte) (StateV3, error) {
	var probe struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return StateV3{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	switch probe.Version {
	case Version:
		if err := validateV3(raw); err != nil {
			return StateV3{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		var doc StateV3
		if err := json.Unmarshal(raw, &doc); err != nil {
			return StateV3{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		return doc, nil
	case VersionV2:
		var old StateV2
		if err := json.Unmarshal(raw, &old); err != nil {
			return StateV3{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		return UpgradeV2(old)
	default:
		return StateV3{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, probe.Version)
	}
}
