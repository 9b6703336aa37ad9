package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"neurogel.ai/internal/sim/gel"
)

// Tuning is the on-disk physics configuration. Zero fields fall back to
// the built-in defaults, so a tuning file only needs to name what it
// changes.
type Tuning struct {
	StepRateHz       int `yaml:"step_rate_hz"`
	SweepIntervalSec int `yaml:"sweep_interval_s"`
	Workers          int `yaml:"workers"`

	PropagationRate float64 `yaml:"propagation_rate"`
	ValenceRate     float64 `yaml:"valence_rate"`

	ChargeCouplingCeiling  float64 `yaml:"charge_coupling_ceiling"`
	ValenceCouplingCeiling float64 `yaml:"valence_coupling_ceiling"`

	ChargeDecay  float64 `yaml:"charge_decay"`
	ValenceDecay float64 `yaml:"valence_decay"`
	WeightDecay  float64 `yaml:"weight_decay"`

	LearningRate       float64 `yaml:"learning_rate"`
	CrystalThreshold   float64 `yaml:"crystal_threshold"`
	CrystalDecayFactor float64 `yaml:"crystal_decay_factor"`

	WMin  float64 `yaml:"w_min"`
	WMax  float64 `yaml:"w_max"`
	WInit float64 `yaml:"w_init"`

	ActivationThreshold float64 `yaml:"activation_threshold"`
	SpawnThreshold      float64 `yaml:"spawn_threshold"`
	LeakFraction        float64 `yaml:"leak_fraction"`

	DespawnDormancyTTL uint64  `yaml:"despawn_dormancy_ttl"`
	DespawnChargeEps   float64 `yaml:"despawn_charge_eps"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Params folds the tuning over the defaults.
func (t Tuning) Params() gel.Params {
	p := gel.DefaultParams()
	setF := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	setF(&p.PropagationRate, t.PropagationRate)
	setF(&p.ValenceRate, t.ValenceRate)
	setF(&p.ChargeCouplingCeiling, t.ChargeCouplingCeiling)
	setF(&p.ValenceCouplingCeiling, t.ValenceCouplingCeiling)
	setF(&p.ChargeDecay, t.ChargeDecay)
	setF(&p.ValenceDecay, t.ValenceDecay)
	setF(&p.WeightDecay, t.WeightDecay)
	setF(&p.LearningRate, t.LearningRate)
	setF(&p.CrystalThreshold, t.CrystalThreshold)
	setF(&p.CrystalDecayFactor, t.CrystalDecayFactor)
	setF(&p.WMin, t.WMin)
	setF(&p.WMax, t.WMax)
	setF(&p.WInit, t.WInit)
	setF(&p.ActivationThreshold, t.ActivationThreshold)
	setF(&p.SpawnThreshold, t.SpawnThreshold)
	setF(&p.LeakFraction, t.LeakFraction)
	setF(&p.DespawnChargeEps, t.DespawnChargeEps)
	if t.DespawnDormancyTTL != 0 {
		p.DespawnDormancyTTL = t.DespawnDormancyTTL
	}
	if t.Workers != 0 {
		p.Workers = t.Workers
	}
	return p
}
