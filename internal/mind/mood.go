package mind

import (
	"sync"

	"neurogel.ai/internal/sim/gel"
)

// MoodState is the slow-moving aggregate read of the substrate: energy
// follows global mean charge, tone follows charge-weighted valence.
type MoodState struct {
	Energy float64 `json:"energy"`
	Tone   float64 `json:"tone"`
}

// Mood samples step statistics into exponential moving averages with a
// homeostatic pull back toward baseline, so spikes register but fade.
type Mood struct {
	mu sync.Mutex

	alpha          float64
	homeostasis    float64
	baselineEnergy float64
	baselineTone   float64

	energy float64
	tone   float64
}

func NewMood() *Mood {
	return &Mood{
		alpha:          0.05,
		homeostasis:    0.01,
		baselineEnergy: 0.05,
		baselineTone:   0,
		energy:         0.05,
	}
}

func (m *Mood) OnStep(_ uint64, stats gel.StepStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.energy += m.alpha * (stats.MeanCharge - m.energy)
	m.tone += m.alpha * (stats.MeanValence - m.tone)
	m.energy += m.homeostasis * (m.baselineEnergy - m.energy)
	m.tone += m.homeostasis * (m.baselineTone - m.tone)
	if m.energy < 0 {
		m.energy = 0
	}
	if m.energy > 1 {
		m.energy = 1
	}
	if m.tone < -1 {
		m.tone = -1
	}
	if m.tone > 1 {
		m.tone = 1
	}
}

func (m *Mood) State() MoodState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MoodState{Energy: m.energy, Tone: m.tone}
}
