package mind

import (
	"testing"

	"neurogel.ai/internal/sim/gel"
)

func TestMood_TracksStepStats(t *testing.T) {
	m := NewMood()
	e0 := m.State().Energy

	for i := 0; i < 50; i++ {
		m.OnStep(uint64(i), gel.StepStats{MeanCharge: 0.8, MeanValence: -0.5})
	}
	st := m.State()
	if st.Energy <= e0 {
		t.Fatalf("energy did not rise under sustained charge: %v", st.Energy)
	}
	if st.Tone >= 0 {
		t.Fatalf("tone did not follow negative valence: %v", st.Tone)
	}
	if st.Energy > 1 || st.Tone < -1 {
		t.Fatalf("mood out of range: %+v", st)
	}
}

func TestMood_HomeostasisPullsBack(t *testing.T) {
	m := NewMood()
	for i := 0; i < 50; i++ {
		m.OnStep(uint64(i), gel.StepStats{MeanCharge: 0.9, MeanValence: 0.9})
	}
	high := m.State()

	// A silent substrate drains mood back toward baseline.
	for i := 0; i < 500; i++ {
		m.OnStep(uint64(i), gel.StepStats{})
	}
	st := m.State()
	if st.Energy >= high.Energy {
		t.Fatalf("energy never relaxed: %v -> %v", high.Energy, st.Energy)
	}
	if st.Energy > 0.1 {
		t.Fatalf("energy stuck high: %v", st.Energy)
	}
	if st.Tone > 0.05 {
		t.Fatalf("tone stuck high: %v", st.Tone)
	}
}

func TestHint_Labels(t *testing.T) {
	cases := []struct {
		mood MoodState
		want string
	}{
		{MoodState{Energy: 0.05, Tone: 0.5}, "flat"},
		{MoodState{Energy: 0.5, Tone: 0.3}, "warm"},
		{MoodState{Energy: 0.5, Tone: -0.3}, "agitated"},
		{MoodState{Energy: 0.5, Tone: 0}, "steady"},
	}
	for _, tc := range cases {
		if got := Hint(tc.mood, nil); got.Label != tc.want {
			t.Fatalf("Hint(%+v) = %q, want %q", tc.mood, got.Label, tc.want)
		}
	}
}

func TestHint_TopConcepts(t *testing.T) {
	charges := map[string]float64{
		"fire":  0.9,
		"smoke": 0.7,
		"ash":   0.5,
		"dust":  0.3,
		"cold":  0.05, // under the hot floor, excluded
	}
	d := Hint(MoodState{Energy: 0.5}, charges)
	want := []string{"fire", "smoke", "ash"}
	if len(d.Concepts) != len(want) {
		t.Fatalf("concepts = %v, want %v", d.Concepts, want)
	}
	for i := range want {
		if d.Concepts[i] != want[i] {
			t.Fatalf("concepts = %v, want %v", d.Concepts, want)
		}
	}
}
