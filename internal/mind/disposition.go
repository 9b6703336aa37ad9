package mind

import "sort"

// Disposition is a heuristic hint derived from mood plus the hottest
// concepts. It is advisory output only; nothing in the substrate consumes
// it.
type Disposition struct {
	Label    string   `json:"label"`
	Concepts []string `json:"concepts,omitempty"`
}

// Hint maps mood space onto a coarse label and attaches up to three of
// the hottest concepts.
func Hint(m MoodState, charges map[string]float64) Disposition {
	d := Disposition{Label: "steady"}
	switch {
	case m.Energy < 0.1:
		d.Label = "flat"
	case m.Tone > 0.15:
		d.Label = "warm"
	case m.Tone < -0.15:
		d.Label = "agitated"
	}

	type hc struct {
		name   string
		charge float64
	}
	hot := make([]hc, 0, len(charges))
	for name, ch := range charges {
		if ch > 0.1 {
			hot = append(hot, hc{name, ch})
		}
	}
	sort.Slice(hot, func(i, j int) bool {
		if hot[i].charge != hot[j].charge {
			return hot[i].charge > hot[j].charge
		}
		return hot[i].name < hot[j].name
	})
	if len(hot) > 3 {
		hot = hot[:3]
	}
	for _, h := range hot {
		d.Concepts = append(d.Concepts, h.name)
	}
	return d
}
