package state

import (
	"fmt"

	"neurogel.ai/internal/sim/gel"
)

// StateV2 is the legacy dense fixed-grid format: full width x height
// row-major arrays instead of sparse cell entries.
type StateV2 struct {
	Version   string    `json:"version"`
	StepCount uint64    `json:"step_count"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Params    *ParamsV3 `json:"params,omitempty"`

	Charge       [][]float64 `json:"charge"`
	Weight       [][]float64 `json:"weight,omitempty"`
	Crystallized [][]bool    `json:"crystallized,omitempty"`
}

// UpgradeV2 lifts a dense grid into the sparse format. Only cells with
// nonzero charge materialize; every other coordinate is implicitly
// absent. Materialized cells get edges to their 8 neighbors at the cell's
// stored weight, with the crystallized flag copied.
func UpgradeV2(old StateV2) (StateV3, error) {
	if old.Width <= 0 || old.Height <= 0 {
		return StateV3{}, fmt.Errorf("%w: v2 grid %dx%d", ErrCorruptState, old.Width, old.Height)
	}
	if len(old.Charge) != old.Height {
		return StateV3{}, fmt.Errorf("%w: v2 charge rows %d want %d", ErrCorruptState, len(old.Charge), old.Height)
	}

	doc := StateV3{
		Version:   Version,
		StepCount: old.StepCount,
		Params:    paramsToV3(gel.DefaultParams()),
		Cells:     map[string]CellV3{},
	}
	if old.Params != nil {
		doc.Params = *old.Params
	}
	defaults := paramsFromV3(doc.Params)

	at := func(grid [][]float64, x, y int) (float64, bool) {
		if y < 0 || y >= len(grid) || x < 0 || x >= len(grid[y]) {
			return 0, false
		}
		return grid[y][x], true
	}
	crystalAt := func(x, y int) bool {
		if y < 0 || y >= len(old.Crystallized) || x < 0 || x >= len(old.Crystallized[y]) {
			return false
		}
		return old.Crystallized[y][x]
	}

	for y := 0; y < old.Height; y++ {
		for x := 0; x < old.Width; x++ {
			charge, ok := at(old.Charge, x, y)
			if !ok || charge <= 0 {
				continue
			}
			weight := defaults.WInit
			if w, ok := at(old.Weight, x, y); ok && w > 0 {
				weight = w
			}
			crystal := crystalAt(x, y)

			cv := CellV3{
				Charge:    charge,
				Kind:      string(gel.KindInterstitial),
				Neighbors: map[string]EdgeV3{},
			}
			for _, off := range gel.NeighborOffsets {
				nx, ny := x+off.DX, y+off.DY
				if nx < 0 || nx >= old.Width || ny < 0 || ny >= old.Height {
					continue
				}
				cv.Neighbors[off.Key()] = EdgeV3{Weight: weight, Crystallized: crystal}
			}
			doc.Cells[gel.Coord{X: x, Y: y}.Key()] = cv
		}
	}
	return doc, nil
}
