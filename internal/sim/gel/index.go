package gel

import "sync"

// Bounds is the smallest axis-aligned box containing every coordinate the
// substrate has ever touched. It only grows.
type Bounds struct {
	MinX, MaxX int
	MinY, MaxY int
}

func (b Bounds) extend(c Coord) Bounds {
	if c.X < b.MinX {
		b.MinX = c.X
	}
	if c.X > b.MaxX {
		b.MaxX = c.X
	}
	if c.Y < b.MinY {
		b.MinY = c.Y
	}
	if c.Y > b.MaxY {
		b.MaxY = c.Y
	}
	return b
}

// LiveCell pairs a coordinate with its live handle for iteration.
type LiveCell struct {
	Coord Coord
	Cell  *Cell
}

// Index is the substrate's single source of truth about what exists where.
// A coordinate is live, dormant, or absent; pending input accumulates for
// absent coordinates. All tables share one lock.
type Index struct {
	mu sync.RWMutex

	p *Params

	live    map[Coord]*Cell
	dormant map[Coord]CellSnapshot
	pending map[Coord]float64

	bounds    Bounds
	hasBounds bool
}

func NewIndex(p *Params) *Index {
	return &Index{
		p:       p,
		live:    map[Coord]*Cell{},
		dormant: map[Coord]CellSnapshot{},
		pending: map[Coord]float64{},
	}
}

// Ensure returns the live cell at coord, creating it if needed. A dormant
// snapshot revives with its full state; otherwise the cell starts from
// defaults with the given kind. Owner hints are merged either way, and the
// new cell is wired symmetrically to every already-live neighbor.
// Concurrent calls for the same coordinate resolve to one cell.
func (ix *Index) Ensure(coord Coord, kind Kind, owners []string) (*Cell, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if c, ok := ix.live[coord]; ok {
		c.adoptOwners(owners)
		return c, false
	}

	c := newCell(coord, kind, ix.p)
	if snap, ok := ix.dormant[coord]; ok {
		c.Restore(snap)
		delete(ix.dormant, coord)
	}
	c.adoptOwners(owners)

	// Stale pending input folds into the fresh cell.
	if amt, ok := ix.pending[coord]; ok {
		delete(ix.pending, coord)
		c.Stimulate(amt, 0)
	}

	for _, off := range NeighborOffsets {
		if n, ok := ix.live[coord.Add(off)]; ok {
			c.ConnectNeighbor(off)
			n.ConnectNeighbor(off.Neg())
		}
	}

	ix.live[coord] = c
	ix.touchLocked(coord)
	return c, true
}

// Despawn captures the cell's state into dormant storage and removes the
// live entry. Returns false if the coordinate was not live.
func (ix *Index) Despawn(coord Coord) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.live[coord]
	if !ok {
		return false
	}
	ix.dormant[coord] = c.Snapshot()
	delete(ix.live, coord)
	return true
}

func (ix *Index) Get(coord Coord) (*Cell, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.live[coord]
	return c, ok
}

// putDormant overwrites a dormant snapshot in place. No-op if the
// coordinate has since gone live or been dropped.
func (ix *Index) putDormant(coord Coord, snap CellSnapshot) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.dormant[coord]; ok {
		ix.dormant[coord] = snap
	}
}

func (ix *Index) GetDormant(coord Coord) (CellSnapshot, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s, ok := ix.dormant[coord]
	return s, ok
}

// AddPending accumulates stimulation for a coordinate with no cell yet.
func (ix *Index) AddPending(coord Coord, amount float64) {
	if amount <= 0 {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.live[coord]; ok {
		// Raced with a spawn; the cell exists now, so the input lands
		// directly instead of waiting in the pending table.
		ix.live[coord].Stimulate(amount, 0)
		return
	}
	ix.pending[coord] += amount
	ix.touchLocked(coord)
}

// TakePendingAbove atomically drains every pending entry at or above the
// threshold and returns them.
func (ix *Index) TakePendingAbove(threshold float64) map[Coord]float64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var out map[Coord]float64
	for coord, amt := range ix.pending {
		if amt >= threshold {
			if out == nil {
				out = map[Coord]float64{}
			}
			out[coord] = amt
			delete(ix.pending, coord)
		}
	}
	return out
}

func (ix *Index) PendingAt(coord Coord) float64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.pending[coord]
}

// ListLive returns a point-in-time copy of the live table. Spawns and
// despawns after the call do not affect the returned slice.
func (ix *Index) ListLive() []LiveCell {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]LiveCell, 0, len(ix.live))
	for coord, c := range ix.live {
		out = append(out, LiveCell{Coord: coord, Cell: c})
	}
	return out
}

func (ix *Index) LiveCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.live)
}

func (ix *Index) DormantCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.dormant)
}

// Bounds reports the observed bounding box; ok is false while the
// substrate is still empty.
func (ix *Index) Bounds() (Bounds, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.bounds, ix.hasBounds
}

// Reset drops all live, dormant and pending state. Bounds reset too: the
// substrate forgets everything it ever touched.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.live = map[Coord]*Cell{}
	ix.dormant = map[Coord]CellSnapshot{}
	ix.pending = map[Coord]float64{}
	ix.bounds = Bounds{}
	ix.hasBounds = false
}

func (ix *Index) touchLocked(coord Coord) {
	if !ix.hasBounds {
		ix.bounds = Bounds{MinX: coord.X, MaxX: coord.X, MinY: coord.Y, MaxY: coord.Y}
		ix.hasBounds = true
		return
	}
	ix.bounds = ix.bounds.extend(coord)
}
