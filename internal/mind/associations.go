package mind

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"neurogel.ai/internal/sim/gel"
)

// Associations tracks pairwise co-activation strength between named
// concepts. It is bookkeeping beside the substrate: the gel's Hebbian
// edges couple adjacent cells, this couples concepts regardless of
// distance.
type Associations struct {
	mu sync.Mutex

	concepts *Concepts
	log      *log.Logger

	rate  float64
	decay float64

	strengths map[string]float64
	dirty     map[string]struct{}

	db *sql.DB
}

func NewAssociations(concepts *Concepts, logger *log.Logger) *Associations {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Associations{
		concepts:  concepts,
		log:       logger,
		rate:      0.1,
		decay:     0.005,
		strengths: map[string]float64{},
		dirty:     map[string]struct{}{},
	}
}

// OpenDB attaches a sqlite database for durable association rows and
// loads whatever it already holds.
func (a *Associations) OpenDB(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS associations (
		pair TEXT PRIMARY KEY,
		strength REAL NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return fmt.Errorf("associations schema: %w", err)
	}

	rows, err := db.Query(`SELECT pair, strength FROM associations`)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer rows.Close()
	a.mu.Lock()
	defer a.mu.Unlock()
	for rows.Next() {
		var pair string
		var s float64
		if err := rows.Scan(&pair, &s); err != nil {
			_ = db.Close()
			return err
		}
		a.strengths[pair] = s
	}
	if err := rows.Err(); err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	return nil
}

func (a *Associations) Close() error {
	a.Flush()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func pairKey(x, y string) string {
	if y < x {
		x, y = y, x
	}
	return x + "|" + y
}

// Strength returns the current association strength between two concepts.
func (a *Associations) Strength(x, y string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.strengths[pairKey(x, y)]
}

// OnStep strengthens pairs of concepts that are hot together and decays
// everything else.
func (a *Associations) OnStep(_ uint64, _ gel.StepStats) {
	hotThreshold := a.concepts.g.Params().ActivationThreshold
	charges := a.concepts.ChargeAll()
	var hot []string
	for name, ch := range charges {
		if ch > hotThreshold {
			hot = append(hot, name)
		}
	}
	sort.Strings(hot)

	a.mu.Lock()
	defer a.mu.Unlock()

	reinforced := map[string]struct{}{}
	for i := 0; i < len(hot); i++ {
		for j := i + 1; j < len(hot); j++ {
			k := pairKey(hot[i], hot[j])
			s := a.strengths[k]
			a.strengths[k] = s + a.rate*(1-s)
			a.dirty[k] = struct{}{}
			reinforced[k] = struct{}{}
		}
	}
	for k, s := range a.strengths {
		if _, ok := reinforced[k]; ok {
			continue
		}
		s *= 1 - a.decay
		if s < 1e-4 {
			delete(a.strengths, k)
		} else {
			a.strengths[k] = s
		}
		a.dirty[k] = struct{}{}
	}
}

// Flush writes dirty rows to the database, if one is attached.
func (a *Associations) Flush() {
	a.mu.Lock()
	db := a.db
	if db == nil || len(a.dirty) == 0 {
		a.mu.Unlock()
		return
	}
	type row struct {
		pair string
		s    float64
		ok   bool
	}
	rows := make([]row, 0, len(a.dirty))
	for k := range a.dirty {
		s, ok := a.strengths[k]
		rows = append(rows, row{k, s, ok})
	}
	a.dirty = map[string]struct{}{}
	a.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range rows {
		var err error
		if !r.ok {
			_, err = db.Exec(`DELETE FROM associations WHERE pair=?`, r.pair)
		} else {
			_, err = db.Exec(
				`INSERT INTO associations(pair,strength,updated_at) VALUES(?,?,?)
				 ON CONFLICT(pair) DO UPDATE SET strength=excluded.strength, updated_at=excluded.updated_at`,
				r.pair, r.s, now)
		}
		if err != nil {
			a.log.Printf("association flush: %v", err)
			return
		}
	}
}

// Export serializes the association map for the state file. The layer
// owns the shape; the persistence format treats it as opaque.
func (a *Associations) Export() json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := json.Marshal(a.strengths)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// Import replaces the association map from a state file subtree. Unknown
// shapes are kept out of memory but preserved by the caller's round-trip.
func (a *Associations) Import(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	m := map[string]float64{}
	if err := json.Unmarshal(raw, &m); err != nil {
		a.log.Printf("association import: %v", err)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.strengths = m
	a.dirty = map[string]struct{}{}
	for k := range m {
		a.dirty[k] = struct{}{}
	}
}
