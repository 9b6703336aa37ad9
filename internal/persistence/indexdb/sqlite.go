package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// StepRow is one step's summary for the read-model index.
type StepRow struct {
	Step        uint64
	Live        int
	Spawned     int
	MeanCharge  float64
	MeanValence float64
}

// AuditRow records a boundary operation (stimulate, region change, state
// load) for offline inspection.
type AuditRow struct {
	Step   uint64
	Kind   string
	Detail string
}

// SQLiteIndex is a secondary read-model over the substrate's activity.
// Writes flow through a single writer goroutine; callers never block on
// the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqStep reqKind = iota + 1
	reqAudit
)

type req struct {
	kind  reqKind
	step  StepRow
	audit AuditRow
}

func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: absorbs bursty step writes without stalling the
		// step loop.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL is a fair
	// durability tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			step INTEGER PRIMARY KEY,
			live INTEGER NOT NULL,
			spawned INTEGER NOT NULL,
			mean_charge REAL NOT NULL,
			mean_valence REAL NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			step INTEGER NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_step ON audits(step);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteStep queues a step row. Drops rows if the indexer falls behind;
// the JSONL step log remains the source of truth.
func (s *SQLiteIndex) WriteStep(row StepRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqStep, step: row}:
	default:
	}
}

func (s *SQLiteIndex) WriteAudit(row AuditRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: row}:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		switch r.kind {
		case reqStep:
			_, _ = s.db.Exec(
				`INSERT OR REPLACE INTO steps(step,live,spawned,mean_charge,mean_valence,recorded_at)
				 VALUES(?,?,?,?,?,?)`,
				r.step.Step, r.step.Live, r.step.Spawned, r.step.MeanCharge, r.step.MeanValence, now)
		case reqAudit:
			_, _ = s.db.Exec(
				`INSERT INTO audits(step,kind,detail,recorded_at) VALUES(?,?,?,?)`,
				r.audit.Step, r.audit.Kind, r.audit.Detail, now)
		}
	}
}

// LatestSteps returns up to n most recent step rows, newest first.
func (s *SQLiteIndex) LatestSteps(n int) ([]StepRow, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT step, live, spawned, mean_charge, mean_valence FROM steps ORDER BY step DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StepRow
	for rows.Next() {
		var r StepRow
		if err := rows.Scan(&r.Step, &r.Live, &r.Spawned, &r.MeanCharge, &r.MeanValence); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
