package tradegraph

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS trade_nodes (
    idx         INTEGER PRIMARY KEY,
    code        TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    features    BLOB NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trade_edges (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    source_idx  INTEGER NOT NULL,
    target_idx  INTEGER NOT NULL,
    weight      REAL NOT NULL,
    updated_at  TEXT NOT NULL,
    UNIQUE(source_idx, target_idx)
);
CREATE INDEX IF NOT EXISTS idx_trade_edges_source ON trade_edges(source_idx);
`

// #endregion schema

// #region types
// ErrNoGraph is returned by Load when nothing has been cached yet.
var ErrNoGraph = errors.New("no cached trade graph")

// Store caches the static trade graph in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion types

// #region constructor
// NewStore creates tables and returns a Store.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("trade graph schema: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region save
// Save replaces the cached graph atomically.
func (s *Store) Save(g *Graph) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM trade_edges`); err != nil {
		return fmt.Errorf("clear edges: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM trade_nodes`); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}
	for i, c := range g.Countries {
		_, err := tx.Exec(
			`INSERT INTO trade_nodes (idx, code, name, features, updated_at) VALUES (?, ?, ?, ?, ?)`,
			i, c.Code, c.Name, encodeFeatures(g.Features[i]), now,
		)
		if err != nil {
			return fmt.Errorf("insert node %s: %w", c.Code, err)
		}
	}
	for _, e := range g.Edges {
		_, err := tx.Exec(
			`INSERT INTO trade_edges (source_idx, target_idx, weight, updated_at) VALUES (?, ?, ?, ?)`,
			e.Source, e.Target, e.Weight, now,
		)
		if err != nil {
			return fmt.Errorf("insert edge %d->%d: %w", e.Source, e.Target, err)
		}
	}
	return tx.Commit()
}

// #endregion save

// #region load
// Load reads the cached graph.
func (s *Store) Load() (*Graph, error) {
	rows, err := s.db.Query(`SELECT code, name, features FROM trade_nodes ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	defer rows.Close()

	g := &Graph{}
	for rows.Next() {
		var c Country
		var blob []byte
		if err := rows.Scan(&c.Code, &c.Name, &blob); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		g.Countries = append(g.Countries, c)
		g.Features = append(g.Features, decodeFeatures(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(g.Countries) == 0 {
		return nil, ErrNoGraph
	}

	edgeRows, err := s.db.Query(`SELECT source_idx, target_idx, weight FROM trade_edges ORDER BY source_idx, target_idx`)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var e Edge
		if err := edgeRows.Scan(&e.Source, &e.Target, &e.Weight); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		g.Edges = append(g.Edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("cached graph invalid: %w", err)
	}
	return g, nil
}

// #endregion load

// #region feature-encoding
func encodeFeatures(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeFeatures(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

// #endregion feature-encoding
