package paramstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS param_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	param_blob    BLOB NOT NULL,
	config_json   TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES param_versions(version_id)
);

CREATE TABLE IF NOT EXISTS training_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	trigger_type  TEXT NOT NULL,
	payload_json  TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_params (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES param_versions(version_id)
);
`

// #endregion schema

// #region store-struct
// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNoActive is returned when no parameter set has been created yet.
var ErrNoActive = errors.New("no active parameter version")

// Store manages versioned model parameters in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (logging, the
// trade graph cache).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create-initial
// CreateInitial stores a freshly initialized model as the first version and
// makes it active.
func (s *Store) CreateInitial(m *model.Model) (ParamRecord, error) {
	rec := ParamRecord{
		VersionID: uuid.New().String(),
		Model:     m,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insert(rec, true); err != nil {
		return ParamRecord{}, err
	}
	return rec, nil
}

// #endregion create-initial

// #region commit
// Commit inserts a new version and moves the active pointer to it
// atomically. An empty VersionID is filled in.
func (s *Store) Commit(rec ParamRecord) (ParamRecord, error) {
	if rec.VersionID == "" {
		rec.VersionID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.insert(rec, true); err != nil {
		return ParamRecord{}, err
	}
	return rec, nil
}

// Stage inserts a version without activating it, so a rejected training run
// is still inspectable.
func (s *Store) Stage(rec ParamRecord) (ParamRecord, error) {
	if rec.VersionID == "" {
		rec.VersionID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.insert(rec, false); err != nil {
		return ParamRecord{}, err
	}
	return rec, nil
}

func (s *Store) insert(rec ParamRecord, activate bool) error {
	if rec.Model == nil {
		return fmt.Errorf("insert version %s: nil model", rec.VersionID)
	}
	blob, err := rec.Model.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	cfgJSON, err := json.Marshal(rec.Model.Config())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO param_versions (version_id, parent_id, param_blob, config_json, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), blob, string(cfgJSON),
		rec.CreatedAt.UTC().Format(timeLayout), nullIfEmpty(rec.MetricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if activate {
		_, err = tx.Exec(
			`INSERT INTO active_params (id, version_id) VALUES (1, ?)
			 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
			rec.VersionID,
		)
		if err != nil {
			return fmt.Errorf("set active: %w", err)
		}
	}

	return tx.Commit()
}

// #endregion commit

// #region get-current
// GetCurrent reads the active parameter version.
func (s *Store) GetCurrent() (ParamRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_params WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ParamRecord{}, ErrNoActive
	}
	if err != nil {
		return ParamRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// #endregion get-current

// #region get-version
// GetVersion retrieves a specific parameter version by ID.
func (s *Store) GetVersion(id string) (ParamRecord, error) {
	row := s.db.QueryRow(
		`SELECT version_id, parent_id, param_blob, created_at, metrics_json
		 FROM param_versions WHERE version_id = ?`, id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return ParamRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// GetVersionWithLog retrieves a version together with its latest
// training_log row.
func (s *Store) GetVersionWithLog(id string) (VersionWithLog, error) {
	rec, err := s.GetVersion(id)
	if err != nil {
		return VersionWithLog{}, err
	}
	vl := VersionWithLog{ParamRecord: rec}
	var payload, reason sql.NullString
	err = s.db.QueryRow(
		`SELECT trigger_type, decision, reason, payload_json FROM training_log
		 WHERE version_id = ? ORDER BY id DESC LIMIT 1`, id,
	).Scan(&vl.TriggerType, &vl.Decision, &reason, &payload)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return VersionWithLog{}, fmt.Errorf("get log %s: %w", id, err)
	}
	vl.Reason = reason.String
	vl.PayloadJSON = payload.String
	return vl, nil
}

// #endregion get-version

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM param_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_params (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		targetVersionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent parameter versions, newest first.
func (s *Store) ListVersions(limit int) ([]ParamRecord, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, param_blob, created_at, metrics_json
		 FROM param_versions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []ParamRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-versions

// #region helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ParamRecord, error) {
	var rec ParamRecord
	var parentID, metricsJSON sql.NullString
	var blob []byte
	var createdStr string
	if err := row.Scan(&rec.VersionID, &parentID, &blob, &createdStr, &metricsJSON); err != nil {
		return ParamRecord{}, err
	}
	m, err := model.Decode(blob)
	if err != nil {
		return ParamRecord{}, fmt.Errorf("decode params: %w", err)
	}
	rec.Model = m
	rec.ParentID = parentID.String
	rec.MetricsJSON = metricsJSON.String
	// RFC3339Nano parsing also accepts rows written before the fixed layout
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
