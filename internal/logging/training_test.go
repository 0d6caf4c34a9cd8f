package logging

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE training_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id   TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		payload_json TEXT,
		decision     TEXT NOT NULL,
		reason       TEXT,
		created_at   TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := Entry{
		VersionID:   "v1",
		TriggerType: "train",
		PayloadJSON: `{"final_loss":0.2}`,
		Decision:    "commit",
		Reason:      "loss improved",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var versionID, decision string
	db.QueryRow("SELECT version_id, decision FROM training_log").Scan(&versionID, &decision)
	if versionID != "v1" {
		t.Errorf("expected version_id 'v1', got %q", versionID)
	}
	if decision != "commit" {
		t.Errorf("expected decision 'commit', got %q", decision)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	if err := LogDecision(db, Entry{VersionID: "v2", TriggerType: "rollback", Decision: "no_op"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM training_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogDecision(db, Entry{VersionID: "v3", TriggerType: "train", Decision: "reject"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload, reason sql.NullString
	db.QueryRow("SELECT payload_json, reason FROM training_log").Scan(&payload, &reason)
	if payload.Valid {
		t.Error("expected NULL payload_json for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogDecision(db, Entry{VersionID: "v4", TriggerType: "train", Decision: "commit"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region typed-entry-tests
func TestLogTraining(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	rec := TrainRecord{
		RunID:      "run-1",
		Source:     "synthetic",
		Epochs:     2,
		EpochLoss:  []float64{0.9, 0.4},
		FinalLoss:  0.4,
		GateAction: "commit",
		GateReason: "loss improved",
	}
	if err := LogTraining(db, "v5", rec); err != nil {
		t.Fatalf("LogTraining: %v", err)
	}

	var trigger, payload, reason string
	db.QueryRow("SELECT trigger_type, payload_json, reason FROM training_log").Scan(&trigger, &payload, &reason)
	if trigger != "train" || reason != "loss improved" {
		t.Fatalf("unexpected row: %s %s", trigger, reason)
	}
	var got TrainRecord
	if err := json.Unmarshal([]byte(payload), &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got.RunID != "run-1" || len(got.EpochLoss) != 2 {
		t.Fatalf("payload lost fields: %+v", got)
	}
}

func TestLogDegrade(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	d := Degrade{Country: "RUS", Indicator: "SP.POP.TOTL", Cause: "no data"}
	if err := LogDegrade(db, "", d); err != nil {
		t.Fatalf("LogDegrade: %v", err)
	}
	var decision, payload string
	db.QueryRow("SELECT decision, payload_json FROM training_log").Scan(&decision, &payload)
	if decision != "zero_fill" {
		t.Fatalf("expected zero_fill, got %q", decision)
	}
	var got Degrade
	json.Unmarshal([]byte(payload), &got)
	if got != d {
		t.Fatalf("degrade payload mismatch: %+v", got)
	}
}

// #endregion typed-entry-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	if result := nullIfEmpty(""); result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	if result := nullIfEmpty("hello"); result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
