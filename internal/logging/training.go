package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes an entry to the training_log table.
func LogDecision(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO training_log (version_id, trigger_type, payload_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		entry.TriggerType,
		nullIfEmpty(entry.PayloadJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// LogTraining records the outcome of a training run against versionID.
func LogTraining(db *sql.DB, versionID string, rec TrainRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal train record: %w", err)
	}
	return LogDecision(db, Entry{
		VersionID:   versionID,
		TriggerType: "train",
		PayloadJSON: string(payload),
		Decision:    rec.GateAction,
		Reason:      rec.GateReason,
	})
}

// #endregion log-decision

// #region log-degrade
// LogDegrade records a zero substitution so it stays attributable after the
// fact. versionID may be empty when no parameter version is involved.
func LogDegrade(db *sql.DB, versionID string, d Degrade) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal degrade: %w", err)
	}
	return LogDecision(db, Entry{
		VersionID:   versionID,
		TriggerType: "degrade",
		PayloadJSON: string(payload),
		Decision:    "zero_fill",
		Reason:      d.Cause,
	})
}

// #endregion log-degrade

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
