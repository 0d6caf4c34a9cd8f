package logging

import "time"

// #region entry
// Entry is a single row in the training_log table.
type Entry struct {
	VersionID   string
	TriggerType string // "train" | "bootstrap" | "rollback" | "degrade"
	PayloadJSON string
	Decision    string // "commit" | "reject" | "no_op" | "zero_fill"
	Reason      string
	CreatedAt   time.Time
}

// #endregion entry

// #region train-record
// TrainRecord captures everything the commit gate saw for one training run.
// Serialized as JSON into training_log.payload_json so a run can be audited
// later without the parameters.
type TrainRecord struct {
	RunID        string  `json:"run_id"`
	Source       string  `json:"source"` // "synthetic" | "historical"
	Epochs       int     `json:"epochs"`
	Steps        int     `json:"steps"`
	Optimizer    string  `json:"optimizer"`
	LearningRate float64 `json:"learning_rate"`

	EpochLoss      []float64 `json:"epoch_loss"`
	FinalLoss      float64   `json:"final_loss"`
	BaselineLoss   float64   `json:"baseline_loss"`
	DegradedLabels int       `json:"degraded_labels"`
	FailedEpochs   int       `json:"failed_epochs"`

	ParamNorm float64 `json:"param_norm"`

	// Probe outcome
	ProbesPassed  bool     `json:"probes_passed"`
	ProbeFailures []string `json:"probe_failures,omitempty"`

	// Gate output
	GateAction string `json:"gate_action"`
	GateReason string `json:"gate_reason"`
}

// #endregion train-record

// #region degrade
// Degrade is one zero substitution made for unavailable external data.
type Degrade struct {
	Country   string `json:"country"`
	Indicator string `json:"indicator"`
	Year      int    `json:"year,omitempty"`
	Cause     string `json:"cause"`
}

// #endregion degrade
